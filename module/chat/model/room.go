package model

import "time"

type RoomID int64

// Room 两个用户之间唯一的会话，Low < High
type Room struct {
	ID        RoomID    `db:"chat_room_id"` // 房间ID
	Low       UserID    `db:"user_1"`       // 较小的用户ID
	High      UserID    `db:"user_2"`       // 较大的用户ID
	CreatedAt time.Time `db:"created_at"`
}

func (r *Room) TableName() string {
	return "chat_room"
}

// Pair 无序用户对的规范形式 (min, max)，房间去重键
type Pair struct {
	Low  UserID
	High UserID
}

func CanonicalPair(a, b UserID) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}
}

// Valid 两端都合法且不是同一个人
func (p Pair) Valid() bool {
	return p.Low.Valid() && p.High.Valid() && p.Low != p.High
}

func (p Pair) Key() string {
	return p.Low.String() + ":" + p.High.String()
}

func (r Room) Pair() Pair { return Pair{Low: r.Low, High: r.High} }

func (r Room) Has(u UserID) bool { return r.Low == u || r.High == u }

// Other 返回房间里另一个参与者；u 不在房间时返回 0
func (r Room) Other(u UserID) UserID {
	switch u {
	case r.Low:
		return r.High
	case r.High:
		return r.Low
	default:
		return 0
	}
}
