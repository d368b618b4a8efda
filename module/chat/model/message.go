package model

import (
	"fmt"
	"time"
)

type MessageID int64

// Status 消息状态，只能前进：sent -> delivered -> read
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

func (s Status) Valid() bool { return s.rank() > 0 }

// CanAdvance 只有严格向后才允许
func (s Status) CanAdvance(to Status) bool {
	return to.Valid() && s.rank() < to.rank()
}

// Predecessors 可推进到 s 的所有状态，用于条件更新的 IN 列表
func (s Status) Predecessors() []Status {
	var out []Status
	for _, p := range []Status{StatusSent, StatusDelivered} {
		if p.CanAdvance(s) {
			out = append(out, p)
		}
	}
	return out
}

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown message status %q", v)
	}
	return s, nil
}

// Message 持久化消息，只由路由创建，只通过状态推进修改
type Message struct {
	ID          MessageID  `db:"message_id"`   // 消息ID
	RoomID      RoomID     `db:"chat_room_id"` // 所属房间
	SenderID    UserID     `db:"sender_id"`    // 发送者
	ReceiverID  UserID     `db:"receiver_id"`  // 接收者
	Body        string     `db:"message"`      // 正文
	Status      Status     `db:"read_status"`  // sent/delivered/read
	CreatedAt   time.Time  `db:"created_at"`
	DeliveredAt *time.Time `db:"delivered_at"` // 未投递时为空
}

func (m *Message) TableName() string {
	return "chat_message"
}

// NewMessage 构造一条待持久化的 sent 消息
func NewMessage(room RoomID, from, to UserID, body string, at time.Time) Message {
	return Message{
		RoomID:     room,
		SenderID:   from,
		ReceiverID: to,
		Body:       body,
		Status:     StatusSent,
		CreatedAt:  at.UTC(),
	}
}
