package model

import "time"

type Presence string

const (
	Online  Presence = "online"
	Offline Presence = "offline"
)

func PresenceOf(live bool) Presence {
	if live {
		return Online
	}
	return Offline
}

// Conversation 会话摘要，按需计算，不落库
type Conversation struct {
	Peer        User
	RoomID      RoomID
	LastMessage *Message // 没有消息时为空
	Unread      int      // 对方发给我、状态为 sent/delivered 的条数
	Presence    Presence
}

func (c Conversation) LastBody() string {
	if c.LastMessage == nil {
		return ""
	}
	return c.LastMessage.Body
}

func (c Conversation) LastTime() time.Time {
	if c.LastMessage == nil {
		return time.Time{}
	}
	return c.LastMessage.CreatedAt
}
