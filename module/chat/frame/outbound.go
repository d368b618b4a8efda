package frame

import (
	"time"

	"dyadchat/module/chat/model"
)

// 服务端 -> 客户端
const (
	TypeAuthRequired    Type = "auth_required"
	TypeAuthSuccess     Type = "auth_success"
	TypeAuthFailed      Type = "auth_failed"
	TypeMessageSent     Type = "message_sent"
	TypeHistory         Type = "history"
	TypeConversations   Type = "conversations"
	TypeMessagesRead    Type = "messages_read"
	TypeUserStatus      Type = "user_status"
	TypeSearchResult    Type = "search_user_by_email_result"
	TypeStartChatResult Type = "start_chat_with_user_result"
	TypeError           Type = "error"
)

// 返回给客户端的固定文案
const (
	MsgMissingReceiverOrMessage = "Missing receiver or message"
	MsgMissingUserID            = "Missing user ID"
	MsgEmailRequired            = "Email is required."
	MsgUserNotFound             = "User not found."
	MsgInvalidUser              = "Invalid user."
)

type Signal struct {
	Type Type `json:"type"`
}

type AuthSuccess struct {
	Type   Type         `json:"type"`
	UserID model.UserID `json:"userId"`
}

// Deliver 推给接收方的消息
type Deliver struct {
	Type      Type            `json:"type"`
	ID        model.MessageID `json:"id"`
	From      model.UserID    `json:"from"`
	Message   string          `json:"message"`
	CreatedAt string          `json:"created_at"`
}

// MessageSent 发送方回执，status 为发送时刻观察到的状态
type MessageSent struct {
	Type      Type            `json:"type"`
	ID        model.MessageID `json:"id"`
	To        model.UserID    `json:"to"`
	Message   string          `json:"message"`
	Status    model.Status    `json:"status"`
	CreatedAt string          `json:"created_at"`
}

type HistoryItem struct {
	MessageID   model.MessageID `json:"message_id"`
	ChatRoomID  model.RoomID    `json:"chat_room_id"`
	SenderID    model.UserID    `json:"sender_id"`
	ReceiverID  model.UserID    `json:"receiver_id"`
	Message     string          `json:"message"`
	ReadStatus  model.Status    `json:"read_status"`
	CreatedAt   string          `json:"created_at"`
	DeliveredAt string          `json:"delivered_at"`
}

type History struct {
	Type       Type          `json:"type"`
	WithUserID model.UserID  `json:"withUserId"`
	Messages   []HistoryItem `json:"messages"`
}

type Conversation struct {
	UserID          model.UserID   `json:"userId"`
	Name            string         `json:"name"`
	Avatar          string         `json:"avatar"`
	LastMessage     string         `json:"lastMessage"`
	LastMessageTime string         `json:"lastMessageTime"`
	Unread          int            `json:"unread"`
	Status          model.Presence `json:"status"`
	ChatRoomID      model.RoomID   `json:"chatRoomId"`
}

type Conversations struct {
	Type          Type           `json:"type"`
	Conversations []Conversation `json:"conversations"`
}

type MessagesRead struct {
	Type Type         `json:"type"`
	By   model.UserID `json:"by"`
}

type UserStatus struct {
	Type       Type           `json:"type"`
	UserID     model.UserID   `json:"userId"`
	Status     model.Presence `json:"status"`
	ChatRoomID model.RoomID   `json:"chatRoomId"`
}

// TypingNotice typing / typing_stop 共用
type TypingNotice struct {
	Type   Type         `json:"type"`
	UserID model.UserID `json:"userId"`
}

type FoundUser struct {
	UserID model.UserID   `json:"userId"`
	Name   string         `json:"name"`
	Avatar string         `json:"avatar"`
	Email  string         `json:"email"`
	Status model.Presence `json:"status"`
}

type SearchResult struct {
	Type    Type       `json:"type"`
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	User    *FoundUser `json:"user,omitempty"`
}

type StartChatResult struct {
	Type         Type          `json:"type"`
	Success      bool          `json:"success"`
	Message      string        `json:"message,omitempty"`
	Conversation *Conversation `json:"conversation,omitempty"`
}

type Error struct {
	Type    Type   `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Tag     string `json:"command,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ---- 构造 ----

func AuthRequired() Signal { return Signal{Type: TypeAuthRequired} }
func AuthFailed() Signal   { return Signal{Type: TypeAuthFailed} }

func NewAuthSuccess(u model.UserID) AuthSuccess {
	return AuthSuccess{Type: TypeAuthSuccess, UserID: u}
}

func NewDeliver(m model.Message) Deliver {
	return Deliver{
		Type:      TypeMessage,
		ID:        m.ID,
		From:      m.SenderID,
		Message:   m.Body,
		CreatedAt: Timestamp(m.CreatedAt),
	}
}

func NewMessageSent(m model.Message) MessageSent {
	return MessageSent{
		Type:      TypeMessageSent,
		ID:        m.ID,
		To:        m.ReceiverID,
		Message:   m.Body,
		Status:    m.Status,
		CreatedAt: Timestamp(m.CreatedAt),
	}
}

func NewHistory(with model.UserID, msgs []model.Message) History {
	items := make([]HistoryItem, 0, len(msgs))
	for _, m := range msgs {
		item := HistoryItem{
			MessageID:  m.ID,
			ChatRoomID: m.RoomID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Message:    m.Body,
			ReadStatus: m.Status,
			CreatedAt:  Timestamp(m.CreatedAt),
		}
		if m.DeliveredAt != nil {
			item.DeliveredAt = Timestamp(*m.DeliveredAt)
		}
		items = append(items, item)
	}
	return History{Type: TypeHistory, WithUserID: with, Messages: items}
}

// NewConversation 展示字段缺省：名字 "User <id>"，头像 avatar
func NewConversation(c model.Conversation, avatar string) Conversation {
	return Conversation{
		UserID:          c.Peer.ID,
		Name:            c.Peer.DisplayName(),
		Avatar:          c.Peer.Avatar(avatar),
		LastMessage:     c.LastBody(),
		LastMessageTime: Timestamp(c.LastTime()),
		Unread:          c.Unread,
		Status:          c.Presence,
		ChatRoomID:      c.RoomID,
	}
}

func NewConversations(list []model.Conversation, avatar string) Conversations {
	out := make([]Conversation, 0, len(list))
	for _, c := range list {
		out = append(out, NewConversation(c, avatar))
	}
	return Conversations{Type: TypeConversations, Conversations: out}
}

func NewMessagesRead(by model.UserID) MessagesRead {
	return MessagesRead{Type: TypeMessagesRead, By: by}
}

func NewUserStatus(u model.UserID, p model.Presence, room model.RoomID) UserStatus {
	return UserStatus{Type: TypeUserStatus, UserID: u, Status: p, ChatRoomID: room}
}

func NewTyping(from model.UserID, stop bool) TypingNotice {
	t := TypeTyping
	if stop {
		t = TypeTypingStop
	}
	return TypingNotice{Type: t, UserID: from}
}

func SearchFound(u model.User, avatar string, p model.Presence) SearchResult {
	return SearchResult{
		Type:    TypeSearchResult,
		Success: true,
		User: &FoundUser{
			UserID: u.ID,
			Name:   u.DisplayName(),
			Avatar: u.Avatar(avatar),
			Email:  u.Email,
			Status: p,
		},
	}
}

func SearchFailed(msg string) SearchResult {
	return SearchResult{Type: TypeSearchResult, Message: msg}
}

func StartChatOK(c Conversation) StartChatResult {
	return StartChatResult{Type: TypeStartChatResult, Success: true, Conversation: &c}
}

func StartChatFailed(msg string) StartChatResult {
	return StartChatResult{Type: TypeStartChatResult, Message: msg}
}

func NewError(code int, msg string) Error {
	return Error{Type: TypeError, Code: code, Message: msg}
}

// Timestamp RFC3339 UTC，零值输出空串
func Timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
