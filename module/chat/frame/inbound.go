package frame

import "dyadchat/module/chat/model"

// Type 帧的 type 标签
type Type string

// 客户端 -> 服务端
const (
	TypeAuth               Type = "auth"
	TypeMessage            Type = "message"
	TypeFetchHistory       Type = "fetch_history"
	TypeFetchConversations Type = "fetch_conversations"
	TypeMarkRead           Type = "mark_read"
	TypeTyping             Type = "typing"
	TypeTypingStop         Type = "typing_stop"
	TypeSearchUserByEmail  Type = "search_user_by_email"
	TypeStartChatWithUser  Type = "start_chat_with_user"
)

// Inbound 客户端帧的封闭联合，只有本包内的类型能实现
type Inbound interface {
	Type() Type
	inbound()
}

type Auth struct {
	Token string `json:"token" validate:"required"`
}

type SendMessage struct {
	To      model.UserID `json:"to" validate:"required,gt=0"`
	Message string       `json:"message" validate:"required"`
}

type FetchHistory struct {
	WithUserID model.UserID `json:"withUserId" validate:"required,gt=0"`
}

type FetchConversations struct{}

type MarkRead struct {
	To model.UserID `json:"to" validate:"required,gt=0"`
}

// Typing 覆盖 typing 与 typing_stop，Stop 由 type 决定
type Typing struct {
	To   model.UserID `json:"to" validate:"required,gt=0"`
	Stop bool         `json:"-"`
}

type SearchUserByEmail struct {
	Email string `json:"email" validate:"required"`
}

type StartChatWithUser struct {
	UserID model.UserID `json:"userId" validate:"required,gt=0"`
}

// Unknown 未识别的 type，原样保留负载用于回显
type Unknown struct {
	Tag string
	Raw map[string]any
}

func (Auth) Type() Type               { return TypeAuth }
func (SendMessage) Type() Type        { return TypeMessage }
func (FetchHistory) Type() Type       { return TypeFetchHistory }
func (FetchConversations) Type() Type { return TypeFetchConversations }
func (MarkRead) Type() Type           { return TypeMarkRead }
func (SearchUserByEmail) Type() Type  { return TypeSearchUserByEmail }
func (StartChatWithUser) Type() Type  { return TypeStartChatWithUser }
func (u Unknown) Type() Type          { return Type(u.Tag) }

func (t Typing) Type() Type {
	if t.Stop {
		return TypeTypingStop
	}
	return TypeTyping
}

func (Auth) inbound()               {}
func (SendMessage) inbound()        {}
func (FetchHistory) inbound()       {}
func (FetchConversations) inbound() {}
func (MarkRead) inbound()           {}
func (Typing) inbound()             {}
func (SearchUserByEmail) inbound()  {}
func (StartChatWithUser) inbound()  {}
func (Unknown) inbound()            {}
