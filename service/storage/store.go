package storage

import (
	"context"
	"errors"
	"time"

	"dyadchat/module/chat/model"
)

var (
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict 唯一约束冲突，房间并发创建时由调用方重读
	ErrConflict = errors.New("storage: conflict")
)

// UserStore 用户表由外部系统维护，这里只读
type UserStore interface {
	GetUser(ctx context.Context, id model.UserID) (model.User, error)
	// FindUserByEmail 去空白后大小写不敏感匹配
	FindUserByEmail(ctx context.Context, email string) (model.User, error)
}

type RoomStore interface {
	FindRoom(ctx context.Context, p model.Pair) (model.Room, error)
	// CreateRoom 该用户对已有房间时返回 ErrConflict
	CreateRoom(ctx context.Context, p model.Pair) (model.Room, error)
	ListRoomsForUser(ctx context.Context, u model.UserID) ([]model.Room, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, m model.Message) (model.Message, error)
	GetMessage(ctx context.Context, id model.MessageID) (model.Message, error)
	// AdvanceStatus 条件更新，只在当前状态先于 to 时生效；返回是否有行被修改
	AdvanceStatus(ctx context.Context, id model.MessageID, to model.Status, at time.Time) (bool, error)
	// MarkRead sender 发给 receiver 的 sent/delivered 消息全部置为 read
	MarkRead(ctx context.Context, room model.RoomID, sender, receiver model.UserID) (int64, error)
	ListMessages(ctx context.Context, room model.RoomID) ([]model.Message, error)
	// LastMessage 房间没有消息时返回 nil, nil
	LastMessage(ctx context.Context, room model.RoomID) (*model.Message, error)
	CountUnread(ctx context.Context, room model.RoomID, receiver model.UserID) (int, error)
}

type Store interface {
	UserStore
	RoomStore
	MessageStore
	Close() error
}
