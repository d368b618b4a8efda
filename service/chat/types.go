package chat

import (
	"context"

	"dyadchat/module/chat/model"
)

// Events 落库成功之后的生命周期事件，发布失败只记日志
type Events interface {
	MessageSent(ctx context.Context, m model.Message) error
	MessageDelivered(ctx context.Context, m model.Message) error
	MessagesRead(ctx context.Context, room model.RoomID, by, peer model.UserID, count int64) error
	Presence(ctx context.Context, u model.UserID, p model.Presence) error
}

// PresenceMirror 在线状态的外部镜像（Redis），本地 Registry 仍是唯一判定依据
type PresenceMirror interface {
	Online(ctx context.Context, u model.UserID) error
	Refresh(ctx context.Context, u model.UserID) error
	Offline(ctx context.Context, u model.UserID) error
}

type nopEvents struct{}

func (nopEvents) MessageSent(context.Context, model.Message) error      { return nil }
func (nopEvents) MessageDelivered(context.Context, model.Message) error { return nil }
func (nopEvents) MessagesRead(context.Context, model.RoomID, model.UserID, model.UserID, int64) error {
	return nil
}
func (nopEvents) Presence(context.Context, model.UserID, model.Presence) error { return nil }

type nopMirror struct{}

func (nopMirror) Online(context.Context, model.UserID) error  { return nil }
func (nopMirror) Refresh(context.Context, model.UserID) error { return nil }
func (nopMirror) Offline(context.Context, model.UserID) error { return nil }
