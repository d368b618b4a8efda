package chat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"dyadchat/logger"
	"dyadchat/module/chat/frame"
	"dyadchat/module/chat/model"
	"dyadchat/module/chat/room"
	"dyadchat/service/storage"
	"dyadchat/tools/errs"
)

// 已认证连接上收到 auth
func (r *Router) handleReauth(_ context.Context, _ *Conn, _ frame.Inbound) error {
	return errs.ErrAlreadyAuthenticated
}

func (r *Router) handleUnknown(_ context.Context, c *Conn, in frame.Inbound) error {
	u, _ := in.(frame.Unknown)
	out := frame.NewError(errs.CodeUnknownCommand, errs.ErrUnknownCommand.Msg)
	out.Tag = u.Tag
	out.Data = u.Raw
	r.deliver(c, out)
	return nil
}

func persistErr(err error, op string) error {
	return errs.ErrPersistence.WrapMsg(op, "err", err)
}

func (r *Router) handleSendMessage(ctx context.Context, c *Conn, in frame.Inbound) error {
	req := in.(frame.SendMessage)
	if frame.Check(req) != nil {
		return errs.ErrMissingField.WithMsg(frame.MsgMissingReceiverOrMessage)
	}
	me, _ := c.User()
	if req.To == me {
		return errs.ErrInvalidPeer
	}

	rm, err := r.rooms.Resolve(ctx, me, req.To)
	if err != nil {
		return persistErr(err, "resolve room")
	}
	msg, err := r.store.CreateMessage(ctx, model.NewMessage(rm.ID, me, req.To, req.Message, r.now()))
	if err != nil {
		return persistErr(err, "create message")
	}
	r.publish("message.sent", r.events.MessageSent(ctx, msg))

	if r.sendToUser(req.To, frame.NewDeliver(msg)) > 0 {
		at := r.now()
		ok, err := r.store.AdvanceStatus(ctx, msg.ID, model.StatusDelivered, at)
		switch {
		case err != nil:
			// 已经推出去了，回执里如实报告 sent
			logger.Error("[router] mark delivered", zap.Int64("message", int64(msg.ID)), zap.Error(err))
		case ok:
			msg.Status = model.StatusDelivered
			msg.DeliveredAt = &at
			r.publish("message.delivered", r.events.MessageDelivered(ctx, msg))
		}
	}

	r.metrics.Message(string(msg.Status))
	r.deliver(c, frame.NewMessageSent(msg))
	return nil
}

func (r *Router) handleFetchHistory(ctx context.Context, c *Conn, in frame.Inbound) error {
	req := in.(frame.FetchHistory)
	if frame.Check(req) != nil {
		return errs.ErrMissingField.WithMsg(frame.MsgMissingUserID)
	}
	me, _ := c.User()

	rm, err := r.rooms.Find(ctx, me, req.WithUserID)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, room.ErrInvalidPair) {
		r.deliver(c, frame.NewHistory(req.WithUserID, nil))
		return nil
	}
	if err != nil {
		return persistErr(err, "find room")
	}
	msgs, err := r.store.ListMessages(ctx, rm.ID)
	if err != nil {
		return persistErr(err, "list messages")
	}
	r.deliver(c, frame.NewHistory(req.WithUserID, msgs))
	return nil
}

func (r *Router) handleFetchConversations(ctx context.Context, c *Conn, _ frame.Inbound) error {
	me, _ := c.User()
	list, err := r.conversations(ctx, me)
	if err != nil {
		return persistErr(err, "conversations")
	}
	r.deliver(c, frame.NewConversations(list, r.avatar))
	return nil
}

// 缺字段或没有房间时什么都不做
func (r *Router) handleMarkRead(ctx context.Context, c *Conn, in frame.Inbound) error {
	req := in.(frame.MarkRead)
	if frame.Check(req) != nil {
		return nil
	}
	me, _ := c.User()

	rm, err := r.rooms.Find(ctx, me, req.To)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, room.ErrInvalidPair) {
		return nil
	}
	if err != nil {
		return persistErr(err, "find room")
	}
	n, err := r.store.MarkRead(ctx, rm.ID, req.To, me)
	if err != nil {
		return persistErr(err, "mark read")
	}
	if n > 0 {
		r.publish("message.read", r.events.MessagesRead(ctx, rm.ID, me, req.To, n))
	}
	r.sendToUser(req.To, frame.NewMessagesRead(me))
	return nil
}

// typing / typing_stop 只转发，不落库
func (r *Router) handleTyping(_ context.Context, c *Conn, in frame.Inbound) error {
	req := in.(frame.Typing)
	me, _ := c.User()
	if frame.Check(req) != nil || req.To == me {
		return nil
	}
	r.notifyTyping(me, req.To, req.Stop)
	return nil
}

func (r *Router) handleSearchUserByEmail(ctx context.Context, c *Conn, in frame.Inbound) error {
	req := in.(frame.SearchUserByEmail)
	email := strings.TrimSpace(req.Email)
	if email == "" {
		r.deliver(c, frame.SearchFailed(frame.MsgEmailRequired))
		return nil
	}
	me, _ := c.User()

	u, err := r.store.FindUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && u.ID == me) {
		r.deliver(c, frame.SearchFailed(frame.MsgUserNotFound))
		return nil
	}
	if err != nil {
		return persistErr(err, "find user")
	}
	r.deliver(c, frame.SearchFound(u, r.avatar, model.PresenceOf(r.registry.IsOnline(u.ID))))
	return nil
}

func (r *Router) handleStartChatWithUser(ctx context.Context, c *Conn, in frame.Inbound) error {
	req := in.(frame.StartChatWithUser)
	me, _ := c.User()
	if frame.Check(req) != nil || req.UserID == me {
		r.deliver(c, frame.StartChatFailed(frame.MsgInvalidUser))
		return nil
	}

	peer, err := r.store.GetUser(ctx, req.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		r.deliver(c, frame.StartChatFailed(frame.MsgUserNotFound))
		return nil
	}
	if err != nil {
		return persistErr(err, "get user")
	}

	rm, err := r.rooms.Resolve(ctx, me, peer.ID)
	if err != nil {
		return persistErr(err, "resolve room")
	}
	conv, err := r.summarize(ctx, me, rm, peer)
	if err != nil {
		return persistErr(err, "summarize")
	}
	r.deliver(c, frame.StartChatOK(frame.NewConversation(conv, r.avatar)))
	return nil
}
