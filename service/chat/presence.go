package chat

import (
	"context"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"dyadchat/logger"
	"dyadchat/module/chat/frame"
	"dyadchat/module/chat/model"
)

func (r *Router) wentOnline(ctx context.Context, u model.UserID) {
	if err := r.mirror.Online(ctx, u); err != nil {
		logger.Warn("[presence] mirror online", zap.Stringer("user", u), zap.Error(err))
	}
	r.publish("presence", r.events.Presence(ctx, u, model.Online))
	r.broadcastPresence(ctx, u, model.Online)
}

func (r *Router) wentOffline(ctx context.Context, u model.UserID) {
	if err := r.mirror.Offline(ctx, u); err != nil {
		logger.Warn("[presence] mirror offline", zap.Stringer("user", u), zap.Error(err))
	}
	r.publish("presence", r.events.Presence(ctx, u, model.Offline))
	r.broadcastPresence(ctx, u, model.Offline)
}

// broadcastPresence 只通知与 u 共享房间且在线的对端
func (r *Router) broadcastPresence(ctx context.Context, u model.UserID, p model.Presence) {
	rooms, err := r.store.ListRoomsForUser(ctx, u)
	if err != nil {
		logger.Error("[presence] list rooms", zap.Stringer("user", u), zap.Error(err))
		return
	}
	rooms = lo.UniqBy(rooms, func(rm model.Room) model.UserID { return rm.Other(u) })
	live := lo.Filter(rooms, func(rm model.Room, _ int) bool { return r.registry.IsOnline(rm.Other(u)) })

	for _, rm := range live {
		r.sendToUser(rm.Other(u), frame.NewUserStatus(u, p, rm.ID))
	}
}

// notifyTyping 点对点，只发给房间的另一方
func (r *Router) notifyTyping(from, to model.UserID, stop bool) {
	r.sendToUser(to, frame.NewTyping(from, stop))
}
