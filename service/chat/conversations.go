package chat

import (
	"context"
	"errors"
	"sort"

	"dyadchat/module/chat/model"
	"dyadchat/service/storage"
)

// conversations 调用方参与的所有房间的摘要，最近活跃的在前。
// 对端用户已不存在的房间跳过。
func (r *Router) conversations(ctx context.Context, me model.UserID) ([]model.Conversation, error) {
	rooms, err := r.store.ListRoomsForUser(ctx, me)
	if err != nil {
		return nil, err
	}
	out := make([]model.Conversation, 0, len(rooms))
	for _, rm := range rooms {
		peer, err := r.store.GetUser(ctx, rm.Other(me))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		conv, err := r.summarize(ctx, me, rm, peer)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].LastTime(), out[j].LastTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].RoomID > out[j].RoomID
	})
	return out, nil
}

func (r *Router) summarize(ctx context.Context, me model.UserID, rm model.Room, peer model.User) (model.Conversation, error) {
	last, err := r.store.LastMessage(ctx, rm.ID)
	if err != nil {
		return model.Conversation{}, err
	}
	unread, err := r.store.CountUnread(ctx, rm.ID, me)
	if err != nil {
		return model.Conversation{}, err
	}
	return model.Conversation{
		Peer:        peer,
		RoomID:      rm.ID,
		LastMessage: last,
		Unread:      unread,
		Presence:    model.PresenceOf(r.registry.IsOnline(peer.ID)),
	}, nil
}
