package room

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"dyadchat/module/chat/model"
	"dyadchat/service/storage"
)

var ErrInvalidPair = errors.New("room: invalid user pair")

// Resolver 无序用户对 -> 唯一房间
//
// 同一进程内按 pair 合并并发请求；跨进程依赖表上的 UNIQUE(user_1, user_2)，
// 插入冲突后重读拿到赢家的房间。
type Resolver struct {
	rooms storage.RoomStore
	group singleflight.Group
}

func NewResolver(rooms storage.RoomStore) *Resolver {
	return &Resolver{rooms: rooms}
}

// Find 只读，不存在时返回 storage.ErrNotFound
func (r *Resolver) Find(ctx context.Context, a, b model.UserID) (model.Room, error) {
	p := model.CanonicalPair(a, b)
	if !p.Valid() {
		return model.Room{}, ErrInvalidPair
	}
	return r.rooms.FindRoom(ctx, p)
}

// Resolve 读不到就创建，重复或并发调用得到同一个房间
func (r *Resolver) Resolve(ctx context.Context, a, b model.UserID) (model.Room, error) {
	p := model.CanonicalPair(a, b)
	if !p.Valid() {
		return model.Room{}, ErrInvalidPair
	}

	v, err, _ := r.group.Do(p.Key(), func() (any, error) {
		return r.getOrCreate(ctx, p)
	})
	if err != nil {
		return model.Room{}, err
	}
	return v.(model.Room), nil
}

func (r *Resolver) getOrCreate(ctx context.Context, p model.Pair) (model.Room, error) {
	room, err := r.rooms.FindRoom(ctx, p)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return model.Room{}, fmt.Errorf("resolve room %s: %w", p.Key(), err)
	}

	room, err = r.rooms.CreateRoom(ctx, p)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, storage.ErrConflict) {
		return model.Room{}, fmt.Errorf("resolve room %s: %w", p.Key(), err)
	}

	// 另一个进程抢先插入
	room, err = r.rooms.FindRoom(ctx, p)
	if err != nil {
		return model.Room{}, fmt.Errorf("resolve room %s after conflict: %w", p.Key(), err)
	}
	return room, nil
}
