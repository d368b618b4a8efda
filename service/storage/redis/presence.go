package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"dyadchat/module/chat/model"
)

const presencePrefix = "im:presence:"

// presence key: im:presence:<user>，value 为节点ID，TTL 控制在线有效期
func presenceKey(u model.UserID) string { return presencePrefix + u.String() }

// Presence 在线状态镜像，给其他服务只读查询；本进程的在线判断以连接表为准
type Presence struct {
	rdb    redis.UniversalClient
	nodeID string
	ttl    time.Duration
}

func NewPresence(rdb redis.UniversalClient, nodeID int64, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &Presence{rdb: rdb, nodeID: strconv.FormatInt(nodeID, 10), ttl: ttl}
}

// Online 写入并续期
func (p *Presence) Online(ctx context.Context, u model.UserID) error {
	return p.rdb.Set(ctx, presenceKey(u), p.nodeID, p.ttl).Err()
}

// Refresh 心跳续期，key 已过期时重新写入
func (p *Presence) Refresh(ctx context.Context, u model.UserID) error {
	ok, err := p.rdb.Expire(ctx, presenceKey(u), p.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return p.Online(ctx, u)
	}
	return nil
}

// Offline 只删除本节点写入的 key
func (p *Presence) Offline(ctx context.Context, u model.UserID) error {
	val, err := p.rdb.Get(ctx, presenceKey(u)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if val != p.nodeID {
		return nil
	}
	return p.rdb.Del(ctx, presenceKey(u)).Err()
}

// Lookup 返回写入该用户的节点ID
func (p *Presence) Lookup(ctx context.Context, u model.UserID) (node string, online bool, err error) {
	val, err := p.rdb.Get(ctx, presenceKey(u)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
