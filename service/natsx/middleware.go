package natsx

import (
	"context"
	"sync"
	"time"
)

// NatsxMiddleware 包装消费端 handler（去重、日志等）
type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain 按传入顺序由外到内组合
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type IdemStore interface {
	SeenOnce(key string, ttl time.Duration) bool
}

// memIdem 单进程去重表，过期项在写入时顺带清理
type memIdem struct {
	mu        sync.Mutex
	m         map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewMemIdem(defaultTTL time.Duration) IdemStore {
	return newMemIdem(defaultTTL, time.Now)
}

func newMemIdem(ttl time.Duration, now func() time.Time) *memIdem {
	return &memIdem{m: make(map[string]time.Time), ttl: ttl, now: now, lastSweep: now()}
}

func (mi *memIdem) SeenOnce(key string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	now := mi.now()

	mi.mu.Lock()
	defer mi.mu.Unlock()
	if now.Sub(mi.lastSweep) >= ttl {
		for k, exp := range mi.m {
			if !exp.After(now) {
				delete(mi.m, k)
			}
		}
		mi.lastSweep = now
	}
	if exp, ok := mi.m[key]; ok && exp.After(now) {
		return true
	}
	mi.m[key] = now.Add(ttl)
	return false
}

// NatsxIdemMiddleware 按 Nats-Msg-Id 丢弃重复消息；没有 ID 的消息直接放行
func NatsxIdemMiddleware(store IdemStore, ttl time.Duration) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, m NatsxMessage) error {
			id := m.Header[HeaderMsgID]
			if id != "" && store.SeenOnce(id, ttl) {
				return nil
			}
			return next(ctx, m)
		}
	}
}
