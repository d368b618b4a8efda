package chat

import (
	"sync"

	"dyadchat/module/chat/model"
)

// Registry 连接登记表。
// conns 记录所有打开的连接（含未认证），byUser 只记录已认证的。
// 一个用户可以有多条连接，发给该用户的帧会推到每一条上。
type Registry struct {
	mu     sync.RWMutex
	conns  map[*Conn]struct{}
	byUser map[model.UserID]map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[*Conn]struct{}),
		byUser: make(map[model.UserID]map[*Conn]struct{}),
	}
}

// Track 新连接
func (r *Registry) Track(c *Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// Register 绑定身份，first 表示该用户从 0 条连接变为 1 条
func (r *Registry) Register(u model.UserID, c *Conn) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = struct{}{}
	set := r.byUser[u]
	if set == nil {
		set = make(map[*Conn]struct{})
		r.byUser[u] = set
	}
	if _, ok := set[c]; ok {
		return false
	}
	set[c] = struct{}{}
	return len(set) == 1
}

// Unregister 移除连接。
// tracked=false 表示已经移除过；last 表示这是该用户最后一条连接。
func (r *Registry) Unregister(c *Conn) (u model.UserID, tracked, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; !ok {
		return 0, false, false
	}
	delete(r.conns, c)

	u, authed := c.User()
	if !authed {
		return 0, true, false
	}
	set := r.byUser[u]
	if _, ok := set[c]; !ok {
		return u, true, false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.byUser, u)
		return u, true, true
	}
	return u, true, false
}

func (r *Registry) IsOnline(u model.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[u]) > 0
}

// ConnectionsFor 返回快照，调用方可在锁外发送
func (r *Registry) ConnectionsFor(u model.UserID) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[u]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// All 所有打开的连接，关停时使用
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) OnlineUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
