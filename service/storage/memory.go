package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"dyadchat/module/chat/model"
)

// Memory 进程内实现，语义与 Postgres 一致，用于 STORE=memory 和测试
type Memory struct {
	mu       sync.RWMutex
	users    map[model.UserID]model.User
	rooms    map[model.RoomID]model.Room
	byPair   map[model.Pair]model.RoomID
	messages map[model.MessageID]*model.Message
	byRoom   map[model.RoomID][]model.MessageID

	nextRoom    model.RoomID
	nextMessage model.MessageID
	now         func() time.Time
}

func NewMemory(users ...model.User) *Memory {
	m := &Memory{
		users:    make(map[model.UserID]model.User),
		rooms:    make(map[model.RoomID]model.Room),
		byPair:   make(map[model.Pair]model.RoomID),
		messages: make(map[model.MessageID]*model.Message),
		byRoom:   make(map[model.RoomID][]model.MessageID),
		now:      time.Now,
	}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

// PutUser 写入或覆盖用户，仅开发与测试使用
func (m *Memory) PutUser(u model.User) {
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
}

func (m *Memory) Close() error { return nil }

func (m *Memory) GetUser(_ context.Context, id model.UserID) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, errors.Wrapf(ErrNotFound, "user %d", id)
	}
	return u, nil
}

func (m *Memory) FindUserByEmail(_ context.Context, email string) (model.User, error) {
	want := model.NormalizeEmail(email)
	if want == "" {
		return model.User{}, errors.Wrap(ErrNotFound, "empty email")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		found model.User
		ok    bool
	)
	for _, u := range m.users {
		if model.NormalizeEmail(u.Email) == want && (!ok || u.ID < found.ID) {
			found, ok = u, true
		}
	}
	if !ok {
		return model.User{}, errors.Wrapf(ErrNotFound, "email %q", email)
	}
	return found, nil
}

func (m *Memory) FindRoom(_ context.Context, p model.Pair) (model.Room, error) {
	p = model.CanonicalPair(p.Low, p.High)
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPair[p]
	if !ok {
		return model.Room{}, errors.Wrapf(ErrNotFound, "room %s", p.Key())
	}
	return m.rooms[id], nil
}

func (m *Memory) CreateRoom(_ context.Context, p model.Pair) (model.Room, error) {
	p = model.CanonicalPair(p.Low, p.High)
	if !p.Valid() {
		return model.Room{}, errors.Errorf("invalid pair %s", p.Key())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPair[p]; ok {
		return model.Room{}, errors.Wrapf(ErrConflict, "room %s", p.Key())
	}
	m.nextRoom++
	r := model.Room{ID: m.nextRoom, Low: p.Low, High: p.High, CreatedAt: m.now().UTC()}
	m.rooms[r.ID] = r
	m.byPair[p] = r.ID
	return r, nil
}

func (m *Memory) ListRoomsForUser(_ context.Context, u model.UserID) ([]model.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Room
	for _, r := range m.rooms {
		if r.Has(u) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateMessage(_ context.Context, msg model.Message) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[msg.RoomID]; !ok {
		return model.Message{}, errors.Errorf("room %d does not exist", msg.RoomID)
	}
	if !msg.Status.Valid() {
		msg.Status = model.StatusSent
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now().UTC()
	}
	m.nextMessage++
	msg.ID = m.nextMessage
	stored := msg
	m.messages[msg.ID] = &stored
	m.byRoom[msg.RoomID] = append(m.byRoom[msg.RoomID], msg.ID)
	return msg, nil
}

func (m *Memory) GetMessage(_ context.Context, id model.MessageID) (model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return model.Message{}, errors.Wrapf(ErrNotFound, "message %d", id)
	}
	return copyMessage(msg), nil
}

func (m *Memory) AdvanceStatus(_ context.Context, id model.MessageID, to model.Status, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return false, nil
	}
	if !msg.Status.CanAdvance(to) {
		return false, nil
	}
	msg.Status = to
	if to == model.StatusDelivered {
		t := at.UTC()
		msg.DeliveredAt = &t
	}
	return true, nil
}

func (m *Memory) MarkRead(_ context.Context, room model.RoomID, sender, receiver model.UserID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range m.byRoom[room] {
		msg := m.messages[id]
		if msg.SenderID == sender && msg.ReceiverID == receiver && msg.Status.CanAdvance(model.StatusRead) {
			msg.Status = model.StatusRead
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListMessages(_ context.Context, room model.RoomID) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byRoom[room]
	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyMessage(m.messages[id]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) LastMessage(ctx context.Context, room model.RoomID) (*model.Message, error) {
	list, err := m.ListMessages(ctx, room)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	last := list[len(list)-1]
	return &last, nil
}

func (m *Memory) CountUnread(_ context.Context, room model.RoomID, receiver model.UserID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, id := range m.byRoom[room] {
		msg := m.messages[id]
		if msg.ReceiverID == receiver && msg.Status.CanAdvance(model.StatusRead) {
			n++
		}
	}
	return n, nil
}

func copyMessage(msg *model.Message) model.Message {
	out := *msg
	if msg.DeliveredAt != nil {
		t := *msg.DeliveredAt
		out.DeliveredAt = &t
	}
	return out
}
