package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dyadchat/module/chat/model"
)

func TestMemory_RoomPairUnique(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	r, err := m.CreateRoom(ctx, model.Pair{Low: 5, High: 2})
	require.NoError(t, err)
	require.Equal(t, model.UserID(2), r.Low)
	require.Equal(t, model.UserID(5), r.High)

	_, err = m.CreateRoom(ctx, model.CanonicalPair(2, 5))
	require.ErrorIs(t, err, ErrConflict)

	got, err := m.FindRoom(ctx, model.Pair{Low: 5, High: 2})
	require.NoError(t, err)
	require.Equal(t, r.ID, got.ID)

	_, err = m.FindRoom(ctx, model.CanonicalPair(1, 2))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ConcurrentCreateOneWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CreateRoom(ctx, model.CanonicalPair(1, 2))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
	require.Equal(t, 31, conflicts)
}

func TestMemory_StatusMonotonic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r, err := m.CreateRoom(ctx, model.CanonicalPair(1, 2))
	require.NoError(t, err)

	msg, err := m.CreateMessage(ctx, model.NewMessage(r.ID, 1, 2, "hi", time.Now()))
	require.NoError(t, err)
	require.Equal(t, model.StatusSent, msg.Status)

	n, err := m.MarkRead(ctx, r.ID, 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// delivery arriving after the read must not regress it
	ok, err := m.AdvanceStatus(ctx, msg.ID, model.StatusDelivered, time.Now())
	require.NoError(t, err)
	require.False(t, ok)

	got, err := m.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusRead, got.Status)
	require.Nil(t, got.DeliveredAt)
}

func TestMemory_ConcurrentDeliverAndRead(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r, err := m.CreateRoom(ctx, model.CanonicalPair(1, 2))
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		msg, err := m.CreateMessage(ctx, model.NewMessage(r.ID, 1, 2, "x", time.Now()))
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = m.AdvanceStatus(ctx, msg.ID, model.StatusDelivered, time.Now())
		}()
		go func() {
			defer wg.Done()
			_, _ = m.MarkRead(ctx, r.ID, 1, 2)
		}()
		wg.Wait()

		got, err := m.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		require.Equal(t, model.StatusRead, got.Status)
	}
}

func TestMemory_MarkReadOnlyPeerMessages(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r, _ := m.CreateRoom(ctx, model.CanonicalPair(1, 2))

	_, _ = m.CreateMessage(ctx, model.NewMessage(r.ID, 1, 2, "to 2", time.Now()))
	_, _ = m.CreateMessage(ctx, model.NewMessage(r.ID, 2, 1, "to 1", time.Now()))

	unread, err := m.CountUnread(ctx, r.ID, 2)
	require.NoError(t, err)
	require.Equal(t, 1, unread)

	n, err := m.MarkRead(ctx, r.ID, 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	unread, _ = m.CountUnread(ctx, r.ID, 2)
	require.Zero(t, unread)
	unread, _ = m.CountUnread(ctx, r.ID, 1)
	require.Equal(t, 1, unread)
}

func TestMemory_HistoryOrderAndLast(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r, _ := m.CreateRoom(ctx, model.CanonicalPair(1, 2))
	base := time.Now()

	_, _ = m.CreateMessage(ctx, model.NewMessage(r.ID, 1, 2, "second", base.Add(time.Second)))
	_, _ = m.CreateMessage(ctx, model.NewMessage(r.ID, 2, 1, "first", base))

	list, err := m.ListMessages(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, "first", list[0].Body)
	require.Equal(t, "second", list[1].Body)

	last, err := m.LastMessage(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, "second", last.Body)

	none, err := m.LastMessage(ctx, 99)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestMemory_Users(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(model.User{ID: 1, Email: "Ada@Example.com"})

	u, err := m.FindUserByEmail(ctx, " ada@EXAMPLE.com")
	require.NoError(t, err)
	require.Equal(t, model.UserID(1), u.ID)

	_, err = m.FindUserByEmail(ctx, "")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetUser(ctx, 2)
	require.ErrorIs(t, err, ErrNotFound)

	rooms, err := m.ListRoomsForUser(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, rooms)
}
