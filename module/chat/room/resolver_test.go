package room

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"dyadchat/module/chat/model"
	"dyadchat/service/storage"
)

func TestResolveIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(storage.NewMemory())

	first, err := r.Resolve(ctx, 1, 2)
	require.NoError(t, err)
	second, err := r.Resolve(ctx, 2, 1)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, model.UserID(1), first.Low)
	require.Equal(t, model.UserID(2), first.High)

	found, err := r.Find(ctx, 2, 1)
	require.NoError(t, err)
	require.Equal(t, first.ID, found.ID)
}

func TestResolveConcurrent(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	r := NewResolver(mem)

	const n = 64
	ids := make([]model.RoomID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := model.UserID(3), model.UserID(8)
			if i%2 == 0 {
				a, b = b, a
			}
			room, err := r.Resolve(ctx, a, b)
			if err == nil {
				ids[i] = room.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.NotZero(t, id)
		require.Equal(t, ids[0], id)
	}
	rooms, err := mem.ListRoomsForUser(ctx, 3)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
}

// racingStore 模拟另一个进程在 Find 与 Create 之间插入了房间
type racingStore struct {
	*storage.Memory
	creates atomic.Int32
}

func (s *racingStore) CreateRoom(ctx context.Context, p model.Pair) (model.Room, error) {
	s.creates.Add(1)
	if _, err := s.Memory.CreateRoom(ctx, p); err != nil {
		return model.Room{}, err
	}
	return model.Room{}, storage.ErrConflict
}

func TestResolveRereadsAfterConflict(t *testing.T) {
	ctx := context.Background()
	s := &racingStore{Memory: storage.NewMemory()}
	r := NewResolver(s)

	room, err := r.Resolve(ctx, 4, 2)
	require.NoError(t, err)
	require.NotZero(t, room.ID)
	require.Equal(t, int32(1), s.creates.Load())

	again, err := r.Resolve(ctx, 2, 4)
	require.NoError(t, err)
	require.Equal(t, room.ID, again.ID)
	require.Equal(t, int32(1), s.creates.Load())
}

func TestFindMissing(t *testing.T) {
	r := NewResolver(storage.NewMemory())
	_, err := r.Find(context.Background(), 1, 9)
	require.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestInvalidPair(t *testing.T) {
	r := NewResolver(storage.NewMemory())
	_, err := r.Resolve(context.Background(), 5, 5)
	require.ErrorIs(t, err, ErrInvalidPair)
	_, err = r.Find(context.Background(), 0, 5)
	require.ErrorIs(t, err, ErrInvalidPair)
}

type failingStore struct{ storage.RoomStore }

func (failingStore) FindRoom(context.Context, model.Pair) (model.Room, error) {
	return model.Room{}, errors.New("db down")
}

func TestResolveSurfacesStoreError(t *testing.T) {
	r := NewResolver(failingStore{})
	_, err := r.Resolve(context.Background(), 1, 2)
	require.ErrorContains(t, err, "db down")
}
