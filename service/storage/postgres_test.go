package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"dyadchat/module/chat/model"
)

func setupMockDB(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgres(db), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var (
	roomColumns    = []string{"chat_room_id", "user_1", "user_2", "created_at"}
	messageColumns = []string{"message_id", "chat_room_id", "sender_id", "receiver_id", "message", "read_status", "created_at", "delivered_at"}
)

func TestPostgres_CreateRoom(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name      string
		pair      model.Pair
		setupMock func(sqlmock.Sqlmock)
		wantErr   error
		wantID    model.RoomID
	}{
		{
			name: "inserts canonical pair",
			pair: model.Pair{Low: 9, High: 4},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(q("INSERT INTO chat_room (user_1, user_2, created_at) VALUES ($1, $2, $3) ON CONFLICT (user_1, user_2) DO NOTHING")).
					WithArgs(int64(4), int64(9), sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows(roomColumns).AddRow(int64(3), int64(4), int64(9), now))
			},
			wantID: 3,
		},
		{
			name: "do nothing on conflict",
			pair: model.Pair{Low: 1, High: 2},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("INSERT INTO chat_room").
					WithArgs(int64(1), int64(2), sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows(roomColumns))
			},
			wantErr: ErrConflict,
		},
		{
			name: "unique violation",
			pair: model.Pair{Low: 1, High: 2},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("INSERT INTO chat_room").
					WillReturnError(&pgconn.PgError{Code: "23505"})
			},
			wantErr: ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := setupMockDB(t)
			tt.setupMock(mock)

			r, err := store.CreateRoom(ctx, tt.pair)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, r.ID)
			require.Less(t, r.Low, r.High)
		})
	}
}

func TestPostgres_CreateRoomRejectsSelfPair(t *testing.T) {
	store, _ := setupMockDB(t)
	_, err := store.CreateRoom(context.Background(), model.Pair{Low: 5, High: 5})
	require.Error(t, err)
}

func TestPostgres_FindRoom(t *testing.T) {
	ctx := context.Background()
	store, mock := setupMockDB(t)

	mock.ExpectQuery(q("SELECT chat_room_id, user_1, user_2, created_at FROM chat_room WHERE user_1 = $1 AND user_2 = $2")).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows(roomColumns).AddRow(int64(8), int64(1), int64(2), time.Now()))
	r, err := store.FindRoom(ctx, model.Pair{Low: 2, High: 1})
	require.NoError(t, err)
	require.Equal(t, model.RoomID(8), r.ID)

	mock.ExpectQuery("FROM chat_room").
		WithArgs(int64(1), int64(3)).
		WillReturnRows(sqlmock.NewRows(roomColumns))
	_, err = store.FindRoom(ctx, model.Pair{Low: 1, High: 3})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_ListRoomsForUser(t *testing.T) {
	store, mock := setupMockDB(t)
	now := time.Now()
	mock.ExpectQuery(q("WHERE user_1 = $1 OR user_2 = $1 ORDER BY chat_room_id")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(roomColumns).
			AddRow(int64(1), int64(1), int64(2), now).
			AddRow(int64(4), int64(2), int64(7), now))

	rooms, err := store.ListRoomsForUser(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	require.Equal(t, model.UserID(1), rooms[0].Other(2))
	require.Equal(t, model.UserID(7), rooms[1].Other(2))
}

func TestPostgres_AdvanceStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("delivered only from sent", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectExec(q("UPDATE chat_message SET read_status = $1, delivered_at = $3 WHERE message_id = $2 AND read_status IN ($4)")).
			WithArgs("delivered", int64(7), sqlmock.AnyArg(), "sent").
			WillReturnResult(sqlmock.NewResult(0, 1))
		ok, err := store.AdvanceStatus(ctx, 7, model.StatusDelivered, time.Now())
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("read from sent or delivered", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectExec(q("UPDATE chat_message SET read_status = $1 WHERE message_id = $2 AND read_status IN ($3, $4)")).
			WithArgs("read", int64(7), "sent", "delivered").
			WillReturnResult(sqlmock.NewResult(0, 0))
		ok, err := store.AdvanceStatus(ctx, 7, model.StatusRead, time.Now())
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("never back to sent", func(t *testing.T) {
		store, _ := setupMockDB(t)
		_, err := store.AdvanceStatus(ctx, 7, model.StatusSent, time.Now())
		require.Error(t, err)
	})

	t.Run("driver error", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectExec("UPDATE chat_message").WillReturnError(errors.New("connection refused"))
		_, err := store.AdvanceStatus(ctx, 7, model.StatusDelivered, time.Now())
		require.ErrorContains(t, err, "advance status")
	})
}

func TestPostgres_MarkRead(t *testing.T) {
	store, mock := setupMockDB(t)
	mock.ExpectExec(q("UPDATE chat_message SET read_status = $1 WHERE chat_room_id = $2 AND sender_id = $3 AND receiver_id = $4 AND read_status IN ($5, $6)")).
		WithArgs("read", int64(3), int64(2), int64(1), "sent", "delivered").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.MarkRead(context.Background(), 3, 2, 1)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
}

func TestPostgres_Messages(t *testing.T) {
	ctx := context.Background()
	store, mock := setupMockDB(t)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	delivered := created.Add(time.Second)

	mock.ExpectQuery(q("INSERT INTO chat_message (chat_room_id, sender_id, receiver_id, message, read_status, created_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING message_id")).
		WithArgs(int64(3), int64(1), int64(2), "hi", "sent", created).
		WillReturnRows(sqlmock.NewRows([]string{"message_id"}).AddRow(int64(10)))
	m, err := store.CreateMessage(ctx, model.NewMessage(3, 1, 2, "hi", created))
	require.NoError(t, err)
	require.Equal(t, model.MessageID(10), m.ID)
	require.Equal(t, model.StatusSent, m.Status)

	mock.ExpectQuery(q("FROM chat_message WHERE chat_room_id = $1 ORDER BY created_at ASC, message_id ASC")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow(int64(10), int64(3), int64(1), int64(2), "hi", "delivered", created, delivered).
			AddRow(int64(11), int64(3), int64(2), int64(1), "yo", "sent", created.Add(time.Minute), nil))
	list, err := store.ListMessages(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, model.StatusDelivered, list[0].Status)
	require.NotNil(t, list[0].DeliveredAt)
	require.Nil(t, list[1].DeliveredAt)

	mock.ExpectQuery(q("ORDER BY created_at DESC, message_id DESC LIMIT 1")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(messageColumns))
	last, err := store.LastMessage(ctx, 4)
	require.NoError(t, err)
	require.Nil(t, last)

	mock.ExpectQuery(q("SELECT count(*) FROM chat_message WHERE chat_room_id = $1 AND receiver_id = $2 AND read_status IN ($3, $4)")).
		WithArgs(int64(3), int64(1), "sent", "delivered").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	n, err := store.CountUnread(ctx, 3, 1)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestPostgres_Users(t *testing.T) {
	ctx := context.Background()
	store, mock := setupMockDB(t)
	cols := []string{"user_id", "name", "email", "profile_picture"}

	mock.ExpectQuery(q("SELECT user_id, name, email, profile_picture FROM users WHERE lower(trim(email)) = $1")).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(1), "Ada", "Ada@Example.com", nil))
	u, err := store.FindUserByEmail(ctx, "  ADA@example.COM ")
	require.NoError(t, err)
	require.Equal(t, model.UserID(1), u.ID)
	require.Empty(t, u.ProfilePicture)

	_, err = store.FindUserByEmail(ctx, "   ")
	require.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(q("FROM users WHERE user_id = $1")).
		WithArgs(int64(2)).
		WillReturnError(sql.ErrNoRows)
	_, err = store.GetUser(ctx, 2)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_Migrate(t *testing.T) {
	store, mock := setupMockDB(t)
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, store.Migrate(context.Background()))
}
