package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"dyadchat/module/chat/model"
)

const pgUniqueViolation = "23505"

// Postgres 基于 database/sql + pgx 驱动的持久化网关
type Postgres struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, dsn string, maxOpen int) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return &Postgres{db: db}, nil
}

// NewPostgres 包装已有连接，测试里传 sqlmock
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) Close() error { return p.db.Close() }

func mapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(ErrNotFound, op)
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return errors.Wrap(ErrConflict, op)
	}
	return errors.Wrap(err, op)
}

// statusIn 生成 "read_status IN ($n, ...)"，参数追加到 args
func statusIn(statuses []model.Status, args []any) (string, []any) {
	ph := make([]string, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, string(s))
		ph = append(ph, fmt.Sprintf("$%d", len(args)))
	}
	return "read_status IN (" + strings.Join(ph, ", ") + ")", args
}

// ---- users ----

const selectUser = `SELECT user_id, name, email, profile_picture FROM users`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var (
		u                   model.User
		id                  int64
		name, email, avatar sql.NullString
	)
	if err := row.Scan(&id, &name, &email, &avatar); err != nil {
		return model.User{}, err
	}
	u.ID = model.UserID(id)
	u.Name, u.Email, u.ProfilePicture = name.String, email.String, avatar.String
	return u, nil
}

func (p *Postgres) GetUser(ctx context.Context, id model.UserID) (model.User, error) {
	u, err := scanUser(p.db.QueryRowContext(ctx, selectUser+` WHERE user_id = $1`, int64(id)))
	return u, mapErr(err, "get user")
}

func (p *Postgres) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	norm := model.NormalizeEmail(email)
	if norm == "" {
		return model.User{}, errors.Wrap(ErrNotFound, "find user by email")
	}
	u, err := scanUser(p.db.QueryRowContext(ctx,
		selectUser+` WHERE lower(trim(email)) = $1 ORDER BY user_id LIMIT 1`, norm))
	return u, mapErr(err, "find user by email")
}

// ---- rooms ----

const roomCols = `chat_room_id, user_1, user_2, created_at`

func scanRoom(row interface{ Scan(...any) error }) (model.Room, error) {
	var (
		r          model.Room
		id, lo, hi int64
	)
	if err := row.Scan(&id, &lo, &hi, &r.CreatedAt); err != nil {
		return model.Room{}, err
	}
	r.ID, r.Low, r.High = model.RoomID(id), model.UserID(lo), model.UserID(hi)
	return r, nil
}

func (p *Postgres) FindRoom(ctx context.Context, pair model.Pair) (model.Room, error) {
	pair = model.CanonicalPair(pair.Low, pair.High)
	r, err := scanRoom(p.db.QueryRowContext(ctx,
		`SELECT `+roomCols+` FROM chat_room WHERE user_1 = $1 AND user_2 = $2`,
		int64(pair.Low), int64(pair.High)))
	return r, mapErr(err, "find room")
}

// CreateRoom 冲突时 DO NOTHING 不返回行，统一映射为 ErrConflict
func (p *Postgres) CreateRoom(ctx context.Context, pair model.Pair) (model.Room, error) {
	pair = model.CanonicalPair(pair.Low, pair.High)
	if !pair.Valid() {
		return model.Room{}, errors.Errorf("create room: invalid pair %s", pair.Key())
	}
	r, err := scanRoom(p.db.QueryRowContext(ctx,
		`INSERT INTO chat_room (user_1, user_2, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_1, user_2) DO NOTHING
		 RETURNING `+roomCols,
		int64(pair.Low), int64(pair.High), time.Now().UTC()))
	if stderrors.Is(err, sql.ErrNoRows) {
		return model.Room{}, errors.Wrap(ErrConflict, "create room")
	}
	return r, mapErr(err, "create room")
}

func (p *Postgres) ListRoomsForUser(ctx context.Context, u model.UserID) ([]model.Room, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+roomCols+` FROM chat_room WHERE user_1 = $1 OR user_2 = $1 ORDER BY chat_room_id`,
		int64(u))
	if err != nil {
		return nil, mapErr(err, "list rooms")
	}
	defer rows.Close()

	var out []model.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, mapErr(err, "scan room")
		}
		out = append(out, r)
	}
	return out, mapErr(rows.Err(), "list rooms")
}

// ---- messages ----

const messageCols = `message_id, chat_room_id, sender_id, receiver_id, message, read_status, created_at, delivered_at`

func scanMessage(row interface{ Scan(...any) error }) (model.Message, error) {
	var (
		m                      model.Message
		id, room, sender, recv int64
		status                 string
		delivered              sql.NullTime
	)
	if err := row.Scan(&id, &room, &sender, &recv, &m.Body, &status, &m.CreatedAt, &delivered); err != nil {
		return model.Message{}, err
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return model.Message{}, err
	}
	m.ID, m.RoomID = model.MessageID(id), model.RoomID(room)
	m.SenderID, m.ReceiverID, m.Status = model.UserID(sender), model.UserID(recv), st
	if delivered.Valid {
		t := delivered.Time
		m.DeliveredAt = &t
	}
	return m, nil
}

func (p *Postgres) CreateMessage(ctx context.Context, m model.Message) (model.Message, error) {
	if !m.Status.Valid() {
		m.Status = model.StatusSent
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO chat_message (chat_room_id, sender_id, receiver_id, message, read_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING message_id`,
		int64(m.RoomID), int64(m.SenderID), int64(m.ReceiverID), m.Body, string(m.Status), m.CreatedAt,
	).Scan(&id)
	if err != nil {
		return model.Message{}, mapErr(err, "create message")
	}
	m.ID = model.MessageID(id)
	return m, nil
}

func (p *Postgres) GetMessage(ctx context.Context, id model.MessageID) (model.Message, error) {
	m, err := scanMessage(p.db.QueryRowContext(ctx,
		`SELECT `+messageCols+` FROM chat_message WHERE message_id = $1`, int64(id)))
	return m, mapErr(err, "get message")
}

func (p *Postgres) AdvanceStatus(ctx context.Context, id model.MessageID, to model.Status, at time.Time) (bool, error) {
	prev := to.Predecessors()
	if len(prev) == 0 {
		return false, errors.Errorf("advance status: cannot advance to %q", to)
	}
	args := []any{string(to), int64(id)}
	set := `read_status = $1`
	if to == model.StatusDelivered {
		args = append(args, at.UTC())
		set += `, delivered_at = $3`
	}
	cond, args := statusIn(prev, args)
	res, err := p.db.ExecContext(ctx,
		`UPDATE chat_message SET `+set+` WHERE message_id = $2 AND `+cond, args...)
	if err != nil {
		return false, mapErr(err, "advance status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err, "advance status")
	}
	return n > 0, nil
}

func (p *Postgres) MarkRead(ctx context.Context, room model.RoomID, sender, receiver model.UserID) (int64, error) {
	args := []any{string(model.StatusRead), int64(room), int64(sender), int64(receiver)}
	cond, args := statusIn(model.StatusRead.Predecessors(), args)
	res, err := p.db.ExecContext(ctx,
		`UPDATE chat_message SET read_status = $1
		 WHERE chat_room_id = $2 AND sender_id = $3 AND receiver_id = $4 AND `+cond, args...)
	if err != nil {
		return 0, mapErr(err, "mark read")
	}
	n, err := res.RowsAffected()
	return n, mapErr(err, "mark read")
}

func (p *Postgres) ListMessages(ctx context.Context, room model.RoomID) ([]model.Message, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+messageCols+` FROM chat_message WHERE chat_room_id = $1 ORDER BY created_at ASC, message_id ASC`,
		int64(room))
	if err != nil {
		return nil, mapErr(err, "list messages")
	}
	defer rows.Close()

	out := make([]model.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, mapErr(err, "scan message")
		}
		out = append(out, m)
	}
	return out, mapErr(rows.Err(), "list messages")
}

func (p *Postgres) LastMessage(ctx context.Context, room model.RoomID) (*model.Message, error) {
	m, err := scanMessage(p.db.QueryRowContext(ctx,
		`SELECT `+messageCols+` FROM chat_message WHERE chat_room_id = $1 ORDER BY created_at DESC, message_id DESC LIMIT 1`,
		int64(room)))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err, "last message")
	}
	return &m, nil
}

func (p *Postgres) CountUnread(ctx context.Context, room model.RoomID, receiver model.UserID) (int, error) {
	args := []any{int64(room), int64(receiver)}
	cond, args := statusIn(model.StatusRead.Predecessors(), args)
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT count(*) FROM chat_message WHERE chat_room_id = $1 AND receiver_id = $2 AND `+cond, args...,
	).Scan(&n)
	return n, mapErr(err, "count unread")
}
