package storage

import (
	"context"

	"github.com/pkg/errors"

	"dyadchat/logger"
)

// users / user_sessions 归外部系统所有，这里只在缺失时建表，方便本地开发
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id         BIGSERIAL PRIMARY KEY,
		name            TEXT,
		email           TEXT NOT NULL,
		profile_picture TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS users_email_lower_idx ON users (lower(trim(email)))`,
	`CREATE TABLE IF NOT EXISTS user_sessions (
		session_token TEXT PRIMARY KEY,
		user_id       BIGINT NOT NULL,
		expires_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_room (
		chat_room_id BIGSERIAL PRIMARY KEY,
		user_1       BIGINT NOT NULL,
		user_2       BIGINT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT chat_room_pair_uniq UNIQUE (user_1, user_2),
		CONSTRAINT chat_room_pair_order CHECK (user_1 < user_2)
	)`,
	`CREATE INDEX IF NOT EXISTS chat_room_user_2_idx ON chat_room (user_2)`,
	`CREATE TABLE IF NOT EXISTS chat_message (
		message_id   BIGSERIAL PRIMARY KEY,
		chat_room_id BIGINT NOT NULL REFERENCES chat_room (chat_room_id),
		sender_id    BIGINT NOT NULL,
		receiver_id  BIGINT NOT NULL,
		message      TEXT NOT NULL,
		read_status  TEXT NOT NULL DEFAULT 'sent' CHECK (read_status IN ('sent', 'delivered', 'read')),
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		delivered_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS chat_message_room_created_idx ON chat_message (chat_room_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS chat_message_unread_idx ON chat_message (chat_room_id, receiver_id, read_status)`,
}

// Migrate 幂等建表
func (p *Postgres) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migrate step %d", i+1)
		}
	}
	logger.Infof("schema ready, %d statements applied", len(schema))
	return nil
}
