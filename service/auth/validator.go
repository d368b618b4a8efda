package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"

	"dyadchat/module/chat/model"
	"dyadchat/tools/security"
)

// ErrRejected 令牌无效或过期；其他错误表示校验器自身不可用
var ErrRejected = errors.New("auth: credential rejected")

type Validator interface {
	Validate(ctx context.Context, token string) (model.UserID, error)
}

// SessionValidator 查 user_sessions 表，未过期的会话令牌换用户ID
type SessionValidator struct {
	db  *sql.DB
	now func() time.Time
}

func NewSessionValidator(db *sql.DB) *SessionValidator {
	return &SessionValidator{db: db, now: time.Now}
}

func (v *SessionValidator) Validate(ctx context.Context, token string) (model.UserID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, ErrRejected
	}
	var id int64
	err := v.db.QueryRowContext(ctx,
		`SELECT user_id FROM user_sessions WHERE session_token = $1 AND expires_at >= $2 LIMIT 1`,
		token, v.now().UTC(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrRejected
	}
	if err != nil {
		return 0, pkgerrors.Wrap(err, "session lookup")
	}
	if id <= 0 {
		return 0, ErrRejected
	}
	return model.UserID(id), nil
}

// JWTValidator HMAC 签名的 JWT，sub 为用户ID
type JWTValidator struct {
	opts security.Options
}

func NewJWTValidator(secret []byte, alg string) *JWTValidator {
	opts := security.DefaultOptions(secret)
	if alg != "" {
		opts.Alg = alg
	}
	return &JWTValidator{opts: opts}
}

func (v *JWTValidator) Validate(_ context.Context, token string) (model.UserID, error) {
	sub, err := security.Subject(v.opts, strings.TrimSpace(token))
	if errors.Is(err, security.ErrInvalidToken) {
		return 0, ErrRejected
	}
	if err != nil {
		return 0, err
	}
	id, err := model.ParseUserID(sub)
	if err != nil {
		return 0, ErrRejected
	}
	return id, nil
}

// Issue 签发令牌，给测试和运维工具用
func (v *JWTValidator) Issue(u model.UserID, ttl time.Duration) (string, error) {
	opts := v.opts
	opts.TTL = ttl
	tok, _, err := security.Issue(opts, u.String())
	return tok, err
}

// StaticValidator 固定的 token -> 用户表，用于 memory 模式与测试
type StaticValidator struct {
	mu     sync.RWMutex
	tokens map[string]model.UserID
	err    error
}

func NewStaticValidator(tokens map[string]model.UserID) *StaticValidator {
	m := make(map[string]model.UserID, len(tokens))
	for k, v := range tokens {
		m[k] = v
	}
	return &StaticValidator{tokens: m}
}

func (v *StaticValidator) Add(token string, u model.UserID) {
	v.mu.Lock()
	v.tokens[token] = u
	v.mu.Unlock()
}

// FailWith 之后的校验都返回 err，模拟后端故障；传 nil 恢复
func (v *StaticValidator) FailWith(err error) {
	v.mu.Lock()
	v.err = err
	v.mu.Unlock()
}

func (v *StaticValidator) Validate(_ context.Context, token string) (model.UserID, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.err != nil {
		return 0, v.err
	}
	u, ok := v.tokens[strings.TrimSpace(token)]
	if !ok {
		return 0, ErrRejected
	}
	return u, nil
}
