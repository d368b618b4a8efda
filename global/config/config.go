package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "DYAD"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	AuthSession = "session"
	AuthJWT     = "jwt"
)

// Config 全部运行参数，来自 DYAD_ 前缀的环境变量（可选 .env）
type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	WSPath   string `envconfig:"WS_PATH" default:"/ws"`
	// 逗号分隔，空表示不校验 Origin
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	GRPCHealthAddr string   `envconfig:"GRPC_HEALTH_ADDR" default:":50052"`

	Store          string `envconfig:"STORE" default:"postgres"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	DBMaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`

	AuthMode  string `envconfig:"AUTH_MODE" default:"session"`
	JWTSecret string `envconfig:"JWT_SECRET"`
	JWTAlg    string `envconfig:"JWT_ALG" default:"HS256"`

	// 空地址表示不启用 redis 在线镜像
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	PresenceTTL   time.Duration `envconfig:"PRESENCE_TTL" default:"90s"`

	NATSURL           string `envconfig:"NATS_URL"`
	NATSSubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"dyad"`

	SendQueue    int           `envconfig:"SEND_QUEUE" default:"64"`
	ReadLimit    int64         `envconfig:"READ_LIMIT" default:"65536"`
	PingInterval time.Duration `envconfig:"PING_INTERVAL" default:"30s"`
	PongWait     time.Duration `envconfig:"PONG_WAIT" default:"75s"`
	WriteWait    time.Duration `envconfig:"WRITE_WAIT" default:"5s"`

	DefaultAvatar string `envconfig:"DEFAULT_AVATAR" default:"/assets/default-avatar.png"`
	NodeID        int64  `envconfig:"NODE_ID" default:"1"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
}

// Load 读取 .env（不存在则忽略）后解析环境变量
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else {
		if err := godotenv.Load(envFiles...); err != nil {
			return Config{}, fmt.Errorf("load env files: %w", err)
		}
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.AuthMode = strings.ToLower(strings.TrimSpace(cfg.AuthMode))
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DYAD_DATABASE_URL is required for the postgres store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}

	switch c.AuthMode {
	case AuthSession:
		if c.Store != StorePostgres {
			errs = append(errs, errors.New("session auth needs the postgres store"))
		}
	case AuthJWT:
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("DYAD_JWT_SECRET is required for jwt auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth mode %q", c.AuthMode))
	}

	if c.SendQueue <= 0 {
		errs = append(errs, errors.New("DYAD_SEND_QUEUE must be positive"))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, errors.New("DYAD_READ_LIMIT must be positive"))
	}
	if c.PingInterval <= 0 || c.PongWait <= c.PingInterval {
		errs = append(errs, errors.New("DYAD_PONG_WAIT must exceed a positive DYAD_PING_INTERVAL"))
	}
	if c.WriteWait <= 0 {
		errs = append(errs, errors.New("DYAD_WRITE_WAIT must be positive"))
	}
	return errors.Join(errs...)
}
