package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"dyadchat/global/config"
	"dyadchat/logger"
	mid "dyadchat/middleware"
	"dyadchat/service/auth"
	"dyadchat/service/chat"
	"dyadchat/service/metrics"
	"dyadchat/service/natsx"
	"dyadchat/service/storage"
	redisx "dyadchat/service/storage/redis"
	"dyadchat/tools/ids"
)

const shutdownTimeout = 10 * time.Second

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket chat broker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	defer logger.Sync()
	ids.SetNodeID(cfg.NodeID)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	validator, err := buildValidator(cfg, db)
	if err != nil {
		return err
	}

	opts := chat.Options{
		Store:         store,
		Validator:     validator,
		Metrics:       metrics.New(prometheus.DefaultRegisterer),
		DefaultAvatar: cfg.DefaultAvatar,
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisx.NewClient(ctx, redisx.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts.Presence = redisx.NewPresence(rdb, cfg.NodeID, cfg.PresenceTTL)
		logger.Info("[serve] redis presence mirror enabled", zap.String("addr", cfg.RedisAddr))
	}

	if cfg.NATSURL != "" {
		nc, err := natsx.NewNatsxClient(natsx.NatsxConfig{
			Servers: natsx.ParseServers(cfg.NATSURL),
			Name:    fmt.Sprintf("dyadchat-%d", cfg.NodeID),
		})
		if err != nil {
			return err
		}
		defer nc.Close()
		pub, err := natsx.NewEventPublisher(nc, cfg.NATSSubjectPrefix, cfg.NodeID)
		if err != nil {
			return err
		}
		opts.Events = pub
		logger.Info("[serve] nats events enabled", zap.String("prefix", cfg.NATSSubjectPrefix))
	}

	router := chat.NewRouter(opts)
	ws := chat.NewWSServer(router, chat.WSOptions{
		SendQueue:    cfg.SendQueue,
		ReadLimit:    cfg.ReadLimit,
		PingInterval: cfg.PingInterval,
		PongWait:     cfg.PongWait,
		WriteWait:    cfg.WriteWait,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newEngine(cfg, ws, router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("[HTTP] listening", zap.String("addr", cfg.HTTPAddr), zap.String("ws", cfg.WSPath))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var (
		gs *grpc.Server
		hs *health.Server
	)
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return fmt.Errorf("grpc listen %s: %w", cfg.GRPCHealthAddr, err)
		}
		gs = grpc.NewServer()
		hs = health.NewServer()
		healthpb.RegisterHealthServer(gs, hs)
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		hs.SetServingStatus("dyadchat.Broker", healthpb.HealthCheckResponse_SERVING)
		g.Go(func() error {
			logger.Info("[gRPC] health listening", zap.String("addr", cfg.GRPCHealthAddr))
			return gs.Serve(lis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("[serve] shutting down")
		if hs != nil {
			hs.Shutdown()
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		router.Shutdown(sctx)
		err := httpSrv.Shutdown(sctx)
		if gs != nil {
			gs.GracefulStop()
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newEngine(cfg config.Config, ws *chat.WSServer, router *chat.Router) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	mw := mid.NewManager(mid.Origin(cfg.WSPath, cfg.AllowedOrigins))
	engine.Use(gin.Recovery(), mid.AccessLog(), mw.Use())

	mid.GET(engine, cfg.WSPath, ws.HandleWS, mid.RouteOpt{WithToken: true})
	engine.GET("/healthz", func(c *gin.Context) {
		reg := router.Registry()
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": reg.Len(),
			"online":      reg.OnlineUsers(),
		})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return engine
}

// openStore db 只在 postgres 模式下非空，session 校验器要用
func openStore(ctx context.Context, cfg config.Config) (storage.Store, *sql.DB, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("[serve] using in-memory store, data is lost on exit")
		return storage.NewMemory(), nil, nil
	default:
		pg, err := storage.OpenPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.DB(), nil
	}
}

func buildValidator(cfg config.Config, db *sql.DB) (auth.Validator, error) {
	switch cfg.AuthMode {
	case config.AuthJWT:
		return auth.NewJWTValidator([]byte(cfg.JWTSecret), cfg.JWTAlg), nil
	case config.AuthSession:
		if db == nil {
			return nil, errors.New("session auth requires the postgres store")
		}
		return auth.NewSessionValidator(db), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
}
