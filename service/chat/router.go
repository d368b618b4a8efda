package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"dyadchat/logger"
	"dyadchat/module/chat/frame"
	"dyadchat/module/chat/model"
	"dyadchat/module/chat/room"
	"dyadchat/service/auth"
	"dyadchat/service/metrics"
	"dyadchat/service/storage"
	"dyadchat/tools/errs"
	"dyadchat/tools/safe"
)

const defaultHandleTimeout = 10 * time.Second

type Options struct {
	Store     storage.Store
	Validator auth.Validator

	Events   Events         // nil => 不发布
	Presence PresenceMirror // nil => 不镜像
	Metrics  *metrics.Metrics

	DefaultAvatar string
	HandleTimeout time.Duration
	Now           func() time.Time
}

// Router 每条连接一个状态机：Unauthenticated -> Authenticated。
// 同一连接上的帧由读协程串行调用 HandleFrame；不同连接并发。
type Router struct {
	store     storage.Store
	rooms     *room.Resolver
	validator auth.Validator
	events    Events
	mirror    PresenceMirror
	metrics   *metrics.Metrics
	registry  *Registry
	disp      *Dispatcher

	avatar  string
	timeout time.Duration
	now     func() time.Time
}

func NewRouter(opts Options) *Router {
	safe.MustNotNil(opts.Store, "store")
	safe.MustNotNil(opts.Validator, "validator")

	r := &Router{
		store:     opts.Store,
		rooms:     room.NewResolver(opts.Store),
		validator: opts.Validator,
		events:    opts.Events,
		mirror:    opts.Presence,
		metrics:   opts.Metrics,
		registry:  NewRegistry(),
		avatar:    opts.DefaultAvatar,
		timeout:   opts.HandleTimeout,
		now:       opts.Now,
	}
	if r.events == nil {
		r.events = nopEvents{}
	}
	if r.mirror == nil {
		r.mirror = nopMirror{}
	}
	if r.timeout <= 0 {
		r.timeout = defaultHandleTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}

	r.disp = NewDispatcher(r.handleUnknown)
	r.disp.Register(frame.TypeAuth, r.handleReauth)
	r.disp.Register(frame.TypeMessage, r.handleSendMessage)
	r.disp.Register(frame.TypeFetchHistory, r.handleFetchHistory)
	r.disp.Register(frame.TypeFetchConversations, r.handleFetchConversations)
	r.disp.Register(frame.TypeMarkRead, r.handleMarkRead)
	r.disp.Register(frame.TypeTyping, r.handleTyping)
	r.disp.Register(frame.TypeTypingStop, r.handleTyping)
	r.disp.Register(frame.TypeSearchUserByEmail, r.handleSearchUserByEmail)
	r.disp.Register(frame.TypeStartChatWithUser, r.handleStartChatWithUser)
	return r
}

func (r *Router) Registry() *Registry { return r.registry }

// Open 新连接进入 Unauthenticated，并提示客户端认证
func (r *Router) Open(c *Conn) {
	r.registry.Track(c)
	r.metrics.ConnOpened()
	logger.Info("[WS] conn opened", zap.String("conn", c.ID()), zap.String("remote", c.Remote()))
	r.deliver(c, frame.AuthRequired())
}

// HandleFrame 处理一帧原始 JSON，处理完才会返回
func (r *Router) HandleFrame(ctx context.Context, c *Conn, raw []byte) {
	if c.closing() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := r.now()
	in, err := frame.Decode(raw)

	if !c.Authed() {
		if a, ok := in.(frame.Auth); ok && err == nil {
			r.Authenticate(ctx, c, a.Token)
			r.observe(frame.TypeAuth, start)
			return
		}
		r.deliver(c, frame.AuthRequired())
		return
	}

	if err != nil {
		r.replyError(c, "", err)
		return
	}

	// handler panic 转成 1500，连接不断
	if err := safe.Call(func() error { return r.disp.Dispatch(ctx, c, in) }); err != nil {
		r.replyError(c, string(in.Type()), err)
	}
	r.observe(in.Type(), start)
}

func (r *Router) observe(t frame.Type, start time.Time) {
	r.metrics.Frame(string(t), r.now().Sub(start).Seconds())
}

// Authenticate 也用于升级请求里带 bearer token 的预认证
func (r *Router) Authenticate(ctx context.Context, c *Conn, token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		r.deliver(c, frame.AuthRequired())
		return
	}
	if c.Authed() {
		r.replyError(c, string(frame.TypeAuth), errs.ErrAlreadyAuthenticated)
		return
	}

	u, err := r.validator.Validate(ctx, token)
	switch {
	case errors.Is(err, auth.ErrRejected):
		r.metrics.AuthResult("rejected")
		logger.Info("[auth] rejected", zap.String("conn", c.ID()))
		r.deliver(c, frame.AuthFailed())
		c.Finish()
		return
	case err != nil:
		r.metrics.AuthResult("error")
		logger.Error("[auth] validator failed", zap.String("conn", c.ID()), zap.Error(err))
		r.replyError(c, string(frame.TypeAuth), errs.ErrAuthUnavailable.WrapMsg(err.Error()))
		return
	}

	if !c.bind(u) {
		r.replyError(c, string(frame.TypeAuth), errs.ErrAlreadyAuthenticated)
		return
	}
	first := r.registry.Register(u, c)
	r.metrics.AuthResult("success")
	r.metrics.ConnAuthenticated()
	logger.Info("[auth] authenticated", zap.String("conn", c.ID()), zap.Stringer("user", u), zap.Bool("first", first))

	if first {
		r.wentOnline(ctx, u)
	}

	if !r.deliver(c, frame.NewAuthSuccess(u)) {
		return
	}
	if err := r.handleFetchConversations(ctx, c, frame.FetchConversations{}); err != nil {
		r.replyError(c, string(frame.TypeFetchConversations), err)
	}
}

// Touch 心跳续期外部在线镜像
func (r *Router) Touch(ctx context.Context, c *Conn) {
	u, ok := c.User()
	if !ok {
		return
	}
	if err := r.mirror.Refresh(ctx, u); err != nil {
		logger.Warn("[presence] refresh failed", zap.Stringer("user", u), zap.Error(err))
	}
}

// Close 连接断开后的收尾，幂等。最后一条连接断开时广播离线
func (r *Router) Close(ctx context.Context, c *Conn) {
	c.Close()
	u, tracked, last := r.registry.Unregister(c)
	if !tracked {
		return
	}
	_, authed := c.User()
	r.metrics.ConnClosed(authed)
	logger.Info("[WS] conn closed", zap.String("conn", c.ID()), zap.Stringer("user", u), zap.Bool("last", last))

	if last {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		r.wentOffline(ctx, u)
	}
}

// Shutdown 关闭所有连接
func (r *Router) Shutdown(ctx context.Context) {
	all := r.registry.All()
	logger.Info("[WS] shutting down", zap.Int("conns", len(all)))
	for _, c := range all {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.Close(ctx, c)
	}
}

// deliver 编码并入队；队列满的连接视为已死，直接断开
func (r *Router) deliver(c *Conn, v any) bool {
	b, err := frame.Encode(v)
	if err != nil {
		logger.Error("[WS] encode frame", zap.String("conn", c.ID()), zap.Error(err))
		return false
	}
	return r.push(c, b)
}

func (r *Router) push(c *Conn, b []byte) bool {
	switch err := c.Send(b); {
	case err == nil:
		return true
	case errors.Is(err, errQueueFull):
		r.metrics.SlowConsumer()
		logger.Warn("[WS] send queue full, closing", zap.String("conn", c.ID()))
		r.Close(context.Background(), c)
		return false
	default:
		return false
	}
}

// sendToUser 推给该用户的所有连接，返回成功入队的连接数
func (r *Router) sendToUser(u model.UserID, v any) int {
	conns := r.registry.ConnectionsFor(u)
	if len(conns) == 0 {
		return 0
	}
	b, err := frame.Encode(v)
	if err != nil {
		logger.Error("[WS] encode frame", zap.Stringer("user", u), zap.Error(err))
		return 0
	}
	n := 0
	for _, c := range conns {
		if r.push(c, b) {
			n++
		}
	}
	return n
}

func (r *Router) replyError(c *Conn, command string, err error) {
	ce := errs.AsCodeError(err)
	if ce.Code == errs.ServerInternalError {
		logger.Error("[router] command failed", zap.String("conn", c.ID()), zap.String("type", command), zap.Error(err))
	} else {
		logger.Debug("[router] protocol error", zap.String("conn", c.ID()), zap.String("type", command), zap.Error(err))
	}
	out := frame.NewError(ce.Code, ce.Msg)
	out.Tag = command
	r.deliver(c, out)
}

func (r *Router) publish(what string, err error) {
	if err != nil {
		logger.Warn("[events] publish failed", zap.String("event", what), zap.Error(err))
	}
}
