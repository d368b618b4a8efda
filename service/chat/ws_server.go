package chat

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dyadchat/logger"
	midsec "dyadchat/middleware/security"
	"dyadchat/tools/safe"
)

type WSOptions struct {
	SendQueue    int
	ReadLimit    int64
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
}

func (o *WSOptions) norm() {
	if o.SendQueue <= 0 {
		o.SendQueue = 64
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.PongWait <= 0 {
		o.PongWait = 75 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 2 / 5
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
}

// WSServer WebSocket 传输层：升级、读循环、写协程；业务全部交给 Router
type WSServer struct {
	router   *Router
	opts     WSOptions
	upgrader websocket.Upgrader
}

func NewWSServer(r *Router, opts WSOptions) *WSServer {
	opts.norm()
	return &WSServer{
		router: r,
		opts:   opts,
		// Origin 由 middleware.Origin 校验
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// HandleWS gin 路由入口
func (s *WSServer) HandleWS(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Infof("[WS] upgrade error: %v", err)
		return
	}
	s.Serve(ws, midsec.TokenFrom(c))
}

// Serve 阻塞直到连接断开。token 非空时在连接建立后立即认证
func (s *WSServer) Serve(ws *websocket.Conn, token string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := NewConn(s.opts.SendQueue, ws.RemoteAddr().String(), func() {
		// WriteControl 可以与写协程并发调用
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(s.opts.WriteWait))
		_ = ws.Close()
	})

	writerDone := make(chan struct{})
	safe.Go("ws-writer", func() {
		defer close(writerDone)
		s.writeLoop(ws, conn)
	})

	s.router.Open(conn)
	if token != "" {
		s.router.Authenticate(ctx, conn, token)
	}

	s.readLoop(ctx, ws, conn)

	s.router.Close(context.Background(), conn)
	<-writerDone
}

// ---- 读循环：只读，不写；出错即退出 ----
func (s *WSServer) readLoop(ctx context.Context, ws *websocket.Conn, conn *Conn) {
	ws.SetReadLimit(s.opts.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		s.router.Touch(ctx, conn)
		return nil
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			logReadErr(conn, err)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		s.handle(ctx, conn, data)
		if conn.IsClosed() {
			return
		}
	}
}

// handle 单帧 panic 不影响其它连接，也不断开当前连接
func (s *WSServer) handle(ctx context.Context, conn *Conn, data []byte) {
	defer safe.Recover("ws-handle")
	s.router.HandleFrame(ctx, conn, data)
}

func logReadErr(conn *Conn, err error) {
	var ne net.Error
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		logger.Debug("[WS] peer closed", zap.String("conn", conn.ID()), zap.Error(err))
	case errors.As(err, &ne) && ne.Timeout():
		logger.Info("[WS] read timeout", zap.String("conn", conn.ID()), zap.Error(err))
	case conn.IsClosed():
		// 本端主动关闭
	default:
		logger.Info("[WS] read err", zap.String("conn", conn.ID()), zap.Error(err))
	}
}

// ---- 写协程：业务帧、ping、关闭都只在这里写 ----
func (s *WSServer) writeLoop(ws *websocket.Conn, conn *Conn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	write := func(b []byte) error {
		_ = ws.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
		return ws.WriteMessage(websocket.TextMessage, b)
	}
	closeWith := func(code int, reason string) {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(s.opts.WriteWait))
	}

	for {
		select {
		case b := <-conn.Outbound():
			if err := write(b); err != nil {
				logger.Info("[WS] write err", zap.String("conn", conn.ID()), zap.Error(err))
				return
			}

		case <-conn.Finishing():
			// 先把已入队的帧写完
			if err := drain(conn, write); err != nil {
				return
			}
			closeWith(websocket.ClosePolicyViolation, "authentication failed")
			return

		case <-conn.Done():
			return

		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteWait)); err != nil {
				logger.Info("[WS] ping err", zap.String("conn", conn.ID()), zap.Error(err))
				return
			}
		}
	}
}

func drain(conn *Conn, write func([]byte) error) error {
	for {
		select {
		case b := <-conn.Outbound():
			if err := write(b); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}
