package chat

import (
	"errors"
	"sync"

	"dyadchat/module/chat/model"
	"dyadchat/tools/ids"
)

var (
	errConnClosed = errors.New("chat: connection closed")
	errQueueFull  = errors.New("chat: send queue full")
)

// Conn 一条客户端连接。
// send 只由写协程消费，永不关闭；关闭信号走 closed / finish。
type Conn struct {
	id     string
	remote string

	mu     sync.RWMutex
	user   model.UserID
	authed bool

	send chan []byte

	closed    chan struct{}
	closeOnce sync.Once
	closer    func()

	finish     chan struct{}
	finishOnce sync.Once
}

// NewConn closer 负责关闭底层 socket，可为 nil
func NewConn(queue int, remote string, closer func()) *Conn {
	if queue <= 0 {
		queue = 1
	}
	return &Conn{
		id:     ids.GenerateString(),
		remote: remote,
		send:   make(chan []byte, queue),
		closed: make(chan struct{}),
		finish: make(chan struct{}),
		closer: closer,
	}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) Remote() string { return c.remote }

// User 未认证时 ok=false
func (c *Conn) User() (model.UserID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user, c.authed
}

func (c *Conn) Authed() bool {
	_, ok := c.User()
	return ok
}

// bind Unauthenticated -> Authenticated，只能发生一次
func (c *Conn) bind(u model.UserID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authed {
		return false
	}
	c.user, c.authed = u, true
	return true
}

// Send 非阻塞入队。队列满返回 errQueueFull，由调用方决定是否断开
func (c *Conn) Send(b []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		return errQueueFull
	}
}

// Outbound 写协程读取的队列
func (c *Conn) Outbound() <-chan []byte { return c.send }

func (c *Conn) Done() <-chan struct{} { return c.closed }

// Finishing 写完已入队的帧后关闭
func (c *Conn) Finishing() <-chan struct{} { return c.finish }

func (c *Conn) Finish() {
	c.finishOnce.Do(func() { close(c.finish) })
}

func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) closing() bool {
	if c.IsClosed() {
		return true
	}
	select {
	case <-c.finish:
		return true
	default:
		return false
	}
}

// Close 幂等
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.closer != nil {
			c.closer()
		}
	})
}
