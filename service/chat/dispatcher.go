package chat

import (
	"context"

	"dyadchat/module/chat/frame"
)

// HandlerFunc 处理一个已认证连接上的入站帧。
// 返回的错误会被转成 error 帧回给该连接。
type HandlerFunc func(ctx context.Context, c *Conn, in frame.Inbound) error

type Dispatcher struct {
	handlers map[frame.Type]HandlerFunc
	fallback HandlerFunc
}

// NewDispatcher fallback 处理没有注册的 type
func NewDispatcher(fallback HandlerFunc) *Dispatcher {
	return &Dispatcher{handlers: make(map[frame.Type]HandlerFunc), fallback: fallback}
}

func (d *Dispatcher) Register(t frame.Type, h HandlerFunc) { d.handlers[t] = h }

func (d *Dispatcher) Handler(t frame.Type) (HandlerFunc, bool) {
	h, ok := d.handlers[t]
	return h, ok
}

func (d *Dispatcher) Dispatch(ctx context.Context, c *Conn, in frame.Inbound) error {
	if h, ok := d.handlers[in.Type()]; ok {
		return h(ctx, c, in)
	}
	return d.fallback(ctx, c, in)
}
