package natsx

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

type NatsxHandler func(ctx context.Context, m NatsxMessage) error

// NatsxConsumer 消费端，mws 作用于它订阅的每个 biz
type NatsxConsumer struct {
	c   *NatsxClient
	mws []NatsxMiddleware
}

func NewNatsxConsumer(c *NatsxClient, mws ...NatsxMiddleware) *NatsxConsumer {
	return &NatsxConsumer{c: c, mws: mws}
}

// Subscribe 按 Biz 订阅；handler 的错误只影响当前消息
func (cs *NatsxConsumer) Subscribe(ctx context.Context, biz string, h NatsxHandler) error {
	r, ok := cs.c.route(biz)
	if !ok {
		return fmt.Errorf("route not found: %s", biz)
	}
	h = NatsxChain(h, cs.mws...)
	cb := func(m *nats.Msg) {
		_ = h(ctx, NatsxMessage{
			Subject: m.Subject,
			Data:    append([]byte(nil), m.Data...),
			Header:  headerToMap(m.Header),
		})
	}

	var (
		sub *nats.Subscription
		err error
	)
	if r.Queue == "" {
		sub, err = cs.c.nc.Subscribe(r.Subject, cb)
	} else {
		sub, err = cs.c.nc.QueueSubscribe(r.Subject, r.Queue, cb)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.Subject, err)
	}
	cs.c.mu.Lock()
	if old := cs.c.subs[biz]; old != nil {
		_ = old.Unsubscribe()
	}
	cs.c.subs[biz] = sub
	cs.c.mu.Unlock()
	return nil
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
