package natsx

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"dyadchat/module/chat/model"
)

// 生命周期事件的 Biz 名，subject 为 <prefix>.<biz>
const (
	BizMessageSent      = "message.sent"
	BizMessageDelivered = "message.delivered"
	BizMessageRead      = "message.read"
	BizPresence         = "presence"
)

var AllBiz = []string{BizMessageSent, BizMessageDelivered, BizMessageRead, BizPresence}

const (
	HeaderMsgID = "Nats-Msg-Id"
	HeaderNode  = "X-Dyad-Node"
)

type MessageEvent struct {
	MessageID model.MessageID `json:"messageId"`
	RoomID    model.RoomID    `json:"roomId"`
	From      model.UserID    `json:"from"`
	To        model.UserID    `json:"to"`
	Status    model.Status    `json:"status"`
	At        time.Time       `json:"at"`
}

type ReadEvent struct {
	RoomID model.RoomID `json:"roomId"`
	By     model.UserID `json:"by"`
	Peer   model.UserID `json:"peer"`
	Count  int64        `json:"count"`
	At     time.Time    `json:"at"`
}

type PresenceEvent struct {
	UserID model.UserID   `json:"userId"`
	Status model.Presence `json:"status"`
	At     time.Time      `json:"at"`
}

// EventPublisher 把写库成功后的状态变化发到 NATS
type EventPublisher struct {
	producer *NatsxProducer
	node     string
	now      func() time.Time
}

func RegisterEventRoutes(c *NatsxClient, prefix, queue string) error {
	for _, biz := range AllBiz {
		if err := c.RegisterRoute(NatsxRoute{Biz: biz, Subject: prefix + "." + biz, Queue: queue}); err != nil {
			return fmt.Errorf("register %s: %w", biz, err)
		}
	}
	return nil
}

func NewEventPublisher(c *NatsxClient, prefix string, nodeID int64) (*EventPublisher, error) {
	if err := RegisterEventRoutes(c, prefix, ""); err != nil {
		return nil, err
	}
	return &EventPublisher{
		producer: NewNatsxProducer(c),
		node:     strconv.FormatInt(nodeID, 10),
		now:      time.Now,
	}, nil
}

func (e *EventPublisher) publish(biz, msgID string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	hdr := map[string]string{HeaderNode: e.node}
	if msgID != "" {
		hdr[HeaderMsgID] = msgID
	}
	return e.producer.Publish(biz, b, hdr)
}

func messageEvent(m model.Message, at time.Time) MessageEvent {
	return MessageEvent{
		MessageID: m.ID,
		RoomID:    m.RoomID,
		From:      m.SenderID,
		To:        m.ReceiverID,
		Status:    m.Status,
		At:        at.UTC(),
	}
}

func (e *EventPublisher) MessageSent(_ context.Context, m model.Message) error {
	return e.publish(BizMessageSent, fmt.Sprintf("%s:%d", BizMessageSent, m.ID), messageEvent(m, m.CreatedAt))
}

func (e *EventPublisher) MessageDelivered(_ context.Context, m model.Message) error {
	at := e.now()
	if m.DeliveredAt != nil {
		at = *m.DeliveredAt
	}
	return e.publish(BizMessageDelivered, fmt.Sprintf("%s:%d", BizMessageDelivered, m.ID), messageEvent(m, at))
}

func (e *EventPublisher) MessagesRead(_ context.Context, room model.RoomID, by, peer model.UserID, count int64) error {
	return e.publish(BizMessageRead, "", ReadEvent{RoomID: room, By: by, Peer: peer, Count: count, At: e.now().UTC()})
}

func (e *EventPublisher) Presence(_ context.Context, u model.UserID, p model.Presence) error {
	return e.publish(BizPresence, "", PresenceEvent{UserID: u, Status: p, At: e.now().UTC()})
}

// 重连后可能重复收到同一条 sent/delivered
const tailDedupTTL = 5 * time.Minute

// TailEvents 订阅全部生命周期事件，fn 收到 biz 与原始 JSON
func TailEvents(ctx context.Context, c *NatsxClient, prefix, queue string, fn func(biz string, data []byte)) error {
	if err := RegisterEventRoutes(c, prefix, queue); err != nil {
		return err
	}
	cs := NewNatsxConsumer(c, NatsxIdemMiddleware(NewMemIdem(tailDedupTTL), tailDedupTTL))
	for _, biz := range AllBiz {
		biz := biz
		if err := cs.Subscribe(ctx, biz, func(_ context.Context, m NatsxMessage) error {
			fn(biz, m.Data)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
