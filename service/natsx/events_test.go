package natsx

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dyadchat/module/chat/model"
)

// 需要本地 nats-server；连不上时跳过
func testClient(t *testing.T) *NatsxClient {
	t.Helper()
	url := os.Getenv("DYAD_TEST_NATS_URL")
	if url == "" {
		url = "nats://127.0.0.1:4222"
	}
	c, err := NewNatsxClient(NatsxConfig{Servers: ParseServers(url), Name: "dyad-test", Timeout: time.Second})
	if err != nil {
		t.Skipf("nats not reachable at %s: %v", url, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestParseServers(t *testing.T) {
	require.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, ParseServers(" nats://a:4222, ,nats://b:4222"))
	require.Empty(t, ParseServers(""))
}

func TestNewClientRequiresServers(t *testing.T) {
	_, err := NewNatsxClient(NatsxConfig{})
	require.Error(t, err)
}

func TestEventsRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	prefix := "dyadtest" + time.Now().Format("150405.000000")
	sub := testClient(t)
	type event struct {
		biz  string
		data []byte
	}
	got := make(chan event, 8)
	require.NoError(t, TailEvents(ctx, sub, prefix, "", func(biz string, data []byte) {
		got <- event{biz: biz, data: data}
	}))
	require.NoError(t, sub.Flush(time.Second))

	pub, err := NewEventPublisher(testClient(t), prefix, 9)
	require.NoError(t, err)

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := model.Message{ID: 5, RoomID: 2, SenderID: 1, ReceiverID: 3, Status: model.StatusSent, CreatedAt: at}
	require.NoError(t, pub.MessageSent(ctx, m))
	require.NoError(t, pub.Presence(ctx, 1, model.Online))
	require.NoError(t, pub.producer.c.Flush(time.Second))

	seen := map[string]map[string]any{}
	for len(seen) < 2 {
		select {
		case ev := <-got:
			var body map[string]any
			require.NoError(t, json.Unmarshal(ev.data, &body))
			seen[ev.biz] = body
		case <-ctx.Done():
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	require.Equal(t, float64(5), seen[BizMessageSent]["messageId"])
	require.Equal(t, "online", seen[BizPresence]["status"])
}

func TestPublishUnknownRoute(t *testing.T) {
	c := testClient(t)
	err := NewNatsxProducer(c).Publish("nope", nil, nil)
	require.ErrorContains(t, err, "route not found")
}
