package livehub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizflow/vizflow/internal/infrastructure/logger"
)

func newTestHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := New("vizflow", nil, logger.Default())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	return hub, cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond())
}

func TestRegister_JoinsGeneralChannelAndIncrementsCount(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	c := NewClient("c1", "tenant-1", hub, nil)
	hub.Register(c)

	waitFor(t, func() bool { return hub.ClientCount() == 1 })
	waitFor(t, func() bool { return hub.ChannelSubscriberCount(GeneralChannel("vizflow", "tenant-1")) == 1 })
}

func TestUnregister_RemovesFromEveryChannel(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	c := NewClient("c1", "tenant-1", hub, nil)
	hub.Register(c)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	channel := hub.Subscribe(c, "widget:w1")
	waitFor(t, func() bool { return hub.ChannelSubscriberCount(channel) == 1 })

	hub.Unregister(c)
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
	assert.Equal(t, 0, hub.ChannelSubscriberCount(channel))
	assert.Equal(t, 0, hub.ChannelSubscriberCount(GeneralChannel("vizflow", "tenant-1")))
}

func TestSubscribe_RewritesForeignTenantPrefix(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	c := NewClient("c1", "tenant-a", hub, nil)
	hub.Register(c)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	channel := hub.Subscribe(c, "vizflow:tenant-b:widget:w1")
	assert.Equal(t, "vizflow:tenant-a:widget:w1", channel)
}

func TestPublish_DeliversOnlyToSubscribers(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	subscriber := NewClient("subscriber", "tenant-1", hub, nil)
	bystander := NewClient("bystander", "tenant-1", hub, nil)
	hub.Register(subscriber)
	hub.Register(bystander)
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	channel := hub.Subscribe(subscriber, "widget:w1")
	waitFor(t, func() bool { return hub.ChannelSubscriberCount(channel) == 1 })

	frame := LiveDataFrame{Type: "live_data", WidgetID: "w1", Data: map[string]any{"x": 1}}
	require.NoError(t, hub.Publish(context.Background(), channel, frame))

	select {
	case payload := <-subscriber.send:
		var got LiveDataFrame
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, "w1", got.WidgetID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive published frame")
	}

	select {
	case <-bystander.send:
		t.Fatal("bystander must not receive a frame it never subscribed to")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_WithRedisConfiguredDeliversExactlyOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hub := New("vizflow", client, logger.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := NewClient("c1", "tenant-1", hub, nil)
	hub.Register(c)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	channel := hub.Subscribe(c, "widget:w1")
	// Give subscribeLoop's PSUBSCRIBE time to register with miniredis
	// before the first publish, since it starts concurrently with Run.
	waitFor(t, func() bool { return hub.ChannelSubscriberCount(channel) == 1 })
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), channel, PingFrame{Type: "ping"}))

	select {
	case <-c.send:
	case <-time.After(time.Second):
		t.Fatal("client never received the published frame via the redis echo")
	}

	select {
	case <-c.send:
		t.Fatal("client received the same publish twice — local broadcast and redis echo both delivered it")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribe_StopsFutureDelivery(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	c := NewClient("c1", "tenant-1", hub, nil)
	hub.Register(c)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	channel := hub.Subscribe(c, "widget:w1")
	waitFor(t, func() bool { return hub.ChannelSubscriberCount(channel) == 1 })

	hub.Unsubscribe(c, "widget:w1")
	waitFor(t, func() bool { return hub.ChannelSubscriberCount(channel) == 0 })

	require.NoError(t, hub.Publish(context.Background(), channel, PingFrame{Type: "ping"}))
	select {
	case <-c.send:
		t.Fatal("client must not receive frames on a channel it unsubscribed from")
	case <-time.After(50 * time.Millisecond):
	}
}
