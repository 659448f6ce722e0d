package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *RedisBus {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisBus(rdb, slog.Default())
}

func TestPublishReachesSubscriber(t *testing.T) {
	b := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 1)
	go b.Subscribe(ctx, func(m Message) {
		received <- m
	})

	// PSubscribe needs a moment to register before the publish
	time.Sleep(50 * time.Millisecond)

	want := Message{
		Origin:  "instance-1",
		RoomID:  "r1",
		Exclude: []string{"s1"},
		Type:    "play",
		Payload: json.RawMessage(`{"time":5}`),
	}
	require.NoError(t, b.Publish(ctx, want))

	select {
	case got := <-received:
		assert.Equal(t, want.Origin, got.Origin)
		assert.Equal(t, want.RoomID, got.RoomID)
		assert.Equal(t, want.Exclude, got.Exclude)
		assert.Equal(t, want.Type, got.Type)
		assert.JSONEq(t, string(want.Payload), string(got.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("message never arrived")
	}
}

func TestSubscribeStopsOnCancel(t *testing.T) {
	b := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Subscribe(ctx, func(Message) {})
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe loop did not stop")
	}
}

func TestNoopBus(t *testing.T) {
	var b Bus = Noop{}
	assert.NoError(t, b.Publish(context.Background(), Message{RoomID: "r1"}))
	b.Subscribe(context.Background(), func(Message) {
		t.Fatal("noop bus must never deliver")
	})
	assert.NoError(t, b.Close())
}
