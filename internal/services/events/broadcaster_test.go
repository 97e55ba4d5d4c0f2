package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBroadcaster(t *testing.T) (*Broadcaster, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBroadcaster(client, slog.New(slog.NewTextHandler(io.Discard, nil))), client
}

func receive(t *testing.T, sub *redis.PubSub) Event {
	t.Helper()
	select {
	case msg := <-sub.Channel():
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBroadcaster_Publish(t *testing.T) {
	b, client := setupBroadcaster(t)
	ctx := context.Background()
	id := uuid.New()

	sub := client.Subscribe(ctx, Channel(id))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, b.TurnCompleted(ctx, id, 7, "tr-forest-greet"))
	require.NoError(t, b.SceneChanged(ctx, id, "sc-forest", "sc-gate"))
	require.NoError(t, b.PlaythroughEnded(ctx, id, "Welcomed"))

	ev := receive(t, sub)
	assert.Equal(t, EventTypeTurnCompleted, ev.Type)
	assert.Equal(t, id.String(), ev.PlaythroughID)
	assert.EqualValues(t, 7, ev.Data["line_count"])
	assert.Equal(t, "tr-forest-greet", ev.Data["fired_trigger_id"])

	ev = receive(t, sub)
	assert.Equal(t, EventTypeSceneChanged, ev.Type)
	assert.Equal(t, "sc-gate", ev.Data["to"])

	ev = receive(t, sub)
	assert.Equal(t, EventTypePlaythroughEnded, ev.Type)
	assert.Equal(t, "Welcomed", ev.Data["ending_name"])
}

func TestBroadcaster_QuietTurnOmitsTrigger(t *testing.T) {
	b, client := setupBroadcaster(t)
	ctx := context.Background()
	id := uuid.New()

	sub := client.Subscribe(ctx, Channel(id))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, b.TurnCompleted(ctx, id, 3, ""))
	ev := receive(t, sub)
	_, ok := ev.Data["fired_trigger_id"]
	assert.False(t, ok)
}

func TestBroadcaster_PublishError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	b := NewBroadcaster(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mr.Close()
	assert.Error(t, b.PlaythroughEnded(context.Background(), uuid.New(), "Gone"))
}
