package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeTurnCompleted    EventType = "turn.completed"
	EventTypeSceneChanged     EventType = "scene.changed"
	EventTypePlaythroughEnded EventType = "playthrough.ended"
)

// Event is the payload published for a playthrough.
type Event struct {
	Type          EventType      `json:"type"`
	PlaythroughID string         `json:"playthrough_id"`
	Data          map[string]any `json:"data,omitempty"`
}

// Broadcaster publishes playthrough events to Redis Pub/Sub.
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Channel is the pub/sub channel for one playthrough.
func Channel(id uuid.UUID) string {
	return "playthrough:" + id.String()
}

// TurnCompleted publishes a turn.completed event
func (b *Broadcaster) TurnCompleted(ctx context.Context, id uuid.UUID, lineCount int, firedTriggerID string) error {
	data := map[string]any{"line_count": lineCount}
	if firedTriggerID != "" {
		data["fired_trigger_id"] = firedTriggerID
	}
	return b.publish(ctx, id, Event{Type: EventTypeTurnCompleted, PlaythroughID: id.String(), Data: data})
}

// SceneChanged publishes a scene.changed event
func (b *Broadcaster) SceneChanged(ctx context.Context, id uuid.UUID, fromSceneID, toSceneID string) error {
	return b.publish(ctx, id, Event{
		Type:          EventTypeSceneChanged,
		PlaythroughID: id.String(),
		Data:          map[string]any{"from": fromSceneID, "to": toSceneID},
	})
}

// PlaythroughEnded publishes a playthrough.ended event
func (b *Broadcaster) PlaythroughEnded(ctx context.Context, id uuid.UUID, endingName string) error {
	return b.publish(ctx, id, Event{
		Type:          EventTypePlaythroughEnded,
		PlaythroughID: id.String(),
		Data:          map[string]any{"ending_name": endingName},
	})
}

func (b *Broadcaster) publish(ctx context.Context, id uuid.UUID, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := Channel(id)
	if err := b.redisClient.Publish(ctx, channel, payload).Err(); err != nil {
		b.logger.Error("Failed to publish event", "channel", channel, "type", event.Type, "error", err)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Published event", "channel", channel, "type", event.Type)
	return nil
}
