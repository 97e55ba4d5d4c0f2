package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/state"
	"github.com/jwebster45206/novel-engine/pkg/storage"
)

const (
	projectPrefix      = "project:"
	playthroughPrefix  = "playthrough:"
	playthroughIndexes = "playthroughs:"
)

// RedisStorage stores projects and playthroughs as JSON strings. Updates
// use WATCH/MULTI so a concurrent writer turns into ErrVersionConflict.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
}

var _ storage.Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a Redis storage instance. redisURL may be a
// redis:// URL or a bare host:port.
func NewRedisStorage(redisURL string, logger *slog.Logger) (*RedisStorage, error) {
	opts := &redis.Options{Addr: redisURL}
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		opts = parsed
	}

	return &RedisStorage{
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

// Client exposes the underlying client so the event broadcaster can share
// the connection pool.
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func (r *RedisStorage) PutProject(ctx context.Context, p *cartridge.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	if err := r.client.Set(ctx, projectPrefix+p.ID, data, 0).Err(); err != nil {
		r.logger.Error("Failed to save project", "project_id", p.ID, "error", err)
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadProject(ctx context.Context, id string) (*cartridge.Project, error) {
	data, err := r.client.Get(ctx, projectPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("project %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to load project", "project_id", id, "error", err)
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	var p cartridge.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	return &p, nil
}

func (r *RedisStorage) CreatePlaythrough(ctx context.Context, pt *state.Playthrough) error {
	stored := pt.Clone()
	stored.Version = 1
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal playthrough: %w", err)
	}

	var created *redis.BoolCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, playthroughPrefix+pt.ID.String(), data, 0)
		pipe.SAdd(ctx, indexKey(pt.ProjectID, pt.UserID), pt.ID.String())
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to create playthrough", "playthrough_id", pt.ID, "error", err)
		return fmt.Errorf("failed to create playthrough: %w", err)
	}
	if !created.Val() {
		return fmt.Errorf("playthrough %s already exists", pt.ID)
	}

	pt.Version = 1
	return nil
}

func (r *RedisStorage) LoadPlaythrough(ctx context.Context, id uuid.UUID) (*state.Playthrough, error) {
	data, err := r.client.Get(ctx, playthroughPrefix+id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("playthrough %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to load playthrough", "playthrough_id", id, "error", err)
		return nil, fmt.Errorf("failed to load playthrough: %w", err)
	}
	return decodePlaythrough(data)
}

func (r *RedisStorage) UpdatePlaythrough(ctx context.Context, pt *state.Playthrough) error {
	key := playthroughPrefix + pt.ID.String()
	next := pt.Clone()
	next.Version = pt.Version + 1
	next.UpdatedAt = time.Now()
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal playthrough: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("playthrough %s: %w", pt.ID, storage.ErrNotFound)
		}
		if err != nil {
			return err
		}
		stored, err := decodePlaythrough(current)
		if err != nil {
			return err
		}
		if stored.Version != pt.Version {
			return fmt.Errorf("playthrough %s at version %d, have %d: %w", pt.ID, stored.Version, pt.Version, storage.ErrVersionConflict)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("playthrough %s changed during update: %w", pt.ID, storage.ErrVersionConflict)
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrVersionConflict):
		return err
	case err != nil:
		r.logger.Error("Failed to update playthrough", "playthrough_id", pt.ID, "error", err)
		return fmt.Errorf("failed to update playthrough: %w", err)
	}

	pt.Version = next.Version
	pt.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *RedisStorage) DeletePlaythrough(ctx context.Context, id uuid.UUID) error {
	pt, err := r.LoadPlaythrough(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, playthroughPrefix+id.String())
		pipe.SRem(ctx, indexKey(pt.ProjectID, pt.UserID), id.String())
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to delete playthrough", "playthrough_id", id, "error", err)
		return fmt.Errorf("failed to delete playthrough: %w", err)
	}
	return nil
}

func (r *RedisStorage) ListPlaythroughs(ctx context.Context, projectID, userID string) ([]uuid.UUID, error) {
	members, err := r.client.SMembers(ctx, indexKey(projectID, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list playthroughs: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			r.logger.Warn("Skipping malformed playthrough id", "value", m, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return ids, nil
}

func indexKey(projectID, userID string) string {
	return playthroughIndexes + projectID + ":" + userID
}

func decodePlaythrough(data []byte) (*state.Playthrough, error) {
	var pt state.Playthrough
	if err := json.Unmarshal(data, &pt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal playthrough: %w", err)
	}
	return &pt, nil
}
