package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/state"
	"github.com/jwebster45206/novel-engine/pkg/storage"
)

const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS playthroughs (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	version    INTEGER NOT NULL,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS playthroughs_owner ON playthroughs (project_id, user_id);
`

// SQLiteStorage is a single-file store. The version column is the
// optimistic concurrency token; the JSON blob carries everything else.
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.Storage = (*SQLiteStorage)(nil)

// OpenSQLite opens (and if needed creates) a SQLite store at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logger.Info("SQLite storage opened", "path", path)
	return &SQLiteStorage{db: db, logger: logger}, nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStorage) PutProject(ctx context.Context, p *cartridge.Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		p.ID, string(data), time.Now().UTC().Format(timeFormat))
	if err != nil {
		s.logger.Error("Failed to save project", "project_id", p.ID, "error", err)
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) LoadProject(ctx context.Context, id string) (*cartridge.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM projects WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	var p cartridge.Project
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStorage) CreatePlaythrough(ctx context.Context, pt *state.Playthrough) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := pt.Clone()
	stored.Version = 1
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal playthrough: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO playthroughs (id, project_id, user_id, version, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pt.ID.String(), pt.ProjectID, pt.UserID, stored.Version, string(data),
		pt.CreatedAt.UTC().Format(timeFormat), pt.UpdatedAt.UTC().Format(timeFormat))
	if err != nil {
		s.logger.Error("Failed to create playthrough", "playthrough_id", pt.ID, "error", err)
		return fmt.Errorf("failed to create playthrough: %w", err)
	}

	pt.Version = 1
	return nil
}

func (s *SQLiteStorage) LoadPlaythrough(ctx context.Context, id uuid.UUID) (*state.Playthrough, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		version int64
		data    string
	)
	err := s.db.QueryRowContext(ctx, `SELECT version, data FROM playthroughs WHERE id = ?`, id.String()).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("playthrough %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load playthrough: %w", err)
	}

	pt, err := decodePlaythrough([]byte(data))
	if err != nil {
		return nil, err
	}
	pt.Version = version
	return pt, nil
}

func (s *SQLiteStorage) UpdatePlaythrough(ctx context.Context, pt *state.Playthrough) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := pt.Clone()
	next.Version = pt.Version + 1
	next.UpdatedAt = time.Now()
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal playthrough: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE playthroughs SET version = ?, data = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		next.Version, string(data), next.UpdatedAt.UTC().Format(timeFormat),
		pt.ID.String(), pt.Version)
	if err != nil {
		s.logger.Error("Failed to update playthrough", "playthrough_id", pt.ID, "error", err)
		return fmt.Errorf("failed to update playthrough: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update playthrough: %w", err)
	}
	if n == 0 {
		var stored int64
		err := s.db.QueryRowContext(ctx, `SELECT version FROM playthroughs WHERE id = ?`, pt.ID.String()).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("playthrough %s: %w", pt.ID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to update playthrough: %w", err)
		}
		return fmt.Errorf("playthrough %s at version %d, have %d: %w", pt.ID, stored, pt.Version, storage.ErrVersionConflict)
	}

	pt.Version = next.Version
	pt.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *SQLiteStorage) DeletePlaythrough(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM playthroughs WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete playthrough: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListPlaythroughs(ctx context.Context, projectID, userID string) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM playthroughs WHERE project_id = ? AND user_id = ? ORDER BY id`,
		projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playthroughs: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan playthrough id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			s.logger.Warn("Skipping malformed playthrough id", "value", raw, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
