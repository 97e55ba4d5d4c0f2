package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/state"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

// Storage is the persistence collaborator for projects and playthroughs.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Projects
	PutProject(ctx context.Context, p *cartridge.Project) error
	LoadProject(ctx context.Context, id string) (*cartridge.Project, error)

	// Playthroughs
	// CreatePlaythrough stores a new playthrough at version 1.
	CreatePlaythrough(ctx context.Context, pt *state.Playthrough) error
	LoadPlaythrough(ctx context.Context, id uuid.UUID) (*state.Playthrough, error)
	// UpdatePlaythrough replaces a playthrough if the stored version equals
	// pt.Version, then bumps pt.Version. A mismatch is ErrVersionConflict.
	UpdatePlaythrough(ctx context.Context, pt *state.Playthrough) error
	DeletePlaythrough(ctx context.Context, id uuid.UUID) error
	ListPlaythroughs(ctx context.Context, projectID, userID string) ([]uuid.UUID, error)
}

// SaveProject is the author write boundary: the graph is sanitized, every
// repair is logged, and the repaired project is stored. The stored project
// is returned with the repairs.
func SaveProject(ctx context.Context, s Storage, p *cartridge.Project, logger *slog.Logger) (*cartridge.Project, []cartridge.Repair, error) {
	if p.ID == "" {
		return nil, nil, errors.New("project id is required")
	}

	clean, repairs := cartridge.Sanitize(p.Cartridge)
	for _, r := range repairs {
		logger.Warn("Repaired cartridge",
			"project_id", p.ID,
			"kind", r.Kind,
			"scene_id", r.SceneID,
			"trigger_id", r.TriggerID,
			"detail", r.Detail)
	}

	out := &cartridge.Project{ID: p.ID, Cartridge: clean, Settings: p.Settings}
	if err := s.PutProject(ctx, out); err != nil {
		return nil, nil, fmt.Errorf("failed to save project: %w", err)
	}
	return out, repairs, nil
}
