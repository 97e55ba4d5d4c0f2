package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/state"
)

// MockStorage is an in-memory Storage for tests and local play. Values are
// copied on the way in and out so callers never share state with it.
type MockStorage struct {
	mu           sync.RWMutex
	projects     map[string]cartridge.Project
	playthroughs map[uuid.UUID]*state.Playthrough
	pingError    error
	createErrors []error
	updateErrors []error
	creates      int
	updates      int
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		projects:     make(map[string]cartridge.Project),
		playthroughs: make(map[uuid.UUID]*state.Playthrough),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetCreateErrors queues results for the next CreatePlaythrough calls.
// A nil entry lets that call succeed.
func (m *MockStorage) SetCreateErrors(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErrors = errs
}

// SetUpdateErrors queues results for the next UpdatePlaythrough calls.
func (m *MockStorage) SetUpdateErrors(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateErrors = errs
}

// Calls returns how many creates and updates have been attempted.
func (m *MockStorage) Calls() (creates, updates int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creates, m.updates
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) PutProject(ctx context.Context, p *cartridge.Project) error {
	if p == nil {
		return errors.New("project cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p.Clone()
	return nil
}

func (m *MockStorage) LoadProject(ctx context.Context, id string) (*cartridge.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	out := p.Clone()
	return &out, nil
}

func (m *MockStorage) CreatePlaythrough(ctx context.Context, pt *state.Playthrough) error {
	if pt == nil {
		return errors.New("playthrough cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if err := popError(&m.createErrors); err != nil {
		return err
	}
	if _, exists := m.playthroughs[pt.ID]; exists {
		return fmt.Errorf("playthrough %s already exists", pt.ID)
	}
	pt.Version = 1
	m.playthroughs[pt.ID] = pt.Clone()
	return nil
}

func (m *MockStorage) LoadPlaythrough(ctx context.Context, id uuid.UUID) (*state.Playthrough, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pt, ok := m.playthroughs[id]
	if !ok {
		return nil, fmt.Errorf("playthrough %s: %w", id, ErrNotFound)
	}
	return pt.Clone(), nil
}

func (m *MockStorage) UpdatePlaythrough(ctx context.Context, pt *state.Playthrough) error {
	if pt == nil {
		return errors.New("playthrough cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if err := popError(&m.updateErrors); err != nil {
		return err
	}
	stored, ok := m.playthroughs[pt.ID]
	if !ok {
		return fmt.Errorf("playthrough %s: %w", pt.ID, ErrNotFound)
	}
	if stored.Version != pt.Version {
		return fmt.Errorf("playthrough %s at version %d, have %d: %w", pt.ID, stored.Version, pt.Version, ErrVersionConflict)
	}
	pt.Version++
	pt.UpdatedAt = time.Now()
	m.playthroughs[pt.ID] = pt.Clone()
	return nil
}

func (m *MockStorage) DeletePlaythrough(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.playthroughs, id)
	return nil
}

func (m *MockStorage) ListPlaythroughs(ctx context.Context, projectID, userID string) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []uuid.UUID
	for id, pt := range m.playthroughs {
		if pt.ProjectID == projectID && pt.UserID == userID {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return ids, nil
}

func popError(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}
