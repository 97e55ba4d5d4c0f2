// Package playthrough sequences create, load, advance and branch
// operations against storage and the generation backend.
package playthrough

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jwebster45206/novel-engine/internal/services"
	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/chat"
	"github.com/jwebster45206/novel-engine/pkg/staleness"
	"github.com/jwebster45206/novel-engine/pkg/state"
	"github.com/jwebster45206/novel-engine/pkg/storage"
)

var (
	ErrNoPlaythrough  = errors.New("no playthrough loaded")
	ErrGameEnded      = errors.New("playthrough has ended")
	ErrBranchRequired = errors.New("playthrough is rewound; branch before continuing")
	ErrInvalidProject = errors.New("invalid project")
	ErrEmptyTurn      = errors.New("turn text is required")
	ErrInvalidSetting = errors.New("invalid setting")
	ErrGeneration     = errors.New("generation backend failed")
)

// Notifier receives playthrough events after a turn is stored.
type Notifier interface {
	TurnCompleted(ctx context.Context, id uuid.UUID, lineCount int, firedTriggerID string) error
	SceneChanged(ctx context.Context, id uuid.UUID, fromSceneID, toSceneID string) error
	PlaythroughEnded(ctx context.Context, id uuid.UUID, endingName string) error
}

// Orchestrator owns one active playthrough at a time. Every mutation is
// applied locally first, then stored; a storage failure restores the
// previous local state.
type Orchestrator struct {
	store        storage.Storage
	generator    services.Generator
	notifier     Notifier
	logger       *slog.Logger
	historyLimit int

	mu      sync.Mutex
	current *state.Playthrough
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier sets the event sink for completed turns.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithHistoryLimit caps how many transcript lines are sent to the backend.
func WithHistoryLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

func New(store storage.Storage, generator services.Generator, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		generator:    generator,
		logger:       logger,
		historyLimit: state.PromptHistoryLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Current returns a copy of the active playthrough, or nil.
func (o *Orchestrator) Current() *state.Playthrough {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return nil
	}
	return o.current.Clone()
}

// Dispatch applies an action and persists it.
func (o *Orchestrator) Dispatch(ctx context.Context, a Action) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dispatch(ctx, a)
}

func (o *Orchestrator) dispatch(ctx context.Context, a Action) error {
	prev := o.current
	next, err := Apply(prev, a)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Name(), err)
	}

	switch a.(type) {
	case Load, Clear:
		o.current = next
		return nil
	}

	o.current = next
	rollback := func(err error) error {
		o.current = prev
		o.logger.Error("Action failed; local state restored", "action", a.Name(), "error", err)
		return fmt.Errorf("%s: %w", a.Name(), err)
	}

	switch a.(type) {
	case Create:
		if err := o.store.CreatePlaythrough(ctx, next); err != nil {
			return rollback(err)
		}
	case Duplicate:
		// Two sequential creates: a preservation copy of the pre-branch
		// state, then the branch. A failure between them leaves an orphan.
		preserve := prev.Clone()
		preserve.ID = uuid.New()
		if err := o.store.CreatePlaythrough(ctx, preserve); err != nil {
			return rollback(err)
		}
		if err := o.store.CreatePlaythrough(ctx, next); err != nil {
			o.logger.Warn("Branch create failed after preservation copy",
				"orphan_playthrough_id", preserve.ID,
				"source_playthrough_id", prev.ID)
			return rollback(err)
		}
	default:
		if err := o.store.UpdatePlaythrough(ctx, next); err != nil {
			return rollback(err)
		}
	}
	return nil
}

// Start validates the stored project, freezes it into a new playthrough and
// makes it active.
func (o *Orchestrator) Start(ctx context.Context, projectID, userID string) (*state.Playthrough, error) {
	project, err := o.store.LoadProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if err := cartridge.ValidateProject(project); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProject, err)
	}
	pt, err := state.NewPlaythrough(project, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProject, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.dispatch(ctx, Create{Playthrough: pt}); err != nil {
		return nil, err
	}
	o.logger.Info("Playthrough started", "playthrough_id", o.current.ID, "project_id", projectID)
	return o.current.Clone(), nil
}

// Load fetches a stored playthrough and makes it active.
func (o *Orchestrator) Load(ctx context.Context, id uuid.UUID) (*state.Playthrough, error) {
	pt, err := o.store.LoadPlaythrough(ctx, id)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.dispatch(ctx, Load{Playthrough: pt}); err != nil {
		return nil, err
	}
	return o.current.Clone(), nil
}

// TurnOutcome describes one completed player turn.
type TurnOutcome struct {
	Lines          []chat.DisplayLine `json:"lines"` // Lines added this turn, player line first
	FiredTriggerID string             `json:"firedTriggerId,omitempty"`
	SceneChanged   bool               `json:"sceneChanged"`
	Ended          bool               `json:"ended"`
	EndingName     string             `json:"endingName,omitempty"`
}

// Advance plays one turn. The whole turn is built on a private copy and
// stored with a single progress update, so a backend failure or
// cancellation leaves both local and stored state untouched.
func (o *Orchestrator) Advance(ctx context.Context, text string) (*TurnOutcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pt, err := o.playable()
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyTurn
	}

	snapshot := &pt.ProjectSnapshot
	work := pt.Clone()
	player := []chat.DisplayLine{{Type: chat.LinePlayer, Text: text}}
	chat.ResolveSpeakers(player, &snapshot.Cartridge, snapshot.Settings.PlayerID)
	work.Append(player...)

	st, err := work.SceneState()
	if err != nil {
		return nil, err
	}
	var reported []string
	if armed := st.ArmedByID(); len(armed) > 0 {
		resp, err := o.generator.Evaluate(ctx, services.EvaluateRequest{
			PossibleTriggers: armed,
			Lines:            o.encode(work),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: evaluate: %w", ErrGeneration, err)
		}
		reported = resp.ActivatedTriggerIDs
	}

	fromScene := work.CurrentSceneID
	res, err := work.Turn(reported)
	if err != nil {
		return nil, err
	}
	work.Append(res.Lines...)

	if !res.Ended {
		scene, err := work.Scene()
		if err != nil {
			return nil, err
		}
		resp, err := o.generator.Advance(ctx, services.AdvanceRequest{
			Project:  *snapshot,
			SceneID:  scene.UUID,
			Lines:    o.encode(work),
			Triggers: scene.Triggers,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: advance: %w", ErrGeneration, err)
		}
		generated := chat.DecodeBatch(resp.Lines, &chat.Metadata{Status: chat.StatusComplete})
		chat.ResolveSpeakers(generated, &snapshot.Cartridge, snapshot.Settings.PlayerID)
		work.Append(generated...)
	}

	added := work.Lines[len(pt.Lines):]
	if err := o.dispatch(ctx, Progress{Append: added}); err != nil {
		return nil, err
	}

	out := &TurnOutcome{
		Lines:        chat.CloneLines(added),
		SceneChanged: res.SceneID != fromScene,
		Ended:        res.Ended,
	}
	if res.Fired != nil {
		out.FiredTriggerID = res.Fired.ID()
		if res.Ended {
			out.EndingName = res.Fired.Effect().Ending()
		}
	}
	o.logger.Info("Turn completed",
		"playthrough_id", pt.ID,
		"scene_id", res.SceneID,
		"fired_trigger_id", out.FiredTriggerID,
		"ended", out.Ended)
	o.notify(ctx, o.current.ID, len(o.current.Lines), fromScene, res.SceneID, out)
	return out, nil
}

// Hint asks the backend for a suggestion based on the triggers the player
// can still reach, and appends it as a single hint line.
func (o *Orchestrator) Hint(ctx context.Context) (chat.DisplayLine, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pt, err := o.playable()
	if err != nil {
		return chat.DisplayLine{}, err
	}
	st, err := pt.SceneState()
	if err != nil {
		return chat.DisplayLine{}, err
	}

	req := services.HintRequest{
		Lines: o.encode(pt),
		Style: pt.ProjectSnapshot.Cartridge.Style.Prompt,
	}
	for _, a := range st.Armed() {
		req.TriggerConditions = append(req.TriggerConditions, a.Condition)
	}
	if player, ok := pt.ProjectSnapshot.Cartridge.CharacterByID(pt.ProjectSnapshot.Settings.PlayerID); ok {
		req.PlayerCharacterName = player.Name
	}

	resp, err := o.generator.Hint(ctx, req)
	if err != nil {
		return chat.DisplayLine{}, fmt.Errorf("%w: hint: %w", ErrGeneration, err)
	}

	var parts []string
	for _, l := range chat.DecodeBatch(resp.Lines, nil) {
		if l.Text != "" {
			parts = append(parts, l.Text)
		}
	}
	hint := chat.DisplayLine{
		Type:     chat.LineHint,
		Text:     strings.Join(parts, " "),
		Metadata: &chat.Metadata{Status: chat.StatusComplete},
	}
	if err := o.dispatch(ctx, Progress{Append: []chat.DisplayLine{hint}}); err != nil {
		return chat.DisplayLine{}, err
	}
	return hint, nil
}

// Rewind moves the visible pointer without dropping lines.
func (o *Orchestrator) Rewind(ctx context.Context, idx int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dispatch(ctx, Progress{CurrentLineIdx: &idx})
}

// Branch forks the active playthrough at its pointer. The branch becomes
// active.
func (o *Orchestrator) Branch(ctx context.Context) (*state.Playthrough, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil {
		return nil, ErrNoPlaythrough
	}
	if err := o.dispatch(ctx, Duplicate{CutAt: o.current.CurrentLineIdx}); err != nil {
		return nil, err
	}
	return o.current.Clone(), nil
}

// Restart branches from the opening of the live project, picking up any
// edits made since the playthrough began.
func (o *Orchestrator) Restart(ctx context.Context) (*state.Playthrough, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil {
		return nil, ErrNoPlaythrough
	}
	project, err := o.store.LoadProject(ctx, o.current.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if err := cartridge.ValidateProject(project); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProject, err)
	}
	if err := o.dispatch(ctx, Duplicate{Project: project}); err != nil {
		return nil, err
	}
	return o.current.Clone(), nil
}

// UpdateSettings changes the liked flag and/or visibility.
func (o *Orchestrator) UpdateSettings(ctx context.Context, liked *bool, visibility *state.Visibility) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dispatch(ctx, Settings{Liked: liked, Visibility: visibility})
}

// Staleness reports both the coarse and the edit-scoped staleness of the
// active playthrough against the live project.
type Staleness struct {
	OutOfDate       bool `json:"outOfDate"`
	OutdatedForEdit bool `json:"outdatedForEdit"`
}

func (o *Orchestrator) Staleness(ctx context.Context) (Staleness, error) {
	pt := o.Current()
	if pt == nil {
		return Staleness{}, ErrNoPlaythrough
	}
	live, err := o.store.LoadProject(ctx, pt.ProjectID)
	if err != nil {
		return Staleness{}, fmt.Errorf("failed to load project: %w", err)
	}
	return Staleness{
		OutOfDate:       staleness.IsGameOutOfDate(&live.Cartridge, pt),
		OutdatedForEdit: staleness.IsPlaythroughOutdatedForEdit(&live.Cartridge, pt),
	}, nil
}

// SyncSnapshot adopts the live project as the snapshot when no edit touches
// content the playthrough has already reached. It reports whether the
// snapshot was replaced.
func (o *Orchestrator) SyncSnapshot(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil {
		return false, ErrNoPlaythrough
	}
	live, err := o.store.LoadProject(ctx, o.current.ProjectID)
	if err != nil {
		return false, fmt.Errorf("failed to load project: %w", err)
	}
	if staleness.IsPlaythroughOutdatedForEdit(&live.Cartridge, o.current) {
		return false, nil
	}
	if _, ok := live.Cartridge.SceneByID(o.current.CurrentSceneID); !ok {
		return false, nil
	}

	err = o.dispatch(ctx, UpdateSnapshot{Update: func(p *cartridge.Project) {
		*p = live.Clone()
	}})
	return err == nil, err
}

func (o *Orchestrator) playable() (*state.Playthrough, error) {
	if o.current == nil {
		return nil, ErrNoPlaythrough
	}
	if o.current.Ended() {
		return nil, ErrGameEnded
	}
	if !o.current.AtTail() {
		return nil, ErrBranchRequired
	}
	return o.current, nil
}

func (o *Orchestrator) encode(pt *state.Playthrough) []chat.XmlLine {
	return chat.Encode(pt.History(o.historyLimit), pt.ProjectSnapshot.Cartridge.Scenes)
}

func (o *Orchestrator) notify(ctx context.Context, id uuid.UUID, lineCount int, from, to string, out *TurnOutcome) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.TurnCompleted(ctx, id, lineCount, out.FiredTriggerID); err != nil {
		o.logger.Warn("Failed to publish turn event", "playthrough_id", id, "error", err)
	}
	if out.SceneChanged {
		if err := o.notifier.SceneChanged(ctx, id, from, to); err != nil {
			o.logger.Warn("Failed to publish scene event", "playthrough_id", id, "error", err)
		}
	}
	if out.Ended {
		if err := o.notifier.PlaythroughEnded(ctx, id, out.EndingName); err != nil {
			o.logger.Warn("Failed to publish ending event", "playthrough_id", id, "error", err)
		}
	}
}
