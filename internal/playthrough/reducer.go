package playthrough

import (
	"fmt"
	"time"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/chat"
	"github.com/jwebster45206/novel-engine/pkg/state"
)

// Action is a tagged request to change the active playthrough.
type Action interface {
	Name() string
}

// Create makes pt the active playthrough and stores it.
type Create struct{ Playthrough *state.Playthrough }

// Load makes an already stored playthrough active.
type Load struct{ Playthrough *state.Playthrough }

// Clear drops the active playthrough.
type Clear struct{}

// Progress appends lines and/or moves the visible pointer.
type Progress struct {
	Append         []chat.DisplayLine
	CurrentLineIdx *int // Applied after Append
}

// Settings changes player-facing flags.
type Settings struct {
	Liked      *bool
	Visibility *state.Visibility
}

// UpdateSnapshot edits the frozen project copy in place.
type UpdateSnapshot struct {
	Update func(p *cartridge.Project)
}

// Duplicate branches the active playthrough into a new row. With Project
// set, the branch restarts from that project's opening; otherwise the
// transcript is cut at CutAt.
type Duplicate struct {
	CutAt   int
	Project *cartridge.Project
}

func (Create) Name() string         { return "create" }
func (Load) Name() string           { return "load" }
func (Clear) Name() string          { return "clear" }
func (Progress) Name() string       { return "progress" }
func (Settings) Name() string       { return "settings" }
func (UpdateSnapshot) Name() string { return "updateSnapshot" }
func (Duplicate) Name() string      { return "duplicate" }

// Apply is the pure transition function. It never mutates cur; the result
// is always a fresh value (or nil after Clear).
func Apply(cur *state.Playthrough, a Action) (*state.Playthrough, error) {
	switch a := a.(type) {
	case Create:
		if a.Playthrough == nil {
			return nil, fmt.Errorf("create: playthrough is required")
		}
		return a.Playthrough.Clone(), nil
	case Load:
		if a.Playthrough == nil {
			return nil, fmt.Errorf("load: playthrough is required")
		}
		return a.Playthrough.Clone(), nil
	case Clear:
		return nil, nil
	}

	if cur == nil {
		return nil, ErrNoPlaythrough
	}
	next := cur.Clone()
	next.UpdatedAt = time.Now()

	switch a := a.(type) {
	case Progress:
		next.Append(chat.CloneLines(a.Append)...)
		if a.CurrentLineIdx != nil {
			if err := next.Rewind(*a.CurrentLineIdx); err != nil {
				return nil, err
			}
		}
	case Settings:
		if a.Liked != nil {
			next.Liked = *a.Liked
		}
		if a.Visibility != nil {
			switch *a.Visibility {
			case state.VisibilityPrivate, state.VisibilityUnlisted, state.VisibilityPublic:
				next.Visibility = *a.Visibility
			default:
				return nil, fmt.Errorf("%w: unknown visibility %q", ErrInvalidSetting, *a.Visibility)
			}
		}
	case UpdateSnapshot:
		if a.Update != nil {
			a.Update(&next.ProjectSnapshot)
		}
	case Duplicate:
		if a.Project != nil {
			fresh, err := state.NewPlaythrough(a.Project, cur.UserID)
			if err != nil {
				return nil, err
			}
			fresh.Liked = cur.Liked
			fresh.Visibility = cur.Visibility
			return fresh, nil
		}
		return cur.BranchAt(a.CutAt)
	default:
		return nil, fmt.Errorf("unknown action %T", a)
	}
	return next, nil
}
