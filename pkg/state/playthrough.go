package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/chat"
)

// PromptHistoryLimit is the default number of transcript lines sent to the
// generation backend.
const PromptHistoryLimit = 20

// Visibility controls who may view a playthrough.
type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPublic   Visibility = "public"
)

var ErrLineOutOfRange = errors.New("line index out of range")

// Playthrough is one player's run through a frozen copy of a project.
type Playthrough struct {
	ID              uuid.UUID          `json:"id"`
	ProjectID       string             `json:"projectId"`
	UserID          string             `json:"userId"`
	Lines           []chat.DisplayLine `json:"lines"`          // Live transcript
	CurrentLineIdx  int                `json:"currentLineIdx"` // Last line the player has seen
	CurrentSceneID  string             `json:"currentSceneId"` // Scene at the end of the transcript
	ProjectSnapshot cartridge.Project  `json:"projectSnapshot"`
	Liked           bool               `json:"liked"`
	Visibility      Visibility         `json:"visibility"`
	Version         int64              `json:"version"` // Optimistic concurrency token, owned by storage
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// NewPlaythrough starts a playthrough at the project's starting scene. The
// project is deep-copied into the snapshot; later edits to the live graph
// never reach it.
func NewPlaythrough(project *cartridge.Project, userID string) (*Playthrough, error) {
	snapshot := project.Clone()
	scene, ok := snapshot.Cartridge.SceneByID(snapshot.Settings.StartingSceneID)
	if !ok {
		return nil, fmt.Errorf("starting scene %q not found", snapshot.Settings.StartingSceneID)
	}

	lines := EnterScene(&snapshot.Cartridge, scene)
	now := time.Now()
	return &Playthrough{
		ID:              uuid.New(),
		ProjectID:       project.ID,
		UserID:          userID,
		Lines:           lines,
		CurrentLineIdx:  len(lines) - 1,
		CurrentSceneID:  scene.UUID,
		ProjectSnapshot: snapshot,
		Visibility:      VisibilityPrivate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// EnterScene returns the lines that open a scene visit: an empty boundary
// line carrying the scene id, followed by the scene's authored script.
func EnterScene(c *cartridge.Cartridge, scene *cartridge.Scene) []chat.DisplayLine {
	lines := []chat.DisplayLine{{
		Type:     chat.LineNarration,
		Metadata: &chat.Metadata{SceneID: scene.UUID, Status: chat.StatusComplete},
	}}

	for _, sl := range scene.Script {
		line := chat.DisplayLine{
			Type:     chat.LineType(sl.Type),
			Text:     sl.Text,
			Metadata: &chat.Metadata{Scripted: true},
		}
		switch line.Type {
		case chat.LineCharacter, chat.LinePlayer:
			if ch, ok := c.CharacterByID(sl.CharacterID); ok {
				line.CharacterID = ch.UUID
				line.CharacterName = ch.Name
			}
		default:
			line.Type = chat.LineNarration
		}
		lines = append(lines, line)
	}
	return lines
}

// Clone returns a deep copy of the playthrough.
func (p *Playthrough) Clone() *Playthrough {
	out := *p
	out.Lines = chat.CloneLines(p.Lines)
	out.ProjectSnapshot = p.ProjectSnapshot.Clone()
	return &out
}

// Scene returns the snapshot scene the playthrough is currently in.
func (p *Playthrough) Scene() (*cartridge.Scene, error) {
	scene, ok := p.ProjectSnapshot.Cartridge.SceneByID(p.CurrentSceneID)
	if !ok {
		return nil, fmt.Errorf("current scene %q not found in snapshot", p.CurrentSceneID)
	}
	return scene, nil
}

// Ended reports whether an ending line is visible at the current pointer.
// Rewinding the pointer before the ending line re-opens the playthrough.
func (p *Playthrough) Ended() bool {
	for i := 0; i <= p.CurrentLineIdx && i < len(p.Lines); i++ {
		if p.Lines[i].Ends() {
			return true
		}
	}
	return false
}

// AtTail reports whether the pointer is on the last line.
func (p *Playthrough) AtTail() bool {
	return p.CurrentLineIdx == len(p.Lines)-1
}

// Rewind moves the visible pointer. Lines are kept, so trigger consumption
// derived from the transcript is unaffected.
func (p *Playthrough) Rewind(idx int) error {
	if idx < 0 || idx >= len(p.Lines) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrLineOutOfRange, idx, len(p.Lines))
	}
	p.CurrentLineIdx = idx
	return nil
}

// BranchAt returns a new playthrough whose transcript is this one's cut at
// idx. The snapshot is copied, never re-derived from the live graph.
func (p *Playthrough) BranchAt(idx int) (*Playthrough, error) {
	if idx < 0 || idx >= len(p.Lines) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrLineOutOfRange, idx, len(p.Lines))
	}
	now := time.Now()
	out := p.Clone()
	out.ID = uuid.New()
	out.Lines = out.Lines[:idx+1]
	out.CurrentLineIdx = idx
	out.CurrentSceneID = p.SceneAt(idx)
	out.Version = 0
	out.CreatedAt = now
	out.UpdatedAt = now
	return out, nil
}

// SceneAt returns the scene whose visit contains the line at idx.
func (p *Playthrough) SceneAt(idx int) string {
	if idx >= len(p.Lines) {
		idx = len(p.Lines) - 1
	}
	for i := idx; i >= 0; i-- {
		if p.Lines[i].IsSceneBoundary() {
			return p.Lines[i].Metadata.SceneID
		}
	}
	return p.ProjectSnapshot.Settings.StartingSceneID
}

// History returns up to limit lines ending at the pointer.
func (p *Playthrough) History(limit int) []chat.DisplayLine {
	end := p.CurrentLineIdx + 1
	if end > len(p.Lines) {
		end = len(p.Lines)
	}
	start := 0
	if limit > 0 && end-limit > 0 {
		start = end - limit
	}
	return p.Lines[start:end]
}

// ConsumedTriggerIDs returns every trigger id ever recorded in the transcript.
func (p *Playthrough) ConsumedTriggerIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, l := range p.Lines {
		for _, id := range l.ActivatedTriggerIDs() {
			ids[id] = true
		}
	}
	return ids
}

// VisitedSceneIDs returns every scene the transcript has entered, plus the
// current scene.
func (p *Playthrough) VisitedSceneIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, l := range p.Lines {
		if l.IsSceneBoundary() {
			ids[l.Metadata.SceneID] = true
		}
	}
	if p.CurrentSceneID != "" {
		ids[p.CurrentSceneID] = true
	}
	return ids
}
