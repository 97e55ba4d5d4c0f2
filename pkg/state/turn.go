package state

import (
	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/chat"
)

// TurnResult is the outcome of resolving one player turn.
type TurnResult struct {
	Fired   cartridge.Trigger  // nil when nothing fired
	Lines   []chat.DisplayLine // Lines produced by the fired trigger
	SceneID string             // Scene after the turn
	Ended   bool
}

// ResolveTurn picks at most one trigger to fire. Reported ids are checked
// against the armed set in authored order, so ids outside the set (already
// consumed, unmet dependencies, other scenes, or invented) are ignored.
// When no action fires, a due fallback fires instead.
func ResolveTurn(st SceneState, reported []string) (cartridge.Trigger, bool) {
	want := make(map[string]bool, len(reported))
	for _, id := range reported {
		want[id] = true
	}

	for _, ts := range st.Triggers {
		if ts.Armed() && want[ts.Trigger.ID()] {
			return ts.Trigger, true
		}
	}
	if fb, ok := st.Fallback(); ok && fb.Due() {
		return fb.Trigger, true
	}
	return nil, false
}

// ApplyTrigger renders a fired trigger as transcript lines. The first line
// carries the trigger id, which is the only record that it was consumed.
// A scene change appends the new scene's opening lines; an ending marks the
// narrative line as terminal.
func ApplyTrigger(c *cartridge.Cartridge, currentSceneID string, t cartridge.Trigger) TurnResult {
	e := t.Effect()
	line := chat.DisplayLine{
		Type: chat.LineNarration,
		Text: e.Narrative,
		Metadata: &chat.Metadata{
			ActivatedTriggerIDs: []string{t.ID()},
			Status:              chat.StatusComplete,
			EventImageURL:       e.EventImageURL,
			ShouldPause:         e.EventImageURL != "",
		},
	}

	res := TurnResult{Fired: t, SceneID: currentSceneID}
	switch {
	case e.GoToSceneID == "":
		res.Lines = []chat.DisplayLine{line}
	case e.EndsGame():
		line.Metadata.ShouldEnd = true
		line.Metadata.EndingName = e.Ending()
		res.Lines = []chat.DisplayLine{line}
		res.Ended = true
	default:
		next, ok := c.SceneByID(e.GoToSceneID)
		if !ok {
			// A dangling target cannot survive sanitization; treat it as an
			// ending rather than strand the player.
			line.Metadata.ShouldEnd = true
			line.Metadata.EndingName = e.Ending()
			res.Lines = []chat.DisplayLine{line}
			res.Ended = true
			break
		}
		res.Lines = append([]chat.DisplayLine{line}, EnterScene(c, next)...)
		res.SceneID = next.UUID
	}
	return res
}

// Turn resolves and applies the current turn. The player's line must
// already be on the transcript so it counts toward fallback turns.
func (p *Playthrough) Turn(reported []string) (TurnResult, error) {
	st, err := p.SceneState()
	if err != nil {
		return TurnResult{}, err
	}
	t, ok := ResolveTurn(st, reported)
	if !ok {
		return TurnResult{SceneID: p.CurrentSceneID}, nil
	}
	return ApplyTrigger(&p.ProjectSnapshot.Cartridge, p.CurrentSceneID, t), nil
}

// Append adds lines to the transcript, moves the pointer to the new tail,
// and tracks the scene the transcript now ends in.
func (p *Playthrough) Append(lines ...chat.DisplayLine) {
	for _, l := range lines {
		if l.IsSceneBoundary() {
			p.CurrentSceneID = l.Metadata.SceneID
		}
		p.Lines = append(p.Lines, l)
	}
	p.CurrentLineIdx = len(p.Lines) - 1
}
