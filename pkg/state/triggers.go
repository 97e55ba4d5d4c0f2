package state

import (
	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/chat"
)

// TriggerState is the derived, per-visit state of one trigger. It is never
// stored; it is recomputed from the transcript on every read.
type TriggerState struct {
	Trigger       cartridge.Trigger
	Consumed      bool // Fired during the current visit
	DepsSatisfied bool // Every dependency consumed; always true for fallbacks
	TurnsLeft     int  // Fallback only: player turns remaining before it fires
}

// Armed reports whether an action trigger may fire this turn.
func (ts TriggerState) Armed() bool {
	_, isAction := ts.Trigger.(cartridge.ActionTrigger)
	return isAction && ts.DepsSatisfied && !ts.Consumed
}

// Due reports whether a fallback trigger must fire this turn.
func (ts TriggerState) Due() bool {
	_, isFallback := ts.Trigger.(cartridge.FallbackTrigger)
	return isFallback && !ts.Consumed && ts.TurnsLeft == 0
}

// SceneState is the trigger state of the current scene visit.
type SceneState struct {
	SceneID      string
	TurnsElapsed int
	Consumed     map[string]bool
	Triggers     []TriggerState // Authored order
}

// DeriveSceneState folds the transcript into trigger state for one scene.
// Only the latest visit counts: the segment runs from the last boundary line
// for the scene to the end of the transcript. Re-entering a scene starts a
// fresh segment, so its triggers re-arm. Without a boundary for the scene
// the visit has not begun and the state is fresh.
func DeriveSceneState(scene *cartridge.Scene, lines []chat.DisplayLine) SceneState {
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].IsSceneBoundary() && lines[i].Metadata.SceneID == scene.UUID {
			start = i
			break
		}
	}

	st := SceneState{
		SceneID:  scene.UUID,
		Consumed: make(map[string]bool),
	}
	for _, l := range lines[start:] {
		if l.IsPlayerTurn() {
			st.TurnsElapsed++
		}
		for _, id := range l.ActivatedTriggerIDs() {
			st.Consumed[id] = true
		}
	}

	st.Triggers = make([]TriggerState, 0, len(scene.Triggers))
	for _, t := range scene.Triggers {
		ts := TriggerState{Trigger: t, Consumed: st.Consumed[t.ID()], DepsSatisfied: true}
		switch v := t.(type) {
		case cartridge.ActionTrigger:
			for _, dep := range v.DependsOnTriggerIDs {
				if !st.Consumed[dep] {
					ts.DepsSatisfied = false
					break
				}
			}
		case cartridge.FallbackTrigger:
			ts.TurnsLeft = max(0, v.K-st.TurnsElapsed)
		}
		st.Triggers = append(st.Triggers, ts)
	}
	return st
}

// Armed returns the action triggers that may fire this turn, in authored
// order. This is the only set offered to the evaluator.
func (st SceneState) Armed() []cartridge.ActionTrigger {
	var out []cartridge.ActionTrigger
	for _, ts := range st.Triggers {
		if ts.Armed() {
			out = append(out, ts.Trigger.(cartridge.ActionTrigger))
		}
	}
	return out
}

// ArmedByID indexes the armed set by trigger id.
func (st SceneState) ArmedByID() map[string]cartridge.ActionTrigger {
	out := make(map[string]cartridge.ActionTrigger)
	for _, a := range st.Armed() {
		out[a.UUID] = a
	}
	return out
}

// Fallback returns the state of the scene's fallback trigger, if any.
func (st SceneState) Fallback() (TriggerState, bool) {
	for _, ts := range st.Triggers {
		if _, ok := ts.Trigger.(cartridge.FallbackTrigger); ok {
			return ts, true
		}
	}
	return TriggerState{}, false
}

// SceneState derives the trigger state of the playthrough's current scene
// from its snapshot and transcript.
func (p *Playthrough) SceneState() (SceneState, error) {
	scene, err := p.Scene()
	if err != nil {
		return SceneState{}, err
	}
	return DeriveSceneState(scene, p.Lines), nil
}
