package cartridge

import (
	"fmt"
	"strconv"
	"strings"
)

// RepairKind names a class of silent repair made by Sanitize.
type RepairKind string

const (
	RepairDroppedCharacterRef RepairKind = "dropped_character_ref"
	RepairClearedPlace        RepairKind = "cleared_place"
	RepairDroppedTrigger      RepairKind = "dropped_trigger"
	RepairRenamedTrigger      RepairKind = "renamed_trigger"
	RepairRetargetedGoTo      RepairKind = "retargeted_goto"
	RepairDroppedDependency   RepairKind = "dropped_dependency"
	RepairClampedFallback     RepairKind = "clamped_fallback"
)

// Repair describes one change Sanitize made. Repairs are returned rather
// than logged so Sanitize stays pure; write boundaries log them.
type Repair struct {
	Kind      RepairKind `json:"kind"`
	SceneID   string     `json:"sceneId"`
	TriggerID string     `json:"triggerId,omitempty"`
	Detail    string     `json:"detail"`
}

// Sanitize repairs referential integrity of a cartridge. It never removes
// scenes, characters or places; only dangling references and malformed
// trigger identities. The input is not modified. Sanitize is idempotent.
func Sanitize(c Cartridge) (Cartridge, []Repair) {
	out := c.Clone()
	var repairs []Repair

	characterIDs := idSet(out.Characters, func(ch Character) string { return ch.UUID })
	placeIDs := idSet(out.Places, func(p Place) string { return p.UUID })
	sceneIDs := idSet(out.Scenes, func(s Scene) string { return s.UUID })

	for i := range out.Scenes {
		scene := &out.Scenes[i]

		if scene.CharacterIDs != nil {
			kept := make([]string, 0, len(scene.CharacterIDs))
			for _, id := range scene.CharacterIDs {
				if !characterIDs[id] {
					repairs = append(repairs, Repair{
						Kind:    RepairDroppedCharacterRef,
						SceneID: scene.UUID,
						Detail:  fmt.Sprintf("character %q does not exist", id),
					})
					continue
				}
				kept = append(kept, id)
			}
			scene.CharacterIDs = kept
		}

		if scene.PlaceID != "" && !placeIDs[scene.PlaceID] {
			repairs = append(repairs, Repair{
				Kind:    RepairClearedPlace,
				SceneID: scene.UUID,
				Detail:  fmt.Sprintf("place %q does not exist", scene.PlaceID),
			})
			scene.PlaceID = ""
		}

		var triggerRepairs []Repair
		scene.Triggers, triggerRepairs = sanitizeTriggers(scene, sceneIDs)
		repairs = append(repairs, triggerRepairs...)
	}

	return out, repairs
}

func sanitizeTriggers(scene *Scene, sceneIDs map[string]bool) (TriggerList, []Repair) {
	if scene.Triggers == nil {
		return nil, nil
	}

	var repairs []Repair
	renames := make(map[string]string)
	used := make(map[string]bool)
	hasFallback := false
	base := SceneBase(scene.UUID)

	kept := make(TriggerList, 0, len(scene.Triggers))
	for i, t := range scene.Triggers {
		oldID := t.ID()
		if strings.TrimSpace(oldID) == "" {
			repairs = append(repairs, Repair{
				Kind:    RepairDroppedTrigger,
				SceneID: scene.UUID,
				Detail:  fmt.Sprintf("trigger at index %d has no uuid", i),
			})
			continue
		}

		if _, ok := t.(FallbackTrigger); ok {
			if hasFallback {
				repairs = append(repairs, Repair{
					Kind:      RepairDroppedTrigger,
					SceneID:   scene.UUID,
					TriggerID: oldID,
					Detail:    "scene already has a fallback trigger",
				})
				continue
			}
			hasFallback = true
		}

		tid, ok := NormalizeTriggerID(oldID, scene.UUID)
		if !ok {
			tid = TriggerID{SceneBase: base, Suffix: strconv.Itoa(i + 1)}
		}
		newID := tid.String()
		for n := 2; used[newID]; n++ {
			newID = TriggerID{SceneBase: base, Suffix: tid.Suffix + "_" + strconv.Itoa(n)}.String()
		}
		used[newID] = true
		if _, seen := renames[oldID]; !seen {
			renames[oldID] = newID
		}
		if newID != oldID {
			repairs = append(repairs, Repair{
				Kind:      RepairRenamedTrigger,
				SceneID:   scene.UUID,
				TriggerID: newID,
				Detail:    fmt.Sprintf("renamed from %q", oldID),
			})
		}

		t = t.withID(newID)
		switch v := t.(type) {
		case ActionTrigger:
			if retarget(&v.TriggerEffect, sceneIDs) {
				repairs = append(repairs, retargetRepair(scene.UUID, newID))
			}
			t = v
		case FallbackTrigger:
			if retarget(&v.TriggerEffect, sceneIDs) {
				repairs = append(repairs, retargetRepair(scene.UUID, newID))
			}
			if k := clampK(v.K); k != v.K {
				repairs = append(repairs, Repair{
					Kind:      RepairClampedFallback,
					SceneID:   scene.UUID,
					TriggerID: newID,
					Detail:    fmt.Sprintf("k %d clamped to %d", v.K, k),
				})
				v.K = k
			}
			t = v
		}
		kept = append(kept, t)
	}

	// Dependencies are resolved after renaming so they follow their targets.
	actionIDs := make(map[string]bool)
	for _, t := range kept {
		if t.Kind() == TriggerKindAction {
			actionIDs[t.ID()] = true
		}
	}
	for i, t := range kept {
		a, ok := t.(ActionTrigger)
		if !ok || a.DependsOnTriggerIDs == nil {
			continue
		}
		deps := make([]string, 0, len(a.DependsOnTriggerIDs))
		seen := make(map[string]bool)
		for _, dep := range a.DependsOnTriggerIDs {
			target := dep
			if renamed, ok := renames[dep]; ok {
				target = renamed
			}
			if target == a.UUID || !actionIDs[target] || seen[target] {
				repairs = append(repairs, Repair{
					Kind:      RepairDroppedDependency,
					SceneID:   scene.UUID,
					TriggerID: a.UUID,
					Detail:    fmt.Sprintf("dependency %q is not another action trigger in this scene", dep),
				})
				continue
			}
			seen[target] = true
			deps = append(deps, target)
		}
		a.DependsOnTriggerIDs = deps
		kept[i] = a
	}

	return kept, repairs
}

// retarget coerces a dangling goToSceneId to the end sentinel.
func retarget(e *TriggerEffect, sceneIDs map[string]bool) bool {
	if e.GoToSceneID == "" || e.GoToSceneID == EndSceneID || sceneIDs[e.GoToSceneID] {
		return false
	}
	e.GoToSceneID = EndSceneID
	return true
}

func retargetRepair(sceneID, triggerID string) Repair {
	return Repair{
		Kind:      RepairRetargetedGoTo,
		SceneID:   sceneID,
		TriggerID: triggerID,
		Detail:    "goToSceneId does not exist; trigger now ends the game",
	}
}

func clampK(k int) int {
	if k < MinFallbackTurns {
		return MinFallbackTurns
	}
	if k > MaxFallbackTurns {
		return MaxFallbackTurns
	}
	return k
}

func idSet[T any](items []T, id func(T) string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[id(item)] = true
	}
	return set
}
