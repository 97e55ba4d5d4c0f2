// Package staleness decides whether a recorded playthrough is still
// compatible with the live (possibly edited) story graph.
package staleness

import (
	"bytes"
	"encoding/json"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/state"
)

// sceneView is the visible projection of a scene: what a player sees when
// the scene opens.
type sceneView struct {
	UUID       string                 `json:"uuid"`
	Title      string                 `json:"title,omitempty"`
	PlaceID    string                 `json:"placeId,omitempty"`
	ImageURL   string                 `json:"imageUrl,omitempty"`
	Script     []cartridge.ScriptLine `json:"script,omitempty"`
	Characters []cartridge.Character  `json:"characters,omitempty"`
}

type graphView struct {
	Scenes      []sceneView `json:"scenes,omitempty"`
	StylePrompt string      `json:"stylePrompt,omitempty"`
}

// IsGameOutOfDate compares the visible projection of the whole snapshot
// with the live graph. Any visible difference counts, reached or not.
func IsGameOutOfDate(live *cartridge.Cartridge, pt *state.Playthrough) bool {
	return !equal(project(&pt.ProjectSnapshot.Cartridge), project(live))
}

// IsPlaythroughOutdatedForEdit reports whether an edit touches content the
// playthrough has already reached: a consumed trigger, or a character or
// place of a visited scene. Edits elsewhere are ignored.
func IsPlaythroughOutdatedForEdit(live *cartridge.Cartridge, pt *state.Playthrough) bool {
	snap := &pt.ProjectSnapshot.Cartridge

	for id := range pt.ConsumedTriggerIDs() {
		before, _, inSnap := snap.TriggerByID(id)
		after, _, inLive := live.TriggerByID(id)
		if inSnap != inLive || (inSnap && !equal(before, after)) {
			return true
		}
	}

	characters := make(map[string]bool)
	places := make(map[string]bool)
	for sceneID := range pt.VisitedSceneIDs() {
		for _, c := range []*cartridge.Cartridge{snap, live} {
			scene, ok := c.SceneByID(sceneID)
			if !ok {
				continue
			}
			for _, id := range scene.CharacterIDs {
				characters[id] = true
			}
			if scene.PlaceID != "" {
				places[scene.PlaceID] = true
			}
		}
	}

	for id := range characters {
		before, inSnap := snap.CharacterByID(id)
		after, inLive := live.CharacterByID(id)
		if inSnap != inLive || (inSnap && !equal(before, after)) {
			return true
		}
	}
	for id := range places {
		before, inSnap := snap.PlaceByID(id)
		after, inLive := live.PlaceByID(id)
		if inSnap != inLive || (inSnap && !equal(before, after)) {
			return true
		}
	}
	return false
}

func project(c *cartridge.Cartridge) graphView {
	v := graphView{StylePrompt: c.Style.Prompt}
	for i := range c.Scenes {
		s := &c.Scenes[i]
		sv := sceneView{
			UUID:     s.UUID,
			Title:    s.Title,
			PlaceID:  s.PlaceID,
			ImageURL: s.ImageURL,
			Script:   s.Script,
		}
		for _, id := range s.CharacterIDs {
			if ch, ok := c.CharacterByID(id); ok {
				sv.Characters = append(sv.Characters, *ch)
			}
		}
		v.Scenes = append(v.Scenes, sv)
	}
	return v
}

// equal compares by canonical JSON, so nil and empty collections match and
// map ordering is irrelevant.
func equal(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
