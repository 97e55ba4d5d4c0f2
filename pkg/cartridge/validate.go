package cartridge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValidationError describes the first structural violation found.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate strictly verifies a cartridge and its settings and returns the
// first violation, or nil. It never repairs; see Sanitize for that.
func Validate(c *Cartridge, settings *Settings) error {
	if c == nil {
		return invalid("cartridge", "is required")
	}

	characterIDs, err := uniqueIDs("characters", c.Characters, func(ch Character) string { return ch.UUID })
	if err != nil {
		return err
	}
	placeIDs, err := uniqueIDs("places", c.Places, func(p Place) string { return p.UUID })
	if err != nil {
		return err
	}
	sceneIDs, err := uniqueIDs("scenes", c.Scenes, func(s Scene) string { return s.UUID })
	if err != nil {
		return err
	}
	if len(c.Characters) == 0 {
		return invalid("characters", "at least one character is required")
	}

	triggerIDs := make(map[string]bool)
	for _, scene := range c.Scenes {
		field := fmt.Sprintf("scenes[%s]", scene.UUID)

		for _, id := range scene.CharacterIDs {
			if !characterIDs[id] {
				return invalid(field+".characterIds", "character %q does not exist", id)
			}
		}
		if scene.PlaceID != "" && !placeIDs[scene.PlaceID] {
			return invalid(field+".placeId", "place %q does not exist", scene.PlaceID)
		}
		for i, line := range scene.Script {
			if line.Type == ScriptCharacter && line.CharacterID != "" && !characterIDs[line.CharacterID] {
				return invalid(fmt.Sprintf("%s.script[%d].characterId", field, i), "character %q does not exist", line.CharacterID)
			}
		}

		actionIDs := make(map[string]bool)
		for _, t := range scene.Triggers {
			if a, ok := t.(ActionTrigger); ok {
				actionIDs[a.UUID] = true
			}
		}

		fallbacks := 0
		for _, t := range scene.Triggers {
			id := t.ID()
			tfield := fmt.Sprintf("%s.triggers[%s]", field, id)
			if id == "" {
				return invalid(field+".triggers", "trigger uuid is required")
			}
			if triggerIDs[id] {
				return invalid(tfield, "duplicate trigger uuid")
			}
			triggerIDs[id] = true

			tid, err := ParseTriggerID(id)
			if err != nil {
				return invalid(tfield, "%v", err)
			}
			if tid.SceneBase != SceneBase(scene.UUID) {
				return invalid(tfield, "trigger belongs to scene base %q, not %q", tid.SceneBase, SceneBase(scene.UUID))
			}

			if goTo := t.Effect().GoToSceneID; goTo != "" && goTo != EndSceneID && !sceneIDs[goTo] {
				return invalid(tfield+".goToSceneId", "scene %q does not exist", goTo)
			}

			switch v := t.(type) {
			case ActionTrigger:
				for _, dep := range v.DependsOnTriggerIDs {
					if dep == v.UUID {
						return invalid(tfield+".dependsOnTriggerIds", "trigger cannot depend on itself")
					}
					if !actionIDs[dep] {
						return invalid(tfield+".dependsOnTriggerIds", "%q is not an action trigger in this scene", dep)
					}
				}
			case FallbackTrigger:
				fallbacks++
				if fallbacks > 1 {
					return invalid(tfield, "scene has more than one fallback trigger")
				}
				if v.K < MinFallbackTurns || v.K > MaxFallbackTurns {
					return invalid(tfield+".k", "must be between %d and %d, got %d", MinFallbackTurns, MaxFallbackTurns, v.K)
				}
			default:
				return invalid(tfield, "unknown trigger type %T", t)
			}
		}
	}

	if settings == nil {
		return invalid("settings", "is required")
	}
	if !characterIDs[settings.PlayerID] {
		return invalid("settings.playerId", "character %q does not exist", settings.PlayerID)
	}
	if !sceneIDs[settings.StartingSceneID] {
		return invalid("settings.startingSceneId", "scene %q does not exist", settings.StartingSceneID)
	}

	return nil
}

// ValidateProject validates a project's cartridge against its settings.
func ValidateProject(p *Project) error {
	if p == nil {
		return invalid("project", "is required")
	}
	return Validate(&p.Cartridge, &p.Settings)
}

// ValidateJSON checks that every collection in a serialized project is a
// JSON array, then decodes and validates it.
func ValidateJSON(data []byte) (*Project, error) {
	var raw struct {
		Cartridge map[string]json.RawMessage `json:"cartridge"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, invalid("project", "invalid JSON: %v", err)
	}
	if raw.Cartridge == nil {
		return nil, invalid("cartridge", "is required")
	}

	for _, key := range []string{"scenes", "characters", "places"} {
		if !isArray(raw.Cartridge[key]) {
			return nil, invalid(key, "must be an array")
		}
	}

	var scenes []map[string]json.RawMessage
	if err := json.Unmarshal(raw.Cartridge["scenes"], &scenes); err != nil {
		return nil, invalid("scenes", "invalid scene: %v", err)
	}
	for i, scene := range scenes {
		for _, key := range []string{"characterIds", "triggers"} {
			if !isArray(scene[key]) {
				return nil, invalid(fmt.Sprintf("scenes[%d].%s", i, key), "must be an array")
			}
		}
		if script, ok := scene["script"]; ok && !isArray(script) {
			return nil, invalid(fmt.Sprintf("scenes[%d].script", i), "must be an array")
		}
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, invalid("project", "%v", err)
	}
	if err := ValidateProject(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func uniqueIDs[T any](field string, items []T, id func(T) string) (map[string]bool, error) {
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		v := id(item)
		if v == "" {
			return nil, invalid(fmt.Sprintf("%s[%d].uuid", field, i), "uuid is required")
		}
		if seen[v] {
			return nil, invalid(fmt.Sprintf("%s[%s]", field, v), "duplicate uuid")
		}
		seen[v] = true
	}
	return seen, nil
}
