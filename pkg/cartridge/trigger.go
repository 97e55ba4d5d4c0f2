package cartridge

import (
	"encoding/json"
	"fmt"
)

// TriggerKind is the JSON discriminator of a trigger.
type TriggerKind string

const (
	TriggerKindAction   TriggerKind = "action"
	TriggerKindFallback TriggerKind = "fallback"
)

const (
	MinFallbackTurns = 1
	MaxFallbackTurns = 10
)

// Trigger is an authored rule scoped to exactly one scene. The concrete
// type is either ActionTrigger or FallbackTrigger; consumers switch on the
// type rather than probing fields.
type Trigger interface {
	ID() string
	Kind() TriggerKind
	Effect() TriggerEffect

	withID(id string) Trigger
}

// TriggerEffect holds the fields shared by every trigger kind: what is
// narrated when it fires and where the story goes next.
type TriggerEffect struct {
	UUID          string `json:"uuid"`
	Narrative     string `json:"narrative"`
	GoToSceneID   string `json:"goToSceneId,omitempty"` // Scene uuid, EndSceneID, or empty to stay
	EndingName    string `json:"endingName,omitempty"`
	EventImageURL string `json:"eventImageUrl,omitempty"`
}

// EndsGame reports whether firing this effect terminates the playthrough.
func (e TriggerEffect) EndsGame() bool {
	return e.GoToSceneID == EndSceneID
}

// Ending returns the ending name, defaulted when unset.
func (e TriggerEffect) Ending() string {
	if e.EndingName == "" {
		return DefaultEndingName
	}
	return e.EndingName
}

// ActionTrigger fires when the generation backend judges its condition true.
type ActionTrigger struct {
	TriggerEffect
	Condition           string   `json:"condition"`
	DependsOnTriggerIDs []string `json:"dependsOnTriggerIds,omitempty"` // Action triggers in the same scene
}

// FallbackTrigger fires automatically after K player turns in the scene.
type FallbackTrigger struct {
	TriggerEffect
	K int `json:"k"`
}

func (t ActionTrigger) ID() string              { return t.UUID }
func (t ActionTrigger) Kind() TriggerKind       { return TriggerKindAction }
func (t ActionTrigger) Effect() TriggerEffect   { return t.TriggerEffect }
func (t FallbackTrigger) ID() string            { return t.UUID }
func (t FallbackTrigger) Kind() TriggerKind     { return TriggerKindFallback }
func (t FallbackTrigger) Effect() TriggerEffect { return t.TriggerEffect }

func (t ActionTrigger) withID(id string) Trigger {
	t.UUID = id
	return t
}

func (t FallbackTrigger) withID(id string) Trigger {
	t.UUID = id
	return t
}

func (t ActionTrigger) MarshalJSON() ([]byte, error) {
	type alias ActionTrigger
	return json.Marshal(struct {
		Type TriggerKind `json:"type"`
		alias
	}{TriggerKindAction, alias(t)})
}

func (t FallbackTrigger) MarshalJSON() ([]byte, error) {
	type alias FallbackTrigger
	return json.Marshal(struct {
		Type TriggerKind `json:"type"`
		alias
	}{TriggerKindFallback, alias(t)})
}

// TriggerList is an ordered list of triggers; authored order is significant.
type TriggerList []Trigger

// UnmarshalJSON decodes each element by its "type" discriminator.
// A uuid that is not a JSON string is treated as missing so that
// Sanitize can drop the trigger instead of the whole document failing.
func (tl *TriggerList) UnmarshalJSON(data []byte) error {
	var raws []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	if raws == nil {
		*tl = nil
		return nil
	}

	out := make(TriggerList, 0, len(raws))
	for i, raw := range raws {
		var kind TriggerKind
		if typeRaw, ok := raw["type"]; ok {
			if err := json.Unmarshal(typeRaw, &kind); err != nil {
				return fmt.Errorf("trigger %d: invalid type: %w", i, err)
			}
		}

		if idRaw, ok := raw["uuid"]; ok {
			var id string
			if err := json.Unmarshal(idRaw, &id); err != nil {
				delete(raw, "uuid")
			}
		}
		delete(raw, "type")
		body, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("trigger %d: %w", i, err)
		}

		switch kind {
		case TriggerKindAction:
			var t ActionTrigger
			if err := json.Unmarshal(body, &t); err != nil {
				return fmt.Errorf("trigger %d: %w", i, err)
			}
			out = append(out, t)
		case TriggerKindFallback:
			var t FallbackTrigger
			if err := json.Unmarshal(body, &t); err != nil {
				return fmt.Errorf("trigger %d: %w", i, err)
			}
			out = append(out, t)
		default:
			return fmt.Errorf("trigger %d: unknown trigger type %q", i, kind)
		}
	}

	*tl = out
	return nil
}

// Actions returns the action triggers in authored order.
func (tl TriggerList) Actions() []ActionTrigger {
	var out []ActionTrigger
	for _, t := range tl {
		if a, ok := t.(ActionTrigger); ok {
			out = append(out, a)
		}
	}
	return out
}

func cloneTrigger(t Trigger) Trigger {
	switch v := t.(type) {
	case ActionTrigger:
		v.DependsOnTriggerIDs = cloneSlice(v.DependsOnTriggerIDs)
		return v
	case FallbackTrigger:
		return v
	default:
		panic(fmt.Sprintf("cartridge: unhandled trigger type %T", t))
	}
}
