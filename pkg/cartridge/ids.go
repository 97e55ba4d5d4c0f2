package cartridge

import (
	"fmt"
	"strings"
)

// TriggerID is the structured form of a trigger uuid. Its canonical string
// is "tr-{SceneBase}-{Suffix}"; SceneBase may contain dashes, Suffix may not.
type TriggerID struct {
	SceneBase string
	Suffix    string
}

// String serializes the id into its canonical form.
func (id TriggerID) String() string {
	return TriggerPrefix + id.SceneBase + "-" + id.Suffix
}

// ParseTriggerID parses a canonical trigger uuid.
func ParseTriggerID(s string) (TriggerID, error) {
	if !strings.HasPrefix(s, TriggerPrefix) {
		return TriggerID{}, fmt.Errorf("trigger id %q: missing %q prefix", s, TriggerPrefix)
	}
	rest := strings.TrimPrefix(s, TriggerPrefix)
	cut := strings.LastIndex(rest, "-")
	if cut <= 0 || cut == len(rest)-1 {
		return TriggerID{}, fmt.Errorf("trigger id %q: expected tr-{scene}-{suffix}", s)
	}
	return TriggerID{SceneBase: rest[:cut], Suffix: rest[cut+1:]}, nil
}

// SceneBase strips the scene prefix from a scene uuid.
func SceneBase(sceneID string) string {
	return strings.TrimPrefix(sceneID, ScenePrefix)
}

// NormalizeTriggerID rewrites any trigger uuid, including the legacy
// "trigger-N" and "trigger-fallback" forms and "tr-" ids carrying a stale
// scene id, into the canonical form for the given scene. The suffix is
// whatever followed the last dash. It returns false when no usable suffix
// remains.
func NormalizeTriggerID(raw, sceneID string) (TriggerID, bool) {
	suffix := raw
	if cut := strings.LastIndex(raw, "-"); cut >= 0 {
		suffix = raw[cut+1:]
	}
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		return TriggerID{}, false
	}
	return TriggerID{SceneBase: SceneBase(sceneID), Suffix: suffix}, true
}
