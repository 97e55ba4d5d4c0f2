package cartridge

// EndSceneID is the reserved scene id meaning "end the playthrough here".
// It never collides with a real scene uuid because those carry ScenePrefix.
const EndSceneID = "END_SCENE"

// DefaultEndingName is used when an ending trigger has no ending name.
const DefaultEndingName = "Default Ending"

const (
	ScenePrefix     = "sc-"
	CharacterPrefix = "ch-"
	PlacePrefix     = "pl-"
	TriggerPrefix   = "tr-"
)

// Script line types mirror the transcript line types in pkg/chat.
const (
	ScriptNarration = "narration"
	ScriptCharacter = "character"
	ScriptPlayer    = "player"
)

// Cartridge is the authored story graph.
type Cartridge struct {
	Scenes     []Scene     `json:"scenes"`
	Characters []Character `json:"characters"`
	Places     []Place     `json:"places"`
	Style      Style       `json:"style"`
}

// Style carries the global prompt applied to every generation request.
type Style struct {
	Prompt string `json:"prompt"`
}

// Settings are project-level play settings stored alongside the cartridge.
type Settings struct {
	PlayerID        string `json:"playerId"`        // Character uuid the player controls
	StartingSceneID string `json:"startingSceneId"` // Scene uuid a new playthrough opens in
}

// Project is a cartridge plus its settings. Playthroughs freeze a copy of
// this as their snapshot.
type Project struct {
	ID        string    `json:"id"`
	Cartridge Cartridge `json:"cartridge"`
	Settings  Settings  `json:"settings"`
}

// Scene is a node of the story graph.
type Scene struct {
	UUID         string       `json:"uuid"`
	Title        string       `json:"title"`
	PlaceID      string       `json:"placeId,omitempty"`  // Must resolve into Places or be empty
	ImageURL     string       `json:"imageUrl,omitempty"` // Background shown while the scene is active
	Script       []ScriptLine `json:"script"`             // Authored opening lines
	CharacterIDs []string     `json:"characterIds"`       // Roster; must resolve into Characters
	Triggers     TriggerList  `json:"triggers"`
}

// ScriptLine is an authored opening line of a scene.
type ScriptLine struct {
	Type        string `json:"type"` // narration | character | player
	Text        string `json:"text"`
	CharacterID string `json:"characterId,omitempty"`
}

// Character is referenced by id from scenes, never embedded.
type Character struct {
	UUID        string            `json:"uuid"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Sprites     map[string]string `json:"sprites,omitempty"` // Expression -> image url
}

// Place is referenced by id from scenes, never embedded.
type Place struct {
	UUID        string            `json:"uuid"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Sprites     map[string]string `json:"sprites,omitempty"`
}

// SceneByID returns the scene with the given uuid.
func (c *Cartridge) SceneByID(id string) (*Scene, bool) {
	for i := range c.Scenes {
		if c.Scenes[i].UUID == id {
			return &c.Scenes[i], true
		}
	}
	return nil, false
}

// CharacterByID returns the character with the given uuid.
func (c *Cartridge) CharacterByID(id string) (*Character, bool) {
	for i := range c.Characters {
		if c.Characters[i].UUID == id {
			return &c.Characters[i], true
		}
	}
	return nil, false
}

// PlaceByID returns the place with the given uuid.
func (c *Cartridge) PlaceByID(id string) (*Place, bool) {
	for i := range c.Places {
		if c.Places[i].UUID == id {
			return &c.Places[i], true
		}
	}
	return nil, false
}

// TriggerByID searches every scene for the trigger with the given uuid and
// returns it along with its owning scene.
func (c *Cartridge) TriggerByID(id string) (Trigger, *Scene, bool) {
	for i := range c.Scenes {
		for _, t := range c.Scenes[i].Triggers {
			if t.ID() == id {
				return t, &c.Scenes[i], true
			}
		}
	}
	return nil, nil, false
}

// DisplayTitle is the scene title, or a stable placeholder when untitled.
func (s *Scene) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return "Untitled Scene"
}

// Fallback returns the scene's fallback trigger, if any.
func (s *Scene) Fallback() (FallbackTrigger, bool) {
	for _, t := range s.Triggers {
		if f, ok := t.(FallbackTrigger); ok {
			return f, true
		}
	}
	return FallbackTrigger{}, false
}

// Clone returns a deep copy of the project. Snapshots must never share
// slices or maps with the live graph.
func (p *Project) Clone() Project {
	return Project{
		ID:        p.ID,
		Cartridge: p.Cartridge.Clone(),
		Settings:  p.Settings,
	}
}

// Clone returns a deep copy of the cartridge.
func (c *Cartridge) Clone() Cartridge {
	out := Cartridge{Style: c.Style}
	if c.Scenes != nil {
		out.Scenes = make([]Scene, len(c.Scenes))
		for i := range c.Scenes {
			out.Scenes[i] = c.Scenes[i].clone()
		}
	}
	if c.Characters != nil {
		out.Characters = make([]Character, len(c.Characters))
		for i, ch := range c.Characters {
			ch.Sprites = cloneMap(ch.Sprites)
			out.Characters[i] = ch
		}
	}
	if c.Places != nil {
		out.Places = make([]Place, len(c.Places))
		for i, pl := range c.Places {
			pl.Sprites = cloneMap(pl.Sprites)
			out.Places[i] = pl
		}
	}
	return out
}

func (s Scene) clone() Scene {
	out := s
	out.Script = cloneSlice(s.Script)
	out.CharacterIDs = cloneSlice(s.CharacterIDs)
	if s.Triggers != nil {
		out.Triggers = make(TriggerList, len(s.Triggers))
		for i, t := range s.Triggers {
			out.Triggers[i] = cloneTrigger(t)
		}
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
