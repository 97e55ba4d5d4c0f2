package chat

const (
	ChatRoleUser  = "user"      // Player
	ChatRoleAgent = "assistant" // Narration and characters
)

// LineType classifies a transcript line.
type LineType string

const (
	LineNarration LineType = "narration"
	LineCharacter LineType = "character"
	LinePlayer    LineType = "player"
	LineHint      LineType = "hint"
)

// LineStatus tracks whether a line is final.
type LineStatus string

const (
	StatusComplete LineStatus = "complete"
	StatusPending  LineStatus = "pending"
)

// XmlLine is the wire form exchanged with the generation backend: bare
// narration interleaved with <ch name="X">...</ch> and <player>...</player>
// spans.
type XmlLine struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

// DisplayLine is one structured transcript line.
type DisplayLine struct {
	Type          LineType  `json:"type"`
	Text          string    `json:"text"`
	CharacterName string    `json:"characterName,omitempty"`
	CharacterID   string    `json:"characterId,omitempty"`
	Metadata      *Metadata `json:"metadata,omitempty"`
}

// Metadata is attached to the last line of a batch.
type Metadata struct {
	SceneID             string     `json:"sceneId,omitempty"` // Set on the first line of each scene visit
	ActivatedTriggerIDs []string   `json:"activatedTriggerIds,omitempty"`
	Status              LineStatus `json:"status,omitempty"`
	ShouldPause         bool       `json:"shouldPause,omitempty"`
	ShouldEnd           bool       `json:"shouldEnd,omitempty"`
	EndingName          string     `json:"endingName,omitempty"`
	EventImageURL       string     `json:"eventImageUrl,omitempty"`
	Scripted            bool       `json:"scripted,omitempty"` // Seeded from the scene script on entry
}

// IsSceneBoundary reports whether the line opens a scene visit.
func (l DisplayLine) IsSceneBoundary() bool {
	return l.Metadata != nil && l.Metadata.SceneID != ""
}

// Ends reports whether the line terminates the playthrough.
func (l DisplayLine) Ends() bool {
	return l.Metadata != nil && l.Metadata.ShouldEnd
}

// IsPlayerTurn reports whether the line is a turn the player took. Player
// lines authored into a scene script are not turns.
func (l DisplayLine) IsPlayerTurn() bool {
	return l.Type == LinePlayer && (l.Metadata == nil || !l.Metadata.Scripted)
}

// ActivatedTriggerIDs returns the trigger ids recorded on the line.
func (l DisplayLine) ActivatedTriggerIDs() []string {
	if l.Metadata == nil {
		return nil
	}
	return l.Metadata.ActivatedTriggerIDs
}

// Clone returns a deep copy of the metadata.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	out := *m
	if m.ActivatedTriggerIDs != nil {
		out.ActivatedTriggerIDs = append([]string(nil), m.ActivatedTriggerIDs...)
	}
	return &out
}

// CloneLines deep-copies a transcript.
func CloneLines(lines []DisplayLine) []DisplayLine {
	if lines == nil {
		return nil
	}
	out := make([]DisplayLine, len(lines))
	for i, l := range lines {
		l.Metadata = l.Metadata.Clone()
		out[i] = l
	}
	return out
}
