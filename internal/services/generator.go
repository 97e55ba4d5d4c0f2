package services

import (
	"context"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/chat"
)

// Generator is the external narrative-generation backend.
type Generator interface {
	// Evaluate judges which of the offered action triggers fired this turn.
	Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResponse, error)

	// Advance produces the next lines of the story.
	Advance(ctx context.Context, req AdvanceRequest) (*AdvanceResponse, error)

	// Hint suggests what the player might try next.
	Hint(ctx context.Context, req HintRequest) (*HintResponse, error)
}

type EvaluateRequest struct {
	PossibleTriggers map[string]cartridge.ActionTrigger `json:"possibleTriggers"` // Armed set only
	Lines            []chat.XmlLine                     `json:"lines"`
}

type EvaluateResponse struct {
	ActivatedTriggerIDs []string `json:"activatedTriggerIds"`
}

type AdvanceRequest struct {
	Project  cartridge.Project     `json:"project"` // The playthrough's snapshot
	SceneID  string                `json:"sceneId"`
	Lines    []chat.XmlLine        `json:"lines"`
	Triggers cartridge.TriggerList `json:"triggers"`
}

type AdvanceResponse struct {
	Lines []chat.XmlLine `json:"lines"`
}

type HintRequest struct {
	Lines               []chat.XmlLine `json:"lines"`
	TriggerConditions   []string       `json:"triggerConditions"`
	Style               string         `json:"style"`
	PlayerCharacterName string         `json:"playerCharacterName"`
}

type HintResponse struct {
	Lines []chat.XmlLine `json:"lines"`
}
