// Package cartridgetest provides a small, valid story graph for tests.
package cartridgetest

import "github.com/jwebster45206/novel-engine/pkg/cartridge"

const (
	ProjectID = "proj-owl"

	HeroID   = "ch-hero"
	OwlID    = "ch-owl"
	KnightID = "ch-knight"

	WoodsID  = "pl-woods"
	CastleID = "pl-castle"

	ForestID = "sc-forest"
	GateID   = "sc-gate"

	GreetOwlID  = "tr-forest-greet"
	AskPathID   = "tr-forest-path"
	ForestEndID = "tr-forest-fallback"
	KnockID     = "tr-gate-knock"
	GateWaitID  = "tr-gate-wait"
)

// Project returns a fresh, sanitized and valid project:
//
//	forest: hero + owl in the woods
//	  greet (action)
//	  path  (action, depends on greet, goes to gate)
//	  fallback k=3 ends the game
//	gate: hero + knight at the castle
//	  knock (action, ends the game as "Welcomed")
//	  wait  (fallback k=2, stays)
func Project() cartridge.Project {
	return cartridge.Project{
		ID: ProjectID,
		Cartridge: cartridge.Cartridge{
			Characters: []cartridge.Character{
				{UUID: HeroID, Name: "Robin", Description: "A lost traveller."},
				{UUID: OwlID, Name: "Owl", Description: "An old owl.", Sprites: map[string]string{"neutral": "owl.png"}},
				{UUID: KnightID, Name: "Sir Brant", Description: "Keeper of the gate."},
			},
			Places: []cartridge.Place{
				{UUID: WoodsID, Name: "Whispering Woods", Description: "Dark and damp."},
				{UUID: CastleID, Name: "Castle Gate", Description: "Iron and stone."},
			},
			Scenes: []cartridge.Scene{
				{
					UUID:         ForestID,
					Title:        "The Forest",
					PlaceID:      WoodsID,
					CharacterIDs: []string{HeroID, OwlID},
					Script: []cartridge.ScriptLine{
						{Type: cartridge.ScriptNarration, Text: "Branches creak overhead."},
						{Type: cartridge.ScriptCharacter, Text: "Who goes there?", CharacterID: OwlID},
					},
					Triggers: cartridge.TriggerList{
						cartridge.ActionTrigger{
							TriggerEffect: cartridge.TriggerEffect{UUID: GreetOwlID, Narrative: "The owl ruffles its feathers, pleased."},
							Condition:     "The player greets the owl politely",
						},
						cartridge.ActionTrigger{
							TriggerEffect:       cartridge.TriggerEffect{UUID: AskPathID, Narrative: "The owl points a wing toward a narrow path.", GoToSceneID: GateID},
							Condition:           "The player asks the owl for directions",
							DependsOnTriggerIDs: []string{GreetOwlID},
						},
						cartridge.FallbackTrigger{
							TriggerEffect: cartridge.TriggerEffect{UUID: ForestEndID, Narrative: "Night swallows the forest.", GoToSceneID: cartridge.EndSceneID, EndingName: "Lost Forever"},
							K:             3,
						},
					},
				},
				{
					UUID:         GateID,
					Title:        "The Gate",
					PlaceID:      CastleID,
					CharacterIDs: []string{HeroID, KnightID},
					Script: []cartridge.ScriptLine{
						{Type: cartridge.ScriptNarration, Text: "A portcullis blocks the way."},
					},
					Triggers: cartridge.TriggerList{
						cartridge.ActionTrigger{
							TriggerEffect: cartridge.TriggerEffect{UUID: KnockID, Narrative: "The gate groans open.", GoToSceneID: cartridge.EndSceneID, EndingName: "Welcomed"},
							Condition:     "The player knocks on the gate",
						},
						cartridge.FallbackTrigger{
							TriggerEffect: cartridge.TriggerEffect{UUID: GateWaitID, Narrative: "The knight eyes you with suspicion."},
							K:             2,
						},
					},
				},
			},
			Style: cartridge.Style{Prompt: "Whimsical fairy tale, short sentences."},
		},
		Settings: cartridge.Settings{PlayerID: HeroID, StartingSceneID: ForestID},
	}
}
