package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/cartridge/cartridgetest"
	"github.com/jwebster45206/novel-engine/pkg/chat"
)

func newTestPlaythrough(t *testing.T) *Playthrough {
	t.Helper()
	p := cartridgetest.Project()
	pt, err := NewPlaythrough(&p, "user-1")
	require.NoError(t, err)
	return pt
}

func TestNewPlaythrough(t *testing.T) {
	pt := newTestPlaythrough(t)

	assert.Equal(t, cartridgetest.ProjectID, pt.ProjectID)
	assert.Equal(t, "user-1", pt.UserID)
	assert.Equal(t, cartridgetest.ForestID, pt.CurrentSceneID)
	assert.Equal(t, VisibilityPrivate, pt.Visibility)
	require.Len(t, pt.Lines, 3)
	assert.Equal(t, 2, pt.CurrentLineIdx)

	assert.True(t, pt.Lines[0].IsSceneBoundary())
	assert.Equal(t, cartridgetest.ForestID, pt.Lines[0].Metadata.SceneID)
	assert.Empty(t, pt.Lines[0].Text)

	assert.Equal(t, chat.LineNarration, pt.Lines[1].Type)
	assert.Equal(t, "Branches creak overhead.", pt.Lines[1].Text)

	assert.Equal(t, chat.LineCharacter, pt.Lines[2].Type)
	assert.Equal(t, cartridgetest.OwlID, pt.Lines[2].CharacterID)
	assert.Equal(t, "Owl", pt.Lines[2].CharacterName)
}

func TestNewPlaythrough_SnapshotIsFrozen(t *testing.T) {
	p := cartridgetest.Project()
	pt, err := NewPlaythrough(&p, "user-1")
	require.NoError(t, err)

	p.Cartridge.Scenes[0].Title = "Edited"
	p.Cartridge.Characters[1].Sprites["neutral"] = "edited.png"

	assert.Equal(t, "The Forest", pt.ProjectSnapshot.Cartridge.Scenes[0].Title)
	assert.Equal(t, "owl.png", pt.ProjectSnapshot.Cartridge.Characters[1].Sprites["neutral"])
}

func TestNewPlaythrough_MissingStartingScene(t *testing.T) {
	p := cartridgetest.Project()
	p.Settings.StartingSceneID = "sc-nowhere"

	_, err := NewPlaythrough(&p, "user-1")
	assert.ErrorContains(t, err, "sc-nowhere")
}

func TestPlaythrough_Rewind(t *testing.T) {
	pt := newTestPlaythrough(t)

	require.NoError(t, pt.Rewind(0))
	assert.Equal(t, 0, pt.CurrentLineIdx)
	assert.False(t, pt.AtTail())
	assert.Len(t, pt.Lines, 3, "rewind never drops lines")

	assert.ErrorIs(t, pt.Rewind(3), ErrLineOutOfRange)
	assert.ErrorIs(t, pt.Rewind(-1), ErrLineOutOfRange)
}

func TestPlaythrough_Ended(t *testing.T) {
	pt := newTestPlaythrough(t)
	assert.False(t, pt.Ended())

	pt.Append(chat.DisplayLine{Type: chat.LineNarration, Text: "The end.", Metadata: &chat.Metadata{ShouldEnd: true}})
	assert.True(t, pt.Ended())

	require.NoError(t, pt.Rewind(2))
	assert.False(t, pt.Ended(), "rewinding before the ending re-opens play")
}

func TestPlaythrough_BranchAt(t *testing.T) {
	pt := newTestPlaythrough(t)
	pt.Version = 4
	pt.Append(
		chat.DisplayLine{Type: chat.LinePlayer, Text: "Hello."},
		chat.DisplayLine{Type: chat.LineNarration, Metadata: &chat.Metadata{SceneID: cartridgetest.GateID}},
	)
	require.Equal(t, cartridgetest.GateID, pt.CurrentSceneID)

	branch, err := pt.BranchAt(3)
	require.NoError(t, err)

	assert.NotEqual(t, pt.ID, branch.ID)
	assert.Len(t, branch.Lines, 4)
	assert.Equal(t, 3, branch.CurrentLineIdx)
	assert.Equal(t, cartridgetest.ForestID, branch.CurrentSceneID)
	assert.Zero(t, branch.Version)
	assert.Len(t, pt.Lines, 5, "source is untouched")

	branch.ProjectSnapshot.Cartridge.Scenes[0].Title = "Changed"
	assert.Equal(t, "The Forest", pt.ProjectSnapshot.Cartridge.Scenes[0].Title)

	_, err = pt.BranchAt(5)
	assert.ErrorIs(t, err, ErrLineOutOfRange)
}

func TestPlaythrough_History(t *testing.T) {
	pt := newTestPlaythrough(t)
	for i := 0; i < 5; i++ {
		pt.Append(chat.DisplayLine{Type: chat.LinePlayer, Text: "again"})
	}

	assert.Len(t, pt.History(0), 8)
	assert.Len(t, pt.History(4), 4)
	assert.Len(t, pt.History(100), 8)

	require.NoError(t, pt.Rewind(1))
	hist := pt.History(10)
	require.Len(t, hist, 2)
	assert.Equal(t, "Branches creak overhead.", hist[1].Text)
}

func TestPlaythrough_VisitedAndConsumed(t *testing.T) {
	pt := newTestPlaythrough(t)
	pt.Append(
		chat.DisplayLine{Type: chat.LineNarration, Text: "ok", Metadata: &chat.Metadata{ActivatedTriggerIDs: []string{cartridgetest.AskPathID}}},
		chat.DisplayLine{Type: chat.LineNarration, Metadata: &chat.Metadata{SceneID: cartridgetest.GateID}},
	)

	assert.Equal(t, map[string]bool{cartridgetest.ForestID: true, cartridgetest.GateID: true}, pt.VisitedSceneIDs())
	assert.Equal(t, map[string]bool{cartridgetest.AskPathID: true}, pt.ConsumedTriggerIDs())
}

func TestEnterScene_UnknownSpeakerKeepsLine(t *testing.T) {
	c := cartridge.Cartridge{}
	scene := &cartridge.Scene{
		UUID: "sc-x",
		Script: []cartridge.ScriptLine{
			{Type: cartridge.ScriptCharacter, Text: "Who?", CharacterID: "ch-ghost"},
			{Type: "aside", Text: "odd"},
		},
	}

	lines := EnterScene(&c, scene)
	require.Len(t, lines, 3)
	assert.Equal(t, chat.LineCharacter, lines[1].Type)
	assert.Empty(t, lines[1].CharacterName)
	assert.Equal(t, chat.LineNarration, lines[2].Type)
}
