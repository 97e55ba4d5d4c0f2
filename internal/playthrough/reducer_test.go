package playthrough

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/cartridge/cartridgetest"
	"github.com/jwebster45206/novel-engine/pkg/chat"
	"github.com/jwebster45206/novel-engine/pkg/state"
)

func newState(t *testing.T) *state.Playthrough {
	t.Helper()
	p := cartridgetest.Project()
	pt, err := state.NewPlaythrough(&p, "user-1")
	require.NoError(t, err)
	return pt
}

func ptr[T any](v T) *T { return &v }

func TestApply_NeedsPlaythrough(t *testing.T) {
	for _, a := range []Action{Progress{}, Settings{}, UpdateSnapshot{}, Duplicate{}} {
		t.Run(a.Name(), func(t *testing.T) {
			_, err := Apply(nil, a)
			assert.ErrorIs(t, err, ErrNoPlaythrough)
		})
	}
}

func TestApply_CreateLoadClear(t *testing.T) {
	pt := newState(t)

	got, err := Apply(nil, Create{Playthrough: pt})
	require.NoError(t, err)
	assert.Equal(t, pt.ID, got.ID)
	assert.NotSame(t, pt, got)

	got, err = Apply(nil, Load{Playthrough: pt})
	require.NoError(t, err)
	assert.Equal(t, pt.Lines, got.Lines)

	got, err = Apply(pt, Clear{})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = Apply(nil, Create{})
	assert.Error(t, err)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	pt := newState(t)
	before := pt.Clone()

	actions := []Action{
		Progress{Append: []chat.DisplayLine{{Type: chat.LinePlayer, Text: "Hi"}}},
		Progress{CurrentLineIdx: ptr(0)},
		Settings{Liked: ptr(true), Visibility: ptr(state.VisibilityPublic)},
		UpdateSnapshot{Update: func(p *cartridge.Project) { p.Cartridge.Style.Prompt = "changed" }},
		Duplicate{CutAt: 1},
	}
	for _, a := range actions {
		_, err := Apply(pt, a)
		require.NoError(t, err, a.Name())
	}
	assert.Equal(t, before, pt)
}

func TestApply_Progress(t *testing.T) {
	pt := newState(t)

	got, err := Apply(pt, Progress{Append: []chat.DisplayLine{
		{Type: chat.LinePlayer, Text: "Hi"},
		{Type: chat.LineNarration, Metadata: &chat.Metadata{SceneID: cartridgetest.GateID}},
	}})
	require.NoError(t, err)
	assert.Len(t, got.Lines, 5)
	assert.Equal(t, 4, got.CurrentLineIdx)
	assert.Equal(t, cartridgetest.GateID, got.CurrentSceneID)

	got, err = Apply(got, Progress{CurrentLineIdx: ptr(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentLineIdx)
	assert.Len(t, got.Lines, 5)

	_, err = Apply(got, Progress{CurrentLineIdx: ptr(9)})
	assert.ErrorIs(t, err, state.ErrLineOutOfRange)
}

func TestApply_Settings(t *testing.T) {
	pt := newState(t)

	got, err := Apply(pt, Settings{Liked: ptr(true)})
	require.NoError(t, err)
	assert.True(t, got.Liked)
	assert.Equal(t, state.VisibilityPrivate, got.Visibility)

	_, err = Apply(pt, Settings{Visibility: ptr(state.Visibility("everyone"))})
	assert.ErrorContains(t, err, "everyone")
}

func TestApply_Duplicate(t *testing.T) {
	pt := newState(t)
	pt.Liked = true

	branch, err := Apply(pt, Duplicate{CutAt: 1})
	require.NoError(t, err)
	assert.NotEqual(t, pt.ID, branch.ID)
	assert.Len(t, branch.Lines, 2)

	live := cartridgetest.Project()
	live.Cartridge.Scenes[0].Script = live.Cartridge.Scenes[0].Script[:1]
	restart, err := Apply(pt, Duplicate{Project: &live})
	require.NoError(t, err)
	assert.NotEqual(t, pt.ID, restart.ID)
	assert.Len(t, restart.Lines, 2, "opening comes from the new project")
	assert.True(t, restart.Liked)
	assert.Equal(t, pt.UserID, restart.UserID)
}
