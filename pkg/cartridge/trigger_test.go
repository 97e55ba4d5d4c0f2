package cartridge_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/cartridge/cartridgetest"
)

func TestTriggerID_StringAndParse(t *testing.T) {
	id := cartridge.TriggerID{SceneBase: "3f9a-b2", Suffix: "owl"}
	assert.Equal(t, "tr-3f9a-b2-owl", id.String())

	parsed, err := cartridge.ParseTriggerID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	for _, bad := range []string{"", "trigger-1", "tr-", "tr-scene", "tr-scene-", "tr--x"} {
		_, err := cartridge.ParseTriggerID(bad)
		assert.Error(t, err, bad)
	}
}

func TestNormalizeTriggerID(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{raw: "trigger-3", want: "tr-forest-3", wantOK: true},
		{raw: "trigger-fallback", want: "tr-forest-fallback", wantOK: true},
		{raw: "tr-oldscene-greet", want: "tr-forest-greet", wantOK: true},
		{raw: "tr-sc-oldscene-greet", want: "tr-forest-greet", wantOK: true},
		{raw: "tr-forest-greet", want: "tr-forest-greet", wantOK: true},
		{raw: "greet", want: "tr-forest-greet", wantOK: true},
		{raw: "tr-forest-", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := cartridge.NormalizeTriggerID(tt.raw, "sc-forest")
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestTriggerList_JSONRoundTrip(t *testing.T) {
	scene := cartridgetest.Project().Cartridge.Scenes[0]

	data, err := json.Marshal(scene.Triggers)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"action"`)
	assert.Contains(t, string(data), `"type":"fallback"`)

	var decoded cartridge.TriggerList
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, scene.Triggers, decoded)
}

func TestTriggerList_UnmarshalJSON(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		var tl cartridge.TriggerList
		err := json.Unmarshal([]byte(`[{"type":"timer","uuid":"tr-a-1"}]`), &tl)
		assert.ErrorContains(t, err, "unknown trigger type")
	})

	t.Run("missing type", func(t *testing.T) {
		var tl cartridge.TriggerList
		err := json.Unmarshal([]byte(`[{"uuid":"tr-a-1","k":3}]`), &tl)
		assert.Error(t, err)
	})

	t.Run("non-string uuid decodes as missing", func(t *testing.T) {
		var tl cartridge.TriggerList
		require.NoError(t, json.Unmarshal([]byte(`[{"type":"action","uuid":42,"condition":"x"}]`), &tl))
		require.Len(t, tl, 1)
		assert.Empty(t, tl[0].ID())

		scene := cartridge.Scene{UUID: "sc-a", Triggers: tl}
		out, repairs := cartridge.Sanitize(cartridge.Cartridge{Scenes: []cartridge.Scene{scene}})
		assert.Empty(t, out.Scenes[0].Triggers)
		require.Len(t, repairs, 1)
		assert.Equal(t, cartridge.RepairDroppedTrigger, repairs[0].Kind)
	})

	t.Run("null list", func(t *testing.T) {
		tl := cartridge.TriggerList{cartridge.ActionTrigger{}}
		require.NoError(t, json.Unmarshal([]byte(`null`), &tl))
		assert.Nil(t, tl)
	})
}

func TestTriggerEffect_Ending(t *testing.T) {
	assert.Equal(t, cartridge.DefaultEndingName, cartridge.TriggerEffect{}.Ending())
	assert.Equal(t, "Welcomed", cartridge.TriggerEffect{EndingName: "Welcomed"}.Ending())
	assert.True(t, cartridge.TriggerEffect{GoToSceneID: cartridge.EndSceneID}.EndsGame())
	assert.False(t, cartridge.TriggerEffect{GoToSceneID: "sc-a"}.EndsGame())
}

func TestProject_CloneIsDeep(t *testing.T) {
	p := cartridgetest.Project()
	c := p.Clone()

	c.Cartridge.Scenes[0].CharacterIDs[0] = "ch-changed"
	c.Cartridge.Characters[1].Sprites["neutral"] = "changed.png"
	a := c.Cartridge.Scenes[0].Triggers[1].(cartridge.ActionTrigger)
	a.DependsOnTriggerIDs[0] = "tr-forest-changed"

	assert.Equal(t, cartridgetest.HeroID, p.Cartridge.Scenes[0].CharacterIDs[0])
	assert.Equal(t, "owl.png", p.Cartridge.Characters[1].Sprites["neutral"])
	orig := p.Cartridge.Scenes[0].Triggers[1].(cartridge.ActionTrigger)
	assert.Equal(t, cartridgetest.GreetOwlID, orig.DependsOnTriggerIDs[0])
}
