package chat

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/novel-engine/pkg/cartridge/cartridgetest"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []DisplayLine
	}{
		{
			name:     "bare narration",
			text:     "Rain taps on the leaves.",
			expected: []DisplayLine{{Type: LineNarration, Text: "Rain taps on the leaves."}},
		},
		{
			name: "mixed spans in document order",
			text: `The owl blinks. <ch name="Owl">Hoo!</ch> <player>Hi there</player> Wind howls.`,
			expected: []DisplayLine{
				{Type: LineNarration, Text: "The owl blinks."},
				{Type: LineCharacter, Text: "Hoo!", CharacterName: "Owl"},
				{Type: LinePlayer, Text: "Hi there"},
				{Type: LineNarration, Text: "Wind howls."},
			},
		},
		{
			name:     "narrator speaker folds into narration",
			text:     `<ch name="The NARRATOR">It rains.</ch>`,
			expected: []DisplayLine{{Type: LineNarration, Text: "It rains."}},
		},
		{
			name:     "narration speaker folds into narration",
			text:     `<ch name="Narration">Later...</ch>`,
			expected: []DisplayLine{{Type: LineNarration, Text: "Later..."}},
		},
		{
			name: "other tags are inert wrappers",
			text: `She whispers <em class="soft">softly</em>.`,
			expected: []DisplayLine{
				{Type: LineNarration, Text: "She whispers"},
				{Type: LineNarration, Text: "softly"},
				{Type: LineNarration, Text: "."},
			},
		},
		{
			name:     "escaped speaker name",
			text:     `<ch name="O&#39;Brien">Evening.</ch>`,
			expected: []DisplayLine{{Type: LineCharacter, Text: "Evening.", CharacterName: "O'Brien"}},
		},
		{
			name:     "unclosed span stays narration",
			text:     `<ch name="Owl">Hoo`,
			expected: []DisplayLine{{Type: LineNarration, Text: `<ch name="Owl">Hoo`}},
		},
		{
			name:     "multiline character span",
			text:     "<ch name=\"Owl\">Hoo.\nHoo.</ch>",
			expected: []DisplayLine{{Type: LineCharacter, Text: "Hoo.\nHoo.", CharacterName: "Owl"}},
		},
		{
			name:     "empty text",
			text:     "",
			expected: []DisplayLine{{Type: LineNarration}},
		},
		{
			name: "speaker span nested in a wrapper",
			text: `<em>The wind howls. <ch name="Owl">Hoo!</ch> Leaves fall.</em>`,
			expected: []DisplayLine{
				{Type: LineNarration, Text: "The wind howls."},
				{Type: LineCharacter, Text: "Hoo!", CharacterName: "Owl"},
				{Type: LineNarration, Text: "Leaves fall."},
			},
		},
		{
			name:     "wrapper inside a speaker span",
			text:     `<ch name="Owl">Hoo <b>HOO</b>!</ch><br/>`,
			expected: []DisplayLine{{Type: LineCharacter, Text: "Hoo HOO!", CharacterName: "Owl"}},
		},
		{
			name:     "stray closing span stays narration",
			text:     `Hoo</ch> said nobody.`,
			expected: []DisplayLine{{Type: LineNarration, Text: "Hoo</ch> said nobody."}},
		},
		{
			name:     "whitespace and empty spans",
			text:     "  <player> </player>\n ",
			expected: []DisplayLine{{Type: LineNarration}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(XmlLine{Role: ChatRoleAgent, Text: tt.text})
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDecodeBatch_MetadataOnLastFragmentOnly(t *testing.T) {
	meta := &Metadata{SceneID: "sc-forest", Status: StatusComplete, ActivatedTriggerIDs: []string{"tr-forest-greet"}}
	lines := []XmlLine{
		{Role: ChatRoleAgent, Text: `Dusk. <ch name="Owl">Hoo.</ch>`},
		{Role: ChatRoleAgent, Text: "The end of the day."},
	}

	got := DecodeBatch(lines, meta)
	require.Len(t, got, 3)
	assert.Nil(t, got[0].Metadata)
	assert.Nil(t, got[1].Metadata)
	require.NotNil(t, got[2].Metadata)
	assert.Equal(t, *meta, *got[2].Metadata)

	meta.ActivatedTriggerIDs[0] = "mutated"
	assert.Equal(t, "tr-forest-greet", got[2].Metadata.ActivatedTriggerIDs[0], "metadata must be copied, not shared")
}

func TestDecodeBatch_EmptyBatch(t *testing.T) {
	got := DecodeBatch(nil, &Metadata{Status: StatusComplete})
	require.Len(t, got, 1)
	assert.Equal(t, LineNarration, got[0].Type)
	assert.Equal(t, StatusComplete, got[0].Metadata.Status)
}

func TestDecodeEncode_HomogeneousLineRoundTrip(t *testing.T) {
	scenes := cartridgetest.Project().Cartridge.Scenes
	tests := []DisplayLine{
		{Type: LineNarration, Text: "The moon rises."},
		{Type: LineNarration, Text: "Two lines\nof narration."},
		{Type: LineCharacter, Text: "Who goes there?", CharacterName: "Owl"},
		{Type: LineCharacter, Text: "Welcome.", CharacterName: `Sir "Iron" Brant`},
		{Type: LinePlayer, Text: "I bow to the owl."},
	}

	for _, line := range tests {
		t.Run(string(line.Type)+"/"+line.Text, func(t *testing.T) {
			encoded := Encode([]DisplayLine{line}, scenes)
			require.Len(t, encoded, 1)

			decoded := Decode(encoded[0])
			require.Len(t, decoded, 1)
			assert.Equal(t, line.Type, decoded[0].Type)
			assert.Equal(t, line.Text, decoded[0].Text)
			assert.Equal(t, line.CharacterName, decoded[0].CharacterName)
		})
	}
}

func TestDecodeEncode_TrimsPaddedText(t *testing.T) {
	lines := []DisplayLine{
		{Type: LineNarration, Text: "  The moon rises.\n"},
		{Type: LineCharacter, Text: " Who goes there? ", CharacterName: "Owl"},
		{Type: LinePlayer, Text: "\tI bow."},
	}

	for _, line := range lines {
		encoded := Encode([]DisplayLine{line}, nil)
		require.Len(t, encoded, 1)

		decoded := Decode(encoded[0])
		require.Len(t, decoded, 1)
		assert.Equal(t, line.Type, decoded[0].Type)
		assert.Equal(t, strings.TrimSpace(line.Text), decoded[0].Text)
	}
}

func TestEncode_Roles(t *testing.T) {
	got := Encode([]DisplayLine{
		{Type: LinePlayer, Text: "Hello."},
		{Type: LineCharacter, Text: "Hoo.", CharacterName: "Owl"},
		{Type: LineNarration, Text: "A breeze."},
		{Type: LinePlayer, Text: "Bye."},
	}, nil)

	require.Len(t, got, 3)
	assert.Equal(t, ChatRoleUser, got[0].Role)
	assert.Equal(t, ChatRoleAgent, got[1].Role)
	assert.Equal(t, "<ch name=\"Owl\">Hoo.</ch>\nA breeze.", got[1].Text)
	assert.Equal(t, ChatRoleUser, got[2].Role)
}

func TestEncode_SceneBoundaryForUnknownScene(t *testing.T) {
	got := Encode([]DisplayLine{{Type: LineNarration, Metadata: &Metadata{SceneID: "sc-missing"}}}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "[Scene: sc-missing]", got[0].Text)
}

func TestEncode_Transcript(t *testing.T) {
	scenes := cartridgetest.Project().Cartridge.Scenes
	lines := []DisplayLine{
		{Type: LineNarration, Metadata: &Metadata{SceneID: cartridgetest.ForestID}},
		{Type: LineNarration, Text: "Branches creak overhead."},
		{Type: LineCharacter, Text: "Who goes there?", CharacterName: "Owl"},
		{Type: LinePlayer, Text: "Hello, owl."},
		{Type: LinePlayer, Text: "Which way is out?"},
		{Type: LineHint, Text: "{Try asking nicely}"},
		{Type: LineCharacter, Text: "Halt.", CharacterName: `Sir "Iron" Brant`},
		{Type: LineNarration, Text: ""},
	}

	var sb strings.Builder
	for _, l := range Encode(lines, scenes) {
		sb.WriteString("--- " + l.Role + "\n")
		sb.WriteString(l.Text + "\n")
	}

	g := goldie.New(t)
	g.Assert(t, "encode_transcript", []byte(sb.String()))
}

func TestResolveSpeakers(t *testing.T) {
	p := cartridgetest.Project()
	lines := []DisplayLine{
		{Type: LineCharacter, Text: "Hoo.", CharacterName: "owl"},
		{Type: LineCharacter, Text: "Who?", CharacterName: "Stranger"},
		{Type: LinePlayer, Text: "Me."},
		{Type: LineNarration, Text: "Silence."},
	}

	ResolveSpeakers(lines, &p.Cartridge, p.Settings.PlayerID)

	assert.Equal(t, cartridgetest.OwlID, lines[0].CharacterID)
	assert.Empty(t, lines[1].CharacterID)
	assert.Equal(t, cartridgetest.HeroID, lines[2].CharacterID)
	assert.Equal(t, "Robin", lines[2].CharacterName)
	assert.Empty(t, lines[3].CharacterID)
}
