package chat

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
)

// spanPattern matches, in order of preference, a character span, a player
// span, or a single opening, closing or empty tag. Lone tags are inert
// wrappers and are dropped, so spans nested inside them still decode.
var spanPattern = regexp.MustCompile(`(?s)<ch\s+name="([^"]*)"\s*>(.*?)</ch>|<player>(.*?)</player>|</?([a-zA-Z][\w-]*)(?:\s[^>]*)?/?>`)

var wrapperPattern = regexp.MustCompile(`</?[a-zA-Z][\w-]*(?:\s[^>]*)?/?>`)

// Encode converts transcript lines into wire lines. Consecutive lines with
// the same role are merged into one wire line separated by newlines.
// Empty scene-boundary lines render as a readable scene marker.
func Encode(lines []DisplayLine, scenes []cartridge.Scene) []XmlLine {
	titles := make(map[string]string, len(scenes))
	for i := range scenes {
		titles[scenes[i].UUID] = scenes[i].DisplayTitle()
	}

	var out []XmlLine
	for _, l := range lines {
		role, text, ok := encodeLine(l, titles)
		if !ok {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Text += "\n" + text
			continue
		}
		out = append(out, XmlLine{Role: role, Text: text})
	}
	return out
}

func encodeLine(l DisplayLine, titles map[string]string) (role, text string, ok bool) {
	switch l.Type {
	case LinePlayer:
		return ChatRoleUser, "<player>" + l.Text + "</player>", true
	case LineCharacter:
		return ChatRoleAgent, `<ch name="` + html.EscapeString(l.CharacterName) + `">` + l.Text + "</ch>", true
	default:
		// Narration and hints pass through as bare text; hint braces are
		// left for the presentation layer.
		if l.Text != "" {
			return ChatRoleAgent, l.Text, true
		}
		if l.IsSceneBoundary() {
			title, found := titles[l.Metadata.SceneID]
			if !found {
				title = l.Metadata.SceneID
			}
			return ChatRoleAgent, "[Scene: " + title + "]", true
		}
		return "", "", false
	}
}

// Decode splits one wire line into transcript fragments in document order.
// It never fails: text without recognizable spans becomes narration, and an
// empty line decodes to a single empty narration fragment. Decoded
// fragments carry no metadata; see DecodeBatch.
//
// Fragment text is trimmed of surrounding whitespace and whitespace-only
// fragments are dropped, so decoding an encoded line returns its text
// trimmed rather than byte for byte.
func Decode(line XmlLine) []DisplayLine {
	text := line.Text
	var out []DisplayLine

	pos := 0
	for _, m := range spanPattern.FindAllStringSubmatchIndex(text, -1) {
		if m[2] < 0 && m[6] < 0 && isProtocolTag(text[m[8]:m[9]]) {
			// An unmatched ch or player tag stays in the narration as written.
			continue
		}
		out = appendNarration(out, text[pos:m[0]])

		switch {
		case m[2] >= 0:
			name := html.UnescapeString(text[m[2]:m[3]])
			body := stripWrappers(text[m[4]:m[5]])
			if isNarratorName(name) {
				out = appendNarration(out, body)
			} else if body = strings.TrimSpace(body); body != "" {
				out = append(out, DisplayLine{Type: LineCharacter, Text: body, CharacterName: name})
			}
		case m[6] >= 0:
			if body := strings.TrimSpace(stripWrappers(text[m[6]:m[7]])); body != "" {
				out = append(out, DisplayLine{Type: LinePlayer, Text: body})
			}
		}
		pos = m[1]
	}
	out = appendNarration(out, text[pos:])

	if len(out) == 0 {
		return []DisplayLine{{Type: LineNarration}}
	}
	return out
}

// DecodeBatch decodes wire lines into one ordered transcript extension.
// The batch metadata is attached to the last fragment only.
func DecodeBatch(lines []XmlLine, meta *Metadata) []DisplayLine {
	var out []DisplayLine
	for _, l := range lines {
		out = append(out, Decode(l)...)
	}
	if len(out) == 0 {
		out = []DisplayLine{{Type: LineNarration}}
	}
	out[len(out)-1].Metadata = meta.Clone()
	return out
}

// ResolveSpeakers fills in character ids by case-insensitive name match and
// stamps player lines with the player character.
func ResolveSpeakers(lines []DisplayLine, c *cartridge.Cartridge, playerID string) {
	fold := cases.Fold()
	byName := make(map[string]string, len(c.Characters))
	for _, ch := range c.Characters {
		byName[fold.String(ch.Name)] = ch.UUID
	}
	player, hasPlayer := c.CharacterByID(playerID)

	for i := range lines {
		switch lines[i].Type {
		case LineCharacter:
			if lines[i].CharacterID == "" {
				lines[i].CharacterID = byName[fold.String(lines[i].CharacterName)]
			}
		case LinePlayer:
			if hasPlayer {
				lines[i].CharacterID = player.UUID
				lines[i].CharacterName = player.Name
			}
		}
	}
}

func appendNarration(out []DisplayLine, text string) []DisplayLine {
	text = strings.TrimSpace(text)
	if text == "" {
		return out
	}
	return append(out, DisplayLine{Type: LineNarration, Text: text})
}

func isNarratorName(name string) bool {
	folded := cases.Fold().String(name)
	return strings.Contains(folded, "narrator") || strings.Contains(folded, "narration")
}

// stripWrappers drops wrapper tags inside a speaker span.
func stripWrappers(body string) string {
	return wrapperPattern.ReplaceAllString(body, "")
}

func isProtocolTag(name string) bool {
	return name == "ch" || name == "player"
}
