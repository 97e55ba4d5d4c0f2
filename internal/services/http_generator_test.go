package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/cartridge/cartridgetest"
	"github.com/jwebster45206/novel-engine/pkg/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewHTTPGenerator(t *testing.T) {
	g := NewHTTPGenerator("http://backend/", "key", 0, testLogger())

	assert.Equal(t, "http://backend", g.baseURL)
	assert.Equal(t, DefaultGeneratorTimeout, g.httpClient.Timeout)
}

func TestHTTPGenerator_Evaluate(t *testing.T) {
	var got EvaluateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/evaluate", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"activatedTriggerIds":["tr-forest-greet"]}`))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL, "secret", time.Second, testLogger())
	greet := cartridgetest.Project().Cartridge.Scenes[0].Triggers[0].(cartridge.ActionTrigger)

	resp, err := g.Evaluate(context.Background(), EvaluateRequest{
		PossibleTriggers: map[string]cartridge.ActionTrigger{greet.UUID: greet},
		Lines:            []chat.XmlLine{{Role: chat.ChatRoleUser, Text: "<player>Hello, owl.</player>"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{cartridgetest.GreetOwlID}, resp.ActivatedTriggerIDs)
	assert.Equal(t, greet, got.PossibleTriggers[greet.UUID])
	assert.Equal(t, "<player>Hello, owl.</player>", got.Lines[0].Text)
}

func TestHTTPGenerator_AdvanceSendsTriggerTypes(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/advance", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"lines":[{"role":"assistant","text":"<ch name=\"Owl\">Hoo.</ch>"}]}`))
	}))
	defer srv.Close()

	p := cartridgetest.Project()
	g := NewHTTPGenerator(srv.URL, "", time.Second, testLogger())
	resp, err := g.Advance(context.Background(), AdvanceRequest{
		Project:  p,
		SceneID:  cartridgetest.ForestID,
		Triggers: p.Cartridge.Scenes[0].Triggers,
	})
	require.NoError(t, err)
	require.Len(t, resp.Lines, 1)
	assert.Equal(t, chat.ChatRoleAgent, resp.Lines[0].Role)
	assert.Contains(t, string(raw["triggers"]), `"type":"fallback"`)
}

func TestHTTPGenerator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			},
			wantErr: "status 503",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"lines":`))
			},
			wantErr: "failed to parse response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			g := NewHTTPGenerator(srv.URL, "", time.Second, testLogger())
			_, err := g.Hint(context.Background(), HintRequest{Style: "terse"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHTTPGenerator_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewHTTPGenerator(srv.URL, "", time.Second, testLogger())
	_, err := g.Advance(ctx, AdvanceRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockGenerator(t *testing.T) {
	m := NewMockGenerator()
	ctx := context.Background()

	resp, err := m.Evaluate(ctx, EvaluateRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.ActivatedTriggerIDs)

	m.FireTriggers("tr-a-1")
	resp, err = m.Evaluate(ctx, EvaluateRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"tr-a-1"}, resp.ActivatedTriggerIDs)

	adv, err := m.Advance(ctx, AdvanceRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Mock response", adv.Lines[0].Text)

	m.SetAdvanceError(assert.AnError)
	_, err = m.Advance(ctx, AdvanceRequest{})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = m.Hint(ctx, HintRequest{})
	require.NoError(t, err)

	evaluate, advance, hint := m.Calls()
	assert.Equal(t, 2, evaluate)
	assert.Equal(t, 2, advance)
	assert.Equal(t, 1, hint)

	m.Reset()
	evaluate, advance, hint = m.Calls()
	assert.Zero(t, evaluate+advance+hint)
}
