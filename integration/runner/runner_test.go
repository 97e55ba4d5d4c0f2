package runner

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/novel-engine/internal/handlers"
	"github.com/jwebster45206/novel-engine/internal/middleware"
	"github.com/jwebster45206/novel-engine/internal/playthrough"
	"github.com/jwebster45206/novel-engine/internal/services"
	"github.com/jwebster45206/novel-engine/pkg/chat"
	"github.com/jwebster45206/novel-engine/pkg/state"
	"github.com/jwebster45206/novel-engine/pkg/storage"
)

const casesDir = "../cases"

// newScriptedRunner serves the API in-process over mock storage and a
// generation backend that reports whatever each step lists.
func newScriptedRunner(t *testing.T) *Runner {
	t.Helper()
	store := storage.NewMockStorage()
	gen := services.NewMockGenerator()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mux := http.NewServeMux()
	handlers.NewProjectHandler(store, logger).Register(mux)
	handlers.NewPlaythroughHandler(store, func(l *slog.Logger) *playthrough.Orchestrator {
		return playthrough.New(store, gen, l)
	}, logger).Register(mux)
	srv := httptest.NewServer(middleware.Logger(logger)(mux))
	t.Cleanup(srv.Close)

	r := NewRunner(srv.URL)
	r.Logger = t.Logf
	r.BeforeStep = func(step TestStep) { gen.FireTriggers(step.Report...) }
	return r
}

func TestRunner_Cases(t *testing.T) {
	jobs, err := LoadTestSuiteWithExpansion(filepath.Join(casesDir, "all.yaml"), casesDir)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	for _, job := range jobs {
		t.Run(job.Name, func(t *testing.T) {
			r := newScriptedRunner(t)
			result, err := r.RunSuite(context.Background(), job.Suite)
			require.NoError(t, err)
			assert.Len(t, result.Results, len(job.Suite.Steps))
			for _, step := range result.Results {
				assert.True(t, step.Success, step.StepName)
			}
		})
	}
}

func TestRunner_ReportsFailedExpectation(t *testing.T) {
	r := newScriptedRunner(t)
	suite := TestSuite{
		Name:        "wrong scene",
		ProjectID:   "proj-owl-it",
		ProjectFile: filepath.Join(casesDir, "projects", "owl.yaml"),
		Steps: []TestStep{
			{Name: "stays put", Text: "Hi", Expectations: Expectations{SceneID: "sc-gate"}},
			{Name: "still runs", Text: "Hi again"},
		},
	}

	result, err := r.RunSuite(context.Background(), suite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected scene sc-gate, got sc-forest")
	require.Len(t, result.Results, 2)
	assert.False(t, result.Results[0].Success)
	assert.True(t, result.Results[1].Success)

	r = newScriptedRunner(t)
	r.ErrorHandlingMode = ErrorHandlingExit
	result, err = r.RunSuite(context.Background(), suite)
	require.Error(t, err)
	assert.Len(t, result.Results, 1)
}

func TestRunner_UnknownProject(t *testing.T) {
	r := newScriptedRunner(t)
	_, err := r.RunSuite(context.Background(), TestSuite{Name: "missing", ProjectID: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create playthrough")
	assert.Contains(t, err.Error(), "404")
}

func TestLoadTestSuite_ResolvesProjectFile(t *testing.T) {
	suite, err := LoadTestSuite(filepath.Join(casesDir, "owl_lost.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(casesDir, "projects", "owl.yaml"), suite.ProjectFile)
	assert.False(t, suite.IsSequence())

	_, err = os.Stat(suite.ProjectFile)
	assert.NoError(t, err)
}

func TestLoadTestSuiteWithExpansion_MissingCase(t *testing.T) {
	dir := t.TempDir()
	seq := filepath.Join(dir, "seq.yaml")
	require.NoError(t, os.WriteFile(seq, []byte("name: seq\ncases: [gone.yaml]\n"), 0o644))

	_, err := LoadTestSuiteWithExpansion(seq, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone.yaml")
}

func TestCheckExpectations(t *testing.T) {
	ending := &chat.Metadata{ShouldEnd: true, EndingName: "Welcomed"}
	pt := &state.Playthrough{
		CurrentSceneID: "sc-gate",
		CurrentLineIdx: 1,
		Lines: []chat.DisplayLine{
			{Type: chat.LinePlayer, Text: "knock"},
			{Type: chat.LineNarration, Text: "The gate groans open.", Metadata: ending},
		},
	}
	ended := true
	two := 2

	tests := []struct {
		name    string
		exp     Expectations
		outcome *playthrough.TurnOutcome
		text    string
		wantErr string
	}{
		{name: "all match", exp: Expectations{SceneID: "sc-gate", Ended: &ended, EndingName: "Welcomed", LineCount: &two}, text: "The gate groans open."},
		{name: "ending name", exp: Expectations{EndingName: "Lost"}, wantErr: `expected ending "Lost"`},
		{name: "line count", exp: Expectations{LineCount: new(int)}, wantErr: "expected 0 lines, got 2"},
		{name: "fired on non-turn", exp: Expectations{FiredTrigger: "none"}, wantErr: "only checked on turns"},
		{name: "no trigger fired", exp: Expectations{FiredTrigger: "none"}, outcome: &playthrough.TurnOutcome{}},
		{name: "wrong trigger", exp: Expectations{FiredTrigger: "tr-a"}, outcome: &playthrough.TurnOutcome{FiredTriggerID: "tr-b"}, wantErr: "expected trigger tr-a to fire, got tr-b"},
		{name: "contains is case-insensitive", exp: Expectations{ResponseContains: []string{"GROANS"}}, text: "The gate groans open."},
		{name: "not contains", exp: Expectations{ResponseNotContains: []string{"gate"}}, text: "The gate groans open.", wantErr: `unexpectedly contains "gate"`},
		{name: "regex", exp: Expectations{ResponseRegex: `^The \w+ groans`}, text: "The gate groans open."},
		{name: "bad regex", exp: Expectations{ResponseRegex: `(`}, wantErr: "invalid response_regex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkExpectations(tt.exp, pt, tt.outcome, tt.text)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOutcomeText(t *testing.T) {
	assert.Empty(t, outcomeText(nil))
	assert.Empty(t, outcomeText(&playthrough.TurnOutcome{Lines: []chat.DisplayLine{{Text: "me"}}}))
	assert.Equal(t, "a\nb", outcomeText(&playthrough.TurnOutcome{Lines: []chat.DisplayLine{{Text: "me"}, {Text: "a"}, {Text: "b"}}}))
}
