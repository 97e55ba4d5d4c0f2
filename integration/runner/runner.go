package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/novel-engine/internal/handlers"
	"github.com/jwebster45206/novel-engine/internal/playthrough"
	"github.com/jwebster45206/novel-engine/pkg/state"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner plays scripted scenarios against a running novel-engine API.
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Logger            func(format string, args ...any)
	ErrorHandlingMode ErrorHandlingMode

	// BeforeStep runs before each step is sent. In-process tests use it to
	// script the generation backend.
	BeforeStep func(step TestStep)
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 5 * time.Minute},
		Logger:            func(string, ...any) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a YAML file. A relative
// project_file is resolved against the case file's directory.
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse YAML in %s: %w", filename, err)
	}
	if suite.ProjectFile != "" && !filepath.IsAbs(suite.ProjectFile) {
		suite.ProjectFile = filepath.Join(filepath.Dir(filename), suite.ProjectFile)
	}
	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(filepath.Join(casesDir, caseFile), casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}
		jobs = append(jobs, subJobs...)
	}
	return jobs, nil
}

// RunSuite uploads the suite's project if it has one, starts a playthrough
// and runs every step against it. Branch and restart steps move the suite
// onto the playthrough they create.
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job:     TestJob{Name: suite.Name, Suite: suite},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}
	fail := func(err error) (TestRunResult, error) {
		result.Error = err
		result.Duration = time.Since(start)
		return result, err
	}

	if suite.ProjectFile != "" {
		if err := r.uploadProject(ctx, suite.ProjectID, suite.ProjectFile); err != nil {
			return fail(fmt.Errorf("failed to upload project: %w", err))
		}
	}

	userID := suite.UserID
	if userID == "" {
		userID = "integration"
	}
	var pt state.Playthrough
	req := handlers.CreatePlaythroughRequest{ProjectID: suite.ProjectID, UserID: userID}
	if _, err := r.do(ctx, http.MethodPost, "/v1/playthroughs", req, &pt, http.StatusCreated); err != nil {
		return fail(fmt.Errorf("failed to create playthrough: %w", err))
	}
	result.Playthrough = pt.ID

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult, next := r.executeStep(ctx, result.Playthrough, step)
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
		result.Playthrough = next
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// executeStep performs one action, then reloads the playthrough and checks
// the step's expectations. It returns the id later steps should use.
func (r *Runner) executeStep(ctx context.Context, id uuid.UUID, step TestStep) (TestResult, uuid.UUID) {
	start := time.Now()
	result := TestResult{StepName: step.Name}
	finish := func(err error) (TestResult, uuid.UUID) {
		result.Error = err
		result.Success = err == nil
		result.Duration = time.Since(start)
		return result, id
	}

	if r.BeforeStep != nil {
		r.BeforeStep(step)
	}

	base := "/v1/playthroughs/" + id.String()
	var (
		outcome *playthrough.TurnOutcome
		status  int
		err     error
	)
	switch step.Action {
	case "", ActionTurn:
		outcome = &playthrough.TurnOutcome{}
		status, err = r.do(ctx, http.MethodPost, base+"/turns", handlers.TurnRequest{Text: step.Text}, outcome, http.StatusOK)
		result.ResponseText = outcomeText(outcome)
	case ActionHint:
		var hint handlers.HintResponse
		status, err = r.do(ctx, http.MethodPost, base+"/hint", nil, &hint, http.StatusOK)
		result.ResponseText = hint.Line.Text
	case ActionRewind:
		idx := step.LineIdx
		status, err = r.do(ctx, http.MethodPost, base+"/rewind", handlers.RewindRequest{LineIdx: &idx}, nil, http.StatusOK)
	case ActionBranch, ActionRestart:
		var created state.Playthrough
		status, err = r.do(ctx, http.MethodPost, base+"/"+step.Action, nil, &created, http.StatusCreated)
		if err == nil {
			id = created.ID
		}
	default:
		return finish(fmt.Errorf("unknown action %q", step.Action))
	}

	if want := step.Expectations.Status; want != nil {
		if status != *want {
			return finish(fmt.Errorf("expected status %d, got %d (%v)", *want, status, err))
		}
		err = nil
	}
	if err != nil {
		return finish(err)
	}

	pt, err := r.getPlaythrough(ctx, id)
	if err != nil {
		return finish(fmt.Errorf("failed to reload playthrough: %w", err))
	}
	if err := checkExpectations(step.Expectations, pt, outcome, result.ResponseText); err != nil {
		return finish(fmt.Errorf("expectation failed: %w", err))
	}
	return finish(nil)
}

func (r *Runner) getPlaythrough(ctx context.Context, id uuid.UUID) (*state.Playthrough, error) {
	var pt state.Playthrough
	if _, err := r.do(ctx, http.MethodGet, "/v1/playthroughs/"+id.String(), nil, &pt, http.StatusOK); err != nil {
		return nil, err
	}
	return &pt, nil
}

// uploadProject stores the project file under projectID and requires the
// result to be playable.
func (r *Runner) uploadProject(ctx context.Context, projectID, path string) error {
	doc, err := readProject(path)
	if err != nil {
		return err
	}
	doc["id"] = projectID

	var resp handlers.SaveProjectResponse
	if _, err := r.do(ctx, http.MethodPut, "/v1/projects/"+projectID, doc, &resp, http.StatusOK); err != nil {
		return err
	}
	if !resp.Playable {
		return fmt.Errorf("project %s is not playable: %s", projectID, resp.Error)
	}
	if len(resp.Repairs) > 0 {
		r.Logger("    project %s needed %d repair(s)", projectID, len(resp.Repairs))
	}
	return nil
}

// readProject reads a JSON or YAML project document.
func readProject(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return doc, nil
}

// do sends a JSON request and decodes a response with the wanted status
// into out. It always returns the status it saw.
func (r *Runner) do(ctx context.Context, method, path string, in, out any, want int) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		var e handlers.ErrorResponse
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return resp.StatusCode, fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, e.Error)
		}
		return resp.StatusCode, fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

// outcomeText joins the lines a turn added after the player's own line.
func outcomeText(out *playthrough.TurnOutcome) string {
	if out == nil || len(out.Lines) < 2 {
		return ""
	}
	parts := make([]string, 0, len(out.Lines)-1)
	for _, l := range out.Lines[1:] {
		parts = append(parts, l.Text)
	}
	return strings.Join(parts, "\n")
}

// endingName returns the ending recorded on the visible transcript, if any.
func endingName(pt *state.Playthrough) string {
	for i := 0; i <= pt.CurrentLineIdx && i < len(pt.Lines); i++ {
		if l := pt.Lines[i]; l.Ends() {
			return l.Metadata.EndingName
		}
	}
	return ""
}

func checkExpectations(exp Expectations, pt *state.Playthrough, outcome *playthrough.TurnOutcome, responseText string) error {
	if exp.SceneID != "" && pt.CurrentSceneID != exp.SceneID {
		return fmt.Errorf("expected scene %s, got %s", exp.SceneID, pt.CurrentSceneID)
	}
	if exp.Ended != nil && pt.Ended() != *exp.Ended {
		return fmt.Errorf("expected ended=%t, got %t", *exp.Ended, pt.Ended())
	}
	if exp.EndingName != "" {
		if got := endingName(pt); got != exp.EndingName {
			return fmt.Errorf("expected ending %q, got %q", exp.EndingName, got)
		}
	}
	if exp.FiredTrigger != "" {
		if outcome == nil {
			return fmt.Errorf("fired_trigger is only checked on turns")
		}
		got := outcome.FiredTriggerID
		if got == "" {
			got = "none"
		}
		if got != exp.FiredTrigger {
			return fmt.Errorf("expected trigger %s to fire, got %s", exp.FiredTrigger, got)
		}
	}
	if exp.LineCount != nil && len(pt.Lines) != *exp.LineCount {
		return fmt.Errorf("expected %d lines, got %d", *exp.LineCount, len(pt.Lines))
	}
	if exp.LineIdx != nil && pt.CurrentLineIdx != *exp.LineIdx {
		return fmt.Errorf("expected line pointer %d, got %d", *exp.LineIdx, pt.CurrentLineIdx)
	}

	if len(exp.Consumed) > 0 || len(exp.NotConsumed) > 0 || exp.TurnsLeft != nil {
		st, err := pt.SceneState()
		if err != nil {
			return fmt.Errorf("failed to derive scene state: %w", err)
		}
		for _, id := range exp.Consumed {
			if !st.Consumed[id] {
				return fmt.Errorf("expected trigger %s to be consumed", id)
			}
		}
		for _, id := range exp.NotConsumed {
			if st.Consumed[id] {
				return fmt.Errorf("expected trigger %s to be unconsumed", id)
			}
		}
		if exp.TurnsLeft != nil {
			fb, ok := st.Fallback()
			if !ok {
				return fmt.Errorf("scene %s has no fallback trigger", st.SceneID)
			}
			if fb.TurnsLeft != *exp.TurnsLeft {
				return fmt.Errorf("expected %d turn(s) left, got %d", *exp.TurnsLeft, fb.TurnsLeft)
			}
		}
	}

	lower := strings.ToLower(responseText)
	for _, s := range exp.ResponseContains {
		if !strings.Contains(lower, strings.ToLower(s)) {
			return fmt.Errorf("response does not contain %q", s)
		}
	}
	for _, s := range exp.ResponseNotContains {
		if strings.Contains(lower, strings.ToLower(s)) {
			return fmt.Errorf("response unexpectedly contains %q", s)
		}
	}
	if exp.ResponseRegex != "" {
		re, err := regexp.Compile(exp.ResponseRegex)
		if err != nil {
			return fmt.Errorf("invalid response_regex: %w", err)
		}
		if !re.MatchString(responseText) {
			return fmt.Errorf("response does not match %q", exp.ResponseRegex)
		}
	}
	return nil
}
