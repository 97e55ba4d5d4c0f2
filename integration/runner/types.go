package runner

import (
	"time"

	"github.com/google/uuid"
)

// Step actions. An empty action is a player turn.
const (
	ActionTurn    = "turn"
	ActionHint    = "hint"
	ActionRewind  = "rewind"
	ActionBranch  = "branch"
	ActionRestart = "restart"
)

// TestSuite defines a complete acceptance scenario.
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name        string     `yaml:"name"`
	ProjectID   string     `yaml:"project_id,omitempty"`   // Project to play; uploaded first when ProjectFile is set
	ProjectFile string     `yaml:"project_file,omitempty"` // JSON or YAML project, relative to the case file
	UserID      string     `yaml:"user_id,omitempty"`
	Steps       []TestStep `yaml:"steps,omitempty"` // Used for regular tests
	Cases       []string   `yaml:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep defines a single interaction and its expected outcomes.
type TestStep struct {
	Name    string `yaml:"name,omitempty"`
	Action  string `yaml:"action,omitempty"`
	Text    string `yaml:"text,omitempty"`     // Player input for turns
	LineIdx int    `yaml:"line_idx,omitempty"` // Target line for rewind

	// Trigger ids a scripted generation backend should report for this
	// step. A live backend decides for itself and ignores this.
	Report []string `yaml:"report,omitempty"`

	Expectations Expectations `yaml:"expect"`
}

// Expectations defines what to check after a step executes. Unset fields
// are not checked.
type Expectations struct {
	Status       *int   `yaml:"status,omitempty"`        // HTTP status of the action, default 2xx
	SceneID      string `yaml:"scene_id,omitempty"`      // Current scene after the step
	Ended        *bool  `yaml:"ended,omitempty"`
	EndingName   string `yaml:"ending_name,omitempty"`
	FiredTrigger string `yaml:"fired_trigger,omitempty"` // Trigger the turn fired; "none" for no trigger

	Consumed    []string `yaml:"consumed,omitempty"`     // Triggers consumed in the current visit
	NotConsumed []string `yaml:"not_consumed,omitempty"` // Triggers still unconsumed in the current visit
	TurnsLeft   *int     `yaml:"turns_left,omitempty"`   // Fallback countdown of the current scene
	LineCount   *int     `yaml:"line_count,omitempty"`   // Transcript length
	LineIdx     *int     `yaml:"line_idx,omitempty"`     // Current line pointer

	ResponseContains    []string `yaml:"response_contains,omitempty"`     // Case-insensitive substrings of the step's new text
	ResponseNotContains []string `yaml:"response_not_contains,omitempty"` // Case-insensitive substrings that must be absent
	ResponseRegex       string   `yaml:"response_regex,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName     string
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	ResponseText string
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job         TestJob
	Results     []TestResult
	Error       error
	Duration    time.Duration
	Playthrough uuid.UUID // Playthrough active when the suite finished
}
