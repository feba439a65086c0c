package results

import "time"

// Status is the verdict for a scenario or step.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusErrored Status = "errored"
	StatusSkipped Status = "skipped"
)

// Phase is a state of the per-scenario state machine.
type Phase string

const (
	PhaseInit            Phase = "init"
	PhaseSessionAcquired Phase = "session_acquired"
	PhaseNavigated       Phase = "navigated"
	PhaseStep            Phase = "step"
	PhaseAsserted        Phase = "asserted"
	PhaseTeardown        Phase = "teardown"
	PhasePassed          Phase = "passed"
	PhaseFailed          Phase = "failed"
	PhaseErrored         Phase = "errored"
)

// AssertionResult is one recorded check. Values are copied on record and never mutated.
type AssertionResult struct {
	Description string        `json:"description"`
	Expected    string        `json:"expected"`
	Actual      string        `json:"actual"`
	Passed      bool          `json:"passed"`
	Kind        string        `json:"kind,omitempty"`
	Step        string        `json:"step,omitempty"`
	Viewport    string        `json:"viewport,omitempty"`
	RecordedAt  time.Time     `json:"recorded_at"`
	Duration    time.Duration `json:"duration"`
}

// StepResult captures a single step execution.
type StepResult struct {
	Name      string            `json:"name"`
	Action    string            `json:"action"`
	Viewport  string            `json:"viewport,omitempty"`
	Status    Status            `json:"status"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Duration  time.Duration     `json:"duration"`
	Error     string            `json:"error,omitempty"`
	ErrorKind string            `json:"error_kind,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ConsoleEntry is a console message or uncaught page error seen during a scenario.
type ConsoleEntry struct {
	Type string    `json:"type"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// ScenarioResult captures one scenario run.
type ScenarioResult struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	BaseURL     string            `json:"base_url,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	Status      Status            `json:"status"`
	Error       string            `json:"error,omitempty"`
	Phases      []Phase           `json:"phases"`
	Viewports   []string          `json:"viewports,omitempty"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time"`
	Duration    time.Duration     `json:"duration"`
	Steps       []StepResult      `json:"steps"`
	Assertions  []AssertionResult `json:"assertions"`
	Console     []ConsoleEntry    `json:"console,omitempty"`
	Artifacts   map[string]string `json:"artifacts,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// EnterPhase appends phase unless it repeats the current one.
func (r *ScenarioResult) EnterPhase(phase Phase) {
	if n := len(r.Phases); n > 0 && r.Phases[n-1] == phase {
		return
	}
	r.Phases = append(r.Phases, phase)
}

// Failures returns the assertion results that did not pass.
func (r *ScenarioResult) Failures() []AssertionResult {
	var out []AssertionResult
	for _, a := range r.Assertions {
		if !a.Passed {
			out = append(out, a)
		}
	}
	return out
}

// RunResult captures the overall run.
type RunResult struct {
	RunID     string           `json:"run_id"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Duration  time.Duration    `json:"duration"`
	Scenarios []ScenarioResult `json:"scenarios"`
}

// Verdict folds recorded results and the fatal flag into a scenario status.
func Verdict(assertions []AssertionResult, fatal bool) Status {
	if fatal {
		return StatusErrored
	}
	for _, a := range assertions {
		if !a.Passed {
			return StatusFailed
		}
	}
	return StatusPassed
}

// TerminalPhase maps a status onto the final state machine phase.
func TerminalPhase(status Status) Phase {
	switch status {
	case StatusPassed:
		return PhasePassed
	case StatusErrored:
		return PhaseErrored
	default:
		return PhaseFailed
	}
}
