package models

import "time"

// Verdict is the overall result of a scenario run
type Verdict string

const (
	VerdictPassed  Verdict = "Passed"
	VerdictFailed  Verdict = "Failed"
	VerdictErrored Verdict = "Errored"
)

// Mismatch is one failed check listed in a report
type Mismatch struct {
	Step     string    `json:"step"`
	Check    string    `json:"check"`
	Kind     ErrorKind `json:"kind"`
	Expected string    `json:"expected,omitempty"`
	Actual   string    `json:"actual,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// ScenarioReport aggregates the outcomes of one run. Stored in badgerhold keyed by ID.
type ScenarioReport struct {
	ID         string        `json:"id" badgerhold:"key"`
	Scenario   string        `json:"scenario" badgerhold:"index"`
	Verdict    Verdict       `json:"verdict"`
	RunState   RunState      `json:"run_state"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	DurationMs int64         `json:"duration_ms"`
	Steps      []StepOutcome `json:"steps"`
	FirstFatal *Failure      `json:"first_fatal,omitempty"`
	Mismatches []Mismatch    `json:"mismatches,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	Evidence   []string      `json:"evidence,omitempty"`
	Signals    []Signal      `json:"signals,omitempty"`
	ResultsDir string        `json:"results_dir,omitempty"`
}

// PassedCount returns how many steps passed
func (r *ScenarioReport) PassedCount() int {
	n := 0
	for _, s := range r.Steps {
		if s.Passed {
			n++
		}
	}
	return n
}

// Passed reports whether the verdict is Passed
func (r *ScenarioReport) Passed() bool {
	return r.Verdict == VerdictPassed
}

// ReportListOptions filters report history queries
type ReportListOptions struct {
	Scenario string
	Verdict  Verdict
	Limit    int
	Offset   int
}
