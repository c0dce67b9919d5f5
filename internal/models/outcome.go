package models

import "time"

// RunState is the executor state of one scenario run
type RunState string

const (
	RunStateIdle    RunState = "idle"
	RunStateRunning RunState = "running"
	RunStatePassed  RunState = "passed"
	RunStateFailed  RunState = "failed"
	RunStateErrored RunState = "errored"
)

// IsTerminal reports whether no further transitions are allowed from s
func (s RunState) IsTerminal() bool {
	return s == RunStatePassed || s == RunStateFailed || s == RunStateErrored
}

// StepStatus is the recorded status of a single step
type StepStatus string

const (
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepErrored StepStatus = "errored"
	// StepSkipped marks steps not run after a fatal error or a fail-fast stop
	StepSkipped StepStatus = "skipped"
)

// ElementHandle describes an element that was present when queried
type ElementHandle struct {
	Selector string `json:"selector"`
	NodeName string `json:"node_name"`
	ID       string `json:"id,omitempty"`
	Visible  bool   `json:"visible"`
}

// Box is an element's bounding rectangle in CSS pixels relative to the viewport
type Box struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	ViewportWidth  float64 `json:"viewport_width"`
	ViewportHeight float64 `json:"viewport_height"`
}

// Bottom returns the y coordinate of the box's lower edge
func (b Box) Bottom() float64 {
	return b.Y + b.Height
}

// AssertionResult is the structured outcome of one assertion
type AssertionResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Message  string `json:"message,omitempty"`
	// Kind classifies a failed check; empty means AssertionMismatch
	Kind ErrorKind `json:"kind,omitempty"`
	// Info carries non-failing detail such as optional CSV columns that are absent
	Info []string `json:"info,omitempty"`
}

// Failure is the diagnostic payload attached to a failed or errored step
type Failure struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Expected string    `json:"expected,omitempty"`
	Actual   string    `json:"actual,omitempty"`
}

// Evidence lists files produced for a step
type Evidence struct {
	Screenshot  string   `json:"screenshot,omitempty"`
	DOMSnapshot string   `json:"dom_snapshot,omitempty"`
	Artifacts   []string `json:"artifacts,omitempty"`
}

// IsEmpty reports whether no evidence was captured
func (e Evidence) IsEmpty() bool {
	return e.Screenshot == "" && e.DOMSnapshot == "" && len(e.Artifacts) == 0
}

// Paths returns every evidence file path
func (e Evidence) Paths() []string {
	var paths []string
	if e.Screenshot != "" {
		paths = append(paths, e.Screenshot)
	}
	if e.DOMSnapshot != "" {
		paths = append(paths, e.DOMSnapshot)
	}
	return append(paths, e.Artifacts...)
}

// StepOutcome is the immutable record of one executed step
type StepOutcome struct {
	Index         int               `json:"index"`
	Step          string            `json:"step"`
	Passed        bool              `json:"passed"`
	Status        StepStatus        `json:"status"`
	ObservedState string            `json:"observed_state,omitempty"`
	SignalsSeen   []int64           `json:"signals_seen,omitempty"`
	ElapsedMs     int64             `json:"elapsed_ms"`
	Failure       *Failure          `json:"failure,omitempty"`
	Assertions    []AssertionResult `json:"assertions,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
	Evidence      Evidence          `json:"evidence"`
}

// Elapsed returns the step duration
func (o StepOutcome) Elapsed() time.Duration {
	return time.Duration(o.ElapsedMs) * time.Millisecond
}

// Mismatches returns the assertion results that did not pass
func (o StepOutcome) Mismatches() []AssertionResult {
	var out []AssertionResult
	for _, a := range o.Assertions {
		if !a.Passed {
			out = append(out, a)
		}
	}
	return out
}
