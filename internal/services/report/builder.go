package report

import (
	"fmt"
	"time"

	"github.com/ternarybob/uiflow/internal/models"
)

// Builder aggregates step outcomes into a ScenarioReport
type Builder struct {
	id         string
	scenario   string
	startedAt  time.Time
	runState   models.RunState
	outcomes   []models.StepOutcome
	fatal      *models.Failure
	warnings   []string
	signals    []models.Signal
	resultsDir string
}

// NewBuilder starts a report for one run
func NewBuilder(id, scenario string, startedAt time.Time) *Builder {
	return &Builder{
		id:        id,
		scenario:  scenario,
		startedAt: startedAt,
		runState:  models.RunStateIdle,
	}
}

// Add records an outcome. Outcomes are copied and never modified afterwards.
func (b *Builder) Add(outcome models.StepOutcome) {
	b.outcomes = append(b.outcomes, outcome)
}

// SetRunState records the executor's terminal state
func (b *Builder) SetRunState(state models.RunState) {
	b.runState = state
}

// SetFatal records a run-level fatal cause not tied to a step, such as a session that failed to open
func (b *Builder) SetFatal(failure *models.Failure) {
	if b.fatal == nil {
		b.fatal = failure
	}
}

// AddWarning records a run-level warning
func (b *Builder) AddWarning(warning string) {
	b.warnings = append(b.warnings, warning)
}

// SetSignals attaches the full signal log
func (b *Builder) SetSignals(signals []models.Signal) {
	b.signals = signals
}

// SetResultsDir records where evidence for the run was written
func (b *Builder) SetResultsDir(dir string) {
	b.resultsDir = dir
}

// Build produces the report. The verdict is Passed only when the run reached Passed
// and every recorded outcome passed; a run with no outcomes passes vacuously.
func (b *Builder) Build(finishedAt time.Time) *models.ScenarioReport {
	r := &models.ScenarioReport{
		ID:         b.id,
		Scenario:   b.scenario,
		RunState:   b.runState,
		StartedAt:  b.startedAt,
		FinishedAt: finishedAt,
		DurationMs: finishedAt.Sub(b.startedAt).Milliseconds(),
		Steps:      append([]models.StepOutcome(nil), b.outcomes...),
		Signals:    b.signals,
		ResultsDir: b.resultsDir,
	}

	allPassed := true
	for _, o := range b.outcomes {
		if !o.Passed {
			allPassed = false
		}
	}

	switch {
	case b.runState == models.RunStateErrored || b.fatal != nil:
		r.Verdict = models.VerdictErrored
	case b.runState == models.RunStatePassed && allPassed:
		r.Verdict = models.VerdictPassed
	default:
		r.Verdict = models.VerdictFailed
	}

	r.FirstFatal = b.fatal
	if r.FirstFatal == nil {
		r.FirstFatal = firstCause(b.outcomes, r.Verdict)
	}

	for _, o := range b.outcomes {
		r.Mismatches = append(r.Mismatches, mismatches(o)...)
		for _, w := range o.Warnings {
			r.Warnings = append(r.Warnings, fmt.Sprintf("step %d (%s): %s", o.Index, o.Step, w))
		}
		r.Evidence = append(r.Evidence, o.Evidence.Paths()...)
	}
	r.Warnings = append(r.Warnings, b.warnings...)

	return r
}

// firstCause picks the errored step's failure, or the first failing step's for a Failed verdict
func firstCause(outcomes []models.StepOutcome, verdict models.Verdict) *models.Failure {
	if verdict == models.VerdictPassed {
		return nil
	}
	for _, o := range outcomes {
		if o.Status == models.StepErrored && o.Failure != nil {
			f := *o.Failure
			return &f
		}
	}
	for _, o := range outcomes {
		if o.Status == models.StepFailed && o.Failure != nil {
			f := *o.Failure
			return &f
		}
	}
	return nil
}

func mismatches(o models.StepOutcome) []models.Mismatch {
	var out []models.Mismatch
	for _, a := range o.Mismatches() {
		kind := a.Kind
		if kind == "" {
			kind = models.ErrorKindAssertionMismatch
		}
		out = append(out, models.Mismatch{
			Step:     o.Step,
			Check:    a.Name,
			Kind:     kind,
			Expected: a.Expected,
			Actual:   a.Actual,
			Message:  a.Message,
		})
	}
	if o.Status == models.StepErrored && o.Failure != nil {
		out = append(out, models.Mismatch{
			Step:     o.Step,
			Check:    "action",
			Kind:     o.Failure.Kind,
			Expected: o.Failure.Expected,
			Actual:   o.Failure.Actual,
			Message:  o.Failure.Message,
		})
	}
	return out
}
