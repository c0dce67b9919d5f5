package executor

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/models"
	"github.com/ternarybob/uiflow/internal/services/transform"
)

// Options controls step execution policy
type Options struct {
	StepTimeout          time.Duration
	NavigationTimeout    time.Duration
	WaitTimeout          time.Duration
	PollInterval         time.Duration
	FailFast             bool
	FailOnPageError      bool
	ScreenshotOnFailure  bool
	ScreenshotEveryStep  bool
	FullPageScreenshots  bool
	DOMSnapshotOnFailure bool
}

// DefaultOptions returns accumulate-and-report defaults
func DefaultOptions() Options {
	return Options{
		StepTimeout:          5 * time.Second,
		NavigationTimeout:    30 * time.Second,
		WaitTimeout:          5 * time.Second,
		PollInterval:         100 * time.Millisecond,
		ScreenshotOnFailure:  true,
		FullPageScreenshots:  true,
		DOMSnapshotOnFailure: true,
	}
}

// OptionsFromConfig maps the [executor], [browser] and [signals] sections onto Options
func OptionsFromConfig(cfg *common.Config) Options {
	d := DefaultOptions()
	return Options{
		StepTimeout:          common.ParseDurationOr(cfg.Executor.StepTimeout, d.StepTimeout),
		NavigationTimeout:    common.ParseDurationOr(cfg.Browser.NavigationTimeout, d.NavigationTimeout),
		WaitTimeout:          common.ParseDurationOr(cfg.Signals.WaitTimeout, d.WaitTimeout),
		PollInterval:         common.ParseDurationOr(cfg.Executor.PollInterval, d.PollInterval),
		FailFast:             cfg.Executor.FailFast,
		FailOnPageError:      cfg.Executor.FailOnPageError,
		ScreenshotOnFailure:  cfg.Executor.ScreenshotOnFailure,
		ScreenshotEveryStep:  cfg.Executor.ScreenshotEveryStep,
		FullPageScreenshots:  cfg.Executor.FullPageScreenshots,
		DOMSnapshotOnFailure: cfg.Executor.DOMSnapshotOnFailure,
	}
}

// StepObserver is notified after each outcome is recorded
type StepObserver func(outcome models.StepOutcome)

// Result is the executor's view of a finished run
type Result struct {
	RunState   models.RunState
	Outcomes   []models.StepOutcome
	FirstFatal *models.Failure
}

// Executor drives a scenario's steps through a Session, strictly sequentially
type Executor struct {
	opts      Options
	logger    arbor.ILogger
	transform *transform.Service
	observers []StepObserver
}

// NewExecutor creates an executor with opts
func NewExecutor(opts Options, logger arbor.ILogger) *Executor {
	return &Executor{
		opts:      opts,
		logger:    logger,
		transform: transform.NewService(logger),
	}
}

// OnStep registers an observer for recorded outcomes
func (e *Executor) OnStep(fn StepObserver) {
	e.observers = append(e.observers, fn)
}

// run carries per-execution policy so Execute stays reentrant
type run struct {
	sess            *Session
	scenario        *models.Scenario
	failFast        bool
	failOnPageError bool
	logger          arbor.ILogger
}

// Execute runs every step of scenario in order and returns the terminal run state.
// It never closes the session; the caller owns teardown.
func (e *Executor) Execute(ctx context.Context, sess *Session, scenario *models.Scenario) Result {
	r := &run{
		sess:            sess,
		scenario:        scenario,
		failFast:        e.opts.FailFast,
		failOnPageError: e.opts.FailOnPageError,
		logger:          e.logger,
	}
	if scenario.FailFast != nil {
		r.failFast = *scenario.FailFast
	}
	if scenario.FailOnPageError != nil {
		r.failOnPageError = *scenario.FailOnPageError
	}

	res := Result{RunState: models.RunStateRunning}
	e.logger.Info().Str("scenario", scenario.Name).Int("steps", len(scenario.Steps)).Bool("fail_fast", r.failFast).Msg("Scenario run started")

	record := func(o models.StepOutcome) {
		res.Outcomes = append(res.Outcomes, o)
		for _, fn := range e.observers {
			fn(o)
		}
	}

	stopped := false
	stopAfter := func(o models.StepOutcome) {
		switch o.Status {
		case models.StepErrored:
			res.RunState = models.RunStateErrored
			if res.FirstFatal == nil && o.Failure != nil {
				f := *o.Failure
				res.FirstFatal = &f
			}
			stopped = true
		case models.StepFailed:
			if res.RunState == models.RunStateRunning {
				res.RunState = models.RunStateFailed
			}
			if r.failFast {
				stopped = true
			}
		}
	}

	if scenario.BaseURL != "" || scenario.Initial != "" {
		o := e.openStep(ctx, r)
		record(o)
		stopAfter(o)
	}

	for i, step := range scenario.Steps {
		if stopped {
			record(models.StepOutcome{Index: i + 1, Step: step.Name, Status: models.StepSkipped})
			continue
		}
		o := e.runStep(ctx, r, i+1, step)
		record(o)
		stopAfter(o)
	}

	if res.RunState == models.RunStateRunning {
		res.RunState = models.RunStatePassed
	}

	e.logger.Info().
		Str("scenario", scenario.Name).
		Str("run_state", string(res.RunState)).
		Int("outcomes", len(res.Outcomes)).
		Msg("Scenario run finished")
	return res
}

// openStep loads the base URL and checks the declared initial state as step 0
func (e *Executor) openStep(ctx context.Context, r *run) models.StepOutcome {
	start := time.Now()
	firstSeq := r.sess.Bus.LastSeq()
	o := models.StepOutcome{Index: 0, Step: "open"}

	if r.scenario.BaseURL != "" {
		if err := r.sess.Driver.Navigate(ctx, r.scenario.BaseURL, e.opts.NavigationTimeout); err != nil {
			return e.errored(ctx, r, o, start, firstSeq, err, fmt.Sprintf("navigate(%s)", r.scenario.BaseURL))
		}
	}

	if r.scenario.Initial != "" {
		fatal := e.checkState(ctx, r, &o, r.scenario.Initial, e.opts.StepTimeout)
		if fatal != nil {
			return e.errored(ctx, r, o, start, firstSeq, fatal, "initial state "+r.scenario.Initial)
		}
	}

	return e.finish(ctx, r, o, start, firstSeq, false)
}

func (e *Executor) runStep(ctx context.Context, r *run, index int, step models.Step) models.StepOutcome {
	start := time.Now()
	firstSeq := r.sess.Bus.LastSeq()
	timeout := step.Timeout.Or(e.opts.StepTimeout)
	o := models.StepOutcome{Index: index, Step: step.Name}

	logger := r.logger
	logger.Debug().Int("index", index).Str("step", step.Name).Dur("timeout", timeout).Msg("Step started")

	if step.From != "" {
		eval, err := r.sess.States.IsInState(ctx, step.From, timeout)
		if err != nil {
			return e.errored(ctx, r, o, start, firstSeq, err, "from "+step.From)
		}
		if !eval.Holds {
			o.Assertions = append(o.Assertions, stateResult("precondition "+step.From, eval))
			logger.Warn().Str("step", step.Name).Str("from", step.From).Msg("Precondition state does not hold, step actions not performed")
			return e.finish(ctx, r, o, start, firstSeq, step.Screenshot)
		}
	}

	for _, action := range step.Actions {
		if err := e.perform(ctx, r, action, timeout); err != nil {
			return e.errored(ctx, r, o, start, firstSeq, err, action.Describe())
		}
	}

	for _, wait := range step.Waits {
		if fatal := e.awaitSignal(ctx, r, &o, wait, timeout); fatal != nil {
			return e.errored(ctx, r, o, start, firstSeq, fatal, fmt.Sprintf("wait(%s)", wait.Kind))
		}
	}

	if step.Expect != "" {
		if fatal := e.checkState(ctx, r, &o, step.Expect, timeout); fatal != nil {
			return e.errored(ctx, r, o, start, firstSeq, fatal, "expect "+step.Expect)
		}
	} else if current, err := r.sess.States.Current(ctx); err == nil {
		o.ObservedState = strings.Join(current, ",")
	}

	for _, spec := range step.Assertions {
		res, err := e.evaluate(ctx, r, spec, firstSeq, timeout)
		if err != nil {
			return e.errored(ctx, r, o, start, firstSeq, err, spec.Label())
		}
		o.Assertions = append(o.Assertions, res)
	}

	return e.finish(ctx, r, o, start, firstSeq, step.Screenshot)
}

// perform sends one action to the driver
func (e *Executor) perform(ctx context.Context, r *run, a models.Action, stepTimeout time.Duration) error {
	timeout := a.Timeout.Or(stepTimeout)
	d := r.sess.Driver
	r.logger.Debug().Str("action", a.Describe()).Msg("Performing action")

	switch a.Kind {
	case models.ActionNavigate:
		target, err := common.ResolveURL(r.scenario.BaseURL, a.URL)
		if err != nil {
			return models.WrapEngineError(models.ErrorKindEnvironment, "navigate", "", err)
		}
		return d.Navigate(ctx, target, a.Timeout.Or(e.opts.NavigationTimeout))
	case models.ActionClick:
		return d.Click(ctx, a.Selector, timeout)
	case models.ActionFill:
		return d.Fill(ctx, a.Selector, a.Value, timeout)
	case models.ActionSelectOption:
		return d.SelectOption(ctx, a.Selector, a.Value, timeout)
	case models.ActionPressKey:
		return d.PressKey(ctx, a.Key, timeout)
	case models.ActionWaitCondition:
		return d.WaitForCondition(ctx, a.Script, timeout)
	}
	return models.NewEngineError(models.ErrorKindEnvironment, "perform", fmt.Sprintf("unsupported action %q", a.Kind))
}

// awaitSignal binds the earliest unconsumed matching signal. Only cancellation is fatal.
func (e *Executor) awaitSignal(ctx context.Context, r *run, o *models.StepOutcome, w models.SignalWait, stepTimeout time.Duration) error {
	timeout := w.Timeout.Or(e.opts.WaitTimeout)
	if w.Timeout <= 0 && stepTimeout > timeout {
		timeout = stepTimeout
	}
	name := fmt.Sprintf("wait %s", w.Kind)

	sig, err := r.sess.Bus.WaitFor(ctx, w.SignalMatch, timeout)
	if err != nil {
		if models.IsKind(err, models.ErrorKindAborted) {
			return err
		}
		kind := models.ErrorKindSignalTimeout
		if w.Kind == models.SignalDownload {
			kind = models.ErrorKindDownloadNotStarted
		}
		o.Assertions = append(o.Assertions, models.AssertionResult{
			Name:     name,
			Kind:     kind,
			Expected: describeMatch(w.SignalMatch),
			Actual:   fmt.Sprintf("no matching signal within %s", timeout),
			Message:  err.Error(),
		})
		return nil
	}

	o.Assertions = append(o.Assertions, models.AssertionResult{
		Name:     name,
		Passed:   true,
		Expected: describeMatch(w.SignalMatch),
		Actual:   fmt.Sprintf("#%d %s", sig.Seq, common.Truncate(sig.Text(), 120)),
	})

	if sig.Kind == models.SignalDownload && sig.Download != nil {
		return e.saveDownload(ctx, r, o, sig, w.SaveAs, timeout)
	}
	return nil
}

func (e *Executor) saveDownload(ctx context.Context, r *run, o *models.StepOutcome, sig models.Signal, saveAs string, timeout time.Duration) error {
	name := saveAs
	if name == "" {
		name = sig.Download.SuggestedFilename
	}
	if name == "" {
		name = sig.Download.GUID
	}
	dest := r.sess.ArtifactPath(name)

	if err := r.sess.Driver.SaveDownload(ctx, sig.Download.GUID, dest, timeout); err != nil {
		if models.IsKind(err, models.ErrorKindAborted) {
			return err
		}
		o.Assertions = append(o.Assertions, models.AssertionResult{
			Name:     "save download",
			Kind:     models.ErrorKindActionTimeout,
			Expected: dest,
			Actual:   "download incomplete",
			Message:  err.Error(),
		})
		return nil
	}

	r.sess.SetLastDownload(dest)
	o.Evidence.Artifacts = append(o.Evidence.Artifacts, dest)
	r.logger.Info().Str("file", dest).Str("suggested", sig.Download.SuggestedFilename).Msg("Download saved")
	return nil
}

// checkState waits for name to hold and records the evaluation. Returns only fatal errors.
func (e *Executor) checkState(ctx context.Context, r *run, o *models.StepOutcome, name string, timeout time.Duration) error {
	eval, err := r.sess.States.IsInState(ctx, name, timeout)
	if err != nil {
		return err
	}
	o.Assertions = append(o.Assertions, stateResult("state "+name, eval))
	if eval.Holds {
		o.ObservedState = name
	} else if current, err := r.sess.States.Current(ctx); err == nil {
		o.ObservedState = strings.Join(current, ",")
	}

	warning, err := r.sess.States.Ambiguity(ctx)
	if err == nil && warning != "" {
		o.Warnings = append(o.Warnings, warning)
	}
	return nil
}

func (e *Executor) errored(ctx context.Context, r *run, o models.StepOutcome, start time.Time, firstSeq int64, err error, during string) models.StepOutcome {
	kind := models.KindOf(err)
	o.Failure = &models.Failure{
		Kind:     kind,
		Message:  err.Error(),
		Expected: during,
	}
	o.Status = models.StepErrored
	o.Passed = false
	o.ElapsedMs = time.Since(start).Milliseconds()
	o.SignalsSeen = seqs(r.sess.Bus.Since(firstSeq))

	r.logger.Error().Err(err).Str("step", o.Step).Str("kind", string(kind)).Msg("Step errored")
	if ctx.Err() == nil {
		e.captureEvidence(ctx, r, &o, true)
	}
	return o
}

// finish attaches signals and page errors, decides pass/fail and captures evidence
func (e *Executor) finish(ctx context.Context, r *run, o models.StepOutcome, start time.Time, firstSeq int64, screenshot bool) models.StepOutcome {
	seen := r.sess.Bus.Since(firstSeq)
	o.SignalsSeen = seqs(seen)

	var pageErrors []models.Signal
	for _, sig := range seen {
		if sig.Kind == models.SignalPageError {
			pageErrors = append(pageErrors, sig)
			o.Warnings = append(o.Warnings, "page error: "+sig.Text())
		}
	}
	if r.failOnPageError && len(pageErrors) > 0 {
		res := noPageErrors("page errors", pageErrors)
		o.Assertions = append(o.Assertions, res)
	}

	o.Passed = true
	o.Status = models.StepPassed
	for _, a := range o.Assertions {
		if a.Passed {
			continue
		}
		o.Passed = false
		o.Status = models.StepFailed
		kind := a.Kind
		if kind == "" {
			kind = models.ErrorKindAssertionMismatch
		}
		msg := a.Message
		if msg == "" {
			msg = fmt.Sprintf("%s: expected %s, got %s", a.Name, a.Expected, a.Actual)
		}
		o.Failure = &models.Failure{Kind: kind, Message: msg, Expected: a.Expected, Actual: a.Actual}
		break
	}
	o.ElapsedMs = time.Since(start).Milliseconds()

	if o.Passed {
		r.logger.Info().Int("index", o.Index).Str("step", o.Step).Int64("elapsed_ms", o.ElapsedMs).Msg("Step passed")
	} else {
		r.logger.Warn().
			Int("index", o.Index).
			Str("step", o.Step).
			Str("kind", string(o.Failure.Kind)).
			Str("expected", o.Failure.Expected).
			Str("actual", o.Failure.Actual).
			Msg("Step failed")
	}

	if screenshot || e.opts.ScreenshotEveryStep || !o.Passed {
		e.captureEvidence(ctx, r, &o, !o.Passed)
	}
	return o
}

// captureEvidence writes a screenshot and, for failures, a DOM snapshot. Errors are recorded as warnings.
func (e *Executor) captureEvidence(ctx context.Context, r *run, o *models.StepOutcome, failed bool) {
	if !failed || e.opts.ScreenshotOnFailure || e.opts.ScreenshotEveryStep {
		path := r.sess.ScreenshotPath(o.Step, "png")
		if err := r.sess.Driver.Screenshot(ctx, path, e.opts.FullPageScreenshots); err != nil {
			o.Warnings = append(o.Warnings, fmt.Sprintf("screenshot failed: %v", err))
		} else {
			o.Evidence.Screenshot = path
		}
	}

	if failed && e.opts.DOMSnapshotOnFailure {
		html, found, err := r.sess.Driver.OuterHTML(ctx, "html", e.opts.StepTimeout)
		if err != nil || !found {
			return
		}
		snapshot, err := e.transform.DOMSnapshot(html, r.scenario.BaseURL)
		if err != nil {
			o.Warnings = append(o.Warnings, fmt.Sprintf("dom snapshot failed: %v", err))
			return
		}
		path := r.sess.ScreenshotPath(o.Step+"_dom", "md")
		if err := os.WriteFile(path, []byte(snapshot), 0644); err != nil {
			o.Warnings = append(o.Warnings, fmt.Sprintf("dom snapshot failed: %v", err))
			return
		}
		o.Evidence.DOMSnapshot = path
	}
}

func stateResult(name string, eval models.StateEvaluation) models.AssertionResult {
	res := models.AssertionResult{
		Name:     name,
		Passed:   eval.Holds,
		Kind:     models.ErrorKindStateMismatch,
		Expected: eval.State,
		Actual:   eval.State,
	}
	if failing, ok := eval.FirstFailing(); ok {
		p := failing.Predicate
		res.Actual = fmt.Sprintf("%s %s=%q", p.Selector, p.Property, failing.Observed)
		res.Message = fmt.Sprintf("state %q does not hold: %s %s expected %q, observed %q",
			eval.State, p.Selector, p.Property, p.Expected, failing.Observed)
	}
	return res
}

func describeMatch(m models.SignalMatch) string {
	parts := []string{string(m.Kind)}
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, fmt.Sprintf("%s=%q", k, v))
		}
	}
	add("url_contains", m.URLContains)
	add("method", m.Method)
	if m.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", m.Status))
	}
	add("message_contains", m.MessageContains)
	add("text_contains", m.TextContains)
	add("filename_suffix", m.FilenameSuffix)
	paths := make([]string, 0, len(m.JSON))
	for path := range m.JSON {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		add(path, m.JSON[path])
	}
	return strings.Join(parts, " ")
}

func seqs(signals []models.Signal) []int64 {
	if len(signals) == 0 {
		return nil
	}
	out := make([]int64, len(signals))
	for i, s := range signals {
		out[i] = s.Seq
	}
	return out
}
