package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/models"
	"golang.org/x/time/rate"
)

// DefaultPollInterval paces predicate re-evaluation
const DefaultPollInterval = 100 * time.Millisecond

const absent = "<absent>"

// Model evaluates a scenario's named states against the live page.
// Every evaluation re-queries the driver; nothing is cached between calls.
type Model struct {
	driver       interfaces.Driver
	states       map[string]models.State
	order        []string
	pollInterval time.Duration
	logger       arbor.ILogger
}

// NewModel creates a state model over driver
func NewModel(driver interfaces.Driver, states []models.State, pollInterval time.Duration, logger arbor.ILogger) *Model {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	m := &Model{
		driver:       driver,
		states:       make(map[string]models.State, len(states)),
		pollInterval: pollInterval,
		logger:       logger,
	}
	for _, s := range states {
		m.states[s.Name] = s
		m.order = append(m.order, s.Name)
	}
	return m
}

// Names returns the declared state names in declaration order
func (m *Model) Names() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Evaluate checks state name once, without waiting
func (m *Model) Evaluate(ctx context.Context, name string) (models.StateEvaluation, error) {
	st, ok := m.states[name]
	if !ok {
		return models.StateEvaluation{State: name}, models.NewEngineError(models.ErrorKindStateMismatch, "evaluate", fmt.Sprintf("unknown state %q", name))
	}
	return m.evaluate(ctx, st)
}

// IsInState polls state name until every predicate holds in the same pass or timeout elapses.
// A timeout is not an error: the returned evaluation has Holds=false and the last observations.
func (m *Model) IsInState(ctx context.Context, name string, timeout time.Duration) (models.StateEvaluation, error) {
	st, ok := m.states[name]
	if !ok {
		return models.StateEvaluation{State: name}, models.NewEngineError(models.ErrorKindStateMismatch, "isInState", fmt.Sprintf("unknown state %q", name))
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(m.pollInterval), 1)
	attempts := 0
	for {
		attempts++
		eval, err := m.evaluateWithin(ctx, waitCtx, st)
		if err != nil {
			return eval, err
		}
		if eval.Holds {
			m.logger.Debug().Str("state", name).Int("attempts", attempts).Msg("State holds")
			return eval, nil
		}
		if waitCtx.Err() != nil {
			return eval, m.expired(ctx, name, attempts, timeout)
		}

		if err := limiter.Wait(waitCtx); err != nil {
			if ctx.Err() != nil {
				return eval, models.WrapEngineError(models.ErrorKindAborted, "isInState", "", ctx.Err())
			}
			// Wait fails early when the next tick is past the deadline; take one final reading.
			last, err := m.evaluateWithin(ctx, waitCtx, st)
			if err != nil {
				return last, err
			}
			if !last.Holds {
				return last, m.expired(ctx, name, attempts+1, timeout)
			}
			return last, nil
		}
	}
}

// expired logs a state that never held and reports Aborted when the caller's ctx ended
func (m *Model) expired(ctx context.Context, name string, attempts int, timeout time.Duration) error {
	if ctx.Err() != nil {
		return models.WrapEngineError(models.ErrorKindAborted, "isInState", "", ctx.Err())
	}
	m.logger.Debug().Str("state", name).Int("attempts", attempts).Dur("timeout", timeout).Msg("State did not hold before timeout")
	return nil
}

// evaluateWithin runs one pass with driver calls bounded by waitCtx. A pass cut short by
// the wait deadline reads as not holding; only ctx ending is an abort.
func (m *Model) evaluateWithin(ctx, waitCtx context.Context, st models.State) (models.StateEvaluation, error) {
	eval, err := m.evaluate(waitCtx, st)
	if err != nil && waitCtx.Err() != nil && ctx.Err() == nil {
		eval.Holds = false
		return eval, nil
	}
	return eval, err
}

// Current returns every non-empty state that holds right now
func (m *Model) Current(ctx context.Context) ([]string, error) {
	var holding []string
	for _, name := range m.order {
		st := m.states[name]
		if len(st.Predicates) == 0 {
			continue
		}
		eval, err := m.evaluate(ctx, st)
		if err != nil {
			return nil, err
		}
		if eval.Holds {
			holding = append(holding, name)
		}
	}
	return holding, nil
}

// Ambiguity returns a warning when more than one non-empty state holds at once
func (m *Model) Ambiguity(ctx context.Context) (string, error) {
	holding, err := m.Current(ctx)
	if err != nil {
		return "", err
	}
	if len(holding) <= 1 {
		return "", nil
	}
	warning := fmt.Sprintf("%s: states hold simultaneously: %s", models.ErrorKindStateAmbiguity, strings.Join(holding, ", "))
	m.logger.Warn().Strs("states", holding).Msg("State ambiguity detected")
	return warning, nil
}

func (m *Model) evaluate(ctx context.Context, st models.State) (models.StateEvaluation, error) {
	eval := models.StateEvaluation{State: st.Name, Holds: true}
	for _, p := range st.Predicates {
		res, err := m.check(ctx, p)
		if err != nil {
			eval.Holds = false
			return eval, err
		}
		eval.Predicates = append(eval.Predicates, res)
		if !res.Holds {
			eval.Holds = false
		}
	}
	return eval, nil
}

func (m *Model) check(ctx context.Context, p models.Predicate) (models.PredicateResult, error) {
	res := models.PredicateResult{Predicate: p}

	switch p.Property {
	case models.PropertyVisible:
		visible, err := m.driver.IsVisible(ctx, p.Selector, 0)
		if err != nil {
			return res, err
		}
		res.Observed = strconv.FormatBool(visible)
		res.Holds = visible == expectBool(p.Expected)

	case models.PropertyExists:
		handle, err := m.driver.Query(ctx, p.Selector, 0)
		if err != nil {
			return res, err
		}
		res.Observed = strconv.FormatBool(handle != nil)
		res.Holds = (handle != nil) == expectBool(p.Expected)

	case models.PropertyText, models.PropertyTextContains:
		text, found, err := m.driver.TextContent(ctx, p.Selector, 0)
		if err != nil {
			return res, err
		}
		if !found {
			res.Observed = absent
			return res, nil
		}
		text = strings.TrimSpace(text)
		res.Observed = text
		if p.Property == models.PropertyText {
			res.Holds = text == p.Expected
		} else {
			res.Holds = strings.Contains(text, p.Expected)
		}

	case models.PropertyAttribute:
		value, found, err := m.driver.Attribute(ctx, p.Selector, p.Attribute, 0)
		if err != nil {
			return res, err
		}
		if !found {
			res.Observed = absent
			return res, nil
		}
		res.Observed = value
		res.Holds = value == p.Expected

	case models.PropertyCount:
		want, err := strconv.Atoi(p.Expected)
		if err != nil {
			return res, models.NewEngineError(models.ErrorKindStateMismatch, "count", fmt.Sprintf("invalid expected count %q", p.Expected))
		}
		n, err := m.driver.Count(ctx, p.Selector, 0)
		if err != nil {
			return res, err
		}
		res.Observed = strconv.Itoa(n)
		res.Holds = n == want

	case models.PropertyJS:
		var out interface{}
		if err := m.driver.Evaluate(ctx, p.Selector, &out, 0); err != nil {
			// A throwing expression (e.g. reading a node not rendered yet) is not holding
			var engineErr *models.EngineError
			if errors.As(err, &engineErr) && engineErr.Kind != models.ErrorKindScriptError {
				return res, err
			}
			res.Observed = err.Error()
			return res, nil
		}
		truthy := isTruthy(out)
		res.Observed = strconv.FormatBool(truthy)
		res.Holds = truthy == expectBool(p.Expected)

	default:
		return res, models.NewEngineError(models.ErrorKindStateMismatch, "check", fmt.Sprintf("unsupported property %q", p.Property))
	}

	return res, nil
}

// expectBool treats an empty expectation as true
func expectBool(expected string) bool {
	if expected == "" {
		return true
	}
	b, err := strconv.ParseBool(expected)
	return err == nil && b
}

func isTruthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
