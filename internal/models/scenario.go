package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// ActionKind identifies a user-like interaction performed by a step
type ActionKind string

const (
	ActionNavigate      ActionKind = "navigate"
	ActionClick         ActionKind = "click"
	ActionFill          ActionKind = "fill"
	ActionSelectOption  ActionKind = "select_option"
	ActionPressKey      ActionKind = "press_key"
	ActionWaitCondition ActionKind = "wait_condition"
)

// Action is one interaction sent to the driver
type Action struct {
	Kind     ActionKind `toml:"kind" yaml:"kind" json:"kind" validate:"required,oneof=navigate click fill select_option press_key wait_condition"`
	Selector string     `toml:"selector" yaml:"selector" json:"selector,omitempty"`
	Value    string     `toml:"value" yaml:"value" json:"value,omitempty"`
	URL      string     `toml:"url" yaml:"url" json:"url,omitempty"`
	Key      string     `toml:"key" yaml:"key" json:"key,omitempty"`
	Script   string     `toml:"script" yaml:"script" json:"script,omitempty"`
	Timeout  Duration   `toml:"timeout" yaml:"timeout" json:"timeout,omitempty"`
}

// Describe returns a short human-readable form of the action for logs and reports
func (a Action) Describe() string {
	switch a.Kind {
	case ActionNavigate:
		return fmt.Sprintf("navigate(%s)", a.URL)
	case ActionClick:
		return fmt.Sprintf("click(%s)", a.Selector)
	case ActionFill:
		return fmt.Sprintf("fill(%s)", a.Selector)
	case ActionSelectOption:
		return fmt.Sprintf("select_option(%s=%s)", a.Selector, a.Value)
	case ActionPressKey:
		return fmt.Sprintf("press_key(%s)", a.Key)
	case ActionWaitCondition:
		return "wait_condition"
	}
	return string(a.Kind)
}

// SignalWait blocks a step until a matching signal is bound or the timeout elapses
type SignalWait struct {
	SignalMatch `yaml:",inline"`
	Timeout     Duration `toml:"timeout" yaml:"timeout" json:"timeout,omitempty"`
	// SaveAs stores a bound download under the run's evidence directory
	SaveAs string `toml:"save_as" yaml:"save_as" json:"save_as,omitempty"`
}

// AssertionKind identifies a step-scoped check
type AssertionKind string

const (
	AssertText          AssertionKind = "text"
	AssertTextContains  AssertionKind = "text_contains"
	AssertTextMatches   AssertionKind = "text_matches"
	AssertAttribute     AssertionKind = "attribute"
	AssertVisible       AssertionKind = "visible"
	AssertCount         AssertionKind = "count"
	AssertCountAtLeast  AssertionKind = "count_at_least"
	AssertSignalField   AssertionKind = "signal_field"
	AssertDialogMessage AssertionKind = "dialog_message"
	AssertCSVColumns    AssertionKind = "csv_columns"
	AssertTableColumn   AssertionKind = "table_column"
	AssertBelow         AssertionKind = "below"
	AssertInViewport    AssertionKind = "in_viewport"
	AssertNoPageErrors  AssertionKind = "no_page_errors"
)

// AssertionSpec declares one assertion. Fields are interpreted per Kind.
type AssertionSpec struct {
	Name      string        `toml:"name" yaml:"name" json:"name,omitempty"`
	Kind      AssertionKind `toml:"kind" yaml:"kind" json:"kind" validate:"required,oneof=text text_contains text_matches attribute visible count count_at_least signal_field dialog_message csv_columns table_column below in_viewport no_page_errors"`
	Selector  string        `toml:"selector" yaml:"selector" json:"selector,omitempty"`
	Attribute string        `toml:"attribute" yaml:"attribute" json:"attribute,omitempty"`
	Expected  string        `toml:"expected" yaml:"expected" json:"expected,omitempty"`
	// Required turns a missing element into an engine error instead of a mismatch
	Required bool `toml:"required" yaml:"required" json:"required,omitempty"`

	// signal_field
	Signal SignalKind `toml:"signal" yaml:"signal" json:"signal,omitempty"`
	Path   string     `toml:"path" yaml:"path" json:"path,omitempty"`

	// csv_columns
	Columns         []string `toml:"columns" yaml:"columns" json:"columns,omitempty"`
	OptionalColumns []string `toml:"optional_columns" yaml:"optional_columns" json:"optional_columns,omitempty"`
	MinRows         int      `toml:"min_rows" yaml:"min_rows" json:"min_rows,omitempty"`

	// table_column
	Column    int      `toml:"column" yaml:"column" json:"column,omitempty"`
	Forbidden []string `toml:"forbidden" yaml:"forbidden" json:"forbidden,omitempty"`

	// below
	Anchor    string  `toml:"anchor" yaml:"anchor" json:"anchor,omitempty"`
	Gap       float64 `toml:"gap" yaml:"gap" json:"gap,omitempty"`
	Tolerance float64 `toml:"tolerance" yaml:"tolerance" json:"tolerance,omitempty"`
}

// Label returns the assertion name, falling back to kind and selector
func (a AssertionSpec) Label() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Selector != "" {
		return fmt.Sprintf("%s(%s)", a.Kind, a.Selector)
	}
	return string(a.Kind)
}

// Step is one transition: actions, signal waits, the expected resulting state and assertions
type Step struct {
	Name       string          `toml:"name" yaml:"name" json:"name" validate:"required"`
	From       string          `toml:"from" yaml:"from" json:"from,omitempty"`
	Actions    []Action        `toml:"actions" yaml:"actions" json:"actions,omitempty" validate:"dive"`
	Waits      []SignalWait    `toml:"waits" yaml:"waits" json:"waits,omitempty" validate:"dive"`
	Expect     string          `toml:"expect" yaml:"expect" json:"expect,omitempty"`
	Timeout    Duration        `toml:"timeout" yaml:"timeout" json:"timeout,omitempty"`
	Assertions []AssertionSpec `toml:"assertions" yaml:"assertions" json:"assertions,omitempty" validate:"dive"`
	Screenshot bool            `toml:"screenshot" yaml:"screenshot" json:"screenshot,omitempty"`
}

// Scenario is a declarative workflow: named states plus an ordered list of steps
type Scenario struct {
	Name            string            `toml:"name" yaml:"name" json:"name" validate:"required"`
	Description     string            `toml:"description" yaml:"description" json:"description,omitempty"`
	BaseURL         string            `toml:"base_url" yaml:"base_url" json:"base_url,omitempty"`
	Initial         string            `toml:"initial" yaml:"initial" json:"initial,omitempty"`
	DialogPolicy    DialogPolicy      `toml:"dialog_policy" yaml:"dialog_policy" json:"dialog_policy,omitempty" validate:"omitempty,oneof=accept dismiss"`
	FailFast        *bool             `toml:"fail_fast" yaml:"fail_fast" json:"fail_fast,omitempty"`
	FailOnPageError *bool             `toml:"fail_on_page_error" yaml:"fail_on_page_error" json:"fail_on_page_error,omitempty"`
	Schedule        string            `toml:"schedule" yaml:"schedule" json:"schedule,omitempty"`
	Tags            []string          `toml:"tags" yaml:"tags" json:"tags,omitempty"`
	Variables       map[string]string `toml:"variables" yaml:"variables" json:"variables,omitempty"`
	States          []State           `toml:"states" yaml:"states" json:"states" validate:"dive"`
	Steps           []Step            `toml:"steps" yaml:"steps" json:"steps" validate:"required,min=1,dive"`

	// Source is the file the scenario was loaded from
	Source string `toml:"-" yaml:"-" json:"source,omitempty"`
}

var validate = validator.New()

// Validate checks structural tags and cross references between steps and states
func (s *Scenario) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("scenario %q: %w", s.Name, err)
	}

	var problems []string
	known := make(map[string]bool, len(s.States))
	for _, st := range s.States {
		if known[st.Name] {
			problems = append(problems, fmt.Sprintf("duplicate state %q", st.Name))
		}
		known[st.Name] = true
		for i, p := range st.Predicates {
			if !IsValidPredicateProperty(p.Property) {
				problems = append(problems, fmt.Sprintf("state %q predicate %d: invalid property %q", st.Name, i, p.Property))
			}
			if p.Property == PropertyAttribute && p.Attribute == "" {
				problems = append(problems, fmt.Sprintf("state %q predicate %d: attribute name required", st.Name, i))
			}
		}
	}

	if s.Initial != "" && !known[s.Initial] {
		problems = append(problems, fmt.Sprintf("initial state %q is not declared", s.Initial))
	}

	if s.Schedule != "" {
		if _, err := cron.ParseStandard(s.Schedule); err != nil {
			problems = append(problems, fmt.Sprintf("invalid schedule %q: %v", s.Schedule, err))
		}
	}

	for i, step := range s.Steps {
		prefix := fmt.Sprintf("step %d (%s)", i+1, step.Name)
		if step.Expect != "" && !known[step.Expect] {
			problems = append(problems, fmt.Sprintf("%s: expected state %q is not declared", prefix, step.Expect))
		}
		if step.From != "" && !known[step.From] {
			problems = append(problems, fmt.Sprintf("%s: from state %q is not declared", prefix, step.From))
		}
		for j, a := range step.Actions {
			if msg := checkAction(a); msg != "" {
				problems = append(problems, fmt.Sprintf("%s action %d: %s", prefix, j+1, msg))
			}
		}
		for j, w := range step.Waits {
			if !IsValidSignalKind(w.Kind) {
				problems = append(problems, fmt.Sprintf("%s wait %d: invalid signal kind %q", prefix, j+1, w.Kind))
			}
			if w.SaveAs != "" && w.Kind != SignalDownload {
				problems = append(problems, fmt.Sprintf("%s wait %d: save_as only applies to downloads", prefix, j+1))
			}
		}
		for j, a := range step.Assertions {
			if msg := checkAssertion(a); msg != "" {
				problems = append(problems, fmt.Sprintf("%s assertion %d: %s", prefix, j+1, msg))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("scenario %q: %w", s.Name, errors.New(strings.Join(problems, "; ")))
	}
	return nil
}

func checkAction(a Action) string {
	switch a.Kind {
	case ActionNavigate:
		if a.URL == "" {
			return "navigate requires url"
		}
	case ActionClick:
		if a.Selector == "" {
			return "click requires selector"
		}
	case ActionFill, ActionSelectOption:
		if a.Selector == "" {
			return fmt.Sprintf("%s requires selector", a.Kind)
		}
	case ActionPressKey:
		if a.Key == "" {
			return "press_key requires key"
		}
	case ActionWaitCondition:
		if a.Script == "" {
			return "wait_condition requires script"
		}
	}
	return ""
}

func checkAssertion(a AssertionSpec) string {
	switch a.Kind {
	case AssertText, AssertTextContains, AssertTextMatches, AssertVisible, AssertCount,
		AssertCountAtLeast, AssertTableColumn, AssertInViewport:
		if a.Selector == "" {
			return fmt.Sprintf("%s requires selector", a.Kind)
		}
	case AssertAttribute:
		if a.Selector == "" || a.Attribute == "" {
			return "attribute requires selector and attribute"
		}
	case AssertSignalField:
		if !IsValidSignalKind(a.Signal) {
			return fmt.Sprintf("signal_field requires a valid signal kind, got %q", a.Signal)
		}
	case AssertCSVColumns:
		if len(a.Columns) == 0 {
			return "csv_columns requires columns"
		}
	case AssertBelow:
		if a.Selector == "" || a.Anchor == "" {
			return "below requires selector and anchor"
		}
	}
	return ""
}

// StateByName returns the declared state with the given name
func (s *Scenario) StateByName(name string) (State, bool) {
	for _, st := range s.States {
		if st.Name == name {
			return st, true
		}
	}
	return State{}, false
}

// EffectiveDialogPolicy returns the scenario's dialog policy or fallback when unset
func (s *Scenario) EffectiveDialogPolicy(fallback DialogPolicy) DialogPolicy {
	if s.DialogPolicy != "" {
		return s.DialogPolicy
	}
	return fallback
}
