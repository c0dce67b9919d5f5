package models

// PredicateProperty names the observable property a predicate checks
type PredicateProperty string

const (
	PropertyVisible      PredicateProperty = "visible"
	PropertyExists       PredicateProperty = "exists"
	PropertyText         PredicateProperty = "text"
	PropertyTextContains PredicateProperty = "text_contains"
	PropertyAttribute    PredicateProperty = "attribute"
	PropertyCount        PredicateProperty = "count"
	PropertyJS           PredicateProperty = "js"
)

// IsValidPredicateProperty checks if p is one of the known predicate properties
func IsValidPredicateProperty(p PredicateProperty) bool {
	switch p {
	case PropertyVisible, PropertyExists, PropertyText, PropertyTextContains,
		PropertyAttribute, PropertyCount, PropertyJS:
		return true
	default:
		return false
	}
}

// Predicate is a (selector, property, expected value) triple.
// For PropertyJS the Selector holds a JavaScript expression that must evaluate truthy.
type Predicate struct {
	Selector  string            `toml:"selector" yaml:"selector" json:"selector" validate:"required"`
	Property  PredicateProperty `toml:"property" yaml:"property" json:"property" validate:"required"`
	Attribute string            `toml:"attribute" yaml:"attribute" json:"attribute,omitempty"`
	Expected  string            `toml:"expected" yaml:"expected" json:"expected"`
}

// State is a named UI condition defined by the conjunction of its predicates.
// A state without predicates always holds.
type State struct {
	Name        string      `toml:"name" yaml:"name" json:"name" validate:"required"`
	Description string      `toml:"description" yaml:"description" json:"description,omitempty"`
	Predicates  []Predicate `toml:"predicates" yaml:"predicates" json:"predicates" validate:"dive"`
}

// PredicateResult records one predicate evaluation
type PredicateResult struct {
	Predicate Predicate `json:"predicate"`
	Holds     bool      `json:"holds"`
	Observed  string    `json:"observed"`
}

// StateEvaluation is the result of checking one state against the live page
type StateEvaluation struct {
	State      string            `json:"state"`
	Holds      bool              `json:"holds"`
	Predicates []PredicateResult `json:"predicates,omitempty"`
}

// FirstFailing returns the first predicate that did not hold, if any
func (e StateEvaluation) FirstFailing() (PredicateResult, bool) {
	for _, p := range e.Predicates {
		if !p.Holds {
			return p, true
		}
	}
	return PredicateResult{}, false
}
