// Package assertions holds pure checks over values already read from the page, the signal
// log or a saved artifact. A semantic mismatch is a result with Passed=false, never an error.
package assertions

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/uiflow/internal/models"
)

func result(name string, passed bool, expected, actual, message string) models.AssertionResult {
	return models.AssertionResult{Name: name, Passed: passed, Expected: expected, Actual: actual, Message: message}
}

// Equals compares trimmed text
func Equals(name, expected, actual string) models.AssertionResult {
	actual = strings.TrimSpace(actual)
	passed := actual == expected
	msg := ""
	if !passed {
		msg = fmt.Sprintf("expected %q, got %q", expected, actual)
	}
	return result(name, passed, expected, actual, msg)
}

// Contains checks that actual contains expected
func Contains(name, expected, actual string) models.AssertionResult {
	passed := strings.Contains(actual, expected)
	msg := ""
	if !passed {
		msg = fmt.Sprintf("%q does not contain %q", actual, expected)
	}
	return result(name, passed, expected, actual, msg)
}

// Matches checks actual against a regular expression
func Matches(name, pattern, actual string) models.AssertionResult {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return result(name, false, pattern, actual, fmt.Sprintf("invalid pattern: %v", err))
	}
	passed := re.MatchString(actual)
	msg := ""
	if !passed {
		msg = fmt.Sprintf("%q does not match /%s/", actual, pattern)
	}
	return result(name, passed, pattern, actual, msg)
}

// AttributeEquals compares an attribute value; found=false is a mismatch
func AttributeEquals(name, attribute, expected, actual string, found bool) models.AssertionResult {
	if !found {
		return result(name, false, expected, "<absent>", fmt.Sprintf("attribute %q not present", attribute))
	}
	passed := actual == expected
	msg := ""
	if !passed {
		msg = fmt.Sprintf("attribute %q: expected %q, got %q", attribute, expected, actual)
	}
	return result(name, passed, expected, actual, msg)
}

// Visible compares element visibility
func Visible(name string, expected, actual bool) models.AssertionResult {
	passed := expected == actual
	msg := ""
	if !passed {
		if expected {
			msg = "element is not visible"
		} else {
			msg = "element is visible"
		}
	}
	return result(name, passed, strconv.FormatBool(expected), strconv.FormatBool(actual), msg)
}

// Count compares an exact element count
func Count(name string, expected, actual int) models.AssertionResult {
	passed := expected == actual
	msg := ""
	if !passed {
		msg = fmt.Sprintf("expected %d elements, found %d", expected, actual)
	}
	return result(name, passed, strconv.Itoa(expected), strconv.Itoa(actual), msg)
}

// CountAtLeast checks a lower bound on an element count
func CountAtLeast(name string, min, actual int) models.AssertionResult {
	passed := actual >= min
	msg := ""
	if !passed {
		msg = fmt.Sprintf("expected at least %d elements, found %d", min, actual)
	}
	return result(name, passed, ">= "+strconv.Itoa(min), strconv.Itoa(actual), msg)
}

// NoSignals passes when signals is empty, listing offenders otherwise
func NoSignals(name string, signals []models.Signal) models.AssertionResult {
	if len(signals) == 0 {
		return result(name, true, "none", "none", "")
	}
	texts := make([]string, 0, len(signals))
	for _, s := range signals {
		texts = append(texts, fmt.Sprintf("#%d %s: %s", s.Seq, s.Kind, s.Text()))
	}
	return result(name, false, "none", strings.Join(texts, "; "), fmt.Sprintf("%d unexpected signal(s)", len(signals)))
}
