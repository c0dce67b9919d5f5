package assertions

import (
	"fmt"
	"math"

	"github.com/ternarybob/uiflow/internal/models"
)

// Below checks that target starts gap pixels under anchor's bottom edge, within tolerance
func Below(name string, anchor, target *models.Box, gap, tolerance float64) models.AssertionResult {
	expected := fmt.Sprintf("gap %.0fpx ± %.0fpx", gap, tolerance)
	if anchor == nil || target == nil {
		return models.AssertionResult{Name: name, Expected: expected, Actual: "<not rendered>", Message: "element has no layout box"}
	}
	actual := target.Y - anchor.Bottom()
	passed := math.Abs(actual-gap) <= tolerance
	res := models.AssertionResult{
		Name:     name,
		Passed:   passed,
		Expected: expected,
		Actual:   fmt.Sprintf("gap %.1fpx", actual),
	}
	if !passed {
		res.Message = fmt.Sprintf("target top %.1f, anchor bottom %.1f", target.Y, anchor.Bottom())
	}
	return res
}

// WithinViewport checks that box lies entirely inside the viewport
func WithinViewport(name string, box *models.Box) models.AssertionResult {
	if box == nil {
		return models.AssertionResult{Name: name, Expected: "inside viewport", Actual: "<not rendered>", Message: "element has no layout box"}
	}
	inside := box.X >= 0 && box.Y >= 0 &&
		box.X+box.Width <= box.ViewportWidth &&
		box.Bottom() <= box.ViewportHeight
	res := models.AssertionResult{
		Name:     name,
		Passed:   inside,
		Expected: fmt.Sprintf("inside %.0fx%.0f", box.ViewportWidth, box.ViewportHeight),
		Actual:   fmt.Sprintf("x=%.0f y=%.0f w=%.0f h=%.0f", box.X, box.Y, box.Width, box.Height),
	}
	if !inside {
		res.Message = "element overflows the viewport"
	}
	return res
}
