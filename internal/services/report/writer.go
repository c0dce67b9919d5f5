package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/uiflow/internal/models"
)

// WriteSummary prints a human-readable per-step summary of r
func WriteSummary(w io.Writer, r *models.ScenarioReport) error {
	var b strings.Builder

	b.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&b, "SCENARIO: %s  [%s]\n", r.Scenario, r.Verdict)
	fmt.Fprintf(&b, "Run: %s (%.2fs)\n", r.ID, float64(r.DurationMs)/1000)
	b.WriteString(strings.Repeat("=", 80) + "\n")

	for _, s := range r.Steps {
		mark := "✓"
		status := "PASS"
		switch s.Status {
		case models.StepFailed:
			mark, status = "✗", "FAIL"
		case models.StepErrored:
			mark, status = "✗", "ERROR"
		case models.StepSkipped:
			mark, status = "-", "SKIP"
		}
		fmt.Fprintf(&b, "%s %2d. %-40s %-5s (%dms)", mark, s.Index, s.Step, status, s.ElapsedMs)
		if s.ObservedState != "" {
			fmt.Fprintf(&b, " state=%s", s.ObservedState)
		}
		b.WriteString("\n")

		if s.Failure != nil {
			fmt.Fprintf(&b, "      %s: %s\n", s.Failure.Kind, s.Failure.Message)
			if s.Failure.Expected != "" || s.Failure.Actual != "" {
				fmt.Fprintf(&b, "      expected: %s\n      actual:   %s\n", s.Failure.Expected, s.Failure.Actual)
			}
		}
		for _, a := range s.Mismatches() {
			if s.Failure != nil && a.Message == s.Failure.Message {
				continue
			}
			fmt.Fprintf(&b, "      - %s: expected %s, got %s\n", a.Name, a.Expected, a.Actual)
		}
		for _, a := range s.Assertions {
			for _, info := range a.Info {
				fmt.Fprintf(&b, "      i %s\n", info)
			}
		}
		for _, warning := range s.Warnings {
			fmt.Fprintf(&b, "      ! %s\n", warning)
		}
		for _, path := range s.Evidence.Paths() {
			fmt.Fprintf(&b, "      evidence: %s\n", path)
		}
	}

	b.WriteString(strings.Repeat("-", 80) + "\n")
	fmt.Fprintf(&b, "Steps: %d/%d passed, %d signal(s) captured\n", r.PassedCount(), len(r.Steps), len(r.Signals))
	if r.FirstFatal != nil && r.Verdict != models.VerdictPassed {
		fmt.Fprintf(&b, "First cause: %s: %s\n", r.FirstFatal.Kind, r.FirstFatal.Message)
	}
	if r.ResultsDir != "" {
		fmt.Fprintf(&b, "Results: %s\n", r.ResultsDir)
	}
	if r.Passed() {
		b.WriteString("\n✓ SCENARIO PASSED\n")
	} else {
		fmt.Fprintf(&b, "\n✗ SCENARIO %s\n", strings.ToUpper(string(r.Verdict)))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteRunSummary prints one line per report and the overall totals
func WriteRunSummary(w io.Writer, reports []*models.ScenarioReport) error {
	var b strings.Builder
	b.WriteString("\n" + strings.Repeat("=", 80) + "\n")
	b.WriteString("RUN SUMMARY\n")
	b.WriteString(strings.Repeat("=", 80) + "\n")

	passed := 0
	for _, r := range reports {
		if r.Passed() {
			passed++
		}
		fmt.Fprintf(&b, "%-40s %-8s %d/%d steps (%.2fs)\n", r.Scenario, r.Verdict, r.PassedCount(), len(r.Steps), float64(r.DurationMs)/1000)
	}
	b.WriteString(strings.Repeat("-", 80) + "\n")
	fmt.Fprintf(&b, "Total: %d passed, %d not passed\n", passed, len(reports)-passed)

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON writes the structured verdict
func WriteJSON(w io.Writer, r *models.ScenarioReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteJSONFile writes the structured verdict to path, creating parent directories
func WriteJSONFile(path string, r *models.ScenarioReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()
	return WriteJSON(f, r)
}
