package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/models"
	"github.com/ternarybob/uiflow/internal/services/assertions"
	"github.com/tidwall/gjson"
)

const absent = "<absent>"

// evaluate runs one step assertion. Only a missing required element or cancellation is an error.
func (e *Executor) evaluate(ctx context.Context, r *run, spec models.AssertionSpec, firstSeq int64, timeout time.Duration) (models.AssertionResult, error) {
	name := spec.Label()
	d := r.sess.Driver

	if spec.Required && spec.Selector != "" {
		h, err := d.Query(ctx, spec.Selector, timeout)
		if err != nil {
			return models.AssertionResult{}, err
		}
		if h == nil {
			return models.AssertionResult{}, &models.EngineError{
				Kind:     models.ErrorKindElementNotFound,
				Op:       string(spec.Kind),
				Selector: spec.Selector,
				Message:  "required element is not present",
			}
		}
	}

	switch spec.Kind {
	case models.AssertText, models.AssertTextContains, models.AssertTextMatches:
		text, found, err := d.TextContent(ctx, spec.Selector, timeout)
		if err != nil {
			return models.AssertionResult{}, err
		}
		if !found {
			text = absent
		}
		switch spec.Kind {
		case models.AssertText:
			return assertions.Equals(name, spec.Expected, text), nil
		case models.AssertTextContains:
			return assertions.Contains(name, spec.Expected, text), nil
		default:
			return assertions.Matches(name, spec.Expected, text), nil
		}

	case models.AssertAttribute:
		value, found, err := d.Attribute(ctx, spec.Selector, spec.Attribute, timeout)
		if err != nil {
			return models.AssertionResult{}, err
		}
		return assertions.AttributeEquals(name, spec.Attribute, spec.Expected, value, found), nil

	case models.AssertVisible:
		visible, err := d.IsVisible(ctx, spec.Selector, timeout)
		if err != nil {
			return models.AssertionResult{}, err
		}
		expected := true
		if spec.Expected != "" {
			expected, err = strconv.ParseBool(spec.Expected)
			if err != nil {
				return invalid(name, spec.Expected, "expected must be true or false"), nil
			}
		}
		return assertions.Visible(name, expected, visible), nil

	case models.AssertCount, models.AssertCountAtLeast:
		want, err := strconv.Atoi(spec.Expected)
		if err != nil {
			return invalid(name, spec.Expected, "expected must be an integer"), nil
		}
		n, err := d.Count(ctx, spec.Selector, timeout)
		if err != nil {
			return models.AssertionResult{}, err
		}
		if spec.Kind == models.AssertCount {
			return assertions.Count(name, want, n), nil
		}
		return assertions.CountAtLeast(name, want, n), nil

	case models.AssertSignalField:
		return signalField(name, r, spec, firstSeq), nil

	case models.AssertDialogMessage:
		sig, ok := latest(r, models.SignalDialog, firstSeq)
		if !ok {
			return models.AssertionResult{Name: name, Expected: spec.Expected, Actual: "<no dialog>", Message: "no dialog was observed"}, nil
		}
		return assertions.Contains(name, spec.Expected, sig.Dialog.Message), nil

	case models.AssertCSVColumns:
		return e.csvColumns(name, r, spec), nil

	case models.AssertTableColumn:
		html, found, err := d.OuterHTML(ctx, spec.Selector, timeout)
		if err != nil {
			return models.AssertionResult{}, err
		}
		if !found {
			return models.AssertionResult{Name: name, Expected: "table rows", Actual: absent, Message: fmt.Sprintf("%s is not present", spec.Selector)}, nil
		}
		res, err := assertions.TableColumn(name, html, spec.Column, spec.Forbidden)
		if err != nil {
			return models.AssertionResult{Name: name, Expected: "table rows", Actual: "unparseable", Message: err.Error()}, nil
		}
		return res, nil

	case models.AssertBelow:
		anchor, err := d.BoundingBox(ctx, spec.Anchor, timeout)
		if err != nil {
			return models.AssertionResult{}, err
		}
		target, err := d.BoundingBox(ctx, spec.Selector, timeout)
		if err != nil {
			return models.AssertionResult{}, err
		}
		return assertions.Below(name, anchor, target, spec.Gap, spec.Tolerance), nil

	case models.AssertInViewport:
		box, err := d.BoundingBox(ctx, spec.Selector, timeout)
		if err != nil {
			return models.AssertionResult{}, err
		}
		return assertions.WithinViewport(name, box), nil

	case models.AssertNoPageErrors:
		var errs []models.Signal
		for _, sig := range r.sess.Bus.Since(firstSeq) {
			if sig.Kind == models.SignalPageError {
				errs = append(errs, sig)
			}
		}
		return noPageErrors(name, errs), nil
	}

	return invalid(name, string(spec.Kind), "unsupported assertion kind"), nil
}

// signalField compares a value taken from the latest signal of the given kind.
// For network responses Path addresses the JSON body; for other kinds it addresses the signal itself.
func signalField(name string, r *run, spec models.AssertionSpec, firstSeq int64) models.AssertionResult {
	sig, ok := latest(r, spec.Signal, firstSeq)
	if !ok {
		return models.AssertionResult{Name: name, Expected: spec.Expected, Actual: "<no signal>", Message: fmt.Sprintf("no %s signal was observed", spec.Signal)}
	}

	var actual string
	switch {
	case spec.Path == "":
		actual = sig.Text()
	case sig.Response != nil:
		if !gjson.Valid(sig.Response.Body) {
			return models.AssertionResult{Name: name, Expected: spec.Expected, Actual: common.Truncate(sig.Response.Body, 120), Message: "response body is not JSON"}
		}
		field := gjson.Get(sig.Response.Body, spec.Path)
		if !field.Exists() {
			return models.AssertionResult{Name: name, Expected: spec.Expected, Actual: absent, Message: fmt.Sprintf("path %q not present in response body", spec.Path)}
		}
		actual = field.String()
	default:
		data, err := json.Marshal(sig)
		if err != nil {
			return models.AssertionResult{Name: name, Expected: spec.Expected, Actual: "<unencodable>", Message: err.Error()}
		}
		field := gjson.GetBytes(data, spec.Path)
		if !field.Exists() {
			return models.AssertionResult{Name: name, Expected: spec.Expected, Actual: absent, Message: fmt.Sprintf("path %q not present in signal", spec.Path)}
		}
		actual = field.String()
	}
	return assertions.Equals(name, spec.Expected, actual)
}

// csvColumns checks the header of the last saved download. Empty values and optional columns are informational.
func (e *Executor) csvColumns(name string, r *run, spec models.AssertionSpec) models.AssertionResult {
	path := r.sess.LastDownload()
	if path == "" {
		return models.AssertionResult{Name: name, Kind: models.ErrorKindDownloadNotStarted, Expected: "saved download", Actual: "<none>", Message: "no download has been saved in this run"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.AssertionResult{Name: name, Expected: "readable csv", Actual: path, Message: err.Error()}
	}
	header, records, err := assertions.ParseCSV(data)
	if err != nil {
		return models.AssertionResult{Name: name, Expected: "csv", Actual: path, Message: err.Error()}
	}

	res, missing := assertions.CSVShape(name, header, spec.Columns)
	if len(missing) > 0 {
		r.logger.Warn().Strs("missing", missing).Str("file", path).Msg("CSV export is missing required columns")
	}

	if spec.MinRows > 0 && len(records) < spec.MinRows && res.Passed {
		res.Passed = false
		res.Actual = fmt.Sprintf("%d row(s)", len(records))
		res.Expected = fmt.Sprintf(">= %d row(s)", spec.MinRows)
		res.Message = "not enough data rows"
	}

	res.Info = append(res.Info, fmt.Sprintf("%d column(s), %d data row(s)", len(header), len(records)))
	if rows, empty := assertions.CSVRows(name, header, records, append(append([]string{}, spec.Columns...), spec.OptionalColumns...)); len(empty) > 0 {
		res.Info = append(res.Info, "empty values: "+rows.Actual)
	}
	res.Info = append(res.Info, assertions.OptionalColumnInfo(header, spec.OptionalColumns)...)
	return res
}

// latest returns the newest signal of kind seen during the step, falling back to the whole run
func latest(r *run, kind models.SignalKind, firstSeq int64) (models.Signal, bool) {
	step := r.sess.Bus.Since(firstSeq)
	for i := len(step) - 1; i >= 0; i-- {
		if step[i].Kind == kind {
			return step[i], true
		}
	}
	return r.sess.Bus.Last(kind)
}

func noPageErrors(name string, errs []models.Signal) models.AssertionResult {
	return assertions.NoSignals(name, errs)
}

func invalid(name, expected, message string) models.AssertionResult {
	return models.AssertionResult{Name: name, Expected: strings.TrimSpace(expected), Actual: "<invalid assertion>", Message: message}
}
