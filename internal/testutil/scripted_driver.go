// Package testutil provides an in-memory Driver whose page state is scripted by tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/models"
)

// Element is the scripted state of one selector
type Element struct {
	Visible bool
	Text    string
	Attrs   map[string]string
	HTML    string
	Box     *models.Box
	// Matches is the number of nodes the selector resolves to; zero means one
	Matches int
}

// ScriptedDriver implements interfaces.Driver over a map of selector states.
// Hooks run synchronously inside the action that triggers them.
type ScriptedDriver struct {
	mu        sync.Mutex
	elements  map[string]*Element
	values    map[string]string
	conds     map[string]func() bool
	evals     map[string]interface{}
	downloads map[string][]byte
	onClick   map[string]func(d *ScriptedDriver)
	onKey     map[string]func(d *ScriptedDriver)
	onNav     func(d *ScriptedDriver, url string)
	failures  map[string]error
	calls     []string
	closed    int
	sink      interfaces.SignalSink
	timers    []*time.Timer

	DefaultTimeout time.Duration
	PollInterval   time.Duration
}

// NewScriptedDriver creates an empty page
func NewScriptedDriver() *ScriptedDriver {
	return &ScriptedDriver{
		elements:       make(map[string]*Element),
		values:         make(map[string]string),
		conds:          make(map[string]func() bool),
		evals:          make(map[string]interface{}),
		downloads:      make(map[string][]byte),
		onClick:        make(map[string]func(d *ScriptedDriver)),
		onKey:          make(map[string]func(d *ScriptedDriver)),
		failures:       make(map[string]error),
		DefaultTimeout: time.Second,
		PollInterval:   10 * time.Millisecond,
	}
}

// Factory returns a DriverFactory that hands out this driver and wires its signal sink
func (d *ScriptedDriver) Factory() interfaces.DriverFactory {
	return func(ctx context.Context, sink interfaces.SignalSink, policy models.DialogPolicy) (interfaces.Driver, error) {
		d.mu.Lock()
		d.sink = sink
		d.mu.Unlock()
		return d, nil
	}
}

// Set replaces the state of selector
func (d *ScriptedDriver) Set(selector string, el Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := el
	d.elements[selector] = &cp
}

// Show marks selector present and visible, keeping other fields
func (d *ScriptedDriver) Show(selector string) {
	d.setVisible(selector, true)
}

// Hide marks selector present and hidden
func (d *ScriptedDriver) Hide(selector string) {
	d.setVisible(selector, false)
}

func (d *ScriptedDriver) setVisible(selector string, visible bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.elements[selector]
	if !ok {
		el = &Element{}
		d.elements[selector] = el
	}
	el.Visible = visible
}

// SetText updates the text of selector, creating a visible element when absent
func (d *ScriptedDriver) SetText(selector, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.elements[selector]
	if !ok {
		el = &Element{Visible: true}
		d.elements[selector] = el
	}
	el.Text = text
}

// Remove detaches selector from the page
func (d *ScriptedDriver) Remove(selector string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.elements, selector)
}

// After runs fn once delay has elapsed
func (d *ScriptedDriver) After(delay time.Duration, fn func(d *ScriptedDriver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timers = append(d.timers, time.AfterFunc(delay, func() { fn(d) }))
}

// Emit appends sig to the session's signal sink
func (d *ScriptedDriver) Emit(sig models.Signal) {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	if sink != nil {
		sink.Append(sig)
	}
}

// EmitAfter appends sig once delay has elapsed
func (d *ScriptedDriver) EmitAfter(delay time.Duration, sig models.Signal) {
	d.After(delay, func(d *ScriptedDriver) { d.Emit(sig) })
}

// OnClick registers a hook for clicks on selector
func (d *ScriptedDriver) OnClick(selector string, fn func(d *ScriptedDriver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClick[selector] = fn
}

// OnKey registers a hook for a key press
func (d *ScriptedDriver) OnKey(key string, fn func(d *ScriptedDriver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onKey[key] = fn
}

// OnNavigate registers a hook for navigation
func (d *ScriptedDriver) OnNavigate(fn func(d *ScriptedDriver, url string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onNav = fn
}

// SetCondition registers the result function for a WaitForCondition expression
func (d *ScriptedDriver) SetCondition(js string, fn func() bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conds[js] = fn
}

// SetEval registers the value returned by Evaluate for expr. value may be an error, a
// func() interface{} or a func(context.Context) (interface{}, error).
func (d *ScriptedDriver) SetEval(expr string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evals[expr] = value
}

// AddDownload registers the bytes served for a download GUID
func (d *ScriptedDriver) AddDownload(guid string, content []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.downloads[guid] = content
}

// FailOn makes the named operation ("click:#sel", "navigate") return err
func (d *ScriptedDriver) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = err
}

// Value returns the last value filled into selector
func (d *ScriptedDriver) Value(selector string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.values[selector]
}

// Calls returns the recorded action log
func (d *ScriptedDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

// CloseCount returns how many times Close was called
func (d *ScriptedDriver) CloseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *ScriptedDriver) record(call string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
	if err, ok := d.failures[call]; ok {
		return err
	}
	return nil
}

func (d *ScriptedDriver) lookup(selector string) (Element, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.elements[selector]
	if !ok {
		return Element{}, false
	}
	return *el, true
}

func (d *ScriptedDriver) timeout(t time.Duration) time.Duration {
	if t <= 0 {
		return d.DefaultTimeout
	}
	return t
}

// waitVisible polls until selector is visible, mapping expiry to ElementNotFound or ActionTimeout
func (d *ScriptedDriver) waitVisible(ctx context.Context, op, selector string, timeout time.Duration) error {
	deadline := time.Now().Add(d.timeout(timeout))
	for {
		el, ok := d.lookup(selector)
		if ok && el.Visible {
			return nil
		}
		if time.Now().After(deadline) {
			if !ok {
				return &models.EngineError{Kind: models.ErrorKindElementNotFound, Op: op, Selector: selector, Message: "element never appeared"}
			}
			return models.WrapEngineError(models.ErrorKindActionTimeout, op, selector, context.DeadlineExceeded)
		}
		select {
		case <-ctx.Done():
			return models.WrapEngineError(models.ErrorKindAborted, op, selector, ctx.Err())
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *ScriptedDriver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := d.record("navigate"); err != nil {
		return err
	}
	d.mu.Lock()
	hook := d.onNav
	d.mu.Unlock()
	if hook != nil {
		hook(d, url)
	}
	return nil
}

func (d *ScriptedDriver) Query(ctx context.Context, selector string, timeout time.Duration) (*models.ElementHandle, error) {
	el, ok := d.lookup(selector)
	if !ok {
		return nil, nil
	}
	return &models.ElementHandle{Selector: selector, NodeName: "DIV", Visible: el.Visible}, nil
}

func (d *ScriptedDriver) IsVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	el, ok := d.lookup(selector)
	return ok && el.Visible, nil
}

func (d *ScriptedDriver) TextContent(ctx context.Context, selector string, timeout time.Duration) (string, bool, error) {
	el, ok := d.lookup(selector)
	return el.Text, ok, nil
}

func (d *ScriptedDriver) Attribute(ctx context.Context, selector, name string, timeout time.Duration) (string, bool, error) {
	el, ok := d.lookup(selector)
	if !ok {
		return "", false, nil
	}
	v, has := el.Attrs[name]
	return v, has, nil
}

func (d *ScriptedDriver) Count(ctx context.Context, selector string, timeout time.Duration) (int, error) {
	el, ok := d.lookup(selector)
	if !ok {
		return 0, nil
	}
	if el.Matches > 0 {
		return el.Matches, nil
	}
	return 1, nil
}

func (d *ScriptedDriver) OuterHTML(ctx context.Context, selector string, timeout time.Duration) (string, bool, error) {
	el, ok := d.lookup(selector)
	return el.HTML, ok, nil
}

func (d *ScriptedDriver) BoundingBox(ctx context.Context, selector string, timeout time.Duration) (*models.Box, error) {
	el, ok := d.lookup(selector)
	if !ok || !el.Visible || el.Box == nil {
		return nil, nil
	}
	box := *el.Box
	return &box, nil
}

func (d *ScriptedDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := d.record("click:" + selector); err != nil {
		return err
	}
	if err := d.waitVisible(ctx, "click", selector, timeout); err != nil {
		return err
	}
	d.mu.Lock()
	hook := d.onClick[selector]
	d.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return nil
}

func (d *ScriptedDriver) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	if err := d.record("fill:" + selector); err != nil {
		return err
	}
	if err := d.waitVisible(ctx, "fill", selector, timeout); err != nil {
		return err
	}
	d.mu.Lock()
	d.values[selector] = value
	d.mu.Unlock()
	return nil
}

func (d *ScriptedDriver) SelectOption(ctx context.Context, selector, value string, timeout time.Duration) error {
	if err := d.record("select:" + selector); err != nil {
		return err
	}
	if err := d.waitVisible(ctx, "select_option", selector, timeout); err != nil {
		return err
	}
	d.mu.Lock()
	d.values[selector] = value
	d.mu.Unlock()
	return nil
}

func (d *ScriptedDriver) PressKey(ctx context.Context, key string, timeout time.Duration) error {
	if err := d.record("key:" + key); err != nil {
		return err
	}
	d.mu.Lock()
	hook := d.onKey[key]
	d.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return nil
}

func (d *ScriptedDriver) Screenshot(ctx context.Context, path string, fullPage bool) error {
	if err := d.record("screenshot"); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("scripted screenshot"), 0644)
}

func (d *ScriptedDriver) WaitForCondition(ctx context.Context, js string, timeout time.Duration) error {
	deadline := time.Now().Add(d.timeout(timeout))
	for {
		d.mu.Lock()
		fn := d.conds[js]
		d.mu.Unlock()
		if fn != nil && fn() {
			return nil
		}
		if time.Now().After(deadline) {
			return models.WrapEngineError(models.ErrorKindActionTimeout, "wait_condition", "", context.DeadlineExceeded)
		}
		select {
		case <-ctx.Done():
			return models.WrapEngineError(models.ErrorKindAborted, "wait_condition", "", ctx.Err())
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *ScriptedDriver) Evaluate(ctx context.Context, expr string, out interface{}, timeout time.Duration) error {
	d.mu.Lock()
	v, ok := d.evals[expr]
	d.mu.Unlock()
	if !ok {
		v = nil
	}
	switch fn := v.(type) {
	case func() interface{}:
		v = fn()
	case func(context.Context) (interface{}, error):
		var err error
		if v, err = fn(ctx); err != nil {
			return err
		}
	case error:
		return fn
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (d *ScriptedDriver) SaveDownload(ctx context.Context, guid, dest string, timeout time.Duration) error {
	d.mu.Lock()
	content, ok := d.downloads[guid]
	d.mu.Unlock()
	if !ok {
		return models.NewEngineError(models.ErrorKindActionTimeout, "save_download", fmt.Sprintf("download %s never completed", guid))
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return os.WriteFile(dest, content, 0644)
}

func (d *ScriptedDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	for _, t := range d.timers {
		t.Stop()
	}
	d.timers = nil
	return nil
}
