package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/models"
)

var _ interfaces.Driver = (*ChromeDriver)(nil)

// ChromeDriver drives one browser tab over the DevTools protocol
type ChromeDriver struct {
	opts   Options
	sink   interfaces.SignalSink
	policy models.DialogPolicy
	logger arbor.ILogger

	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	downloadDir   string

	mu        sync.Mutex
	downloads map[string]*download
	requests  map[string]*pendingResponse
	closed    bool
	closeErr  error
}

// probe is the snapshot of one element read in a single evaluation
type probe struct {
	Found   bool    `json:"found"`
	Node    string  `json:"node"`
	ID      string  `json:"id"`
	Visible bool    `json:"visible"`
	Text    string  `json:"text"`
	HTML    string  `json:"html"`
	HasAttr bool    `json:"has_attr"`
	Attr    string  `json:"attr"`
	Count   int     `json:"count"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	VW      float64 `json:"vw"`
	VH      float64 `json:"vh"`
}

const probeJS = `(function(sel, attr) {
	const all = document.querySelectorAll(sel);
	const el = all.length > 0 ? all[0] : null;
	if (!el) return {found: false, count: 0};
	const st = window.getComputedStyle(el);
	const r = el.getBoundingClientRect();
	const visible = st.display !== 'none' && st.visibility !== 'hidden' && el.getClientRects().length > 0;
	return {
		found: true,
		node: el.nodeName,
		id: el.id || '',
		visible: visible,
		text: el.textContent || '',
		html: el.outerHTML,
		has_attr: attr !== '' && el.hasAttribute(attr),
		attr: attr !== '' ? (el.getAttribute(attr) || '') : '',
		count: all.length,
		x: r.x, y: r.y, width: r.width, height: r.height,
		vw: window.innerWidth, vh: window.innerHeight
	};
})(%s, %s)`

// keys maps key names used in scenarios to DevTools key sequences
var keys = map[string]string{
	"Escape":     kb.Escape,
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
}

func (d *ChromeDriver) timeout(t time.Duration) time.Duration {
	if t <= 0 {
		return d.opts.DefaultTimeout
	}
	return t
}

// callContext derives a per-call context from the tab that also ends when ctx does
func (d *ChromeDriver) callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithTimeout(d.browserCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}

// classify maps a chromedp error to an engine error kind
func (d *ChromeDriver) classify(ctx context.Context, op, selector string, err error) error {
	if err == nil {
		return nil
	}
	var engineErr *models.EngineError
	if errors.As(err, &engineErr) {
		return err
	}
	var exception *runtime.ExceptionDetails
	switch {
	case errors.As(err, &exception):
		return models.WrapEngineError(models.ErrorKindScriptError, op, selector, fmt.Errorf("page script threw: %w", err))
	case ctx.Err() != nil:
		return models.WrapEngineError(models.ErrorKindAborted, op, selector, ctx.Err())
	case d.browserCtx.Err() != nil:
		return models.WrapEngineError(models.ErrorKindEnvironment, op, selector, fmt.Errorf("browser session ended: %w", err))
	case errors.Is(err, context.DeadlineExceeded):
		return models.WrapEngineError(models.ErrorKindActionTimeout, op, selector, err)
	default:
		return models.WrapEngineError(models.ErrorKindEnvironment, op, selector, err)
	}
}

func (d *ChromeDriver) probe(ctx context.Context, op, selector, attr string, timeout time.Duration) (*probe, error) {
	sel, _ := json.Marshal(selector)
	name, _ := json.Marshal(attr)

	callCtx, cancel := d.callContext(ctx, d.timeout(timeout))
	defer cancel()

	var p probe
	if err := chromedp.Run(callCtx, chromedp.Evaluate(fmt.Sprintf(probeJS, sel, name), &p)); err != nil {
		return nil, d.classify(ctx, op, selector, err)
	}
	return &p, nil
}

// waitVisible polls until selector is visible. Expiry maps to ElementNotFound when the
// element never existed and ActionTimeout when it existed but stayed hidden.
func (d *ChromeDriver) waitVisible(ctx context.Context, op, selector string, timeout time.Duration) error {
	deadline := time.Now().Add(d.timeout(timeout))
	seen := false
	for {
		p, err := d.probe(ctx, op, selector, "", time.Until(deadline)+d.opts.PollInterval)
		if err != nil && models.KindOf(err) != models.ErrorKindActionTimeout {
			return err
		}
		if p != nil {
			if p.Found && p.Visible {
				return nil
			}
			seen = seen || p.Found
		}
		if time.Now().After(deadline) {
			if !seen {
				return &models.EngineError{Kind: models.ErrorKindElementNotFound, Op: op, Selector: selector, Message: "element never appeared"}
			}
			return &models.EngineError{Kind: models.ErrorKindActionTimeout, Op: op, Selector: selector, Message: "element not visible", Err: context.DeadlineExceeded}
		}
		select {
		case <-ctx.Done():
			return models.WrapEngineError(models.ErrorKindAborted, op, selector, ctx.Err())
		case <-time.After(d.opts.PollInterval):
		}
	}
}

// act waits for selector and runs actions against it within the remaining timeout
func (d *ChromeDriver) act(ctx context.Context, op, selector string, timeout time.Duration, actions ...chromedp.Action) error {
	start := time.Now()
	total := d.timeout(timeout)
	if err := d.waitVisible(ctx, op, selector, total); err != nil {
		return err
	}
	remaining := total - time.Since(start)
	if remaining < d.opts.PollInterval {
		remaining = d.opts.PollInterval
	}

	callCtx, cancel := d.callContext(ctx, remaining)
	defer cancel()
	if err := chromedp.Run(callCtx, actions...); err != nil {
		return d.classify(ctx, op, selector, err)
	}
	d.logger.Debug().Str("op", op).Str("selector", selector).Dur("elapsed", time.Since(start)).Msg("Browser action completed")
	return nil
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = d.opts.NavigationTimeout
	}
	callCtx, cancel := d.callContext(ctx, timeout)
	defer cancel()

	d.logger.Debug().Str("url", url).Msg("Navigating")
	if err := chromedp.Run(callCtx, chromedp.Navigate(url)); err != nil {
		return d.classify(ctx, "navigate", url, err)
	}
	return nil
}

func (d *ChromeDriver) Query(ctx context.Context, selector string, timeout time.Duration) (*models.ElementHandle, error) {
	p, err := d.probe(ctx, "query", selector, "", timeout)
	if err != nil {
		return nil, err
	}
	if !p.Found {
		return nil, nil
	}
	return &models.ElementHandle{Selector: selector, NodeName: p.Node, ID: p.ID, Visible: p.Visible}, nil
}

func (d *ChromeDriver) IsVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	p, err := d.probe(ctx, "is_visible", selector, "", timeout)
	if err != nil {
		return false, err
	}
	return p.Found && p.Visible, nil
}

func (d *ChromeDriver) TextContent(ctx context.Context, selector string, timeout time.Duration) (string, bool, error) {
	p, err := d.probe(ctx, "text", selector, "", timeout)
	if err != nil {
		return "", false, err
	}
	return p.Text, p.Found, nil
}

func (d *ChromeDriver) Attribute(ctx context.Context, selector, name string, timeout time.Duration) (string, bool, error) {
	p, err := d.probe(ctx, "attribute", selector, name, timeout)
	if err != nil {
		return "", false, err
	}
	if !p.Found || !p.HasAttr {
		return "", false, nil
	}
	return p.Attr, true, nil
}

func (d *ChromeDriver) Count(ctx context.Context, selector string, timeout time.Duration) (int, error) {
	p, err := d.probe(ctx, "count", selector, "", timeout)
	if err != nil {
		return 0, err
	}
	return p.Count, nil
}

func (d *ChromeDriver) OuterHTML(ctx context.Context, selector string, timeout time.Duration) (string, bool, error) {
	p, err := d.probe(ctx, "outer_html", selector, "", timeout)
	if err != nil {
		return "", false, err
	}
	return p.HTML, p.Found, nil
}

// BoundingBox returns nil when the element is absent or not rendered
func (d *ChromeDriver) BoundingBox(ctx context.Context, selector string, timeout time.Duration) (*models.Box, error) {
	p, err := d.probe(ctx, "bounding_box", selector, "", timeout)
	if err != nil {
		return nil, err
	}
	if !p.Found || !p.Visible {
		return nil, nil
	}
	return &models.Box{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height, ViewportWidth: p.VW, ViewportHeight: p.VH}, nil
}

func (d *ChromeDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return d.act(ctx, "click", selector, timeout, chromedp.Click(selector, chromedp.ByQuery))
}

func (d *ChromeDriver) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	return d.act(ctx, "fill", selector, timeout,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (d *ChromeDriver) SelectOption(ctx context.Context, selector, value string, timeout time.Duration) error {
	sel, _ := json.Marshal(selector)
	val, _ := json.Marshal(value)
	js := fmt.Sprintf(`(function(sel, val) {
		const el = document.querySelector(sel);
		if (!el) return false;
		el.value = val;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return el.value === val;
	})(%s, %s)`, sel, val)

	var ok bool
	if err := d.act(ctx, "select_option", selector, timeout, chromedp.Evaluate(js, &ok)); err != nil {
		return err
	}
	if !ok {
		return &models.EngineError{Kind: models.ErrorKindElementNotFound, Op: "select_option", Selector: selector, Message: fmt.Sprintf("option %q not available", value)}
	}
	return nil
}

// PressKey sends key to the focused element. Named keys such as Escape are translated.
func (d *ChromeDriver) PressKey(ctx context.Context, key string, timeout time.Duration) error {
	seq, ok := keys[key]
	if !ok {
		seq = key
	}
	callCtx, cancel := d.callContext(ctx, d.timeout(timeout))
	defer cancel()
	if err := chromedp.Run(callCtx, chromedp.KeyEvent(seq)); err != nil {
		return d.classify(ctx, "press_key", key, err)
	}
	return nil
}

func (d *ChromeDriver) Screenshot(ctx context.Context, path string, fullPage bool) error {
	callCtx, cancel := d.callContext(ctx, d.opts.DefaultTimeout)
	defer cancel()

	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := chromedp.Run(callCtx, action); err != nil {
		return d.classify(ctx, "screenshot", "", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

// WaitForCondition polls js until it evaluates truthy
func (d *ChromeDriver) WaitForCondition(ctx context.Context, js string, timeout time.Duration) error {
	deadline := time.Now().Add(d.timeout(timeout))
	expr := fmt.Sprintf("!!(%s)", js)
	for {
		var ok bool
		callCtx, cancel := d.callContext(ctx, d.opts.DefaultTimeout)
		err := chromedp.Run(callCtx, chromedp.Evaluate(expr, &ok))
		cancel()
		if err != nil && ctx.Err() == nil && d.browserCtx.Err() != nil {
			return d.classify(ctx, "wait_condition", "", err)
		}
		if err == nil && ok {
			return nil
		}
		if time.Now().After(deadline) {
			return models.WrapEngineError(models.ErrorKindActionTimeout, "wait_condition", "", context.DeadlineExceeded)
		}
		select {
		case <-ctx.Done():
			return models.WrapEngineError(models.ErrorKindAborted, "wait_condition", "", ctx.Err())
		case <-time.After(d.opts.PollInterval):
		}
	}
}

func (d *ChromeDriver) Evaluate(ctx context.Context, expr string, out interface{}, timeout time.Duration) error {
	callCtx, cancel := d.callContext(ctx, d.timeout(timeout))
	defer cancel()

	var raw []byte
	if err := chromedp.Run(callCtx, chromedp.Evaluate(expr, &raw)); err != nil {
		return d.classify(ctx, "evaluate", "", err)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode evaluation result: %w", err)
	}
	return nil
}

// Close stops the browser and removes downloaded files that were not saved
func (d *ChromeDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return d.closeErr
	}
	d.closed = true
	d.mu.Unlock()

	d.flushResponses()

	var errs []error
	if err := chromedp.Cancel(d.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	d.cancelBrowser()
	d.cancelAlloc()
	if err := os.RemoveAll(d.downloadDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove download directory: %w", err))
	}

	d.mu.Lock()
	d.closeErr = errors.Join(errs...)
	d.mu.Unlock()

	d.logger.Debug().Msg("Browser session closed")
	return d.closeErr
}
