package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/models"
)

// download tracks one browser download until it completes or is canceled
type download struct {
	guid     string
	filename string
	state    browser.DownloadProgressState
	done     chan struct{}
}

// pendingResponse holds response metadata until its body is available.
// seq is the bus slot reserved when the response arrived, or 0.
type pendingResponse struct {
	method   string
	url      string
	status   int
	mimeType string
	received bool
	seq      int64
}

// enableDomains returns the actions that turn on event delivery for the tab
func (d *ChromeDriver) enableDomains() []chromedp.Action {
	return []chromedp.Action{
		network.Enable(),
		runtime.Enable(),
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(d.downloadDir).
			WithEventsEnabled(true),
	}
}

// handleEvent normalizes DevTools events into signals. It runs on the chromedp event
// goroutine, so protocol calls are made from separate goroutines.
func (d *ChromeDriver) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventJavascriptDialogOpening:
		d.onDialog(e)

	case *browser.EventDownloadWillBegin:
		d.onDownloadBegin(e.GUID, e.URL, e.SuggestedFilename)

	case *browser.EventDownloadProgress:
		d.onDownloadProgress(e.GUID, e.State)

	case *network.EventRequestWillBeSent:
		if e.Request == nil || strings.HasPrefix(e.Request.URL, "data:") {
			return
		}
		d.mu.Lock()
		d.requests[e.RequestID.String()] = &pendingResponse{method: e.Request.Method, url: e.Request.URL}
		d.mu.Unlock()

	case *network.EventResponseReceived:
		d.onResponse(e)

	case *network.EventLoadingFinished:
		d.onLoadingFinished(e.RequestID)

	case *network.EventLoadingFailed:
		d.mu.Lock()
		pending, ok := d.requests[e.RequestID.String()]
		delete(d.requests, e.RequestID.String())
		d.mu.Unlock()
		if ok && pending.received {
			d.appendResponse(pending, "")
		}

	case *runtime.EventConsoleAPICalled:
		if !d.opts.CaptureConsole {
			return
		}
		d.sink.Append(models.Signal{
			Kind:    models.SignalConsole,
			Console: &models.ConsolePayload{Level: string(e.Type), Text: consoleText(e.Args)},
		})

	case *runtime.EventExceptionThrown:
		d.sink.Append(models.Signal{
			Kind:      models.SignalPageError,
			PageError: &models.PageErrorPayload{Message: exceptionMessage(e.ExceptionDetails)},
		})
	}
}

func (d *ChromeDriver) onDialog(e *page.EventJavascriptDialogOpening) {
	accept := d.policy != models.DialogDismiss
	d.sink.Append(models.Signal{
		Kind:   models.SignalDialog,
		Dialog: &models.DialogPayload{Type: string(e.Type), Message: e.Message, Accepted: accept},
	})

	go func() {
		ctx, cancel := context.WithTimeout(d.browserCtx, d.opts.DialogGrace)
		defer cancel()
		if err := chromedp.Run(ctx, page.HandleJavaScriptDialog(accept)); err != nil && d.browserCtx.Err() == nil {
			d.logger.Warn().Err(err).Str("message", e.Message).Msg("Failed to answer dialog")
		}
	}()
}

func (d *ChromeDriver) trackDownload(guid string) (*download, bool) {
	dl, ok := d.downloads[guid]
	if !ok {
		dl = &download{guid: guid, done: make(chan struct{})}
		d.downloads[guid] = dl
	}
	return dl, ok
}

func (d *ChromeDriver) onDownloadBegin(guid, url, filename string) {
	d.mu.Lock()
	dl, _ := d.trackDownload(guid)
	announced := dl.filename != ""
	dl.filename = filename
	d.mu.Unlock()

	// Browser and target listeners can both deliver the event
	if announced {
		return
	}
	d.sink.Append(models.Signal{
		Kind:     models.SignalDownload,
		Download: &models.DownloadPayload{GUID: guid, URL: url, SuggestedFilename: filename},
	})
}

func (d *ChromeDriver) onDownloadProgress(guid string, state browser.DownloadProgressState) {
	if state != browser.DownloadProgressStateCompleted && state != browser.DownloadProgressStateCanceled {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	dl, _ := d.trackDownload(guid)
	if dl.state == browser.DownloadProgressStateCompleted || dl.state == browser.DownloadProgressStateCanceled {
		return
	}
	dl.state = state
	close(dl.done)
}

// SaveDownload waits for the download to complete and copies it to dest
func (d *ChromeDriver) SaveDownload(ctx context.Context, guid, dest string, timeout time.Duration) error {
	d.mu.Lock()
	dl, _ := d.trackDownload(guid)
	d.mu.Unlock()

	timer := time.NewTimer(d.timeout(timeout))
	defer timer.Stop()
	select {
	case <-dl.done:
	case <-timer.C:
		return models.NewEngineError(models.ErrorKindActionTimeout, "save_download", fmt.Sprintf("download %s never completed", guid))
	case <-ctx.Done():
		return models.WrapEngineError(models.ErrorKindAborted, "save_download", "", ctx.Err())
	}

	d.mu.Lock()
	state := dl.state
	d.mu.Unlock()
	if state == browser.DownloadProgressStateCanceled {
		return models.NewEngineError(models.ErrorKindActionTimeout, "save_download", fmt.Sprintf("download %s was canceled", guid))
	}

	if err := copyFile(filepath.Join(d.downloadDir, guid), dest); err != nil {
		return models.WrapEngineError(models.ErrorKindEnvironment, "save_download", "", err)
	}
	d.logger.Debug().Str("guid", guid).Str("dest", dest).Msg("Download saved")
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open downloaded file: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create artifact file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy download: %w", err)
	}
	return out.Close()
}

func (d *ChromeDriver) onResponse(e *network.EventResponseReceived) {
	if e.Response == nil || strings.HasPrefix(e.Response.URL, "data:") {
		return
	}
	id := e.RequestID.String()
	capture := d.opts.CaptureBodies && isTextual(e.Response.MimeType)
	var seq int64
	if capture {
		seq = d.sink.Reserve(models.SignalNetworkResponse)
	}

	d.mu.Lock()
	pending, ok := d.requests[id]
	if !ok {
		pending = &pendingResponse{}
		d.requests[id] = pending
	}
	pending.url = e.Response.URL
	pending.status = int(e.Response.Status)
	pending.mimeType = e.Response.MimeType
	pending.received = true
	pending.seq = seq
	if !capture {
		delete(d.requests, id)
	}
	d.mu.Unlock()

	if !capture {
		d.appendResponse(pending, "")
	}
}

func (d *ChromeDriver) onLoadingFinished(requestID network.RequestID) {
	id := requestID.String()
	d.mu.Lock()
	pending, ok := d.requests[id]
	delete(d.requests, id)
	d.mu.Unlock()
	if !ok || !pending.received {
		return
	}

	go func() {
		c := chromedp.FromContext(d.browserCtx)
		if c == nil || c.Target == nil {
			d.appendResponse(pending, "")
			return
		}
		ctx, cancel := context.WithTimeout(d.browserCtx, d.opts.DefaultTimeout)
		defer cancel()
		body, err := network.GetResponseBody(requestID).Do(cdp.WithExecutor(ctx, c.Target))
		if err != nil {
			d.logger.Debug().Err(err).Str("url", pending.url).Msg("Response body unavailable")
		}
		d.appendResponse(pending, truncateBody(body, d.opts.MaxBodyBytes))
	}()
}

func (d *ChromeDriver) appendResponse(p *pendingResponse, body string) {
	sig := models.Signal{
		Kind: models.SignalNetworkResponse,
		Response: &models.ResponsePayload{
			URL:      p.url,
			Method:   p.method,
			Status:   p.status,
			MimeType: p.mimeType,
			Body:     body,
		},
	}
	if p.seq != 0 {
		d.sink.Fill(p.seq, sig)
		return
	}
	d.sink.Append(sig)
}

// flushResponses completes responses still waiting for a body so their reserved
// slots do not hold back waits after the tab is gone
func (d *ChromeDriver) flushResponses() {
	d.mu.Lock()
	var open []*pendingResponse
	for id, p := range d.requests {
		if p.received {
			open = append(open, p)
			delete(d.requests, id)
		}
	}
	d.mu.Unlock()

	sort.Slice(open, func(i, j int) bool { return open[i].seq < open[j].seq })
	for _, p := range open {
		d.appendResponse(p, "")
	}
}

func isTextual(mimeType string) bool {
	mimeType = strings.ToLower(mimeType)
	return strings.HasPrefix(mimeType, "text/") ||
		strings.Contains(mimeType, "json") ||
		strings.Contains(mimeType, "xml") ||
		strings.Contains(mimeType, "javascript")
}

func truncateBody(body []byte, max int) string {
	return common.CutAtRune(string(body), max)
}

// consoleText joins console arguments the way the browser console prints them
func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if len(arg.Value) > 0 {
			var v interface{}
			if err := json.Unmarshal([]byte(arg.Value), &v); err == nil {
				if s, ok := v.(string); ok {
					parts = append(parts, s)
				} else {
					parts = append(parts, string(arg.Value))
				}
				continue
			}
		}
		parts = append(parts, arg.Description)
	}
	return strings.Join(parts, " ")
}

func exceptionMessage(details *runtime.ExceptionDetails) string {
	if details == nil {
		return "uncaught exception"
	}
	if details.Exception != nil && details.Exception.Description != "" {
		return details.Exception.Description
	}
	return details.Text
}
