package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/uiflow/internal/models"
)

// Driver is the browser capability surface used by the engine.
// Every call takes a per-call timeout; zero selects the driver default.
// Snapshot reads never wait for an element: an absent element is a valid result, not an error.
type Driver interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// Query returns nil, nil when no element matches
	Query(ctx context.Context, selector string, timeout time.Duration) (*models.ElementHandle, error)
	IsVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	TextContent(ctx context.Context, selector string, timeout time.Duration) (string, bool, error)
	Attribute(ctx context.Context, selector, name string, timeout time.Duration) (string, bool, error)
	Count(ctx context.Context, selector string, timeout time.Duration) (int, error)
	OuterHTML(ctx context.Context, selector string, timeout time.Duration) (string, bool, error)
	BoundingBox(ctx context.Context, selector string, timeout time.Duration) (*models.Box, error)

	// Actions wait for the element to become visible within the timeout
	Click(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	SelectOption(ctx context.Context, selector, value string, timeout time.Duration) error
	PressKey(ctx context.Context, key string, timeout time.Duration) error

	Screenshot(ctx context.Context, path string, fullPage bool) error
	WaitForCondition(ctx context.Context, js string, timeout time.Duration) error
	Evaluate(ctx context.Context, expr string, out interface{}, timeout time.Duration) error

	// SaveDownload waits for the download to complete and copies it to dest
	SaveDownload(ctx context.Context, guid, dest string, timeout time.Duration) error

	Close() error
}

// DriverFactory opens a driver for one session. Signals observed by the driver are
// appended through sink.
type DriverFactory func(ctx context.Context, sink SignalSink, policy models.DialogPolicy) (Driver, error)

// SignalSink receives normalized signals from driver event listeners.
// Reserve holds an arrival slot for a signal whose payload is still being fetched;
// Fill completes it. Reserve returns 0 when the sink no longer accepts signals.
type SignalSink interface {
	Append(sig models.Signal) models.Signal
	Reserve(kind models.SignalKind) int64
	Fill(seq int64, sig models.Signal) models.Signal
}
