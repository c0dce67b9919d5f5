package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/uiflow/internal/models"
)

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// Probe checks that the application under test answers at rawURL before a browser
// session is spent on it. Any HTTP status counts as reachable; only transport
// failures and malformed URLs are reported, as environment errors.
func Probe(ctx context.Context, client *http.Client, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return models.NewEngineError(models.ErrorKindEnvironment, "probe", fmt.Sprintf("invalid base URL %q", rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.WrapEngineError(models.ErrorKindEnvironment, "probe", "", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return models.WrapEngineError(models.ErrorKindAborted, "probe", "", ctx.Err())
		}
		return models.WrapEngineError(models.ErrorKindEnvironment, "probe", "", fmt.Errorf("%s is unreachable: %w", u.Host, err))
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return nil
}
