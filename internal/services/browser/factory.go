package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/models"
)

// Options holds the allocator and capture settings for a ChromeDriver
type Options struct {
	Headless          bool
	RemoteURL         string
	ExecPath          string
	NoSandbox         bool
	WindowWidth       int
	WindowHeight      int
	UserAgent         string
	DefaultTimeout    time.Duration
	NavigationTimeout time.Duration
	DialogGrace       time.Duration
	MaxBodyBytes      int
	CaptureBodies     bool
	CaptureConsole    bool
	PollInterval      time.Duration
}

// OptionsFromConfig maps application configuration onto driver options
func OptionsFromConfig(cfg *common.Config) Options {
	return Options{
		Headless:          cfg.Browser.Headless,
		RemoteURL:         cfg.Browser.RemoteURL,
		ExecPath:          cfg.Browser.ExecPath,
		NoSandbox:         cfg.Browser.NoSandbox,
		WindowWidth:       cfg.Browser.WindowWidth,
		WindowHeight:      cfg.Browser.WindowHeight,
		UserAgent:         cfg.Browser.UserAgent,
		DefaultTimeout:    common.ParseDurationOr(cfg.Browser.DefaultTimeout, 10*time.Second),
		NavigationTimeout: common.ParseDurationOr(cfg.Browser.NavigationTimeout, 30*time.Second),
		DialogGrace:       common.ParseDurationOr(cfg.Signals.DialogGrace, 2*time.Second),
		MaxBodyBytes:      cfg.Signals.MaxBodyBytes,
		CaptureBodies:     cfg.Signals.CaptureBodies,
		CaptureConsole:    cfg.Signals.CaptureConsole,
		PollInterval:      common.ParseDurationOr(cfg.Executor.PollInterval, 100*time.Millisecond),
	}
}

// NewFactory returns a DriverFactory that starts one browser per session
func NewFactory(opts Options, logger arbor.ILogger) interfaces.DriverFactory {
	return func(ctx context.Context, sink interfaces.SignalSink, policy models.DialogPolicy) (interfaces.Driver, error) {
		return Open(ctx, opts, sink, policy, logger)
	}
}

// allocatorOptions builds the exec allocator flags for a local browser
func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
	)
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	return allocOpts
}

// Open starts a browser (or attaches to a remote one), installs the signal listeners
// and returns a ready driver. ctx only bounds startup; the browser lives until Close.
func Open(ctx context.Context, opts Options, sink interfaces.SignalSink, policy models.DialogPolicy, logger arbor.ILogger) (*ChromeDriver, error) {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 10 * time.Second
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if policy == "" {
		policy = models.DialogAccept
	}

	downloadDir, err := os.MkdirTemp("", "uiflow-downloads-*")
	if err != nil {
		return nil, models.WrapEngineError(models.ErrorKindEnvironment, "open", "", fmt.Errorf("failed to create download directory: %w", err))
	}

	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	}
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	d := &ChromeDriver{
		opts:          opts,
		sink:          sink,
		policy:        policy,
		logger:        logger,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		downloadDir:   downloadDir,
		downloads:     make(map[string]*download),
		requests:      make(map[string]*pendingResponse),
	}

	logger.Debug().
		Bool("headless", opts.Headless).
		Str("remote_url", opts.RemoteURL).
		Str("dialog_policy", string(policy)).
		Str("download_dir", downloadDir).
		Msg("Starting browser session")

	chromedp.ListenTarget(browserCtx, d.handleEvent)
	chromedp.ListenBrowser(browserCtx, d.handleEvent)

	startCtx, cancel := d.callContext(ctx, opts.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx, d.enableDomains()...); err != nil {
		d.Close()
		if ctx.Err() != nil {
			return nil, models.WrapEngineError(models.ErrorKindAborted, "open", "", ctx.Err())
		}
		return nil, models.WrapEngineError(models.ErrorKindEnvironment, "open", "", fmt.Errorf("failed to start browser: %w", err))
	}
	return d, nil
}
