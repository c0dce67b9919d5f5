package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Browser     BrowserConfig   `toml:"browser"`
	Signals     SignalsConfig   `toml:"signals"`
	Executor    ExecutorConfig  `toml:"executor"`
	Scenarios   ScenariosConfig `toml:"scenarios"`
	Reports     ReportsConfig   `toml:"reports"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	// Variables are substituted into {name} references in scenario files
	Variables map[string]string `toml:"variables"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// BrowserConfig controls the chromedp allocator and per-call driver timeouts
type BrowserConfig struct {
	Headless          bool   `toml:"headless"`
	RemoteURL         string `toml:"remote_url"` // DevTools websocket URL; empty launches a local browser
	ExecPath          string `toml:"exec_path"`
	NoSandbox         bool   `toml:"no_sandbox"`
	WindowWidth       int    `toml:"window_width"`
	WindowHeight      int    `toml:"window_height"`
	UserAgent         string `toml:"user_agent"`
	DefaultTimeout    string `toml:"default_timeout"`    // per-call timeout when a step gives none
	NavigationTimeout string `toml:"navigation_timeout"` // e.g. "30s"
}

// SignalsConfig controls signal capture
type SignalsConfig struct {
	DialogPolicy   string `toml:"dialog_policy"` // "accept" or "dismiss"
	DialogGrace    string `toml:"dialog_grace"`  // dialogs are answered within this period
	WaitTimeout    string `toml:"wait_timeout"`  // default for waits without a timeout
	MaxBodyBytes   int    `toml:"max_body_bytes"`
	CaptureBodies  bool   `toml:"capture_bodies"`
	CaptureConsole bool   `toml:"capture_console"`
}

// ExecutorConfig controls step execution policy
type ExecutorConfig struct {
	StepTimeout          string `toml:"step_timeout"`
	PollInterval         string `toml:"poll_interval"`
	RunTimeout           string `toml:"run_timeout"` // supervisory timeout for a whole run
	FailFast             bool   `toml:"fail_fast"`
	FailOnPageError      bool   `toml:"fail_on_page_error"`
	ScreenshotOnFailure  bool   `toml:"screenshot_on_failure"`
	ScreenshotEveryStep  bool   `toml:"screenshot_every_step"`
	FullPageScreenshots  bool   `toml:"full_page_screenshots"`
	DOMSnapshotOnFailure bool   `toml:"dom_snapshot_on_failure"`
}

type ScenariosConfig struct {
	Dir     string `toml:"dir"`      // Directory containing scenario files (TOML/YAML/JSON)
	BaseURL string `toml:"base_url"` // Used when a scenario declares no base_url
}

type ReportsConfig struct {
	Dir       string `toml:"dir"`        // Results root; each run writes a timestamped subdirectory
	Keep      int    `toml:"keep"`       // Reports kept per scenario in storage (0 = unlimited)
	WriteJSON bool   `toml:"write_json"` // Write report.json into the run directory
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
	Dir        string   `toml:"dir"`
}

type SchedulerConfig struct {
	Enabled bool `toml:"enabled"` // Register scenarios that declare a schedule
}

// WebSocketConfig contains configuration for the live run event stream
type WebSocketConfig struct {
	// Whitelist of event types to broadcast. Empty list allows all events.
	AllowedEvents []string `toml:"allowed_events"`
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	// Example: {"signal": "250ms"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
	// Lowest event level sent to clients ("debug", "info", "warn"). Empty sends everything.
	MinLevel string `toml:"min_level"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Browser: BrowserConfig{
			Headless:          true,
			WindowWidth:       1920,
			WindowHeight:      1080,
			UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			DefaultTimeout:    "10s",
			NavigationTimeout: "30s",
		},
		Signals: SignalsConfig{
			DialogPolicy:   "accept",
			DialogGrace:    "2s",
			WaitTimeout:    "5s",
			MaxBodyBytes:   1024 * 1024, // 1MB
			CaptureBodies:  true,
			CaptureConsole: true,
		},
		Executor: ExecutorConfig{
			StepTimeout:          "5s",
			PollInterval:         "100ms",
			RunTimeout:           "5m",
			FailFast:             false, // accumulate-and-report
			FailOnPageError:      false,
			ScreenshotOnFailure:  true,
			ScreenshotEveryStep:  false,
			FullPageScreenshots:  true,
			DOMSnapshotOnFailure: true,
		},
		Scenarios: ScenariosConfig{
			Dir: "./scenarios",
		},
		Reports: ReportsConfig{
			Dir:       "./results",
			Keep:      50,
			WriteJSON: true,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
			Dir:        "./logs",
		},
		Scheduler: SchedulerConfig{
			Enabled: false,
		},
		WebSocket: WebSocketConfig{
			AllowedEvents: []string{},
			ThrottleIntervals: map[string]string{
				"signal": "250ms", // console-heavy pages can flood the stream
			},
		},
		Variables: map[string]string{},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files. CLI flags are applied by the caller afterwards.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("UIFLOW_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("UIFLOW_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("UIFLOW_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Browser configuration
	if headless := os.Getenv("UIFLOW_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if remote := os.Getenv("UIFLOW_BROWSER_REMOTE_URL"); remote != "" {
		config.Browser.RemoteURL = remote
	}
	if execPath := os.Getenv("UIFLOW_BROWSER_EXEC_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}
	if noSandbox := os.Getenv("UIFLOW_BROWSER_NO_SANDBOX"); noSandbox != "" {
		if n, err := strconv.ParseBool(noSandbox); err == nil {
			config.Browser.NoSandbox = n
		}
	}

	// Signals configuration
	if policy := os.Getenv("UIFLOW_DIALOG_POLICY"); policy != "" {
		config.Signals.DialogPolicy = policy
	}

	// Executor configuration
	if failFast := os.Getenv("UIFLOW_FAIL_FAST"); failFast != "" {
		if f, err := strconv.ParseBool(failFast); err == nil {
			config.Executor.FailFast = f
		}
	}
	if runTimeout := os.Getenv("UIFLOW_RUN_TIMEOUT"); runTimeout != "" {
		config.Executor.RunTimeout = runTimeout
	}

	// Scenario and report locations
	if dir := os.Getenv("UIFLOW_SCENARIOS_DIR"); dir != "" {
		config.Scenarios.Dir = dir
	}
	if baseURL := os.Getenv("UIFLOW_BASE_URL"); baseURL != "" {
		config.Scenarios.BaseURL = baseURL
	}
	if dir := os.Getenv("UIFLOW_REPORTS_DIR"); dir != "" {
		config.Reports.Dir = dir
	}

	// Storage configuration
	if badgerPath := os.Getenv("UIFLOW_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("UIFLOW_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("UIFLOW_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("UIFLOW_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Variables: UIFLOW_VAR_<NAME>=value becomes {name}
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "UIFLOW_VAR_") {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(kv, "UIFLOW_VAR_"), "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		if config.Variables == nil {
			config.Variables = map[string]string{}
		}
		config.Variables[strings.ToLower(parts[0])] = parts[1]
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host, logLevel string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	durations := map[string]string{
		"browser.default_timeout":    c.Browser.DefaultTimeout,
		"browser.navigation_timeout": c.Browser.NavigationTimeout,
		"signals.dialog_grace":       c.Signals.DialogGrace,
		"signals.wait_timeout":       c.Signals.WaitTimeout,
		"executor.step_timeout":      c.Executor.StepTimeout,
		"executor.poll_interval":     c.Executor.PollInterval,
		"executor.run_timeout":       c.Executor.RunTimeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
	}
	for event, value := range c.WebSocket.ThrottleIntervals {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid throttle interval for %s: %w", event, err)
		}
	}

	switch c.Signals.DialogPolicy {
	case "accept", "dismiss":
	default:
		return fmt.Errorf("invalid signals.dialog_policy %q (accept|dismiss)", c.Signals.DialogPolicy)
	}
	return nil
}

// ValidateSchedule validates a cron schedule expression for scheduled scenario runs
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// ParseDurationOr parses s, returning fallback when s is empty or invalid
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
