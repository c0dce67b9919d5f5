package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/common"
)

var (
	// Persistent flags
	configFiles  []string // Multiple --config flags supported, later files override earlier ones
	flagLogLevel string

	// Global state, set by loadConfig before any subcommand runs
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "uiflow",
	Short: "Scripted UI workflow verification",
	Long: `uiflow drives a real browser through declarative scenarios, waits on dialogs,
downloads and network responses, checks named UI states and assertions, and
reports a verdict per scenario.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level override (trace, debug, info, warn, error)")
}

// exitError carries a process exit code out of a command
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

// loadConfig resolves configuration (defaults -> files -> env -> flags) and initializes the logger
func loadConfig(cmd *cobra.Command, args []string) error {
	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("uiflow.toml"); err == nil {
			configFiles = append(configFiles, "uiflow.toml")
		} else if _, err := os.Stat("deployments/local/uiflow.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/uiflow.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	common.ApplyFlagOverrides(config, 0, "", flagLogLevel)

	logger = common.InitLogger(config)
	common.InstallCrashHandler(config.Logging.Dir)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("scenarios_dir", config.Scenarios.Dir).
		Str("results_dir", config.Reports.Dir).
		Str("log_level", config.Logging.Level).
		Msg("Configuration loaded")
	return nil
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.msg != "" {
				fmt.Fprintln(os.Stderr, exitErr.msg)
			}
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
