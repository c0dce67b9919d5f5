package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/uiflow/internal/app"
	"github.com/ternarybob/uiflow/internal/common"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run scheduled scenarios until interrupted",
	Long:  `Registers every scenario that declares a cron schedule and runs it on time. No HTTP server is started.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config.Scheduler.Enabled = true
		common.PrintBanner(common.GetVersion(), "scenarios: "+config.Scenarios.Dir)

		application, err := app.New(config, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		if len(application.SchedulerService.GetAllJobStatuses()) == 0 {
			return fmt.Errorf("no scenario in %s declares a schedule", config.Scenarios.Dir)
		}
		if err := application.StartScheduler(); err != nil {
			return err
		}

		for name, status := range application.SchedulerService.GetAllJobStatuses() {
			ev := logger.Info().Str("scenario", name).Str("schedule", status.Schedule)
			if status.NextRun != nil {
				ev = ev.Str("next_run", status.NextRun.Format("2006-01-02 15:04:05"))
			}
			ev.Msg("Scenario scheduled")
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info().Msg("Interrupt signal received, waiting for running scenarios")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
