package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/uiflow/internal/fixture"
)

var fixtureCmd = &cobra.Command{
	Use:   "fixture",
	Short: "Serve the demo subnet manager application",
	Long: `Serves the bundled demo application that the example scenarios verify. Flags
reproduce known defects so failing verdicts can be demonstrated.`,
	Args: cobra.NoArgs,
	RunE: runFixture,
}

var (
	fixtureAddr    string
	fixtureDelay   time.Duration
	fixtureRoleBug bool
	fixtureMenuGap int
	fixtureHeader  []string
)

func init() {
	fixtureCmd.Flags().StringVar(&fixtureAddr, "addr", "localhost:8090", "Listen address")
	fixtureCmd.Flags().DurationVar(&fixtureDelay, "delay", 0, "Delay every session_api response")
	fixtureCmd.Flags().BoolVar(&fixtureRoleBug, "role-bug", false, "Report every role as undefined in the user list")
	fixtureCmd.Flags().IntVar(&fixtureMenuGap, "menu-gap", 2, "Pixel gap between the export button and its menu")
	fixtureCmd.Flags().StringSliceVar(&fixtureHeader, "export-header", nil, "Override the CSV export header")
	rootCmd.AddCommand(fixtureCmd)
}

func runFixture(cmd *cobra.Command, args []string) error {
	fixtureApp := fixture.NewApp(fixture.Options{
		ResponseDelay: fixtureDelay,
		ExportHeader:  fixtureHeader,
		RoleBug:       fixtureRoleBug,
		MenuGap:       fixtureMenuGap,
	}, logger)

	srv := &http.Server{Addr: fixtureAddr, Handler: fixtureApp, ReadTimeout: 15 * time.Second}
	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s/", fixtureAddr)).
		Str("admin", fixture.AdminUser).
		Str("user", fixture.PlainUser).
		Msg("Fixture application ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errChan:
		return fmt.Errorf("fixture server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
