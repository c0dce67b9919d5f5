package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/uiflow/internal/app"
	"github.com/ternarybob/uiflow/internal/httpclient"
	"github.com/ternarybob/uiflow/internal/models"
	"github.com/ternarybob/uiflow/internal/scenarios"
	"github.com/ternarybob/uiflow/internal/services/report"
	"github.com/ternarybob/uiflow/internal/worker"
)

var runCmd = &cobra.Command{
	Use:   "run [scenario-name|file ...]",
	Short: "Run scenarios and print their reports",
	Long: `Runs the named scenarios (or scenario files), each in a fresh browser session.
With --all every scenario in the scenarios directory runs. --parallel runs several
sessions at once; scenarios that share application state should stay sequential.

Exit status is 0 when every scenario passed, 1 when any failed and 2 when any errored.`,
	RunE: runRun,
}

var (
	runAll      bool
	runTags     []string
	runBaseURL  string
	runJSON     bool
	runHeaded   bool
	runParallel int
	runNoProbe  bool
)

func init() {
	runCmd.Flags().BoolVar(&runAll, "all", false, "Run every scenario in the scenarios directory")
	runCmd.Flags().StringSliceVar(&runTags, "tag", nil, "Only run scenarios carrying one of these tags")
	runCmd.Flags().StringVar(&runBaseURL, "base-url", "", "Base URL for scenarios that declare none")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print reports as JSON instead of text")
	runCmd.Flags().BoolVar(&runHeaded, "headed", false, "Show the browser window")
	runCmd.Flags().IntVar(&runParallel, "parallel", 1, "Number of scenarios run at the same time")
	runCmd.Flags().BoolVar(&runNoProbe, "no-probe", false, "Skip the reachability check of base URLs")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !runAll {
		return fmt.Errorf("name at least one scenario or pass --all")
	}
	if runBaseURL != "" {
		config.Scenarios.BaseURL = runBaseURL
	}
	if runHeaded {
		config.Browser.Headless = false
	}

	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	selected, err := selectScenarios(application, args)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return fmt.Errorf("no scenarios matched")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !runNoProbe {
		if err := probeBaseURLs(ctx, selected); err != nil {
			return &exitError{code: 2, msg: err.Error()}
		}
	}

	pool := worker.NewWorkerPool(application.Runner, logger, runParallel)
	pool.OnReport(func(rep *models.ScenarioReport) {
		if runJSON {
			report.WriteJSON(os.Stdout, rep)
		} else {
			report.WriteSummary(os.Stdout, rep)
		}
	})

	results, runErr := pool.RunAll(ctx, selected)
	var reports []*models.ScenarioReport
	for _, rep := range results {
		if rep != nil {
			reports = append(reports, rep)
		}
	}
	if !runJSON && len(reports) > 1 {
		report.WriteRunSummary(os.Stdout, reports)
	}
	if runErr != nil {
		return &exitError{code: 2, msg: runErr.Error()}
	}
	return verdictExit(reports)
}

// selectScenarios resolves args to scenarios: existing files are loaded directly,
// anything else is looked up by name in the catalog
func selectScenarios(application *app.App, args []string) ([]*models.Scenario, error) {
	var selected []*models.Scenario
	if runAll {
		selected = application.Catalog.List()
	}
	for _, arg := range args {
		if info, err := os.Stat(arg); err == nil && !info.IsDir() && scenarios.IsScenarioFile(arg) {
			sc, err := scenarios.LoadFile(arg, config.Variables, logger)
			if err != nil {
				return nil, err
			}
			selected = append(selected, sc)
			continue
		}
		sc, err := application.Catalog.Get(arg)
		if err != nil {
			return nil, err
		}
		selected = append(selected, sc)
	}
	return filterByTags(selected, runTags), nil
}

// probeBaseURLs checks every distinct base URL once before any browser starts
func probeBaseURLs(ctx context.Context, list []*models.Scenario) error {
	client := httpclient.NewDefaultHTTPClient(5 * time.Second)
	probed := make(map[string]bool)
	for _, sc := range list {
		base := sc.BaseURL
		if base == "" {
			base = config.Scenarios.BaseURL
		}
		if base == "" || probed[base] {
			continue
		}
		probed[base] = true
		if err := httpclient.Probe(ctx, client, base); err != nil {
			return fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		logger.Debug().Str("base_url", base).Msg("Base URL reachable")
	}
	return nil
}

func filterByTags(list []*models.Scenario, tags []string) []*models.Scenario {
	if len(tags) == 0 {
		return list
	}
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}
	var out []*models.Scenario
	for _, sc := range list {
		for _, t := range sc.Tags {
			if want[t] {
				out = append(out, sc)
				break
			}
		}
	}
	return out
}

// verdictExit maps the worst verdict onto the process exit status
func verdictExit(reports []*models.ScenarioReport) error {
	code := 0
	for _, rep := range reports {
		switch rep.Verdict {
		case models.VerdictErrored:
			code = 2
		case models.VerdictFailed:
			if code == 0 {
				code = 1
			}
		}
	}
	if code == 0 {
		return nil
	}
	return &exitError{code: code}
}
