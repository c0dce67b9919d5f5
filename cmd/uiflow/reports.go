package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/models"
	"github.com/ternarybob/uiflow/internal/services/report"
	"github.com/ternarybob/uiflow/internal/storage"
)

var reportsCmd = &cobra.Command{
	Use:   "reports [report-id]",
	Short: "Show stored report history",
	Long: `Lists stored reports, newest first, or prints one report when an ID is given
("latest" selects the newest report, optionally of --scenario).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReports,
}

var (
	reportsScenario string
	reportsVerdict  string
	reportsLimit    int
	reportsJSON     bool
	reportsPrune    int
)

func init() {
	reportsCmd.Flags().StringVar(&reportsScenario, "scenario", "", "Only reports of this scenario")
	reportsCmd.Flags().StringVar(&reportsVerdict, "verdict", "", "Only reports with this verdict (Passed, Failed, Errored)")
	reportsCmd.Flags().IntVar(&reportsLimit, "limit", 20, "Maximum number of reports listed")
	reportsCmd.Flags().BoolVar(&reportsJSON, "json", false, "Print the report as JSON")
	reportsCmd.Flags().IntVar(&reportsPrune, "prune", 0, "Keep only this many reports per scenario, then exit")
	rootCmd.AddCommand(reportsCmd)
}

func runReports(cmd *cobra.Command, args []string) error {
	manager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return fmt.Errorf("failed to open report storage: %w", err)
	}
	defer manager.Close()
	store := manager.ReportStorage()
	ctx := context.Background()

	if reportsPrune > 0 {
		removed, err := store.PruneReports(ctx, reportsPrune)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d report(s)\n", removed)
		return nil
	}

	if len(args) == 1 {
		var rep *models.ScenarioReport
		if args[0] == "latest" {
			rep, err = store.LatestReport(ctx, reportsScenario)
		} else {
			rep, err = store.GetReport(ctx, args[0])
		}
		if err != nil {
			return err
		}
		if reportsJSON {
			return report.WriteJSON(os.Stdout, rep)
		}
		return report.WriteSummary(os.Stdout, rep)
	}

	list, err := store.ListReports(ctx, models.ReportListOptions{
		Scenario: reportsScenario,
		Verdict:  models.Verdict(reportsVerdict),
		Limit:    reportsLimit,
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCENARIO\tVERDICT\tSTEPS\tSTARTED\tDURATION")
	for _, rep := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%.1fs\n",
			common.ShortID(rep.ID), rep.Scenario, rep.Verdict, rep.PassedCount(), len(rep.Steps),
			rep.StartedAt.Format("2006-01-02 15:04:05"), float64(rep.DurationMs)/1000)
	}
	return tw.Flush()
}
