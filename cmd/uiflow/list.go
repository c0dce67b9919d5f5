package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/ternarybob/uiflow/internal/scenarios"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the scenarios in the scenarios directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loaded, errs := scenarios.LoadDir(config.Scenarios.Dir, config.Variables, logger)

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSTEPS\tSCHEDULE\tTAGS\tSOURCE")
		for _, sc := range loaded {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", sc.Name, len(sc.Steps), sc.Schedule, strings.Join(sc.Tags, ","), sc.Source)
		}
		tw.Flush()

		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "invalid:", err)
		}
		if len(errs) > 0 {
			return &exitError{code: 1}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
