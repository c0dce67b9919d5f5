package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/uiflow/internal/scenarios"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file ...]",
	Short: "Check scenario files without running them",
	Long:  `Parses and validates the given scenario files, or every file in the scenarios directory when none are given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		if len(args) == 0 {
			loaded, errs := scenarios.LoadDir(config.Scenarios.Dir, config.Variables, logger)
			for _, sc := range loaded {
				fmt.Printf("ok      %s (%s)\n", sc.Name, sc.Source)
			}
			for _, err := range errs {
				fmt.Printf("invalid %v\n", err)
			}
			failed = len(errs)
		} else {
			for _, path := range args {
				sc, err := scenarios.LoadFile(path, config.Variables, logger)
				if err != nil {
					fmt.Printf("invalid %v\n", err)
					failed++
					continue
				}
				fmt.Printf("ok      %s (%s)\n", sc.Name, path)
			}
		}

		if failed > 0 {
			return &exitError{code: 1, msg: fmt.Sprintf("%d scenario file(s) invalid", failed)}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
