package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [audit-id]",
	Short: "Re-check consolidation output against the store; without an audit id, every recorded run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := initApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		var auditID string
		if len(args) == 1 {
			auditID = args[0]
		}
		checks, err := a.Orchestrator.Validate(cmd.Context(), auditID)
		if err != nil {
			return err
		}

		failed := 0
		for _, c := range checks {
			mark := "PASS"
			if !c.Passed {
				mark = "FAIL"
				failed++
			} else if c.Warning {
				mark = "WARN"
			}
			line := fmt.Sprintf("[%s] %s", mark, c.Name)
			if c.Detail != "" {
				line += ": " + c.Detail
			}
			fmt.Println(line)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d checks failed", failed, len(checks))
		}
		return nil
	},
}
