package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List consolidation runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := initApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		runs, err := a.Store.ListAuditRuns(cmd.Context())
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}
		for _, r := range runs {
			line := fmt.Sprintf("%s  %-11s  org=%s  started=%s",
				r.AuditID, r.Status, r.OrgID, r.StartedAt.Format("2006-01-02 15:04:05"))
			if r.DryRun {
				line += "  (dry run)"
			}
			if r.Report != nil {
				line += fmt.Sprintf("  processed=%d merged=%d", r.Report.EntitiesProcessed, r.Report.EntitiesMerged)
			}
			fmt.Println(line)
		}
		return nil
	},
}
