package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inquora/distill/internal/consolidate"
	"github.com/inquora/distill/internal/model"
)

var (
	runOrgID  string
	runTypes  []string
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a consolidation run and print its report",
	RunE: func(cmd *cobra.Command, args []string) error {
		var types []model.EntityType
		for _, raw := range runTypes {
			t, err := model.ParseEntityType(raw)
			if err != nil {
				return err
			}
			types = append(types, t)
		}

		a, err := initApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		report, err := a.Orchestrator.Run(cmd.Context(), &consolidate.RunRequest{
			OrgID:       runOrgID,
			EntityTypes: types,
			DryRun:      runDryRun,
		})
		if report != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
		}
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runOrgID, "org", "", "organization id to consolidate (required)")
	runCmd.Flags().StringSliceVar(&runTypes, "types", nil, "entity types to process (default: all)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "compute the report without writing merges")
	runCmd.MarkFlagRequired("org")
}
