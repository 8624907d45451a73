package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	rollbackReason  string
	rollbackConfirm bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <audit-id>",
	Short: "Undo a consolidation run from its snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := initApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		res, err := a.Rollback.Rollback(cmd.Context(), args[0], rollbackReason, rollbackConfirm)
		if err != nil {
			return err
		}
		fmt.Printf("Rolled back run %s: %d entities restored\n", res.AuditID, res.EntitiesRestored)
		return nil
	},
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackReason, "reason", "", "why the run is being undone (required)")
	rollbackCmd.Flags().BoolVar(&rollbackConfirm, "confirm", false, "acknowledge that the run's output will be deleted")
	rollbackCmd.MarkFlagRequired("reason")
}
