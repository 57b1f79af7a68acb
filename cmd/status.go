package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/pipeline"
)

var statusAttempts bool

var statusCmd = &cobra.Command{
	Use:   "status <assessment-id>",
	Short: "Print the status projection of an assessment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tracker := pipeline.NewTracker(st)
		view, err := tracker.Status(ctx, args[0], "")
		if err != nil {
			return err
		}
		if !statusAttempts {
			return printJSON(cmd, view)
		}

		attempts, err := tracker.Attempts(ctx, args[0], "")
		if err != nil {
			return err
		}
		return printJSON(cmd, struct {
			*pipeline.StatusView
			Attempts []model.Attempt `json:"attempts"`
		}{view, attempts})
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	statusCmd.Flags().BoolVar(&statusAttempts, "attempts", false, "include the attempt ledger")
	rootCmd.AddCommand(statusCmd)
}
