package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <assessment-id>",
	Short: "Run the analysis for one submitted assessment synchronously",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id := args[0]

		env, err := initPipeline(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Runner.Run(ctx, id); err != nil {
			return eris.Wrapf(err, "analyze %s", id)
		}

		view, err := env.Tracker.Status(ctx, id, "")
		if err != nil {
			return err
		}
		zap.L().Info("analysis finished", zap.String("assessment_id", id), zap.String("status", string(view.Status)))
		return printJSON(cmd, view)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
