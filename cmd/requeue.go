package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/assessment-cli/internal/monitoring"
	"github.com/sells-group/assessment-cli/internal/pipeline"
)

var (
	requeueMinAge time.Duration
	requeueLimit  int
)

var requeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Re-enqueue automated assessments stuck in submitted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Queue.Driver != "redis" {
			return eris.New("requeue requires queue.driver=redis")
		}
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		q, err := initQueue(ctx, monitoring.NewMetrics())
		if err != nil {
			return err
		}
		defer q.Close() //nolint:errcheck

		n, err := pipeline.Requeue(ctx, st, q, requeueMinAge, requeueLimit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "requeued %d assessments\n", n)
		return nil
	},
}

func init() {
	requeueCmd.Flags().DurationVar(&requeueMinAge, "min-age", 5*time.Minute, "only requeue records untouched for at least this long")
	requeueCmd.Flags().IntVar(&requeueLimit, "limit", 100, "maximum records to requeue")
	rootCmd.AddCommand(requeueCmd)
}
