package main

import (
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/assessment-cli/internal/monitoring"
)

var workerMetricsAddr string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume analysis tasks from the Redis queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("worker consuming", zap.Int("workers", cfg.Queue.Workers), zap.String("key", cfg.Queue.RedisKey))
			return env.Queue.Consume(gctx, env.handleTask)
		})
		g.Go(func() error {
			newChecker(env).Run(gctx)
			return nil
		})

		if workerMetricsAddr != "" {
			srv := &http.Server{
				Addr:              workerMetricsAddr,
				Handler:           newMetricsMux(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			g.Go(func() error {
				<-gctx.Done()
				return srv.Close()
			})
			g.Go(func() error {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return eris.Wrap(err, "metrics listen")
				}
				return nil
			})
		}

		return g.Wait()
	},
}

func newMetricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", monitoring.Handler())
	return mux
}

func init() {
	workerCmd.Flags().StringVar(&workerMetricsAddr, "metrics-addr", ":9090", "address for /metrics (empty disables)")
	workerCmd.Flags().DurationVar(&checkInterval, "check-interval", time.Minute, "backlog check interval")
	workerCmd.Flags().DurationVar(&staleAfter, "stale-after", 15*time.Minute, "age after which a processing assessment is reported stale")
	workerCmd.Flags().BoolVar(&sweepStale, "sweep-stale", true, "mark stale processing assessments as error")
	rootCmd.AddCommand(workerCmd)
}
