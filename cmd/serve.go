package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/assessment-cli/internal/api"
	"github.com/sells-group/assessment-cli/internal/monitoring"
	"github.com/sells-group/assessment-cli/internal/pipeline"
)

var (
	servePort       int
	serveNoWorkers  bool
	checkInterval   time.Duration
	staleAfter      time.Duration
	sweepStale      bool
	shutdownTimeout = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with in-process analysis workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveNoWorkers && cfg.Queue.Driver != "redis" {
			return eris.New("--no-workers requires queue.driver=redis")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newAPIHandler(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		if !serveNoWorkers {
			g.Go(func() error {
				return env.Queue.Consume(gctx, env.handleTask)
			})
			if cfg.Queue.RequeueOnBoot {
				g.Go(func() error {
					requeueOnBoot(gctx, env)
					return nil
				})
			}
		}

		g.Go(func() error {
			newChecker(env).Run(gctx)
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		return g.Wait()
	},
}

func newAPIHandler(env *pipelineEnv) http.Handler {
	auth := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	server := api.NewServer(env.Intake, env.Tracker, env.Store, auth, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		// Room for the answers and multipart framing on top of the file.
		MaxUploadBytes: cfg.Intake.MaxFileBytes + 2<<20,
		Metrics:        monitoring.Handler(),
	})
	return server.Handler()
}

func newChecker(env *pipelineEnv) *monitoring.Checker {
	return monitoring.NewChecker(monitoring.NewCollector(env.Store, staleAfter), env.Metrics, checkInterval,
		monitoring.WithStaleSweep(sweepStale))
}

// requeueOnBoot re-dispatches automated submissions that a previous process
// accepted but never ran.
func requeueOnBoot(ctx context.Context, env *pipelineEnv) {
	if _, err := pipeline.Requeue(ctx, env.Store, env.Queue, 0, 0); err != nil {
		zap.L().Error("requeue on boot failed", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoWorkers, "no-workers", false, "serve the API only; run analysis with the worker command")
	serveCmd.Flags().DurationVar(&checkInterval, "check-interval", time.Minute, "backlog check interval")
	serveCmd.Flags().DurationVar(&staleAfter, "stale-after", 15*time.Minute, "age after which a processing assessment is reported stale")
	serveCmd.Flags().BoolVar(&sweepStale, "sweep-stale", true, "mark stale processing assessments as error")
	rootCmd.AddCommand(serveCmd)
}
