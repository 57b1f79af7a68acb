package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/analysis"
	"github.com/sells-group/assessment-cli/internal/catalog"
	"github.com/sells-group/assessment-cli/internal/monitoring"
	"github.com/sells-group/assessment-cli/internal/notify"
	"github.com/sells-group/assessment-cli/internal/ocr"
	"github.com/sells-group/assessment-cli/internal/pipeline"
	"github.com/sells-group/assessment-cli/internal/queue"
	"github.com/sells-group/assessment-cli/internal/resilience"
	"github.com/sells-group/assessment-cli/internal/scorer"
	"github.com/sells-group/assessment-cli/internal/store"
	anthropicpkg "github.com/sells-group/assessment-cli/pkg/anthropic"
	"github.com/sells-group/assessment-cli/pkg/gemini"
	"github.com/sells-group/assessment-cli/pkg/scoresvc"
)

// pipelineEnv holds everything the serve, worker and analyze commands need.
type pipelineEnv struct {
	Store    store.Store
	Queue    queue.Queue
	Catalog  *catalog.Catalog
	Adapter  analysis.Adapter
	Breakers *resilience.Breakers
	Metrics  *monitoring.Metrics
	Runner   *pipeline.Runner
	Intake   *pipeline.Intake
	Tracker  *pipeline.Tracker
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Queue != nil {
		_ = pe.Queue.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// handleTask is the queue handler: one task, one runner pass.
func (pe *pipelineEnv) handleTask(ctx context.Context, t queue.Task) error {
	return pe.Runner.Run(ctx, t.AssessmentID)
}

// initPipeline validates config for mode and builds the store, queue,
// adapter and runner. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	cat, err := loadCatalog()
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Store: st, Catalog: cat, Metrics: monitoring.NewMetrics()}

	env.Queue, err = initQueue(ctx, env.Metrics)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Adapter, err = initAdapter(ctx, env.Metrics)
	if err != nil {
		env.Close()
		return nil, err
	}

	notifier, err := initNotifier(ctx, cat)
	if err != nil {
		env.Close()
		return nil, err
	}

	breakerCfg := resilience.FromBreakerConfig(cfg.Analysis.BreakerThreshold, cfg.Analysis.BreakerResetSecs)
	breakerCfg.OnStateChange = func(backend string, _, to resilience.BreakerState) {
		env.Metrics.BreakerState.WithLabelValues(backend).Set(float64(to))
	}
	env.Breakers = resilience.NewBreakers(breakerCfg)

	retry := resilience.FromAnalysisConfig(cfg.Analysis.MaxAttempts, cfg.Analysis.BaseDelayMs, cfg.Analysis.MaxDelayMs)
	driver := analysis.NewDriver(retry, time.Duration(cfg.Analysis.CallTimeoutSecs)*time.Second, env.Breakers)

	env.Runner = pipeline.NewRunner(st, env.Adapter, driver, scorer.NewFallback(cat), cat, notifier, env.Metrics)
	env.Intake = pipeline.NewIntake(st, env.Queue, env.Adapter.Policy(), cfg.Intake.MaxFileBytes,
		pipeline.WithIntakeMetrics(env.Metrics))
	env.Tracker = pipeline.NewTracker(st)

	zap.L().Info("pipeline initialized",
		zap.String("mode", mode),
		zap.String("backend", env.Adapter.Name()),
		zap.String("store", cfg.Store.Driver),
		zap.String("queue", cfg.Queue.Driver),
	)
	return env, nil
}

func loadCatalog() (*catalog.Catalog, error) {
	if cfg.Analysis.CatalogPath == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.Analysis.CatalogPath)
	if err != nil {
		return nil, eris.Wrap(err, "load catalog")
	}
	return cat, nil
}

func initQueue(ctx context.Context, metrics *monitoring.Metrics) (queue.Queue, error) {
	onError := func(queue.Task, error) { metrics.QueueFailures.Inc() }
	drain := time.Duration(cfg.Queue.DrainSecs) * time.Second
	if drain <= 0 {
		drain = queue.DefaultDrain
	}

	switch cfg.Queue.Driver {
	case "memory":
		return queue.NewMemory(cfg.Queue.Workers, cfg.Queue.Buffer, queue.WithOnError(onError), queue.WithDrain(drain)), nil
	case "redis":
		client := queue.NewRedisClient(queue.RedisConfig{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		q := queue.NewRedis(client, cfg.Queue.RedisKey, cfg.Queue.Workers, onError)
		q.SetDrain(drain)
		if err := q.Ping(ctx); err != nil {
			_ = q.Close()
			return nil, eris.Wrap(err, "connect redis queue")
		}
		return q, nil
	default:
		return nil, eris.Errorf("unsupported queue driver: %s", cfg.Queue.Driver)
	}
}

func initAdapter(ctx context.Context, metrics *monitoring.Metrics) (analysis.Adapter, error) {
	switch cfg.Analysis.Backend {
	case analysis.BackendAssistant:
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		return analysis.NewAssistantAdapter(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens), nil

	case analysis.BackendVision:
		gen, err := gemini.NewGenerator(ctx, cfg.Gemini.Key, cfg.Gemini.Model)
		if err != nil {
			return nil, eris.Wrap(err, "init gemini")
		}
		extractor := ocr.NewMistralOCR(cfg.Mistral.Key, cfg.Mistral.Model, ocr.WithEndpoint(cfg.Mistral.Endpoint))
		return analysis.NewVisionAdapter(extractor, gen), nil

	case analysis.BackendService:
		client := scoresvc.NewClient(cfg.Service.BaseURL, cfg.Service.APIKey,
			scoresvc.WithTimeout(time.Duration(cfg.Service.TimeoutSecs)*time.Second),
			scoresvc.WithRateLimit(cfg.Service.RateLimit),
		)
		var secondary analysis.Adapter
		if cfg.Anthropic.Key != "" {
			secondary = analysis.NewLegacyAdapter(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
		}
		svc := analysis.NewServiceAdapter(client, secondary)
		svc.OnDegrade(func(_ context.Context, in analysis.Input, cause error) {
			metrics.Degrades.WithLabelValues(analysis.BackendService, analysis.BackendLegacy).Inc()
			zap.L().Warn("scoring service unavailable, using legacy backend",
				zap.String("assessment_id", in.AssessmentID),
				zap.Error(cause),
			)
		})
		return svc, nil

	default:
		return nil, eris.Errorf("unsupported analysis backend: %s", cfg.Analysis.Backend)
	}
}

func initNotifier(ctx context.Context, cat *catalog.Catalog) (notify.Notifier, error) {
	switch cfg.Notify.Provider {
	case "", "log":
		return notify.NewLogNotifier(cat, cfg.Notify.ResultsURL), nil
	case "ses":
		n, err := notify.NewSESNotifier(ctx, cfg.Notify.Region, cfg.Notify.FromAddress, cfg.Notify.ResultsURL, cat)
		if err != nil {
			return nil, eris.Wrap(err, "init ses notifier")
		}
		return n, nil
	default:
		return nil, eris.Errorf("unsupported notify provider: %s", cfg.Notify.Provider)
	}
}
