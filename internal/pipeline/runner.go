package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/analysis"
	"github.com/sells-group/assessment-cli/internal/catalog"
	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/monitoring"
	"github.com/sells-group/assessment-cli/internal/notify"
	"github.com/sells-group/assessment-cli/internal/scorer"
	"github.com/sells-group/assessment-cli/internal/store"
)

var tracer = otel.Tracer("assessment-cli/pipeline")

// GenericDiagnostic is the only failure text a user ever sees.
const GenericDiagnostic = model.GenericDiagnostic

// terminalWriteTimeout bounds writes made after the run context is gone.
const terminalWriteTimeout = 10 * time.Second

// Runner performs the background analysis of one assessment.
type Runner struct {
	store    store.Store
	adapter  analysis.Adapter
	driver   *analysis.Driver
	fallback *scorer.Fallback
	catalog  *catalog.Catalog
	notifier notify.Notifier
	metrics  *monitoring.Metrics
	now      func() time.Time
}

// NewRunner wires a runner. The driver's OnAttempt hook is replaced so every
// attempt lands in the attempt ledger.
func NewRunner(
	st store.Store,
	adapter analysis.Adapter,
	driver *analysis.Driver,
	fallback *scorer.Fallback,
	cat *catalog.Catalog,
	notifier notify.Notifier,
	metrics *monitoring.Metrics,
) *Runner {
	if cat == nil {
		cat = catalog.Default()
	}
	if fallback == nil {
		fallback = scorer.NewFallback(cat)
	}
	r := &Runner{
		store:    st,
		adapter:  adapter,
		driver:   driver,
		fallback: fallback,
		catalog:  cat,
		notifier: notifier,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
	driver.OnAttempt = r.recordAttempt
	return r
}

// Run analyzes the assessment with the given id. It is safe to call more
// than once: records that are manual, not submitted, or already claimed by
// another run are left untouched.
func (r *Runner) Run(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.String("assessment.id", id))

	log := zap.L().With(zap.String("assessment_id", id), zap.String("backend", r.adapter.Name()))

	a, err := r.store.GetAssessment(ctx, id)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load %s", id)
	}
	if a.ManualProcessing || RouteOf(a) == PathManual {
		log.Info("pipeline: skipping manual assessment")
		return nil
	}
	if a.Status != model.StatusSubmitted {
		log.Info("pipeline: nothing to do", zap.String("status", string(a.Status)))
		return nil
	}

	claimed, err := r.store.UpdateAssessment(ctx, id, store.Update{
		Status:       model.StatusProcessing,
		FromStatuses: []model.Status{model.StatusSubmitted},
		Patch:        model.ProcessingPatch(r.adapter.Name(), r.now()),
	})
	if err != nil {
		return eris.Wrapf(err, "pipeline: claim %s", id)
	}
	if !claimed {
		log.Info("pipeline: already claimed by another run")
		return nil
	}

	start := time.Now()
	log.Info("pipeline: analysis started")

	defer func() {
		rec := recover()
		if rec != nil {
			err = eris.New(fmt.Sprintf("pipeline: panic during analysis: %v", rec))
		}
		if err == nil {
			return
		}
		span.RecordError(err)
		if rec == nil && ctx.Err() != nil {
			r.release(ctx, id, err)
			return
		}
		r.fail(ctx, id, err, start)
	}()

	return r.analyze(ctx, a, start, log)
}

func (r *Runner) analyze(ctx context.Context, a *model.Assessment, start time.Time, log *zap.Logger) error {
	in, err := r.buildInput(ctx, a)
	if err != nil {
		return err
	}
	r.progress(ctx, a.ID, 2)

	out, err := r.driver.Execute(ctx, r.adapter, in)
	if err != nil {
		return err
	}

	result := out.Result
	runResult := "completed"
	if out.Exhausted {
		result = r.fallback.Score(a.Type, a.Data.Responses)
		result.FallbackReason = out.Reason
		runResult = "fallback"
		if r.metrics != nil {
			reason := "exhausted"
			if out.Permanent {
				reason = "permanent"
			}
			r.metrics.Fallbacks.WithLabelValues(out.Backend, reason).Inc()
		}
		log.Warn("pipeline: using fallback scores", zap.String("reason", out.Reason), zap.Int("attempts", out.Attempts))
	}

	// Terminal writes survive a cancelled run context.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	ok, err := r.store.UpdateAssessment(wctx, a.ID, store.Update{
		Status:       model.StatusCompleted,
		FromStatuses: []model.Status{model.StatusProcessing},
		Patch:        model.ResultPatch(result, r.now()),
	})
	if err != nil {
		return eris.Wrapf(err, "pipeline: write result %s", a.ID)
	}
	if !ok {
		log.Warn("pipeline: record left processing before the result was written")
		return nil
	}

	elapsed := time.Since(start)
	if r.metrics != nil {
		r.metrics.ObserveRun(runResult, elapsed)
	}
	log.Info("pipeline: analysis completed",
		zap.Bool("used_fallback", result.UsedFallback),
		zap.String("readiness", string(result.ReadinessLevel)),
		zap.Int("attempts", out.Attempts),
		zap.Duration("elapsed", elapsed),
	)

	r.notify(wctx, a, result)
	return nil
}

func (r *Runner) buildInput(ctx context.Context, a *model.Assessment) (analysis.Input, error) {
	in := analysis.Input{
		AssessmentID: a.ID,
		Type:         a.Type,
		TypeName:     r.catalog.DisplayName(a.Type),
		Categories:   r.catalog.Categories(a.Type),
		Responses:    a.Data.Responses,
		PersonalInfo: a.Data.PersonalInfo,
	}
	if a.Data.Resume != nil && a.Data.Resume.ID != "" {
		f, err := r.store.GetFile(ctx, a.Data.Resume.ID)
		if err != nil {
			return in, eris.Wrapf(err, "pipeline: load resume %s", a.Data.Resume.ID)
		}
		in.Resume = &analysis.Document{Name: f.Name, ContentType: f.ContentType, Data: f.Data}
	}
	return in, nil
}

func (r *Runner) progress(ctx context.Context, id string, stage int) {
	_, err := r.store.UpdateAssessment(ctx, id, store.Update{
		FromStatuses: []model.Status{model.StatusProcessing},
		Patch:        model.ProgressPatch(stage),
	})
	if err != nil {
		zap.L().Warn("pipeline: progress write failed", zap.String("assessment_id", id), zap.Error(err))
	}
}

// fail re-reads the record and marks it errored if it is still processing.
func (r *Runner) fail(ctx context.Context, id string, cause error, start time.Time) {
	log := zap.L().With(zap.String("assessment_id", id))
	log.Error("pipeline: analysis fault", zap.Error(cause))

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	current, err := r.store.GetAssessment(wctx, id)
	if err != nil {
		log.Error("pipeline: reload after fault failed", zap.Error(err))
		return
	}
	if current.Status != model.StatusProcessing {
		log.Warn("pipeline: not marking error, record moved on", zap.String("status", string(current.Status)))
		return
	}

	ok, err := r.store.UpdateAssessment(wctx, id, store.Update{
		Status:       model.StatusError,
		FromStatuses: []model.Status{model.StatusProcessing},
		Patch:        model.ErrorPatch(GenericDiagnostic),
	})
	if err != nil {
		log.Error("pipeline: error write failed", zap.Error(err))
		return
	}
	if ok && r.metrics != nil {
		r.metrics.ObserveRun("error", time.Since(start))
	}
}

// release hands a run interrupted by its context back to submitted so the
// requeue sweep dispatches it again. An interruption is not a pipeline
// fault and never surfaces the diagnostic.
func (r *Runner) release(ctx context.Context, id string, cause error) {
	log := zap.L().With(zap.String("assessment_id", id))
	log.Warn("pipeline: analysis interrupted, releasing claim", zap.Error(cause))

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	ok, err := r.store.UpdateAssessment(wctx, id, store.Update{
		Status:       model.StatusSubmitted,
		FromStatuses: []model.Status{model.StatusProcessing},
		Patch:        model.ReleasePatch(),
	})
	if err != nil {
		log.Error("pipeline: release write failed", zap.Error(err))
		return
	}
	if !ok {
		log.Warn("pipeline: not releasing, record moved on")
		return
	}
	if r.metrics != nil {
		r.metrics.Released.Inc()
	}
}

func (r *Runner) notify(ctx context.Context, a *model.Assessment, result *model.AnalysisResult) {
	if r.notifier == nil {
		return
	}
	done := *a
	done.Status = model.StatusCompleted
	done.Data.ReadinessLevel = result.ReadinessLevel
	done.Data.Scores = result.Scores
	if err := r.notifier.NotifyCompleted(ctx, &done); err != nil {
		zap.L().Warn("pipeline: completion email failed",
			zap.String("assessment_id", a.ID),
			zap.Error(err),
		)
	}
}

func (r *Runner) recordAttempt(ctx context.Context, ev analysis.AttemptEvent) {
	at := &model.Attempt{
		AssessmentID: ev.AssessmentID,
		Number:       ev.Number,
		Backend:      ev.Backend,
		Outcome:      ev.Outcome,
		DelayMs:      ev.Delay.Milliseconds(),
		DurationMs:   ev.Duration.Milliseconds(),
		CreatedAt:    r.now(),
	}
	if ev.Err != nil {
		at.Error = ev.Err.Error()
	}
	if err := r.store.RecordAttempt(ctx, at); err != nil {
		zap.L().Warn("pipeline: record attempt failed", zap.String("assessment_id", ev.AssessmentID), zap.Error(err))
	}
	if r.metrics != nil {
		r.metrics.ObserveAttempt(ev.Backend, string(ev.Outcome), ev.Duration)
	}
}
