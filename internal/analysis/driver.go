package analysis

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/resilience"
)

var tracer = otel.Tracer("assessment-cli/analysis")

// AttemptEvent describes one finished adapter invocation.
type AttemptEvent struct {
	AssessmentID string
	Backend      string
	Number       int
	Outcome      model.AttemptOutcome
	Err          error
	// Delay is the backoff slept before this attempt.
	Delay    time.Duration
	Duration time.Duration
}

// Outcome is the driver's verdict for one assessment. Exactly one of
// Result or Exhausted is set.
type Outcome struct {
	Result    *model.AnalysisResult
	Exhausted bool
	Permanent bool
	Reason    string
	Attempts  int
	Backend   string
}

// Driver runs an adapter with bounded retries and exponential backoff.
type Driver struct {
	Retry       resilience.RetryConfig
	CallTimeout time.Duration
	Breakers    *resilience.Breakers
	OnAttempt   func(ctx context.Context, ev AttemptEvent)
}

// NewDriver returns a driver with the given retry policy and per-call timeout.
func NewDriver(retry resilience.RetryConfig, callTimeout time.Duration, breakers *resilience.Breakers) *Driver {
	return &Driver{Retry: retry, CallTimeout: callTimeout, Breakers: breakers}
}

// Execute calls the adapter until it returns a result that satisfies the
// response contract, a permanent failure, or MaxAttempts transient
// failures. Exhaustion is reported in the Outcome, not as an error; the
// only error returned is the context's.
func (d *Driver) Execute(ctx context.Context, a Adapter, in Input) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "analysis.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("assessment.id", in.AssessmentID),
		attribute.String("analysis.backend", a.Name()),
	)

	log := zap.L().With(
		zap.String("assessment_id", in.AssessmentID),
		zap.String("backend", a.Name()),
	)

	cfg := d.Retry
	var pendingDelay time.Duration
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		pendingDelay = delay
		log.Warn("analysis: attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	result, attempts, err := resilience.DoVal(ctx, cfg, func(ctx context.Context, attempt int) (*model.AnalysisResult, error) {
		delay := pendingDelay
		pendingDelay = 0
		return d.attempt(ctx, a, in, attempt, delay)
	})

	out := Outcome{Attempts: attempts, Backend: a.Name()}
	if err == nil {
		out.Result = result
		span.SetAttributes(attribute.Int("analysis.attempts", attempts))
		return out, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		span.SetStatus(codes.Error, "cancelled")
		return out, eris.Wrap(ctxErr, "analysis: execute cancelled")
	}

	out.Exhausted = true
	out.Permanent = resilience.IsPermanent(err)
	if out.Permanent {
		out.Reason = "analysis backend " + a.Name() + " rejected the submission"
	} else {
		out.Reason = "analysis backend " + a.Name() + " failed after " + strconv.Itoa(attempts) + " attempts"
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, out.Reason)
	log.Warn("analysis: backend exhausted",
		zap.Int("attempts", attempts),
		zap.Bool("permanent", out.Permanent),
		zap.Error(err),
	)
	return out, nil
}

func (d *Driver) attempt(ctx context.Context, a Adapter, in Input, number int, delay time.Duration) (*model.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "analysis.attempt")
	defer span.End()
	span.SetAttributes(attribute.Int("attempt", number))

	start := time.Now()
	res, err := d.call(ctx, a, in)
	if err == nil && (res == nil || len(res.Scores) == 0) {
		err = violation("backend returned no scores")
	}
	elapsed := time.Since(start)

	ev := AttemptEvent{
		AssessmentID: in.AssessmentID,
		Backend:      a.Name(),
		Number:       number,
		Outcome:      model.AttemptSuccess,
		Err:          err,
		Delay:        delay,
		Duration:     elapsed,
	}
	if err != nil {
		ev.Outcome = model.AttemptTransient
		if resilience.Classify(err) == resilience.KindPermanent {
			ev.Outcome = model.AttemptPermanent
		}
		span.RecordError(err)
	}
	if d.OnAttempt != nil && ctx.Err() == nil {
		d.OnAttempt(ctx, ev)
	}
	return res, err
}

// call bounds the adapter by CallTimeout inside the breaker so that a timed
// out call counts against the backend rather than as caller cancellation.
func (d *Driver) call(ctx context.Context, a Adapter, in Input) (*model.AnalysisResult, error) {
	analyze := func(ctx context.Context) (*model.AnalysisResult, error) {
		if d.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.CallTimeout)
			defer cancel()
		}
		return a.Analyze(ctx, in)
	}
	if d.Breakers == nil {
		return analyze(ctx)
	}
	return resilience.Call(ctx, d.Breakers.Get(a.Name()), analyze)
}
