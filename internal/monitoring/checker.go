package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Checker refreshes backlog gauges and closes runs stuck in processing.
type Checker struct {
	collector *Collector
	metrics   *Metrics
	interval  time.Duration
	sweep     bool
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithStaleSweep makes every check close stale processing records as error
// instead of only reporting them.
func WithStaleSweep(enabled bool) CheckerOption {
	return func(c *Checker) { c.sweep = enabled }
}

// NewChecker creates a background checker.
func NewChecker(collector *Collector, metrics *Metrics, interval time.Duration, opts ...CheckerOption) *Checker {
	if interval <= 0 {
		interval = time.Minute
	}
	c := &Checker{collector: collector, metrics: metrics, interval: interval}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting backlog checker", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("backlog checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects one snapshot and publishes it.
func (c *Checker) Check(ctx context.Context) *Snapshot {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect backlog", zap.Error(err))
		return nil
	}

	c.metrics.Assessments.WithLabelValues("submitted").Set(float64(snap.Submitted))
	c.metrics.Assessments.WithLabelValues("pending_review").Set(float64(snap.PendingReview))
	c.metrics.Assessments.WithLabelValues("processing").Set(float64(snap.Processing))
	c.metrics.StaleProcessing.Set(float64(len(snap.StaleProcessing)))

	if len(snap.StaleProcessing) > 0 {
		log.Warn("monitoring: assessments stuck in processing",
			zap.Int("count", len(snap.StaleProcessing)),
			zap.Strings("assessment_ids", snap.StaleProcessing),
			zap.String("stale_after", snap.StaleAfter),
		)
		if c.sweep {
			n, err := c.collector.CloseStale(ctx, snap.StaleProcessing)
			if err != nil {
				log.Error("monitoring: stale sweep failed", zap.Error(err))
			}
			c.metrics.StaleSwept.Add(float64(n))
		}
	}
	return snap
}
