package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/store"
)

// Snapshot is a point-in-time view of pipeline backlog.
type Snapshot struct {
	Submitted       int       `json:"submitted"`
	PendingReview   int       `json:"pending_review"`
	Processing      int       `json:"processing"`
	StaleProcessing []string  `json:"stale_processing,omitempty"`
	StaleAfter      string    `json:"stale_after"`
	CollectedAt     time.Time `json:"collected_at"`
}

// Collector counts in-flight assessments from the store.
type Collector struct {
	store      store.Store
	staleAfter time.Duration
	limit      int
}

// NewCollector creates a collector. Processing records not updated within
// staleAfter are reported as stale.
func NewCollector(st store.Store, staleAfter time.Duration) *Collector {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &Collector{store: st, staleAfter: staleAfter, limit: 10000}
}

// Collect gathers a snapshot.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	now := time.Now().UTC()
	snap := &Snapshot{StaleAfter: c.staleAfter.String(), CollectedAt: now}

	for _, st := range []model.Status{model.StatusSubmitted, model.StatusPendingReview, model.StatusProcessing} {
		list, err := c.store.ListAssessments(ctx, store.AssessmentFilter{Status: st, Limit: c.limit})
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list %s", st)
		}
		switch st {
		case model.StatusSubmitted:
			snap.Submitted = len(list)
		case model.StatusPendingReview:
			snap.PendingReview = len(list)
		case model.StatusProcessing:
			snap.Processing = len(list)
			cutoff := now.Add(-c.staleAfter)
			for _, a := range list {
				if a.UpdatedAt.Before(cutoff) {
					snap.StaleProcessing = append(snap.StaleProcessing, a.ID)
				}
			}
		}
	}
	return snap, nil
}

// CloseStale moves the given processing records to error, skipping any that
// were touched within staleAfter or already left processing. It returns the
// number closed.
func (c *Collector) CloseStale(ctx context.Context, ids []string) (int, error) {
	cutoff := time.Now().UTC().Add(-c.staleAfter)
	closed := 0
	for _, id := range ids {
		ok, err := c.store.UpdateAssessment(ctx, id, store.Update{
			Status:        model.StatusError,
			FromStatuses:  []model.Status{model.StatusProcessing},
			UpdatedBefore: cutoff,
			Patch:         model.ErrorPatch(model.GenericDiagnostic),
		})
		if err != nil {
			return closed, eris.Wrapf(err, "monitoring: close stale %s", id)
		}
		if ok {
			zap.L().Warn("monitoring: closed stale assessment", zap.String("assessment_id", id))
			closed++
		}
	}
	return closed, nil
}
