package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/queue"
	"github.com/sells-group/assessment-cli/internal/store"
)

// Requeue enqueues automated assessments left in submitted, for example
// after a crash between intake and consumption. Only records not updated
// for at least minAge are picked up. It returns the number enqueued.
func Requeue(ctx context.Context, st store.Store, q queue.Queue, minAge time.Duration, limit int) (int, error) {
	filter := store.AssessmentFilter{Status: model.StatusSubmitted, Limit: limit}
	if minAge > 0 {
		filter.UpdatedBefore = time.Now().UTC().Add(-minAge)
	}
	list, err := st.ListAssessments(ctx, filter)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list submitted")
	}

	n := 0
	for i := range list {
		a := &list[i]
		if RouteOf(a) != PathAutomated {
			continue
		}
		if err := q.Enqueue(ctx, queue.NewTask(a.ID, "requeue")); err != nil {
			return n, eris.Wrapf(err, "pipeline: requeue %s", a.ID)
		}
		n++
	}
	if n > 0 {
		zap.L().Info("pipeline: requeued submitted assessments", zap.Int("count", n))
	}
	return n, nil
}
