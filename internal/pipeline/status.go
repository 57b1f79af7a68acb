package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/store"
)

// ProgressView is the polling view of a running analysis.
type ProgressView struct {
	Current int `json:"current"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// StatusView is what the status endpoint returns.
type StatusView struct {
	Status   model.Status  `json:"status"`
	Progress *ProgressView `json:"progress,omitempty"`
	Error    string        `json:"error,omitempty"`
	Redirect string        `json:"redirect,omitempty"`
}

// Tracker is the read-only projection over persisted assessments.
type Tracker struct {
	store store.Store
}

// NewTracker creates a Tracker.
func NewTracker(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// Status projects the assessment for its owner. An empty owner skips the
// ownership check for operator tooling.
func (t *Tracker) Status(ctx context.Context, id, owner string) (*StatusView, error) {
	a, err := t.load(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	view := &StatusView{Status: a.Status}
	if p := a.Data.Progress; p != nil && a.Status == model.StatusProcessing {
		view.Progress = &ProgressView{Current: p.Current, Total: p.Total, Percent: p.Percent()}
	}
	switch a.Status {
	case model.StatusError:
		view.Error = a.Data.ProcessingError
		if view.Error == "" {
			view.Error = GenericDiagnostic
		}
	case model.StatusCompleted:
		view.Redirect = ResultsRedirect(a.ID, RouteOf(a))
	}
	return view, nil
}

// Attempts lists the recorded adapter attempts for the assessment.
func (t *Tracker) Attempts(ctx context.Context, id, owner string) ([]model.Attempt, error) {
	if _, err := t.load(ctx, id, owner); err != nil {
		return nil, err
	}
	attempts, err := t.store.ListAttempts(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list attempts")
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	return attempts, nil
}

func (t *Tracker) load(ctx context.Context, id, owner string) (*model.Assessment, error) {
	a, err := t.store.GetAssessment(ctx, id)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(ErrNotFound, "assessment %s", id)
		}
		return nil, eris.Wrap(err, "pipeline: load assessment")
	}
	if owner != "" && a.UserID != owner {
		return nil, eris.Wrapf(ErrForbidden, "assessment %s", id)
	}
	return a, nil
}
