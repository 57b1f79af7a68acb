package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/analysis"
	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/monitoring"
	"github.com/sells-group/assessment-cli/internal/queue"
	"github.com/sells-group/assessment-cli/internal/store"
)

// Upload is a resume attached to a submission.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Submission is one questionnaire payload from the assessment owner.
type Submission struct {
	AssessmentID string
	OwnerID      string
	Responses    map[string]any
	PersonalInfo map[string]any
	Resume       *Upload
}

// Receipt acknowledges an accepted submission.
type Receipt struct {
	Status           string       `json:"status"`
	AssessmentStatus model.Status `json:"assessmentStatus"`
	Route            Path         `json:"route"`
	RoutingHint      string       `json:"routingHint"`
}

// Intake validates submissions, persists them and dispatches automated
// work to the queue.
type Intake struct {
	store   store.Store
	queue   queue.Queue
	policy  analysis.FilePolicy
	metrics *monitoring.Metrics
	now     func() time.Time
}

// IntakeOption configures an Intake.
type IntakeOption func(*Intake)

// WithIntakeMetrics records accepted submissions.
func WithIntakeMetrics(m *monitoring.Metrics) IntakeOption {
	return func(i *Intake) { i.metrics = m }
}

// NewIntake creates an Intake. policy is the active backend's file policy;
// maxFileBytes caps it further when positive.
func NewIntake(st store.Store, q queue.Queue, policy analysis.FilePolicy, maxFileBytes int64, opts ...IntakeOption) *Intake {
	in := &Intake{
		store:  st,
		queue:  q,
		policy: policy.Capped(maxFileBytes),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Authorize reports whether ownerID may submit to the assessment, so callers
// can reject strangers before reading a request body. It returns ErrNotFound
// or ErrForbidden.
func (i *Intake) Authorize(ctx context.Context, id, ownerID string) error {
	_, err := i.owned(ctx, id, ownerID)
	return err
}

func (i *Intake) owned(ctx context.Context, id, ownerID string) (*model.Assessment, error) {
	a, err := i.store.GetAssessment(ctx, id)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(ErrNotFound, "assessment %s", id)
		}
		return nil, eris.Wrap(err, "pipeline: load assessment")
	}
	if ownerID == "" || a.UserID != ownerID {
		return nil, eris.Wrapf(ErrForbidden, "assessment %s", id)
	}
	return a, nil
}

// Submit accepts a questionnaire payload. The record moves to submitted or
// pending_review in one compare-and-swap write; automated submissions are
// then enqueued and Submit returns without waiting for analysis.
func (i *Intake) Submit(ctx context.Context, s Submission) (*Receipt, error) {
	log := zap.L().With(zap.String("assessment_id", s.AssessmentID))

	a, err := i.owned(ctx, s.AssessmentID, s.OwnerID)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case model.StatusCompleted:
		return nil, eris.Wrapf(ErrAlreadyCompleted, "assessment %s", s.AssessmentID)
	case model.StatusError:
		return nil, eris.Wrapf(ErrTerminal, "assessment %s", s.AssessmentID)
	case model.StatusDraft:
	default:
		return nil, eris.Wrapf(ErrConflict, "assessment %s is %s", s.AssessmentID, a.Status)
	}

	if err := validatePayload(s.Responses, s.PersonalInfo); err != nil {
		return nil, err
	}
	if s.Resume != nil {
		if err := i.policy.Check(s.Resume.ContentType, int64(len(s.Resume.Data))); err != nil {
			return nil, eris.Wrap(ErrInvalidInput, err.Error())
		}
	}

	var ref *model.FileRef
	if s.Resume != nil {
		f := &model.File{
			FileRef:      model.FileRef{Name: s.Resume.Name, ContentType: analysis.NormalizeContentType(s.Resume.ContentType)},
			AssessmentID: a.ID,
			Data:         s.Resume.Data,
		}
		if err := i.store.SaveFile(ctx, f); err != nil {
			return nil, eris.Wrap(err, "pipeline: save resume")
		}
		r := f.FileRef
		ref = &r
	}

	path := RouteOf(a)
	next := model.StatusSubmitted
	responses := model.MergeAnswers(a.Data.Responses, s.Responses)
	var info map[string]any
	if s.PersonalInfo != nil {
		info = model.MergeAnswers(a.Data.PersonalInfo, s.PersonalInfo)
	}
	patch := model.SubmissionPatch(responses, info, ref, i.now())
	if path == PathManual {
		next = model.StatusPendingReview
		for k, v := range model.PendingReviewPatch() {
			patch[k] = v
		}
	}

	ok, err := i.store.UpdateAssessment(ctx, a.ID, store.Update{
		Status:       next,
		FromStatuses: []model.Status{a.Status},
		Patch:        patch,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: persist submission")
	}
	if !ok {
		return nil, eris.Wrapf(ErrConflict, "assessment %s", a.ID)
	}

	if i.metrics != nil {
		i.metrics.Submissions.WithLabelValues(string(path)).Inc()
	}
	log.Info("pipeline: submission accepted",
		zap.String("route", string(path)),
		zap.String("status", string(next)),
		zap.Bool("resume", ref != nil),
	)

	if path == PathAutomated {
		// The submission is committed; a failed enqueue is recovered by the
		// requeue sweep rather than reported to the caller.
		if err := i.queue.Enqueue(ctx, queue.NewTask(a.ID, "intake")); err != nil {
			log.Error("pipeline: enqueue failed, awaiting requeue", zap.Error(err))
		}
	}

	return &Receipt{
		Status:           "accepted",
		AssessmentStatus: next,
		Route:            path,
		RoutingHint:      RoutingHint(a.ID, path),
	}, nil
}
