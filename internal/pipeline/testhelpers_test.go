package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/assessment-cli/internal/analysis"
	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/queue"
	"github.com/sells-group/assessment-cli/internal/resilience"
	"github.com/sells-group/assessment-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func interviewResponses() map[string]any {
	return map[string]any{
		"communication.clarity": "often",
		"storytelling.examples": "sometimes",
		"research.company":      "always",
		"confidence.nerves":     3,
	}
}

type seedOpt func(*model.Assessment)

func withTier(tier model.Tier) seedOpt {
	return func(a *model.Assessment) { a.Tier = tier }
}

func withStatus(s model.Status) seedOpt {
	return func(a *model.Assessment) { a.Status = s }
}

func withManual() seedOpt {
	return func(a *model.Assessment) { a.ManualProcessing = true }
}

func withResponses(r map[string]any) seedOpt {
	return func(a *model.Assessment) { a.Data.Responses = r }
}

func seedAssessment(t *testing.T, st store.Store, opts ...seedOpt) *model.Assessment {
	t.Helper()
	a := &model.Assessment{
		UserID: "owner-1",
		Type:   model.TypeInterviewPrep,
		Tier:   model.TierBasic,
		Price:  29,
		Status: model.StatusDraft,
		Data: model.AssessmentData{
			PersonalInfo: map[string]any{"email": "pat@example.com"},
		},
	}
	for _, o := range opts {
		o(a)
	}
	require.NoError(t, st.CreateAssessment(context.Background(), a))
	return a
}

func reload(t *testing.T, st store.Store, id string) *model.Assessment {
	t.Helper()
	a, err := st.GetAssessment(context.Background(), id)
	require.NoError(t, err)
	return a
}

// funcAdapter is an analysis.Adapter backed by a function.
type funcAdapter struct {
	name   string
	policy analysis.FilePolicy
	calls  atomic.Int32
	fn     func(ctx context.Context, in analysis.Input) (*model.AnalysisResult, error)
}

func (f *funcAdapter) Name() string                { return f.name }
func (f *funcAdapter) Policy() analysis.FilePolicy { return f.policy }

func (f *funcAdapter) Analyze(ctx context.Context, in analysis.Input) (*model.AnalysisResult, error) {
	f.calls.Add(1)
	return f.fn(ctx, in)
}

func newAdapter(fn func(ctx context.Context, in analysis.Input) (*model.AnalysisResult, error)) *funcAdapter {
	return &funcAdapter{
		name:   "assistant",
		policy: analysis.FilePolicy{MaxBytes: 1 << 20, ContentTypes: []string{"application/pdf", "image/png"}},
		fn:     fn,
	}
}

func goodResult() *model.AnalysisResult {
	r := &model.AnalysisResult{
		Scores:          map[string]float64{"communication": 82, "confidence": 74},
		Recommendations: []string{"Practice STAR answers"},
		Strengths:       []string{"Clear speaker"},
		Improvements:    []string{"Research the company"},
		Summary:         "Solid preparation.",
	}
	r.Normalize()
	return r
}

func fastDriver() *analysis.Driver {
	return analysis.NewDriver(resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2,
	}, time.Second, nil)
}

// recordingQueue captures enqueued tasks.
type recordingQueue struct {
	mu    sync.Mutex
	tasks []queue.Task
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, t queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *recordingQueue) Consume(ctx context.Context, _ queue.Handler) error {
	<-ctx.Done()
	return nil
}

func (q *recordingQueue) Close() error { return nil }

func (q *recordingQueue) ids() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.tasks))
	for i, t := range q.tasks {
		out[i] = t.AssessmentID
	}
	return out
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyCompleted(ctx context.Context, a *model.Assessment) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}
