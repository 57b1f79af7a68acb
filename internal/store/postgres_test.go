package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/assessment-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetAssessment_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, user_id, type, tier, price, status, manual_processing, data, created_at, updated_at, reviewed_at FROM assessments WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetAssessment(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateAssessment_CAS(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE assessments SET updated_at = \$1, data = \(data \|\| \$2::jsonb\) - \$3::text\[\], status = \$4 WHERE id = \$5 AND status = ANY\(\$6\)`).
		WithArgs(pgxmock.AnyArg(), []byte(`{"analysisStatus":"processing"}`), []string{"scores"}, "processing", "a-1", []string{"submitted"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.UpdateAssessment(context.Background(), "a-1", Update{
		Status:       model.StatusProcessing,
		FromStatuses: []model.Status{model.StatusSubmitted},
		Patch:        model.DataPatch{"analysisStatus": "processing", "scores": nil},
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateAssessment_CASMiss(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE assessments SET .* WHERE id = \$\d+ AND status = ANY`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.UpdateAssessment(context.Background(), "a-1", Update{
		Status:       model.StatusCompleted,
		FromStatuses: []model.Status{model.StatusProcessing},
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateAssessment_UpdatedBefore(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cutoff := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec(`UPDATE assessments SET .*, status = \$4 WHERE id = \$5 AND status = ANY\(\$6\) AND updated_at < \$7`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "error", "a-1", []string{"processing"}, cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.UpdateAssessment(context.Background(), "a-1", Update{
		Status:        model.StatusError,
		FromStatuses:  []model.Status{model.StatusProcessing},
		UpdatedBefore: cutoff,
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateAssessment_ManualFlag(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	manual := true
	mock.ExpectExec(`UPDATE assessments SET updated_at = \$1, data = .*, manual_processing = \$4 WHERE id = \$5$`).
		WithArgs(pgxmock.AnyArg(), []byte(`{}`), []string{}, true, "a-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.UpdateAssessment(context.Background(), "a-2", Update{ManualProcessing: &manual})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateAssessment_ExecError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE assessments`).WillReturnError(eris.New("connection lost"))

	_, err := s.UpdateAssessment(context.Background(), "a-1", Update{Status: model.StatusError})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update assessment a-1")
}

func TestPostgresStore_CreateAssessment(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO assessments`).
		WithArgs(pgxmock.AnyArg(), "user-1", "leadership", "premium", 99.0, "draft", false,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a := &model.Assessment{UserID: "user-1", Type: model.TypeLeadership, Tier: model.TierPremium, Price: 99}
	require.NoError(t, s.CreateAssessment(context.Background(), a))
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, model.StatusDraft, a.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordAttempt(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO analysis_attempts`).
		WithArgs(pgxmock.AnyArg(), "a-1", 2, "assistant", "transient", pgxmock.AnyArg(), int64(1000), int64(40), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordAttempt(context.Background(), &model.Attempt{
		AssessmentID: "a-1", Number: 2, Backend: "assistant", Outcome: model.AttemptTransient,
		Error: "503", DelayMs: 1000, DurationMs: 40,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFile_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, assessment_id, name, content_type, size, data, created_at FROM assessment_files`).
		WithArgs("f-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetFile(context.Background(), "f-1")
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS assessments`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSplitPatch(t *testing.T) {
	raw, del, err := splitPatch(model.DataPatch{"b": nil, "a": nil, "summary": "ok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"ok"}`, string(raw))
	assert.Equal(t, []string{"a", "b"}, del)

	raw, del, err = splitPatch(nil)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(raw))
	assert.Empty(t, del)
}
