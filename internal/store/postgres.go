package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/assessment-cli/internal/db"
	"github.com/sells-group/assessment-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS assessments (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id           TEXT NOT NULL,
	type              TEXT NOT NULL,
	tier              TEXT NOT NULL,
	price             DOUBLE PRECISION NOT NULL DEFAULT 0,
	status            TEXT NOT NULL DEFAULT 'draft',
	manual_processing BOOLEAN NOT NULL DEFAULT false,
	data              JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	reviewed_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_assessments_user_id ON assessments(user_id);
CREATE INDEX IF NOT EXISTS idx_assessments_status_updated ON assessments(status, updated_at);

CREATE TABLE IF NOT EXISTS analysis_attempts (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	number        INTEGER NOT NULL,
	backend       TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	error         TEXT,
	delay_ms      BIGINT NOT NULL DEFAULT 0,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analysis_attempts_assessment ON analysis_attempts(assessment_id, created_at);

CREATE TABLE IF NOT EXISTS assessment_files (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	name          TEXT NOT NULL,
	content_type  TEXT NOT NULL,
	size          BIGINT NOT NULL,
	data          BYTEA NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_assessment_files_assessment ON assessment_files(assessment_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const assessmentColumns = `id, user_id, type, tier, price, status, manual_processing, data, created_at, updated_at, reviewed_at`

func (s *PostgresStore) CreateAssessment(ctx context.Context, a *model.Assessment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = model.StatusDraft
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	dataJSON, err := json.Marshal(a.Data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal assessment data")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO assessments (`+assessmentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.UserID, string(a.Type), string(a.Tier), a.Price, string(a.Status), a.ManualProcessing,
		dataJSON, now, now, a.ReviewedAt,
	)
	return eris.Wrapf(err, "postgres: insert assessment %s", a.ID)
}

func (s *PostgresStore) GetAssessment(ctx context.Context, id string) (*model.Assessment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id)
	a, err := scanPostgresAssessment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "assessment %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get assessment %s", id)
	}
	return a, nil
}

func (s *PostgresStore) UpdateAssessment(ctx context.Context, id string, u Update) (bool, error) {
	setJSON, delKeys, err := splitPatch(u.Patch)
	if err != nil {
		return false, err
	}

	args := []any{time.Now().UTC(), setJSON, delKeys}
	sets := []string{"updated_at = $1", "data = (data || $2::jsonb) - $3::text[]"}
	if u.Status != "" {
		args = append(args, string(u.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if u.ManualProcessing != nil {
		args = append(args, *u.ManualProcessing)
		sets = append(sets, fmt.Sprintf("manual_processing = $%d", len(args)))
	}

	args = append(args, id)
	query := `UPDATE assessments SET ` + strings.Join(sets, ", ") + fmt.Sprintf(` WHERE id = $%d`, len(args))
	if len(u.FromStatuses) > 0 {
		args = append(args, statusStrings(u.FromStatuses))
		query += fmt.Sprintf(` AND status = ANY($%d)`, len(args))
	}
	if !u.UpdatedBefore.IsZero() {
		args = append(args, u.UpdatedBefore.UTC())
		query += fmt.Sprintf(` AND updated_at < $%d`, len(args))
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update assessment %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if !filter.UpdatedBefore.IsZero() {
		query += fmt.Sprintf(` AND updated_at < $%d`, argIdx)
		args = append(args, filter.UpdatedBefore)
		argIdx++
	}
	query += ` ORDER BY created_at ASC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, defaultLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assessments")
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		a, err := scanPostgresAssessment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan assessment")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list assessments iterate")
}

func scanPostgresAssessment(row pgx.Row) (*model.Assessment, error) {
	var a model.Assessment
	var typ, tier, status string
	var dataJSON []byte
	if err := row.Scan(&a.ID, &a.UserID, &typ, &tier, &a.Price, &status, &a.ManualProcessing,
		&dataJSON, &a.CreatedAt, &a.UpdatedAt, &a.ReviewedAt); err != nil {
		return nil, err
	}
	a.Type = model.AssessmentType(typ)
	a.Tier = model.Tier(tier)
	a.Status = model.Status(status)
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &a.Data); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal assessment data")
		}
	}
	return &a, nil
}

func (s *PostgresStore) RecordAttempt(ctx context.Context, a *model.Attempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_attempts (id, assessment_id, number, backend, outcome, error, delay_ms, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.AssessmentID, a.Number, a.Backend, string(a.Outcome), nullString(a.Error), a.DelayMs, a.DurationMs, a.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: record attempt for %s", a.AssessmentID)
}

func (s *PostgresStore) ListAttempts(ctx context.Context, assessmentID string) ([]model.Attempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, assessment_id, number, backend, outcome, COALESCE(error, ''), delay_ms, duration_ms, created_at
		 FROM analysis_attempts WHERE assessment_id = $1 ORDER BY created_at ASC, number ASC`,
		assessmentID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list attempts %s", assessmentID)
	}
	defer rows.Close()

	var out []model.Attempt
	for rows.Next() {
		var a model.Attempt
		var outcome string
		if err := rows.Scan(&a.ID, &a.AssessmentID, &a.Number, &a.Backend, &outcome, &a.Error,
			&a.DelayMs, &a.DurationMs, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan attempt")
		}
		a.Outcome = model.AttemptOutcome(outcome)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list attempts iterate")
}

func (s *PostgresStore) SaveFile(ctx context.Context, f *model.File) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.CreatedAt = time.Now().UTC()
	f.Size = int64(len(f.Data))
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assessment_files (id, assessment_id, name, content_type, size, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.AssessmentID, f.Name, f.ContentType, f.Size, f.Data, f.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save file for %s", f.AssessmentID)
}

func (s *PostgresStore) GetFile(ctx context.Context, id string) (*model.File, error) {
	var f model.File
	err := s.pool.QueryRow(ctx,
		`SELECT id, assessment_id, name, content_type, size, data, created_at FROM assessment_files WHERE id = $1`,
		id,
	).Scan(&f.ID, &f.AssessmentID, &f.Name, &f.ContentType, &f.Size, &f.Data, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "file %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get file %s", id)
	}
	return &f, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
