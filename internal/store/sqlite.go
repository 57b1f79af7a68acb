package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/assessment-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time; pragmas below are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS assessments (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	type              TEXT NOT NULL,
	tier              TEXT NOT NULL,
	price             REAL NOT NULL DEFAULT 0,
	status            TEXT NOT NULL DEFAULT 'draft',
	manual_processing INTEGER NOT NULL DEFAULT 0,
	data              TEXT NOT NULL DEFAULT '{}',
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	reviewed_at       DATETIME
);

CREATE TABLE IF NOT EXISTS analysis_attempts (
	id            TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	number        INTEGER NOT NULL,
	backend       TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	error         TEXT,
	delay_ms      INTEGER NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS assessment_files (
	id            TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	name          TEXT NOT NULL,
	content_type  TEXT NOT NULL,
	size          INTEGER NOT NULL,
	data          BLOB NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_assessments_user_id ON assessments(user_id);
CREATE INDEX IF NOT EXISTS idx_assessments_status_updated ON assessments(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_analysis_attempts_assessment ON analysis_attempts(assessment_id);
CREATE INDEX IF NOT EXISTS idx_assessment_files_assessment ON assessment_files(assessment_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateAssessment(ctx context.Context, a *model.Assessment) error {
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
		return eris.Wrap(err, "sqlite: marshal assessment data")
	}

	var reviewed any
	if a.ReviewedAt != nil {
		reviewed = a.ReviewedAt.UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assessments (id, user_id, type, tier, price, status, manual_processing, data, created_at, updated_at, reviewed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, string(a.Type), string(a.Tier), a.Price, string(a.Status), a.ManualProcessing,
		string(dataJSON), now, now, reviewed,
	)
	return eris.Wrapf(err, "sqlite: insert assessment %s", a.ID)
}

func (s *SQLiteStore) GetAssessment(ctx context.Context, id string) (*model.Assessment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, type, tier, price, status, manual_processing, data, created_at, updated_at, reviewed_at
		 FROM assessments WHERE id = ?`,
		id,
	)
	a, err := scanSQLiteAssessment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "assessment %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get assessment %s", id)
	}
	return a, nil
}

// UpdateAssessment merges the patch with json_patch, where a JSON null
// removes the key.
func (s *SQLiteStore) UpdateAssessment(ctx context.Context, id string, u Update) (bool, error) {
	patchJSON, err := mergePatchJSON(u.Patch)
	if err != nil {
		return false, err
	}

	sets := []string{"updated_at = ?", "data = json_patch(data, ?)"}
	args := []any{time.Now().UTC(), string(patchJSON)}
	if u.Status != "" {
		sets = append(sets, "status = ?")
		args = append(args, string(u.Status))
	}
	if u.ManualProcessing != nil {
		sets = append(sets, "manual_processing = ?")
		args = append(args, *u.ManualProcessing)
	}

	query := `UPDATE assessments SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	args = append(args, id)
	if len(u.FromStatuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(u.FromStatuses)-1) + `)`
		for _, st := range u.FromStatuses {
			args = append(args, string(st))
		}
	}
	if !u.UpdatedBefore.IsZero() {
		query += ` AND updated_at < ?`
		args = append(args, u.UpdatedBefore.UTC())
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update assessment %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error) {
	query := `SELECT id, user_id, type, tier, price, status, manual_processing, data, created_at, updated_at, reviewed_at
		FROM assessments WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if !filter.UpdatedBefore.IsZero() {
		query += ` AND updated_at < ?`
		args = append(args, filter.UpdatedBefore.UTC())
	}
	query += ` ORDER BY created_at ASC LIMIT ?`
	args = append(args, defaultLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assessments")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Assessment
	for rows.Next() {
		a, err := scanSQLiteAssessment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assessment")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list assessments iterate")
}

func (s *SQLiteStore) RecordAttempt(ctx context.Context, a *model.Attempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_attempts (id, assessment_id, number, backend, outcome, error, delay_ms, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AssessmentID, a.Number, a.Backend, string(a.Outcome), nullString(a.Error), a.DelayMs, a.DurationMs, a.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: record attempt for %s", a.AssessmentID)
}

func (s *SQLiteStore) ListAttempts(ctx context.Context, assessmentID string) ([]model.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, assessment_id, number, backend, outcome, COALESCE(error, ''), delay_ms, duration_ms, created_at
		 FROM analysis_attempts WHERE assessment_id = ? ORDER BY created_at ASC, number ASC`,
		assessmentID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list attempts %s", assessmentID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Attempt
	for rows.Next() {
		var a model.Attempt
		var outcome string
		if err := rows.Scan(&a.ID, &a.AssessmentID, &a.Number, &a.Backend, &outcome, &a.Error,
			&a.DelayMs, &a.DurationMs, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attempt")
		}
		a.Outcome = model.AttemptOutcome(outcome)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list attempts iterate")
}

func (s *SQLiteStore) SaveFile(ctx context.Context, f *model.File) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.CreatedAt = time.Now().UTC()
	f.Size = int64(len(f.Data))
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessment_files (id, assessment_id, name, content_type, size, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.AssessmentID, f.Name, f.ContentType, f.Size, f.Data, f.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: save file for %s", f.AssessmentID)
}

func (s *SQLiteStore) GetFile(ctx context.Context, id string) (*model.File, error) {
	var f model.File
	err := s.db.QueryRowContext(ctx,
		`SELECT id, assessment_id, name, content_type, size, data, created_at FROM assessment_files WHERE id = ?`,
		id,
	).Scan(&f.ID, &f.AssessmentID, &f.Name, &f.ContentType, &f.Size, &f.Data, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "file %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get file %s", id)
	}
	return &f, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteAssessment(row scannable) (*model.Assessment, error) {
	var a model.Assessment
	var typ, tier, status, dataJSON string
	var reviewed sql.NullTime
	if err := row.Scan(&a.ID, &a.UserID, &typ, &tier, &a.Price, &status, &a.ManualProcessing,
		&dataJSON, &a.CreatedAt, &a.UpdatedAt, &reviewed); err != nil {
		return nil, err
	}
	a.Type = model.AssessmentType(typ)
	a.Tier = model.Tier(tier)
	a.Status = model.Status(status)
	if reviewed.Valid {
		t := reviewed.Time
		a.ReviewedAt = &t
	}
	if dataJSON != "" {
		if err := json.Unmarshal([]byte(dataJSON), &a.Data); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal assessment data")
		}
	}
	return &a, nil
}
