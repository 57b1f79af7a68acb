// Package store persists assessments, the adapter attempt ledger, and
// uploaded resumes.
package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/assessment-cli/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = eris.New("store: not found")

// Update is a single atomic change to an assessment. Status and
// ManualProcessing are left alone when zero; Patch is merged into the data
// document key by key, a nil value deleting the key. When FromStatuses is
// set the update only applies if the current status is one of them, and
// UpdatedBefore likewise restricts it to rows idle since that time.
type Update struct {
	Status           model.Status
	FromStatuses     []model.Status
	UpdatedBefore    time.Time
	Patch            model.DataPatch
	ManualProcessing *bool
}

// AssessmentFilter specifies criteria for listing assessments.
type AssessmentFilter struct {
	Status        model.Status `json:"status,omitempty"`
	UserID        string       `json:"user_id,omitempty"`
	UpdatedBefore time.Time    `json:"updated_before,omitempty"`
	Limit         int          `json:"limit,omitempty"`
	Offset        int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for the analysis pipeline.
type Store interface {
	// Assessments
	CreateAssessment(ctx context.Context, a *model.Assessment) error
	GetAssessment(ctx context.Context, id string) (*model.Assessment, error)
	// UpdateAssessment applies u in one statement and reports whether a row
	// was changed. A false result with a nil error means the record is
	// missing or its status did not match FromStatuses.
	UpdateAssessment(ctx context.Context, id string, u Update) (bool, error)
	ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error)

	// Attempt ledger
	RecordAttempt(ctx context.Context, a *model.Attempt) error
	ListAttempts(ctx context.Context, assessmentID string) ([]model.Attempt, error)

	// Resume files
	SaveFile(ctx context.Context, f *model.File) error
	GetFile(ctx context.Context, id string) (*model.File, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// splitPatch separates a patch into the JSON object of keys to set and the
// sorted list of keys to delete.
func splitPatch(p model.DataPatch) ([]byte, []string, error) {
	set := make(map[string]any, len(p))
	var del []string
	for k, v := range p {
		if v == nil {
			del = append(del, k)
			continue
		}
		set[k] = v
	}
	sort.Strings(del)
	raw, err := json.Marshal(set)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal patch")
	}
	if del == nil {
		del = []string{}
	}
	return raw, del, nil
}

// mergePatchJSON renders p as an RFC 7396 merge patch, where null deletes.
func mergePatchJSON(p model.DataPatch) ([]byte, error) {
	if p == nil {
		return []byte(`{}`), nil
	}
	raw, err := json.Marshal(map[string]any(p))
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal patch")
	}
	return raw, nil
}

func statusStrings(ss []model.Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func defaultLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
