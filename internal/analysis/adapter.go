// Package analysis drives the external AI backends that score an
// assessment: the adapter contract, the response contract every backend
// reply must satisfy, and the retry driver around a single adapter.
package analysis

import (
	"context"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/assessment-cli/internal/model"
)

// Backend names accepted by analysis.backend.
const (
	BackendAssistant = "assistant"
	BackendVision    = "vision"
	BackendService   = "service"
	BackendLegacy    = "legacy"
)

// Document is an uploaded resume held in memory for one analysis.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Input is everything an adapter needs to score one assessment.
type Input struct {
	AssessmentID string
	Type         model.AssessmentType
	TypeName     string
	Categories   []string
	Responses    map[string]any
	PersonalInfo map[string]any
	Resume       *Document
}

// Adapter wraps one concrete analysis provider. Analyze returns a
// *resilience.PermanentError when the provider rejected the input and any
// other error for failures that may clear on retry.
type Adapter interface {
	Name() string
	Policy() FilePolicy
	Analyze(ctx context.Context, in Input) (*model.AnalysisResult, error)
}

// FilePolicy is the resume allow-list a backend can accept.
type FilePolicy struct {
	MaxBytes     int64
	ContentTypes []string
}

// ErrFileRejected is returned by FilePolicy.Check.
var ErrFileRejected = eris.New("analysis: file rejected")

// Check validates a file's declared type and size against the policy.
func (p FilePolicy) Check(contentType string, size int64) error {
	if size <= 0 {
		return eris.Wrap(ErrFileRejected, "file is empty")
	}
	if p.MaxBytes > 0 && size > p.MaxBytes {
		return eris.Wrapf(ErrFileRejected, "file exceeds %d bytes", p.MaxBytes)
	}
	ct := NormalizeContentType(contentType)
	if len(p.ContentTypes) > 0 && !slices.Contains(p.ContentTypes, ct) {
		return eris.Wrapf(ErrFileRejected, "content type %q is not accepted", ct)
	}
	return nil
}

// Capped returns a copy of p whose size limit is at most maxBytes.
func (p FilePolicy) Capped(maxBytes int64) FilePolicy {
	if maxBytes > 0 && (p.MaxBytes == 0 || maxBytes < p.MaxBytes) {
		p.MaxBytes = maxBytes
	}
	return p
}

// NormalizeContentType lowercases a MIME type and drops its parameters.
func NormalizeContentType(ct string) string {
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

var (
	pdfAndImages = []string{"application/pdf", "image/png", "image/jpeg", "image/gif", "image/webp"}
	pdfAndScans  = []string{"application/pdf", "image/png", "image/jpeg"}
)
