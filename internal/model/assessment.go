package model

import (
	"time"
)

// Status represents the lifecycle state of an assessment.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusSubmitted     Status = "submitted"
	StatusPendingReview Status = "pending_review"
	StatusProcessing    Status = "processing"
	StatusCompleted     Status = "completed"
	StatusError         Status = "error"
)

// Terminal reports whether no pipeline transition leaves the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// InFlight reports whether the status is one of the markers that precede a
// terminal state within a single analysis attempt.
func (s Status) InFlight() bool {
	switch s {
	case StatusSubmitted, StatusPendingReview, StatusProcessing:
		return true
	default:
		return false
	}
}

// Tier is the purchased assessment package.
type Tier string

const (
	TierBasic    Tier = "basic"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierStandard, TierPremium:
		return true
	default:
		return false
	}
}

// AssessmentType identifies which questionnaire an assessment uses.
type AssessmentType string

const (
	TypeCareerReadiness   AssessmentType = "career_readiness"
	TypeLeadership        AssessmentType = "leadership"
	TypeJobSearch         AssessmentType = "job_search"
	TypeInterviewPrep     AssessmentType = "interview_prep"
	TypeCareerChange      AssessmentType = "career_change"
	TypeSkillsGap         AssessmentType = "skills_gap"
	TypeExecutivePresence AssessmentType = "executive_presence"
)

// AssessmentTypes lists every supported assessment type.
var AssessmentTypes = []AssessmentType{
	TypeCareerReadiness,
	TypeLeadership,
	TypeJobSearch,
	TypeInterviewPrep,
	TypeCareerChange,
	TypeSkillsGap,
	TypeExecutivePresence,
}

// Valid reports whether t is one of AssessmentTypes.
func (t AssessmentType) Valid() bool {
	for _, known := range AssessmentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Assessment is a paid questionnaire whose analysis lifecycle the pipeline owns.
type Assessment struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	Type             AssessmentType `json:"type"`
	Tier             Tier           `json:"tier"`
	Price            float64        `json:"price"`
	Status           Status         `json:"status"`
	ManualProcessing bool           `json:"manual_processing"`
	Data             AssessmentData `json:"data"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	ReviewedAt       *time.Time     `json:"reviewed_at,omitempty"`
}

// AssessmentData is the semi-structured payload stored alongside an
// assessment. Keys written by other collaborators are preserved in storage
// because every write is a merge patch.
type AssessmentData struct {
	Responses    map[string]any `json:"responses,omitempty"`
	PersonalInfo map[string]any `json:"personalInfo,omitempty"`
	Resume       *FileRef       `json:"resume,omitempty"`

	Scores          map[string]float64 `json:"scores,omitempty"`
	ReadinessLevel  ReadinessLevel     `json:"readinessLevel,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	Strengths       []string           `json:"strengths,omitempty"`
	Improvements    []string           `json:"improvements,omitempty"`
	Summary         string             `json:"summary,omitempty"`

	AnalysisStatus      string     `json:"analysisStatus,omitempty"`
	AnalysisBackend     string     `json:"analysisBackend,omitempty"`
	ProcessingStartedAt *time.Time `json:"processingStartedAt,omitempty"`
	SubmittedAt         *time.Time `json:"submittedAt,omitempty"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	UsedFallback        bool       `json:"usedFallback,omitempty"`
	FallbackReason      string     `json:"fallbackReason,omitempty"`
	ProcessingError     string     `json:"processingError,omitempty"`
	Progress            *Progress  `json:"progress,omitempty"`
}

// Email returns the contact address captured in personal info, if any.
func (d AssessmentData) Email() string {
	if d.PersonalInfo == nil {
		return ""
	}
	email, _ := d.PersonalInfo["email"].(string)
	return email
}

// Progress reports how far a running analysis has advanced.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Percent returns progress as a whole-number percentage in [0, 100].
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	pct := p.Current * 100 / p.Total
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// FileRef points at an uploaded resume stored by the pipeline.
type FileRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// File is an uploaded resume with its bytes.
type File struct {
	FileRef
	AssessmentID string    `json:"assessment_id"`
	Data         []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
