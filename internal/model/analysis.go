package model

import (
	"time"
)

// ReadinessLevel is the band summarizing an overall assessment score.
type ReadinessLevel string

const (
	ReadinessHighlyReady      ReadinessLevel = "highly_ready"
	ReadinessReady            ReadinessLevel = "ready"
	ReadinessDeveloping       ReadinessLevel = "developing"
	ReadinessNeedsPreparation ReadinessLevel = "needs_preparation"
)

// ReadinessLevels lists the bands from highest to lowest.
var ReadinessLevels = []ReadinessLevel{
	ReadinessHighlyReady,
	ReadinessReady,
	ReadinessDeveloping,
	ReadinessNeedsPreparation,
}

// Valid reports whether r is one of ReadinessLevels.
func (r ReadinessLevel) Valid() bool {
	for _, l := range ReadinessLevels {
		if r == l {
			return true
		}
	}
	return false
}

// OverallScoreKey is the scores entry holding the aggregate score.
const OverallScoreKey = "overall"

// ReadinessForScore maps an overall score onto the fixed readiness bands.
func ReadinessForScore(overall float64) ReadinessLevel {
	switch {
	case overall >= 85:
		return ReadinessHighlyReady
	case overall >= 70:
		return ReadinessReady
	case overall >= 50:
		return ReadinessDeveloping
	default:
		return ReadinessNeedsPreparation
	}
}

// AnalysisResult is the scored report produced by an analysis backend or by
// the fallback scorer.
type AnalysisResult struct {
	Scores          map[string]float64 `json:"scores"`
	ReadinessLevel  ReadinessLevel     `json:"readinessLevel"`
	Recommendations []string           `json:"recommendations"`
	Strengths       []string           `json:"strengths"`
	Improvements    []string           `json:"improvements"`
	Summary         string             `json:"summary"`
	UsedFallback    bool               `json:"usedFallback,omitempty"`
	FallbackReason  string             `json:"fallbackReason,omitempty"`
}

// OverallScore returns the "overall" entry, or the mean of all category
// scores when the backend did not supply one.
func (r *AnalysisResult) OverallScore() float64 {
	if v, ok := r.Scores[OverallScoreKey]; ok {
		return v
	}
	if len(r.Scores) == 0 {
		return 0
	}
	var sum float64
	for _, v := range r.Scores {
		sum += v
	}
	return sum / float64(len(r.Scores))
}

// Normalize fills the overall score and readiness band when a backend
// omitted them.
func (r *AnalysisResult) Normalize() {
	if len(r.Scores) == 0 {
		return
	}
	if _, ok := r.Scores[OverallScoreKey]; !ok {
		r.Scores[OverallScoreKey] = r.OverallScore()
	}
	if !r.ReadinessLevel.Valid() {
		r.ReadinessLevel = ReadinessForScore(r.Scores[OverallScoreKey])
	}
}

// AttemptOutcome classifies a single adapter invocation.
type AttemptOutcome string

const (
	AttemptSuccess   AttemptOutcome = "success"
	AttemptTransient AttemptOutcome = "transient"
	AttemptPermanent AttemptOutcome = "permanent"
)

// Attempt records one adapter invocation for an assessment.
type Attempt struct {
	ID           string         `json:"id"`
	AssessmentID string         `json:"assessment_id"`
	Number       int            `json:"number"`
	Backend      string         `json:"backend"`
	Outcome      AttemptOutcome `json:"outcome"`
	Error        string         `json:"error,omitempty"`
	DelayMs      int64          `json:"delay_ms"`
	DurationMs   int64          `json:"duration_ms"`
	CreatedAt    time.Time      `json:"created_at"`
}
