package model

import (
	"strings"
	"time"
)

// DataPatch is a top-level merge patch applied to an assessment's data
// document. A nil value clears the key.
type DataPatch map[string]any

// GenericDiagnostic is the processing error stored on every errored
// assessment.
const GenericDiagnostic = "We could not complete the analysis of this assessment. Our team has been notified."

// analysisStages is the number of progress steps a run reports:
// prepare, analyze, finalize.
const analysisStages = 3

// MergeAnswers overlays incoming answers onto previously saved ones without
// discarding answers the new payload does not mention.
func MergeAnswers(existing, incoming map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

// SubmissionPatch records a submitted questionnaire payload.
func SubmissionPatch(responses, personalInfo map[string]any, resume *FileRef, now time.Time) DataPatch {
	p := DataPatch{
		"responses":       responses,
		"submittedAt":     now,
		"analysisStatus":  string(StatusSubmitted),
		"processingError": nil,
	}
	if personalInfo != nil {
		p["personalInfo"] = personalInfo
	}
	if resume != nil {
		p["resume"] = resume
	}
	return p
}

// PendingReviewPatch marks a submission routed to human review.
func PendingReviewPatch() DataPatch {
	return DataPatch{"analysisStatus": string(StatusPendingReview)}
}

// ProcessingPatch starts a new analysis attempt and clears any result left
// from a previous one.
func ProcessingPatch(backend string, now time.Time) DataPatch {
	return DataPatch{
		"analysisStatus":      string(StatusProcessing),
		"analysisBackend":     backend,
		"processingStartedAt": now,
		"processingError":     nil,
		"scores":              nil,
		"readinessLevel":      nil,
		"usedFallback":        nil,
		"fallbackReason":      nil,
		"completedAt":         nil,
		"progress":            Progress{Current: 1, Total: analysisStages},
	}
}

// ReleasePatch returns an interrupted run to the queue. The submission
// itself is kept.
func ReleasePatch() DataPatch {
	return DataPatch{
		"analysisStatus":      string(StatusSubmitted),
		"analysisBackend":     nil,
		"processingStartedAt": nil,
		"progress":            nil,
	}
}

// ProgressPatch advances the stage counter of a running analysis.
func ProgressPatch(current int) DataPatch {
	return DataPatch{"progress": Progress{Current: current, Total: analysisStages}}
}

// ResultPatch writes a complete result set in one piece.
func ResultPatch(result *AnalysisResult, now time.Time) DataPatch {
	p := DataPatch{
		"scores":          result.Scores,
		"readinessLevel":  string(result.ReadinessLevel),
		"recommendations": result.Recommendations,
		"strengths":       result.Strengths,
		"improvements":    result.Improvements,
		"summary":         result.Summary,
		"analysisStatus":  string(StatusCompleted),
		"completedAt":     now,
		"processingError": nil,
		"progress":        Progress{Current: analysisStages, Total: analysisStages},
	}
	if result.UsedFallback {
		p["usedFallback"] = true
		p["fallbackReason"] = result.FallbackReason
	} else {
		p["usedFallback"] = nil
		p["fallbackReason"] = nil
	}
	return p
}

// ErrorPatch records a pipeline fault. Results are cleared so a failed
// record never carries scores.
func ErrorPatch(diagnostic string) DataPatch {
	return DataPatch{
		"analysisStatus":  string(StatusError),
		"processingError": strings.TrimSpace(diagnostic),
		"scores":          nil,
		"readinessLevel":  nil,
		"progress":        nil,
	}
}
