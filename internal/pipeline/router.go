// Package pipeline owns the assessment analysis lifecycle: routing,
// submission intake, the background runner and the status projection.
package pipeline

import (
	"github.com/sells-group/assessment-cli/internal/model"
)

// Path is the processing route an assessment takes.
type Path string

const (
	// PathManual hands the assessment to a human reviewer.
	PathManual Path = "manual"
	// PathAutomated runs the assessment through an analysis backend.
	PathAutomated Path = "automated"
)

// Route decides how an assessment is processed. Standard and premium tiers
// and anything flagged for manual processing go to review; everything else
// is automated. price is accepted for callers that carry it but does not
// influence the decision.
func Route(tier model.Tier, price float64, manual bool) Path {
	_ = price
	if manual || tier == model.TierStandard || tier == model.TierPremium {
		return PathManual
	}
	return PathAutomated
}

// RouteOf applies Route to a persisted assessment.
func RouteOf(a *model.Assessment) Path {
	return Route(a.Tier, a.Price, a.ManualProcessing)
}

// RoutingHint returns the client path to open after a submission.
func RoutingHint(id string, p Path) string {
	if p == PathManual {
		return "/assessments/" + id + "/pending-review"
	}
	return "/assessments/" + id + "/processing"
}

// ResultsRedirect returns the client path for a completed assessment.
func ResultsRedirect(id string, p Path) string {
	if p == PathManual {
		return "/assessments/" + id + "/expert-report"
	}
	return "/assessments/" + id + "/results"
}
