// Package scorer produces a deterministic heuristic report for an
// assessment when no analysis backend could score it.
package scorer

import (
	"math"
	"sort"
	"strings"

	"github.com/sells-group/assessment-cli/internal/catalog"
	"github.com/sells-group/assessment-cli/internal/model"
)

// DefaultReason is attached to fallback results when the caller gives none.
const DefaultReason = "automated analysis was unavailable; heuristic scores were used"

// generalCategory collects answers whose key has no category prefix.
const generalCategory = "general"

// unknownCategoryScore is used for categories missing from neutralScores.
const unknownCategoryScore = 65.0

// neutralScores are the fixed per-category scores. They sit inside the
// "developing" and "ready" bands so a fallback report never overstates
// readiness.
var neutralScores = map[string]float64{
	"communication":          68,
	"leadership":             62,
	"technical":              70,
	"technical_skills":       70,
	"professional_skills":    70,
	"strategic":              60,
	"adaptability":           66,
	"networking":             64,
	"self_awareness":         67,
	"goal_setting":           63,
	"decision_making":        62,
	"market_knowledge":       61,
	"confidence":             66,
	"emotional_intelligence": 67,
	generalCategory:          65,
}

var (
	staticRecommendations = []string{
		"Schedule time each week to work on the lowest-scoring area of this assessment.",
		"Ask a mentor or peer for specific feedback on one recent project.",
		"Set one measurable goal for the next 30 days and review progress at the end.",
	}
	staticStrengths = []string{
		"You completed a structured self-assessment, which shows commitment to growth.",
		"Your responses give a clear baseline to measure future progress against.",
	}
	staticImprovements = []string{
		"Turn general intentions into concrete, time-bound actions.",
		"Gather outside perspectives to check your self-evaluation.",
	}
)

const staticSummary = "This report was generated from standard benchmarks for each area you answered. " +
	"Scores reflect typical results rather than a detailed review of your individual answers."

// Fallback scores responses with fixed neutral values. It is safe for
// concurrent use and never fails.
type Fallback struct {
	catalog *catalog.Catalog
}

// NewFallback returns a Fallback that uses cat for the categories of types
// whose questionnaire came back empty. A nil cat uses the embedded catalog.
func NewFallback(cat *catalog.Catalog) *Fallback {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Fallback{catalog: cat}
}

// Score builds a heuristic result. Categories come from the answered
// response keys ("category.question"); if none were answered the type's
// catalog categories are used, and failing that a single general category.
func (f *Fallback) Score(t model.AssessmentType, responses map[string]any) *model.AnalysisResult {
	categories := AnsweredCategories(responses)
	if len(categories) == 0 {
		categories = append(categories, f.catalog.Categories(t)...)
	}
	if len(categories) == 0 {
		categories = []string{generalCategory}
	}

	scores := make(map[string]float64, len(categories)+1)
	var sum float64
	for _, c := range categories {
		s := NeutralScore(c)
		scores[c] = s
		sum += s
	}
	overall := round1(sum / float64(len(categories)))
	scores[model.OverallScoreKey] = overall

	return &model.AnalysisResult{
		Scores:          scores,
		ReadinessLevel:  model.ReadinessForScore(overall),
		Recommendations: append([]string(nil), staticRecommendations...),
		Strengths:       append([]string(nil), staticStrengths...),
		Improvements:    append([]string(nil), staticImprovements...),
		Summary:         staticSummary,
		UsedFallback:    true,
		FallbackReason:  DefaultReason,
	}
}

// NeutralScore returns the fixed score for a category.
func NeutralScore(category string) float64 {
	if s, ok := neutralScores[strings.ToLower(category)]; ok {
		return s
	}
	return unknownCategoryScore
}

// AnsweredCategories returns the sorted, de-duplicated categories of the
// non-empty answers in responses.
func AnsweredCategories(responses map[string]any) []string {
	seen := make(map[string]struct{})
	for key, v := range responses {
		if !answered(v) {
			continue
		}
		cat := generalCategory
		if i := strings.Index(key, "."); i > 0 {
			cat = strings.ToLower(strings.TrimSpace(key[:i]))
		}
		seen[cat] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func answered(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
