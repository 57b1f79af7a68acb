package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadinessForScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  ReadinessLevel
	}{
		{100, ReadinessHighlyReady},
		{85, ReadinessHighlyReady},
		{84.9, ReadinessReady},
		{70, ReadinessReady},
		{69.99, ReadinessDeveloping},
		{50, ReadinessDeveloping},
		{49, ReadinessNeedsPreparation},
		{0, ReadinessNeedsPreparation},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ReadinessForScore(tt.score), "score %v", tt.score)
	}
}

func TestAnalysisResult_Normalize(t *testing.T) {
	t.Parallel()

	r := &AnalysisResult{Scores: map[string]float64{"leadership": 80, "communication": 90}}
	r.Normalize()

	assert.InDelta(t, 85, r.Scores[OverallScoreKey], 0.001)
	assert.Equal(t, ReadinessHighlyReady, r.ReadinessLevel)
}

func TestAnalysisResult_NormalizeKeepsProvidedValues(t *testing.T) {
	t.Parallel()

	r := &AnalysisResult{
		Scores:         map[string]float64{"leadership": 40, "overall": 72},
		ReadinessLevel: ReadinessDeveloping,
	}
	r.Normalize()

	assert.InDelta(t, 72, r.Scores[OverallScoreKey], 0.001)
	assert.Equal(t, ReadinessDeveloping, r.ReadinessLevel)
}

func TestAnalysisResult_NormalizeEmpty(t *testing.T) {
	t.Parallel()

	r := &AnalysisResult{}
	r.Normalize()
	assert.Empty(t, r.Scores)
	assert.Empty(t, r.ReadinessLevel)
}
