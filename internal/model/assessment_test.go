package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   Status
		terminal bool
		inFlight bool
	}{
		{StatusDraft, false, false},
		{StatusSubmitted, false, true},
		{StatusPendingReview, false, true},
		{StatusProcessing, false, true},
		{StatusCompleted, true, false},
		{StatusError, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.terminal, tt.status.Terminal())
			assert.Equal(t, tt.inFlight, tt.status.InFlight())
		})
	}
}

func TestAssessmentTypes_SevenKinds(t *testing.T) {
	t.Parallel()

	assert.Len(t, AssessmentTypes, 7)
	for _, at := range AssessmentTypes {
		assert.True(t, at.Valid(), at)
	}
	assert.False(t, AssessmentType("astrology").Valid())
}

func TestTierValid(t *testing.T) {
	t.Parallel()

	assert.True(t, TierBasic.Valid())
	assert.True(t, TierStandard.Valid())
	assert.True(t, TierPremium.Valid())
	assert.False(t, Tier("gold").Valid())
}

func TestProgressPercent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, Progress{}.Percent())
	assert.Equal(t, 33, Progress{Current: 1, Total: 3}.Percent())
	assert.Equal(t, 100, Progress{Current: 3, Total: 3}.Percent())
	assert.Equal(t, 100, Progress{Current: 5, Total: 3}.Percent())
}

func TestAssessmentData_Email(t *testing.T) {
	t.Parallel()

	assert.Empty(t, AssessmentData{}.Email())
	d := AssessmentData{PersonalInfo: map[string]any{"email": "sam@example.com"}}
	assert.Equal(t, "sam@example.com", d.Email())
}

func TestMergeAnswers_KeepsPartialSave(t *testing.T) {
	t.Parallel()

	existing := map[string]any{"leadership.q1": 4, "leadership.q2": 2}
	incoming := map[string]any{"leadership.q2": 5, "communication.q1": 3}

	merged := MergeAnswers(existing, incoming)
	assert.Equal(t, map[string]any{
		"leadership.q1":    4,
		"leadership.q2":    5,
		"communication.q1": 3,
	}, merged)
	// Inputs are not mutated.
	assert.Equal(t, 2, existing["leadership.q2"])
}

func TestResultPatch_FallbackFlags(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &AnalysisResult{
		Scores:         map[string]float64{"overall": 65},
		ReadinessLevel: ReadinessDeveloping,
		UsedFallback:   true,
		FallbackReason: "all backends failed",
	}

	p := ResultPatch(r, now)
	assert.Equal(t, true, p["usedFallback"])
	assert.Equal(t, "all backends failed", p["fallbackReason"])
	assert.Equal(t, "completed", p["analysisStatus"])

	r.UsedFallback = false
	p = ResultPatch(r, now)
	assert.Nil(t, p["usedFallback"])
	assert.Contains(t, p, "usedFallback")
}

func TestErrorPatch_ClearsScores(t *testing.T) {
	t.Parallel()

	p := ErrorPatch("  analysis failed \n")
	assert.Equal(t, "analysis failed", p["processingError"])
	assert.Contains(t, p, "scores")
	assert.Nil(t, p["scores"])
}

func TestAssessmentData_JSONRoundTripKeepsBookkeeping(t *testing.T) {
	t.Parallel()

	raw := `{"responses":{"a.q1":1},"usedFallback":true,"fallbackReason":"x","progress":{"current":2,"total":3},"unknownKey":"kept elsewhere"}`
	var d AssessmentData
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	assert.True(t, d.UsedFallback)
	assert.Equal(t, "x", d.FallbackReason)
	require.NotNil(t, d.Progress)
	assert.Equal(t, 66, d.Progress.Percent())
}
