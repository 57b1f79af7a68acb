package analysis

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/pkg/anthropic"
)

type mockAdapter struct {
	mock.Mock
	name string
}

func (m *mockAdapter) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockAdapter) Policy() FilePolicy { return FilePolicy{} }

func (m *mockAdapter) Analyze(ctx context.Context, in Input) (*model.AnalysisResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AnalysisResult), args.Error(1)
}

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

func okResult() *model.AnalysisResult {
	return &model.AnalysisResult{
		Scores:         map[string]float64{"communication": 80, model.OverallScoreKey: 80},
		ReadinessLevel: model.ReadinessReady,
		Summary:        "ok",
	}
}
