package analysis

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/resilience"
	"github.com/sells-group/assessment-cli/pkg/anthropic"
)

// LegacyAdapter is the locally driven multi-step path: it first asks the
// model for a candidate profile, then scores the questionnaire against that
// profile. It also serves as the service adapter's secondary.
type LegacyAdapter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewLegacyAdapter creates the multi-step backend.
func NewLegacyAdapter(client anthropic.Client, model string, maxTokens int64) *LegacyAdapter {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &LegacyAdapter{client: client, model: model, maxTokens: maxTokens}
}

func (l *LegacyAdapter) Name() string { return BackendLegacy }

func (l *LegacyAdapter) Policy() FilePolicy {
	return FilePolicy{MaxBytes: 32 << 20, ContentTypes: pdfAndImages}
}

func (l *LegacyAdapter) Analyze(ctx context.Context, in Input) (*model.AnalysisResult, error) {
	profile, err := l.profile(ctx, in)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     l.model,
		MaxTokens: l.maxTokens,
		System:    []anthropic.SystemBlock{{Text: scoringSystemPrompt}},
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: scoringPrompt(in, "Candidate profile:\n"+profile),
		}},
		Temperature: anthropic.Float(scoringTemperature),
	})
	if err != nil {
		return nil, classify(err, anthropic.StatusCode(err))
	}
	resp.Usage.LogCost(l.model, l.Name(), "score", in.AssessmentID)

	return ParseResult(resp.Text())
}

func (l *LegacyAdapter) profile(ctx context.Context, in Input) (string, error) {
	msg := anthropic.Message{Role: "user", Content: scoringPrompt(in, "")}
	if in.Resume != nil {
		msg.Attachments = []anthropic.Attachment{{MediaType: NormalizeContentType(in.Resume.ContentType), Data: in.Resume.Data}}
	}

	resp, err := l.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     l.model,
		MaxTokens: 1024,
		System:    []anthropic.SystemBlock{{Text: profileSystemPrompt}},
		Messages:  []anthropic.Message{msg},
	})
	if err != nil {
		return "", classify(err, anthropic.StatusCode(err))
	}
	resp.Usage.LogCost(l.model, l.Name(), "profile", in.AssessmentID)

	profile := strings.TrimSpace(resp.Text())
	if profile == "" {
		return "", resilience.NewTransientError(eris.New("analysis: legacy profile step returned no text"), 0)
	}
	return profile, nil
}
