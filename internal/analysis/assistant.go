package analysis

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/pkg/anthropic"
)

// AssistantAdapter sends the questionnaire and the resume document to a
// document-capable Anthropic model in a single turn.
type AssistantAdapter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAssistantAdapter creates the document-analysis assistant backend.
func NewAssistantAdapter(client anthropic.Client, model string, maxTokens int64) *AssistantAdapter {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AssistantAdapter{client: client, model: model, maxTokens: maxTokens}
}

func (a *AssistantAdapter) Name() string { return BackendAssistant }

// Policy accepts PDFs and common images up to the API's 32MB request cap,
// which intake narrows further.
func (a *AssistantAdapter) Policy() FilePolicy {
	return FilePolicy{MaxBytes: 32 << 20, ContentTypes: pdfAndImages}
}

func (a *AssistantAdapter) Analyze(ctx context.Context, in Input) (*model.AnalysisResult, error) {
	msg := anthropic.Message{Role: "user"}
	extra := ""
	if in.Resume != nil {
		msg.Attachments = []anthropic.Attachment{{MediaType: NormalizeContentType(in.Resume.ContentType), Data: in.Resume.Data}}
		extra = "The attached document is the candidate's resume; use it to ground your scores."
	}
	msg.Content = scoringPrompt(in, extra)

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      []anthropic.SystemBlock{{Text: scoringSystemPrompt}},
		Messages:    []anthropic.Message{msg},
		Temperature: anthropic.Float(scoringTemperature),
	})
	if err != nil {
		return nil, classify(err, anthropic.StatusCode(err))
	}
	resp.Usage.LogCost(a.model, a.Name(), "score", in.AssessmentID)

	res, err := ParseResult(resp.Text())
	if err != nil {
		zap.L().Debug("analysis: assistant reply rejected",
			zap.String("assessment_id", in.AssessmentID),
			zap.String("stop_reason", resp.StopReason),
			zap.Error(err),
		)
		return nil, err
	}
	return res, nil
}
