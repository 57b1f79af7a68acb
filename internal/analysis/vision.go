package analysis

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/ocr"
	"github.com/sells-group/assessment-cli/pkg/gemini"
)

// maxResumeChars bounds the OCR text forwarded to the text model.
const maxResumeChars = 20000

// VisionAdapter is the two-stage backend: OCR the resume, then score the
// questionnaire plus extracted text with a text model.
type VisionAdapter struct {
	ocr ocr.Extractor
	gen gemini.Generator
}

// NewVisionAdapter creates the OCR-then-text-model backend.
func NewVisionAdapter(extractor ocr.Extractor, gen gemini.Generator) *VisionAdapter {
	return &VisionAdapter{ocr: extractor, gen: gen}
}

func (v *VisionAdapter) Name() string { return BackendVision }

func (v *VisionAdapter) Policy() FilePolicy {
	return FilePolicy{MaxBytes: 50 << 20, ContentTypes: pdfAndScans}
}

func (v *VisionAdapter) Analyze(ctx context.Context, in Input) (*model.AnalysisResult, error) {
	extra := ""
	if in.Resume != nil {
		text, err := v.ocr.ExtractText(ctx, in.Resume.Data, NormalizeContentType(in.Resume.ContentType))
		if err != nil {
			return nil, classify(err, 0)
		}
		if text = strings.TrimSpace(text); text != "" {
			text = truncateUTF8(text, maxResumeChars)
			extra = "Resume text (OCR):\n" + text
		}
	}

	raw, err := v.gen.GenerateJSON(ctx, scoringSystemPrompt, scoringPrompt(in, extra))
	if err != nil {
		return nil, classify(err, gemini.StatusCode(err))
	}
	return ParseResult(raw)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
