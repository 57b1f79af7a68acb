package analysis

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/resilience"
)

// resultSchema is the minimum shape a backend reply must have. A 200 OK
// without a non-empty scores map is a failed attempt.
const resultSchema = `{
  "type": "object",
  "required": ["scores"],
  "properties": {
    "scores": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {"type": "number", "minimum": 0, "maximum": 100}
    },
    "readinessLevel": {"type": "string"},
    "recommendations": {"type": "array", "items": {"type": "string"}},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "improvements": {"type": "array", "items": {"type": "string"}},
    "summary": {"type": "string"}
  }
}`

var compiledResultSchema = mustSchema(resultSchema)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(eris.Wrap(err, "analysis: compile schema"))
	}
	return schema
}

// ErrContractViolation marks a backend reply that does not satisfy the
// response contract.
var ErrContractViolation = eris.New("analysis: response contract violation")

// ParseResult extracts the JSON object from a backend reply (tolerating
// markdown fences and surrounding prose), validates it, and normalizes the
// overall score and readiness band. Violations are transient.
func ParseResult(raw string) (*model.AnalysisResult, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return nil, violation("no JSON object in response")
	}

	res, err := compiledResultSchema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return nil, violation("response is not valid JSON: " + err.Error())
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, violation(strings.Join(msgs, "; "))
	}

	var out model.AnalysisResult
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, violation(err.Error())
	}
	out.UsedFallback = false
	out.FallbackReason = ""
	out.Normalize()
	return &out, nil
}

func violation(detail string) error {
	return resilience.NewTransientError(eris.Wrap(ErrContractViolation, detail), 0)
}

func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
