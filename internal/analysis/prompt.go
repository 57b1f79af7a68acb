package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const scoringSystemPrompt = `You are a career coach scoring a completed career assessment.
Reply with a single JSON object and nothing else, shaped as:
{"scores": {"<category>": <0-100>, ..., "overall": <0-100>},
 "readinessLevel": "highly_ready" | "ready" | "developing" | "needs_preparation",
 "recommendations": [string], "strengths": [string], "improvements": [string],
 "summary": string}
Use readinessLevel highly_ready for overall >= 85, ready for >= 70, developing for >= 50, otherwise needs_preparation.`

// scoringTemperature keeps repeated scoring of the same answers stable.
const scoringTemperature = 0.0

const profileSystemPrompt = `You are a career coach. Write a concise candidate profile (under 300 words) from the
assessment answers and resume provided: background, demonstrated skills, goals, and gaps.
Plain prose only.`

// redactedInfoKeys are personal-info fields never sent to a provider.
var redactedInfoKeys = map[string]bool{"email": true, "phone": true, "address": true}

// scoringPrompt renders the user turn shared by every backend.
func scoringPrompt(in Input, extra string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assessment type: %s\n", in.TypeName)
	if len(in.Categories) > 0 {
		fmt.Fprintf(&b, "Score these categories: %s\n", strings.Join(in.Categories, ", "))
	}
	if info := redactInfo(in.PersonalInfo); len(info) > 0 {
		fmt.Fprintf(&b, "\nCandidate context:\n%s\n", mustJSON(info))
	}
	fmt.Fprintf(&b, "\nResponses (keys are category.question):\n%s\n", mustJSON(in.Responses))
	if extra = strings.TrimSpace(extra); extra != "" {
		fmt.Fprintf(&b, "\n%s\n", extra)
	}
	return b.String()
}

func redactInfo(info map[string]any) map[string]any {
	out := make(map[string]any, len(info))
	for k, v := range info {
		if redactedInfoKeys[strings.ToLower(k)] {
			continue
		}
		out[k] = v
	}
	return out
}

// mustJSON marshals v with sorted keys; values come from decoded JSON so
// marshaling cannot fail.
func mustJSON(v map[string]any) string {
	if len(v) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("{\n")
	for i, k := range keys {
		val, err := json.Marshal(v[k])
		if err != nil {
			val = []byte(`null`)
		}
		fmt.Fprintf(&b, "  %q: %s", k, val)
		if i < len(keys)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}
