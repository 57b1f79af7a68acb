package pipeline

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"
)

// submissionSchema requires at least one non-null answer keyed
// "<category>.<question>" and, when given, a well-formed personal info
// object.
const submissionSchema = `{
  "type": "object",
  "required": ["responses"],
  "properties": {
    "responses": {
      "type": "object",
      "minProperties": 1,
      "propertyNames": {"pattern": "^[a-z][a-z0-9_]*\\.[A-Za-z0-9_.-]+$"},
      "additionalProperties": {"not": {"type": "null"}}
    },
    "personalInfo": {
      "type": "object",
      "properties": {
        "email": {"type": "string", "format": "email"},
        "firstName": {"type": "string", "maxLength": 200},
        "lastName": {"type": "string", "maxLength": 200}
      }
    }
  }
}`

var compiledSubmissionSchema = func() *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(submissionSchema))
	if err != nil {
		panic(eris.Wrap(err, "pipeline: compile submission schema"))
	}
	return schema
}()

// validatePayload checks the structured part of a submission.
func validatePayload(responses, personalInfo map[string]any) error {
	doc := map[string]any{"responses": responses}
	if personalInfo != nil {
		doc["personalInfo"] = personalInfo
	}
	res, err := compiledSubmissionSchema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return eris.Wrap(ErrInvalidInput, err.Error())
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return eris.Wrap(ErrInvalidInput, strings.Join(msgs, "; "))
	}
	return nil
}
