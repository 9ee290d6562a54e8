package middleware

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/reoring/fhircodec"
)

// issueTypes maps codec issue codes onto the FHIR issue-type value set.
var issueTypes = map[string]string{
	fhircodec.CodeParseError:           "structure",
	fhircodec.CodeInvalidType:          "structure",
	fhircodec.CodeUnknownKey:           "structure",
	fhircodec.CodeDuplicateKey:         "structure",
	fhircodec.CodeInvalidEnum:          "code-invalid",
	fhircodec.CodeInvalidFormat:        "value",
	fhircodec.CodeDiscriminatorMissing: "required",
	fhircodec.CodeDiscriminatorUnknown: "not-supported",
	fhircodec.CodeChoiceViolation:      "invariant",
	fhircodec.CodeSidecarMismatch:      "structure",
	fhircodec.CodeTruncated:            "incomplete",
	fhircodec.CodeCanceled:             "timeout",
}

// IssueType returns the FHIR issue type for a codec issue code.
func IssueType(code string) string {
	if t, ok := issueTypes[code]; ok {
		return t
	}
	return "processing"
}

// Outcome builds an OperationOutcome record from iss. The catalogue must
// define OperationOutcome in the R4 shape.
func Outcome(cat *fhircodec.Catalogue, iss fhircodec.Issues) (*fhircodec.Record, error) {
	oo := cat.Dispatchable("OperationOutcome")
	if oo == nil {
		return nil, fmt.Errorf("catalogue has no OperationOutcome")
	}
	f := oo.Field("issue")
	if f == nil || f.Kind().Type() == nil {
		return nil, fmt.Errorf("OperationOutcome.issue is not a complex field")
	}
	items := make([]*fhircodec.Record, 0, len(iss))
	for _, it := range iss {
		diag := it.Message
		if it.Hint != "" {
			diag += " (" + it.Hint + ")"
		}
		item := fhircodec.NewRecord(f.Kind().Type()).
			Set("severity", fhircodec.Str("error")).
			Set("code", fhircodec.Str(IssueType(it.Code))).
			Set("diagnostics", fhircodec.Str(diag))
		if it.Path != "" {
			item.Set("expression", []*fhircodec.Primitive{fhircodec.Str(it.Path)})
		}
		items = append(items, item)
	}
	return fhircodec.NewRecord(oo).Set("issue", items), nil
}

// OutcomeJSON renders iss as an OperationOutcome. Catalogues without one get
// a plain {"issues":[...]} payload.
func OutcomeJSON(ctx context.Context, c *fhircodec.Codec, iss fhircodec.Issues) ([]byte, error) {
	rec, err := Outcome(c.Catalogue(), iss)
	if err != nil {
		return json.Marshal(ErrorPayload(iss))
	}
	return c.Marshal(ctx, rec)
}

// ErrorPayload shapes Issues for catalogues that cannot express an
// OperationOutcome.
func ErrorPayload(iss fhircodec.Issues) map[string]any {
	out := make([]map[string]any, 0, len(iss))
	for _, it := range iss {
		m := map[string]any{"code": it.Code, "path": it.Path, "message": it.Message}
		if it.Hint != "" {
			m["hint"] = it.Hint
		}
		out = append(out, m)
	}
	return map[string]any{"issues": out}
}
