// Package middleware decodes FHIR request bodies at HTTP boundaries and reports
// codec failures as OperationOutcome resources.
package middleware

import (
	"context"
	"net/http"

	"github.com/reoring/fhircodec"
)

// ContentType is the FHIR JSON media type used for responses.
const ContentType = "application/fhir+json"

type ctxKeyRecord struct{}

// ContextWithRecord attaches a decoded resource to the context.
func ContextWithRecord(ctx context.Context, rec *fhircodec.Record) context.Context {
	return context.WithValue(ctx, ctxKeyRecord{}, rec)
}

// RecordFromContext retrieves the resource stored by ContextWithRecord.
func RecordFromContext(ctx context.Context) (*fhircodec.Record, bool) {
	rec, ok := ctx.Value(ctxKeyRecord{}).(*fhircodec.Record)
	return rec, ok
}

// DefaultOptions returns a recommended default for HTTP JSON boundaries:
// duplicate keys are errors and nesting is capped.
func DefaultOptions() fhircodec.Options {
	return fhircodec.Options{
		Strictness: fhircodec.Strictness{OnDuplicateKey: fhircodec.Error},
		MaxDepth:   64,
		MaxBytes:   8 << 20,
	}
}

// DecodeResource decodes each request body as a polymorphic resource before
// calling next. Bodies that fail to decode get a 400 OperationOutcome.
func DecodeResource(c *fhircodec.Codec, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, err := c.Decode(r.Context(), r.Body, nil)
		if err != nil {
			WriteError(w, r, c, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithRecord(r.Context(), rec)))
	})
}

// WriteResource writes rec as the response body with the given status.
func WriteResource(w http.ResponseWriter, r *http.Request, c *fhircodec.Codec, status int, rec *fhircodec.Record) error {
	body, err := c.Marshal(r.Context(), rec)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}

// WriteError reports err as an OperationOutcome with status 400, or 500 when
// err carries no Issues.
func WriteError(w http.ResponseWriter, r *http.Request, c *fhircodec.Codec, err error) {
	status := http.StatusBadRequest
	iss, ok := fhircodec.AsIssues(err)
	if !ok {
		status = http.StatusInternalServerError
		iss = fhircodec.Issues{{Code: fhircodec.CodeParseError, Message: err.Error(), Offset: -1}}
	}
	body, mErr := OutcomeJSON(r.Context(), c, iss)
	if mErr != nil {
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
