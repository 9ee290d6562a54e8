package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reoring/fhircodec"
	"github.com/reoring/fhircodec/catalogue/r4core"
	"github.com/reoring/fhircodec/middleware"
)

func newCodec(t *testing.T) *fhircodec.Codec {
	t.Helper()
	c, err := fhircodec.NewCodec(r4core.MustCatalogue(), middleware.DefaultOptions())
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	return c
}

func echoHandler(c *fhircodec.Codec) http.Handler {
	return middleware.DecodeResource(c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, ok := middleware.RecordFromContext(r.Context())
		if !ok {
			http.Error(w, "missing record", http.StatusInternalServerError)
			return
		}
		_ = middleware.WriteResource(w, r, c, http.StatusOK, rec)
	}))
}

func TestDecodeResource_OK(t *testing.T) {
	c := newCodec(t)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":"p1","resourceType":"Patient"}`))
	rr := httptest.NewRecorder()
	echoHandler(c).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body)
	}
	if got := rr.Header().Get("Content-Type"); got != middleware.ContentType {
		t.Fatalf("content type %q", got)
	}
	if want := `{"resourceType":"Patient","id":"p1"}`; rr.Body.String() != want {
		t.Fatalf("got %s want %s", rr.Body, want)
	}
}

func TestDecodeResource_Outcome(t *testing.T) {
	c := newCodec(t)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"resourceType":"Patient","id":"a","id":"b"}`))
	rr := httptest.NewRecorder()
	echoHandler(c).ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.HasPrefix(body, `{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"structure"`) {
		t.Fatalf("unexpected outcome: %s", body)
	}
	if !strings.Contains(body, `"expression":["/id"]`) {
		t.Fatalf("expected issue path in expression: %s", body)
	}
}

func TestOutcomeJSON_WithoutOperationOutcome(t *testing.T) {
	cat := fhircodec.NewCatalogueBuilder().
		Add(fhircodec.TypeSpec{Name: "Extension"}).
		MustBuild()
	c := fhircodec.MustCodec(cat)
	iss := fhircodec.Issues{{Code: fhircodec.CodeTruncated, Path: "/x", Message: "truncated", Offset: -1}}
	body, err := middleware.OutcomeJSON(t.Context(), c, iss)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"issues":[{"code":"truncated","message":"truncated","path":"/x"}]}`; string(body) != want {
		t.Fatalf("got %s want %s", body, want)
	}
}

func TestIssueType(t *testing.T) {
	if got := middleware.IssueType(fhircodec.CodeInvalidEnum); got != "code-invalid" {
		t.Fatalf("got %q", got)
	}
	if got := middleware.IssueType("other"); got != "processing" {
		t.Fatalf("got %q", got)
	}
}
