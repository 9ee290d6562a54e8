package fhircodec_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	fc "github.com/reoring/fhircodec"
)

func TestEnforce_DuplicateKey_Error(t *testing.T) {
	c := testCodec(t, fc.Options{Strictness: fc.Strictness{OnDuplicateKey: fc.Error}})
	for _, in := range []string{
		`{"resourceType":"Patient","active":true,"active":false}`,
		`{"active":true,"active":false,"resourceType":"Patient"}`,
	} {
		_, err := c.Unmarshal(context.Background(), []byte(in), nil)
		wantIssue(t, err, fc.CodeDuplicateKey, "/active")
	}
}

func TestEnforce_DuplicateKey_NestedPath(t *testing.T) {
	c := testCodec(t, fc.Options{Strictness: fc.Strictness{OnDuplicateKey: fc.Error}})
	_, err := c.Unmarshal(context.Background(), []byte(`{"resourceType":"Patient","tag":[{"code":"a","code":"b"}]}`), nil)
	wantIssue(t, err, fc.CodeDuplicateKey, "/tag/0/code")
}

func TestEnforce_DuplicateKey_Warn(t *testing.T) {
	var logs bytes.Buffer
	log := zerolog.New(&logs)
	c := testCodec(t, fc.Options{Strictness: fc.Strictness{OnDuplicateKey: fc.Warn}, Logger: &log})
	rec := unmarshal(t, c, `{"resourceType":"Patient","active":true,"active":false}`, "")
	if !rec.Primitive("active").Equal(fc.Bool(false)) {
		t.Fatalf("last duplicate should win, got %v", rec.Primitive("active"))
	}
	if !strings.Contains(logs.String(), `"path":"/active"`) {
		t.Fatalf("expected warning with path, got %q", logs.String())
	}
}

func TestEnforce_MaxDepth(t *testing.T) {
	c := testCodec(t, fc.Options{MaxDepth: 2})
	_, err := c.Unmarshal(context.Background(), []byte(`{"resourceType":"Patient","tag":[{"system":"s"}]}`), nil)
	wantIssue(t, err, fc.CodeParseError, "/tag/0")

	if _, err := c.Unmarshal(context.Background(), []byte(`{"resourceType":"Patient","given":["a"]}`), nil); err != nil {
		t.Fatalf("depth 2 is within the limit: %v", err)
	}
}

func TestEnforce_MaxBytes(t *testing.T) {
	c := testCodec(t, fc.Options{MaxBytes: 32})
	in := `{"resourceType":"Patient","id":"` + strings.Repeat("x", 64) + `"}`
	_, err := c.Unmarshal(context.Background(), []byte(in), nil)
	wantIssue(t, err, fc.CodeTruncated, "")
}

func TestStrictOptions(t *testing.T) {
	o := fc.StrictOptions()
	if o.UnknownFields != fc.UnknownReject || o.Strictness.OnDuplicateKey != fc.Error || !o.EnforceAllowed || o.MaxDepth == 0 {
		t.Fatalf("strict preset is too lenient: %+v", o)
	}
	c := testCodec(t, fc.Options{}, o)
	_, err := c.Unmarshal(context.Background(), []byte(`{"resourceType":"Patient","x":1}`), nil)
	wantIssue(t, err, fc.CodeUnknownKey, "/x")
}
