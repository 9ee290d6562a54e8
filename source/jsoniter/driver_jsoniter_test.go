package jsoniter_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/reoring/fhircodec"
	"github.com/reoring/fhircodec/catalogue/r4core"
	eng "github.com/reoring/fhircodec/internal/engine"
	jsonsrc "github.com/reoring/fhircodec/source/json"
	"github.com/reoring/fhircodec/source/jsoniter"
)

func drain(src eng.TokenSource) ([]eng.Token, error) {
	var out []eng.Token
	for {
		tok, err := src.NextToken()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, tok)
	}
}

func TestDriver_MatchesStdlib(t *testing.T) {
	in := []byte(`{"resourceType":"Bundle","entry":[{"resource":{"id":"p","active":true}},{}],` +
		`"total":3,"link":[],"_timestamp":null,"meta":{"versionId":"1.50"}}`)
	want, err := drain(jsonsrc.NewBytes(in))
	if err != nil {
		t.Fatal(err)
	}
	got, err := drain(jsoniter.NewBytes(in))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(eng.Token{}, "Offset")); diff != "" {
		t.Fatalf("token streams differ (-stdlib +jsoniter):\n%s", diff)
	}
}

func TestDriver_Truncated(t *testing.T) {
	_, err := drain(jsoniter.NewBytes([]byte(`{"a":[1,2`)))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
}

func TestDriver_Codec(t *testing.T) {
	c := fhircodec.MustCodec(r4core.MustCatalogue(), fhircodec.Options{Driver: jsoniter.Driver()})
	in := `{"status":"final","code":{"text":"hr"},"valueInteger":60,"resourceType":"Observation"}`
	rec, err := c.Unmarshal(context.Background(), []byte(in), nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Marshal(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"resourceType":"Observation","status":"final","code":{"text":"hr"},"valueInteger":60}`; string(out) != want {
		t.Fatalf("got %s want %s", out, want)
	}
}
