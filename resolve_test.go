package fhircodec_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	fc "github.com/reoring/fhircodec"
	"github.com/reoring/fhircodec/source/gojson"
)

const canonicalObs = `{"resourceType":"Observation","id":"o1","contained":[{"resourceType":"Group","name":"g"}],"status":"final","valueCoding":{"system":"s","code":"c"}}`

func TestResolve_DiscriminatorPosition(t *testing.T) {
	inputs := map[string]string{
		"first":  canonicalObs,
		"middle": `{"id":"o1","contained":[{"name":"g","resourceType":"Group"}],"resourceType":"Observation","status":"final","valueCoding":{"system":"s","code":"c"}}`,
		"last":   `{"id":"o1","contained":[{"name":"g","resourceType":"Group"}],"status":"final","valueCoding":{"system":"s","code":"c"},"resourceType":"Observation"}`,
		"spaced": "{ \"valueCoding\" : {\"code\":\"c\",\"system\":\"s\"} ,\n \"status\":\"final\", \"id\":\"o1\", \"contained\":[{\"name\":\"g\",\"resourceType\":\"Group\"}], \"resourceType\":\"Observation\" }",
	}
	for _, driver := range []fc.JSONDriver{fc.StdlibDriver(), gojson.Driver()} {
		c := testCodec(t, fc.Options{Driver: driver})
		want := unmarshal(t, c, canonicalObs, "")
		for name, in := range inputs {
			t.Run(driver.Name()+"/"+name, func(t *testing.T) {
				got := unmarshal(t, c, in, "")
				if !got.Equal(want) {
					t.Fatalf("got %v, want %v", got, want)
				}
				if out := marshal(t, c, got); out != canonicalObs {
					t.Fatalf("canonical form %s", out)
				}
			})
		}
	}
}

func TestResolve_ListOfResources(t *testing.T) {
	c := testCodec(t)
	in := `{"resourceType":"Group","member":[` +
		`{"active":true,"resourceType":"Patient"},` +
		`{"resourceType":"Observation","valueInteger":1},` +
		`{"valueString":"x","status":"preliminary","resourceType":"Observation"}]}`
	rec := unmarshal(t, c, in, "")
	members := rec.Children("member")
	if len(members) != 3 {
		t.Fatalf("members = %v", members)
	}
	for i, want := range []string{"Patient", "Observation", "Observation"} {
		if members[i].Type().Name() != want {
			t.Fatalf("member %d is %s, want %s", i, members[i].Type().Name(), want)
		}
	}
	if s, _ := members[2].Choice("value"); s != "string" || members[2].Primitive("status").Value != "preliminary" {
		t.Fatalf("replayed member lost fields: %v", members[2])
	}
}

func TestResolve_DiscriminatorOnlyAtOwnLevel(t *testing.T) {
	c := testCodec(t)
	// The nested resourceType belongs to the contained resource, not the outer one.
	_, err := c.Unmarshal(context.Background(), []byte(`{"contained":[{"resourceType":"Group"}]}`), nil)
	wantIssue(t, err, fc.CodeDiscriminatorMissing, "/resourceType")
}

func TestResolve_Failures(t *testing.T) {
	c := testCodec(t)
	cases := []struct {
		name, in, code, path string
	}{
		{"missing", `{}`, fc.CodeDiscriminatorMissing, "/resourceType"},
		{"missing late", `{"id":"x"}`, fc.CodeDiscriminatorMissing, "/resourceType"},
		{"unknown", `{"resourceType":"Spaceship"}`, fc.CodeDiscriminatorUnknown, "/resourceType"},
		{"unknown late", `{"id":"x","resourceType":"Spaceship"}`, fc.CodeDiscriminatorUnknown, "/resourceType"},
		{"abstract", `{"resourceType":"DomainResource"}`, fc.CodeInvalidType, "/resourceType"},
		{"not a string", `{"id":"x","resourceType":5}`, fc.CodeInvalidType, "/resourceType"},
		{"conflicting", `{"id":"x","resourceType":"Patient","resourceType":"Group"}`, fc.CodeDuplicateKey, "/resourceType"},
		{"nested", `{"resourceType":"Group","member":[{"id":"m","resourceType":"Spaceship"}]}`, fc.CodeDiscriminatorUnknown, "/member/0/resourceType"},
		{"replayed field error", `{"active":"no","resourceType":"Patient"}`, fc.CodeInvalidType, "/active"},
		{"truncated while buffering", `{"id":"x","active":tr`, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Unmarshal(context.Background(), []byte(tc.in), nil)
			if tc.code == "" {
				if _, ok := fc.AsIssues(err); !ok {
					t.Fatalf("expected Issues, got %v", err)
				}
				return
			}
			wantIssue(t, err, tc.code, tc.path)
		})
	}
}

func TestResolve_ReplayedIssueHasNoOffset(t *testing.T) {
	c := testCodec(t)
	_, err := c.Unmarshal(context.Background(), []byte(`{"active":"no","resourceType":"Patient"}`), nil)
	it := wantIssue(t, err, fc.CodeInvalidType, "/active")
	if it.Offset != -1 {
		t.Fatalf("offset %d refers to the replay buffer", it.Offset)
	}
}

func TestResolve_Fallback(t *testing.T) {
	var logs bytes.Buffer
	log := zerolog.New(&logs)
	c := testCodec(t, fc.Options{UnknownResources: fc.ResourceFallback, Logger: &log})
	for _, in := range []string{
		`{"resourceType":"Spaceship","id":"s1","warp":9}`,
		`{"id":"s1","warp":9,"resourceType":"Spaceship"}`,
	} {
		rec := unmarshal(t, c, in, "")
		if rec.Type().Name() != "Resource" || rec.OpenType() != "Spaceship" {
			t.Fatalf("%s: decoded as %s/%s", in, rec.Type().Name(), rec.OpenType())
		}
		if out := marshal(t, c, rec); out != `{"resourceType":"Spaceship","id":"s1"}` {
			t.Fatalf("fallback re-encodes as %s", out)
		}
	}
	if !strings.Contains(logs.String(), "unknown resourceType") {
		t.Fatalf("expected a warning, got %q", logs.String())
	}
}

func TestResolve_FallbackUsesFieldAllowedBase(t *testing.T) {
	in := `{"resourceType":"Group","member":[{"resourceType":"Spaceship","id":"s1",` +
		`"contained":[{"resourceType":"Group","name":"crew"}]}]}`
	for _, enforce := range []bool{false, true} {
		c := testCodec(t, fc.Options{UnknownResources: fc.ResourceFallback, EnforceAllowed: enforce})
		rec := unmarshal(t, c, in, "")
		m := rec.Children("member")
		if len(m) != 1 || m[0].Type().Name() != "DomainResource" || m[0].OpenType() != "Spaceship" {
			t.Fatalf("enforce=%v: member decoded as %v", enforce, m)
		}
		if got := m[0].Children("contained"); len(got) != 1 || got[0].Primitive("name").Value != "crew" {
			t.Fatalf("enforce=%v: contained lost: %v", enforce, got)
		}
		if out := marshal(t, c, rec); out != in {
			t.Fatalf("enforce=%v: re-encodes as %s", enforce, out)
		}
	}
}

func TestResolve_EnforceAllowed(t *testing.T) {
	in := []byte(`{"resourceType":"Group","member":[{"resourceType":"Group"}]}`)
	if _, err := testCodec(t).Unmarshal(context.Background(), in, nil); err != nil {
		t.Fatalf("allowed set is a hint by default: %v", err)
	}
	_, err := testCodec(t, fc.Options{EnforceAllowed: true}).Unmarshal(context.Background(), in, nil)
	wantIssue(t, err, fc.CodeInvalidType, "/member/0/resourceType")
}

func TestResolve_DeserializePolymorphicOverSource(t *testing.T) {
	c := testCodec(t)
	rec, err := c.DeserializePolymorphic(context.Background(), fc.JSONBytes([]byte(`{"name":"n","resourceType":"Group"}`)))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Type().Name() != "Group" || rec.Primitive("name").Value != "n" {
		t.Fatalf("got %v", rec)
	}
}

// cancelingSource cancels the context after n tokens.
type cancelingSource struct {
	fc.Source
	n      int
	cancel context.CancelFunc
}

func (s *cancelingSource) NextToken() (fc.Token, error) {
	if s.n--; s.n == 0 {
		s.cancel()
	}
	return s.Source.NextToken()
}

func TestResolve_CancelWhileBuffering(t *testing.T) {
	c := testCodec(t)
	var b strings.Builder
	b.WriteString(`{"id":"x","contained":[`)
	for i := 0; i < 2000; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`{"resourceType":"Group","name":"n"}`)
	}
	b.WriteString(`],"resourceType":"Patient"}`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancelingSource{Source: fc.JSONBytes([]byte(b.String())), n: 10, cancel: cancel}
	_, err := c.DeserializePolymorphic(ctx, src)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
