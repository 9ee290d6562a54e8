package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

const latePatient = `{"id":"p1","active":true,"resourceType":"Patient"}`

func TestCanonicalize_Stdin(t *testing.T) {
	out, err := run(t, latePatient, "canonicalize")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := `{"resourceType":"Patient","id":"p1","active":true}` + "\n"; out != want {
		t.Fatalf("got %q want %q", out, want)
	}
}

func TestCanonicalize_FilesKeepArgumentOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", latePatient)
	b := writeFile(t, dir, "b.json", `{"status":"final","code":{"text":"hr"},"resourceType":"Observation"}`)
	out, err := run(t, "", "--concurrency=2", "canonicalize", a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], `{"resourceType":"Patient"`) ||
		!strings.HasPrefix(lines[1], `{"resourceType":"Observation"`) {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestCanonicalize_InPlace(t *testing.T) {
	p := writeFile(t, t.TempDir(), "p.json", latePatient)
	if _, err := run(t, "", "canonicalize", "-i", p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := os.ReadFile(p)
	if !strings.HasPrefix(string(got), `{"resourceType":"Patient"`) {
		t.Fatalf("file not rewritten: %s", got)
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", `{"resourceType":"Patient","id":"p1"}`)
	extra := writeFile(t, dir, "extra.json", `{"resourceType":"Patient","id":"p1","nickname":"x"}`)
	out, err := run(t, "", "check", good, extra)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok   "+good) || !strings.Contains(out, "DIFF "+extra) {
		t.Fatalf("unexpected report:\n%s", out)
	}

	bad := writeFile(t, dir, "bad.json", `{"id":"p1"}`)
	out, err = run(t, "", "check", bad)
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out, "FAIL "+bad) || !strings.Contains(out, "discriminator_missing") {
		t.Fatalf("unexpected report:\n%s", out)
	}
}

func TestCheck_StrictRejectsUnknown(t *testing.T) {
	extra := writeFile(t, t.TempDir(), "extra.json", `{"resourceType":"Patient","nickname":"x"}`)
	out, err := run(t, "", "--strict", "check", extra)
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out, "unknown_key /nickname") {
		t.Fatalf("unexpected report:\n%s", out)
	}
}

func TestTypes(t *testing.T) {
	out, err := run(t, "", "types")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Patient : DomainResource\n") || strings.Contains(out, "Coding") {
		t.Fatalf("unexpected listing:\n%s", out)
	}
	out, _ = run(t, "", "types", "--all")
	if !strings.Contains(out, "Coding : Element\n") {
		t.Fatalf("--all should list datatypes:\n%s", out)
	}
}

func TestNDJSON(t *testing.T) {
	in := latePatient + "\n\n" + `{"resourceType":"Basic","code":{"text":"x"}}` + "\n"
	out, err := run(t, in, "--driver=gojson", "ndjson")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"resourceType":"Patient","id":"p1","active":true}` + "\n" +
		`{"resourceType":"Basic","code":{"text":"x"}}` + "\n"
	if out != want {
		t.Fatalf("got %q want %q", out, want)
	}
}

// runWithin fails the test when the command does not finish in time.
func runWithin(t *testing.T, d time.Duration, args ...string) (string, error) {
	t.Helper()
	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := run(t, "", args...)
		done <- result{out, err}
	}()
	select {
	case r := <-done:
		return r.out, r.err
	case <-time.After(d):
		t.Fatalf("%v did not finish within %s", args, d)
		return "", nil
	}
}

func TestSchema(t *testing.T) {
	out, err := runWithin(t, 10*time.Second, "schema", "Patient")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"const": "Patient"`) {
		t.Fatalf("unexpected schema:\n%s", out)
	}
	if _, err := runWithin(t, 10*time.Second, "schema", "Nope"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestSchema_WholeCatalogue(t *testing.T) {
	out, err := runWithin(t, 10*time.Second, "schema")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"propertyName": "resourceType"`) || !strings.HasSuffix(out, "}\n") {
		t.Fatalf("unexpected schema tail:\n%s", out[max(0, len(out)-200):])
	}
}

func TestBadConfig(t *testing.T) {
	if _, err := run(t, "", "--driver=nope", "types"); err == nil {
		t.Fatal("expected config error")
	}
}
