package fhircodec_test

import (
	"context"
	"errors"
	"testing"

	fc "github.com/reoring/fhircodec"
)

// testCatalogue is a small resource model exercising every field plan.
func testCatalogue(t testing.TB) *fc.Catalogue {
	t.Helper()
	cat, err := fc.NewCatalogueBuilder().Add(
		fc.TypeSpec{Name: "Element", Fields: []fc.FieldSpec{
			{Name: "id", Kind: fc.Prim(fc.ShapeString)},
			{Name: "extension", List: true, Kind: fc.Complex("Extension")},
		}},
		fc.TypeSpec{Name: "Extension", Base: "Element", Fields: []fc.FieldSpec{
			{Name: "url", Kind: fc.Prim(fc.ShapeString)},
			{Name: "value", Kind: fc.Choice(
				fc.Alt("string", fc.Prim(fc.ShapeString)),
				fc.Alt("boolean", fc.Prim(fc.ShapeBoolean)),
				fc.Alt("Coding", fc.Complex("Coding")),
			)},
		}},
		fc.TypeSpec{Name: "Coding", Base: "Element", Fields: []fc.FieldSpec{
			{Name: "system", Kind: fc.Prim(fc.ShapeString)},
			{Name: "code", Kind: fc.Prim(fc.ShapeString)},
		}},
		fc.TypeSpec{Name: "Resource", Abstract: true, Dispatchable: true, Fields: []fc.FieldSpec{
			{Name: "id", Kind: fc.Prim(fc.ShapeString)},
		}},
		fc.TypeSpec{Name: "DomainResource", Base: "Resource", Abstract: true, Dispatchable: true, Fields: []fc.FieldSpec{
			{Name: "contained", List: true, Kind: fc.Poly("Resource")},
		}},
		fc.TypeSpec{Name: "Patient", Base: "DomainResource", Dispatchable: true, Fields: []fc.FieldSpec{
			{Name: "active", Kind: fc.Prim(fc.ShapeBoolean)},
			{Name: "gender", Kind: fc.Code("male", "female", "other", "unknown")},
			{Name: "given", List: true, Kind: fc.Prim(fc.ShapeString)},
			{Name: "birthDate", Kind: fc.Prim(fc.ShapeDate)},
			{Name: "deceased", Kind: fc.Choice(
				fc.Alt("boolean", fc.Prim(fc.ShapeBoolean)),
				fc.Alt("dateTime", fc.Prim(fc.ShapeDateTime)),
				fc.Alt("Coding", fc.Complex("Coding")),
			)},
			{Name: "weight", Kind: fc.Prim(fc.ShapeDecimal)},
			{Name: "count", Kind: fc.Prim(fc.ShapeInteger)},
			{Name: "big", Kind: fc.Prim(fc.ShapeInteger64)},
			{Name: "photo", Kind: fc.Prim(fc.ShapeBinary)},
			{Name: "tag", List: true, Kind: fc.Complex("Coding")},
			{Name: "link", Kind: fc.Poly("Resource")},
		}},
		fc.TypeSpec{Name: "Observation", Base: "DomainResource", Dispatchable: true, Fields: []fc.FieldSpec{
			{Name: "status", Kind: fc.Code("final", "preliminary")},
			{Name: "value", Required: true, Kind: fc.Choice(
				fc.Alt("string", fc.Prim(fc.ShapeString)),
				fc.Alt("integer", fc.Prim(fc.ShapeInteger)),
				fc.Alt("Coding", fc.Complex("Coding")),
			)},
		}},
		fc.TypeSpec{Name: "Group", Base: "Resource", Dispatchable: true, Fields: []fc.FieldSpec{
			{Name: "name", Kind: fc.Prim(fc.ShapeString)},
			{Name: "member", List: true, Kind: fc.Poly("DomainResource")},
		}},
	).Build()
	if err != nil {
		t.Fatalf("build catalogue: %v", err)
	}
	return cat
}

func testCodec(t testing.TB, opts ...fc.Options) *fc.Codec {
	t.Helper()
	c, err := fc.NewCodec(testCatalogue(t), opts...)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func marshal(t *testing.T, c *fc.Codec, rec *fc.Record) string {
	t.Helper()
	out, err := c.Marshal(context.Background(), rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(out)
}

func unmarshal(t *testing.T, c *fc.Codec, in string, typ string) *fc.Record {
	t.Helper()
	var td *fc.TypeDescriptor
	if typ != "" {
		td = c.Catalogue().Type(typ)
	}
	rec, err := c.Unmarshal(context.Background(), []byte(in), td)
	if err != nil {
		t.Fatalf("unmarshal %s: %v", in, err)
	}
	return rec
}

// wantIssue asserts err carries an issue with code at path.
func wantIssue(t *testing.T, err error, code, path string) fc.Issue {
	t.Helper()
	iss, ok := fc.AsIssues(err)
	if !ok {
		t.Fatalf("expected Issues with %s, got %v", code, err)
	}
	for _, it := range iss {
		if it.Code == code && (path == "" || it.Path == path) {
			return it
		}
	}
	t.Fatalf("expected %s at %s, got %v", code, path, iss)
	return fc.Issue{}
}

var errStop = errors.New("stop")
