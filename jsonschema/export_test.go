package jsonschema_test

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/reoring/fhircodec/catalogue/r4core"
	"github.com/reoring/fhircodec/jsonschema"
)

func TestFromCatalogue_Root(t *testing.T) {
	s, err := jsonschema.FromCatalogue(r4core.MustCatalogue(), "urn:test")
	if err != nil {
		t.Fatal(err)
	}
	if s.Discriminator == nil || s.Discriminator.PropertyName != "resourceType" {
		t.Fatalf("missing discriminator: %+v", s.Discriminator)
	}
	if got := s.Discriminator.Mapping["Patient"]; got != "#/definitions/Patient" {
		t.Fatalf("Patient mapping %q", got)
	}
	if _, ok := s.Discriminator.Mapping["DomainResource"]; ok {
		t.Fatal("abstract types must not be oneOf arms")
	}
	if _, err := json.Marshal(s); err != nil {
		t.Fatalf("marshal: %v", err)
	}
}

func TestForType_Patient(t *testing.T) {
	s, err := jsonschema.ForType(r4core.MustCatalogue(), "Patient")
	if err != nil {
		t.Fatal(err)
	}
	if rt := s.Properties["resourceType"]; rt == nil || rt.Const != "Patient" {
		t.Fatalf("resourceType const: %+v", rt)
	}
	// inherited from Resource
	if id := s.Properties["id"]; id == nil || id.Type != "string" {
		t.Fatalf("inherited id: %+v", id)
	}
	if s.Properties["_id"] == nil {
		t.Fatal("expected _id sidecar")
	}
	for _, p := range []string{"deceasedBoolean", "deceasedDateTime", "_deceasedDateTime"} {
		if s.Properties[p] == nil {
			t.Fatalf("expected choice property %s", p)
		}
	}
	if s.Properties["deceased"] != nil {
		t.Fatal("choice base name must not be a property")
	}
	g := s.Properties["gender"]
	if diff := cmp.Diff([]string{"male", "female", "other", "unknown"}, g.Enum); diff != "" {
		t.Fatalf("gender enum (-want +got):\n%s", diff)
	}
	if bd := s.Properties["birthDate"]; bd.Pattern == "" {
		t.Fatal("expected date pattern")
	}
	if name := s.Properties["name"]; name.Type != "array" || name.Items.Ref != "#/definitions/HumanName" {
		t.Fatalf("name: %+v", name)
	}
}

func TestForType_Polymorphic(t *testing.T) {
	s, err := jsonschema.ForType(r4core.MustCatalogue(), "BundleEntry")
	if err != nil {
		t.Fatal(err)
	}
	res := s.Properties["resource"]
	if res.Discriminator == nil || len(res.OneOf) == 0 {
		t.Fatalf("resource: %+v", res)
	}
	for _, arm := range res.OneOf {
		if strings.HasSuffix(arm.Ref, "/Resource") || strings.HasSuffix(arm.Ref, "/DomainResource") {
			t.Fatalf("abstract arm %s", arm.Ref)
		}
	}
	if s.Properties["_resource"] != nil {
		t.Fatal("complex fields carry no sidecar")
	}
}

func TestForType_Unknown(t *testing.T) {
	if _, err := jsonschema.ForType(r4core.MustCatalogue(), "Nope"); err == nil {
		t.Fatal("expected error")
	}
}
