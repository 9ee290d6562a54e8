package r4core_test

import (
	"context"
	"testing"

	"github.com/reoring/fhircodec"
	"github.com/reoring/fhircodec/catalogue/r4core"
)

func TestCatalogueBuilds(t *testing.T) {
	cat, err := r4core.Catalogue()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, name := range []string{"Patient", "Observation", "Bundle", "Parameters", "Basic", "OperationOutcome"} {
		td := cat.Dispatchable(name)
		if td == nil {
			t.Fatalf("%s not dispatchable", name)
		}
		if td.Abstract() {
			t.Fatalf("%s should be concrete", name)
		}
	}
	if !cat.Type("Resource").Abstract() || !cat.Type("DomainResource").Abstract() {
		t.Fatalf("Resource and DomainResource must be abstract")
	}
	if cat.Type("Patient").Field("meta") == nil {
		t.Fatalf("Patient does not inherit meta from Resource")
	}
	if _, err := fhircodec.NewCodec(cat); err != nil {
		t.Fatalf("codec: %v", err)
	}
}

func TestBundleRoundTrip(t *testing.T) {
	c := fhircodec.MustCodec(r4core.MustCatalogue())
	in := `{"resourceType":"Bundle","type":"collection","entry":[` +
		`{"fullUrl":"urn:uuid:1","resource":{"resourceType":"Patient","id":"p1","active":true,"birthDate":"1970-01-01","_birthDate":{"extension":[{"url":"http://example.org/accuracy","valueCode":"estimated"}]}}},` +
		`{"resource":{"resourceType":"Observation","status":"final","code":{"text":"heart rate"},"valueQuantity":{"value":72.0,"unit":"/min"}}}]}`
	rec, err := c.Unmarshal(context.Background(), []byte(in), nil)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := c.Marshal(context.Background(), rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != in {
		t.Fatalf("round trip changed output:\n in: %s\nout: %s", in, out)
	}
}
