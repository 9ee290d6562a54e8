// Package r4core embeds a FHIR R4 core catalogue: Element and Extension, the
// common datatypes, Resource and DomainResource, and the Patient, Observation,
// Basic, OperationOutcome, Parameters, and Bundle resources.
package r4core

import (
	_ "embed"
	"sync"

	"github.com/reoring/fhircodec"
	"github.com/reoring/fhircodec/catalogue"
)

//go:embed r4core.yaml
var definition []byte

// Definition returns the embedded YAML document.
func Definition() []byte { return definition }

var build = sync.OnceValues(func() (*fhircodec.Catalogue, error) {
	return catalogue.ParseYAML(definition)
})

// Catalogue returns the shared, immutable R4 core catalogue.
func Catalogue() (*fhircodec.Catalogue, error) { return build() }

// MustCatalogue is Catalogue that panics on error.
func MustCatalogue() *fhircodec.Catalogue {
	cat, err := build()
	if err != nil {
		panic(err)
	}
	return cat
}
