// Package catalogue reads catalogue definition documents and builds a
// fhircodec.Catalogue from them.
//
// Documents are authored as YAML or as JSONC (JSON extended with comments and
// trailing commas). Field types name either a FHIR primitive ("string",
// "positiveInt", "dateTime") or another type in the document:
//
//	types:
//	  - name: Patient
//	    base: DomainResource
//	    dispatchable: true
//	    fields:
//	      - {name: gender, type: code, enum: [male, female, other, unknown]}
//	      - {name: deceased, choice: [boolean, dateTime]}
//	      - {name: contained, resource: [Resource], list: true}
package catalogue

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/reoring/fhircodec"
)

// Document is the serialized form of a catalogue.
type Document struct {
	// ExtensionType names the sidecar extension type; empty keeps "Extension".
	ExtensionType string `yaml:"extensionType" json:"extensionType"`
	// FallbackType names the open type for unknown resources; nil keeps
	// "Resource" when defined, "" disables it.
	FallbackType *string   `yaml:"fallbackType" json:"fallbackType"`
	Types        []TypeDoc `yaml:"types" json:"types"`
}

// TypeDoc defines one type.
type TypeDoc struct {
	Name         string     `yaml:"name" json:"name"`
	Base         string     `yaml:"base" json:"base"`
	Abstract     bool       `yaml:"abstract" json:"abstract"`
	Dispatchable bool       `yaml:"dispatchable" json:"dispatchable"`
	Fields       []FieldDoc `yaml:"fields" json:"fields"`
}

// FieldDoc defines one field. Exactly one of Type, Resource, and Choice is set.
type FieldDoc struct {
	Name     string   `yaml:"name" json:"name"`
	Type     string   `yaml:"type" json:"type"`
	Resource []string `yaml:"resource" json:"resource"`
	Choice   []string `yaml:"choice" json:"choice"`
	Enum     []string `yaml:"enum" json:"enum"`
	List     bool     `yaml:"list" json:"list"`
	Required bool     `yaml:"required" json:"required"`
}

// Builder converts doc into a catalogue builder.
func (doc *Document) Builder() (*fhircodec.CatalogueBuilder, error) {
	b := fhircodec.NewCatalogueBuilder()
	if doc.ExtensionType != "" {
		b.ExtensionType(doc.ExtensionType)
	}
	if doc.FallbackType != nil {
		b.FallbackType(*doc.FallbackType)
	}
	var errs []error
	for _, td := range doc.Types {
		spec := fhircodec.TypeSpec{Name: td.Name, Base: td.Base, Abstract: td.Abstract, Dispatchable: td.Dispatchable}
		for _, fd := range td.Fields {
			k, err := fd.kind()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s.%s: %w", td.Name, fd.Name, err))
				continue
			}
			spec.Fields = append(spec.Fields, fhircodec.FieldSpec{Name: fd.Name, List: fd.List, Required: fd.Required, Kind: k})
		}
		b.Add(spec)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return b, nil
}

// Build converts doc into a Catalogue.
func (doc *Document) Build() (*fhircodec.Catalogue, error) {
	b, err := doc.Builder()
	if err != nil {
		return nil, fmt.Errorf("catalogue: %w", err)
	}
	return b.Build()
}

func (fd FieldDoc) kind() (fhircodec.KindSpec, error) {
	set := 0
	for _, ok := range []bool{fd.Type != "", len(fd.Resource) > 0, len(fd.Choice) > 0} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fhircodec.KindSpec{}, errors.New("exactly one of type, resource, choice is required")
	}
	switch {
	case len(fd.Resource) > 0:
		return fhircodec.Poly(fd.Resource...), nil
	case len(fd.Choice) > 0:
		if len(fd.Enum) > 0 {
			return fhircodec.KindSpec{}, errors.New("enum is not supported on choice fields")
		}
		alts := make([]fhircodec.AltSpec, 0, len(fd.Choice))
		for _, name := range fd.Choice {
			alts = append(alts, fhircodec.Alt(name, typeKind(name, nil)))
		}
		return fhircodec.Choice(alts...), nil
	}
	if len(fd.Enum) > 0 {
		if s, ok := fhircodec.ShapeOf(fd.Type); !ok || s != fhircodec.ShapeString {
			return fhircodec.KindSpec{}, fmt.Errorf("enum requires a string-like type, got %s", fd.Type)
		}
	}
	return typeKind(fd.Type, fd.Enum), nil
}

// typeKind maps a FHIR primitive name to a primitive kind and anything else
// to a complex reference.
func typeKind(name string, enum []string) fhircodec.KindSpec {
	if s, ok := fhircodec.ShapeOf(name); ok {
		k := fhircodec.Prim(s)
		k.Enum = enum
		return k
	}
	return fhircodec.Complex(name)
}

// DecodeYAML reads a YAML document. Unknown keys are rejected.
func DecodeYAML(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalogue: empty document")
		}
		return nil, fmt.Errorf("catalogue: parsing yaml: %w", err)
	}
	return &doc, nil
}

// DecodeJSONC strips JSONC comments and trailing commas, then reads the
// document. Unknown keys are rejected.
func DecodeJSONC(data []byte) (*Document, error) {
	stripped := jsonc.ToJSON(data)
	dec := json.NewDecoder(bytes.NewReader(stripped))
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("catalogue: parsing jsonc: %w", err)
	}
	return &doc, nil
}

// ParseYAML builds a Catalogue from a YAML document.
func ParseYAML(data []byte) (*fhircodec.Catalogue, error) {
	doc, err := DecodeYAML(data)
	if err != nil {
		return nil, err
	}
	return doc.Build()
}

// ParseJSONC builds a Catalogue from a JSONC document.
func ParseJSONC(data []byte) (*fhircodec.Catalogue, error) {
	doc, err := DecodeJSONC(data)
	if err != nil {
		return nil, err
	}
	return doc.Build()
}

// LoadFile reads a catalogue document, choosing the format by extension:
// .yaml and .yml are YAML, .json and .jsonc are JSONC.
func LoadFile(path string) (*fhircodec.Catalogue, error) {
	var parse func([]byte) (*fhircodec.Catalogue, error)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parse = ParseYAML
	case ".json", ".jsonc":
		parse = ParseJSONC
	default:
		return nil, fmt.Errorf("%s: unsupported catalogue extension %q", path, filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cat, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}
