package jsonschema

import (
	"fmt"

	"github.com/reoring/fhircodec"
)

const draft = "http://json-schema.org/draft-06/schema#"

// FromCatalogue describes every type of cat. The root accepts any concrete
// dispatchable resource, selected by resourceType.
func FromCatalogue(cat *fhircodec.Catalogue, id string) (*Schema, error) {
	if cat == nil {
		return nil, fmt.Errorf("jsonschema: nil catalogue")
	}
	root := &Schema{
		SchemaURI:   draft,
		ID:          id,
		Definitions: make(map[string]*Schema),
	}
	var concrete []*fhircodec.TypeDescriptor
	for _, t := range cat.Types() {
		root.Definitions[t.Name()] = typeSchema(cat, t)
		if t.Dispatchable() && !t.Abstract() {
			concrete = append(concrete, t)
		}
	}
	root.OneOf, root.Discriminator = union(concrete)
	return root, nil
}

// ForType returns the definition of one type, with references into the
// definitions of FromCatalogue.
func ForType(cat *fhircodec.Catalogue, name string) (*Schema, error) {
	t := cat.Type(name)
	if t == nil {
		return nil, fmt.Errorf("jsonschema: type %s not defined", name)
	}
	return typeSchema(cat, t), nil
}

func ref(name string) *Schema { return &Schema{Ref: "#/definitions/" + name} }

func union(ts []*fhircodec.TypeDescriptor) ([]*Schema, *Discriminator) {
	arms := make([]*Schema, 0, len(ts))
	d := &Discriminator{PropertyName: fhircodec.DiscriminatorName, Mapping: make(map[string]string, len(ts))}
	for _, t := range ts {
		r := ref(t.Name())
		arms = append(arms, r)
		d.Mapping[t.Name()] = r.Ref
	}
	return arms, d
}

func typeSchema(cat *fhircodec.Catalogue, t *fhircodec.TypeDescriptor) *Schema {
	s := &Schema{
		Type:                 "object",
		Properties:           make(map[string]*Schema),
		AdditionalProperties: false,
	}
	if t.Abstract() {
		s.Description = "abstract"
	}
	if t.Dispatchable() {
		p := &Schema{Type: "string"}
		if !t.Abstract() {
			p.Const = t.Name()
			s.Required = append(s.Required, fhircodec.DiscriminatorName)
		}
		s.Properties[fhircodec.DiscriminatorName] = p
	}
	chain := t.Chain()
	for i := len(chain) - 1; i >= 0; i-- {
		for _, f := range chain[i].Fields() {
			addField(cat, s, f)
		}
	}
	return s
}

func addField(cat *fhircodec.Catalogue, s *Schema, f *fhircodec.FieldDescriptor) {
	name := f.WireName()
	k := f.Kind()
	if k.Tag() == fhircodec.KindChoice {
		for _, a := range k.Alternatives() {
			wire := f.AlternativeWireName(a)
			s.Properties[wire] = kindSchema(cat, a.Kind())
			if a.Kind().Tag() == fhircodec.KindPrimitive {
				s.Properties["_"+wire] = sidecar(cat)
			}
		}
		return
	}
	v := kindSchema(cat, k)
	if f.IsList() {
		v = &Schema{Type: "array", Items: v}
	}
	s.Properties[name] = v
	if f.HasSidecar() {
		sc := sidecar(cat)
		if f.IsList() {
			sc = &Schema{Type: "array", Items: sc}
		}
		s.Properties["_"+name] = sc
	}
	if f.Required() {
		s.Required = append(s.Required, name)
	}
}

func kindSchema(cat *fhircodec.Catalogue, k *fhircodec.FieldKind) *Schema {
	switch k.Tag() {
	case fhircodec.KindComplex:
		return ref(k.Type().Name())
	case fhircodec.KindPolymorphic:
		var arms []*fhircodec.TypeDescriptor
		for _, t := range cat.Types() {
			if !t.Dispatchable() || t.Abstract() {
				continue
			}
			for _, a := range k.Allowed() {
				if t.IsA(a) {
					arms = append(arms, t)
					break
				}
			}
		}
		s := &Schema{}
		s.OneOf, s.Discriminator = union(arms)
		return s
	}
	return primitive(k)
}

func primitive(k *fhircodec.FieldKind) *Schema {
	sh := k.Shape()
	s := &Schema{Pattern: sh.Pattern()}
	switch sh {
	case fhircodec.ShapeBoolean:
		s.Type = "boolean"
	case fhircodec.ShapeInteger:
		s.Type = "integer"
	case fhircodec.ShapeDecimal:
		s.Type = "number"
		s.Pattern = ""
	case fhircodec.ShapeBinary:
		s.Type = "string"
		s.Format = "byte"
	default:
		s.Type = "string"
	}
	if k.Bound() {
		s.Enum = k.Enum()
	}
	return s
}

// sidecar describes the "_name" object carrying a primitive's id and
// extensions.
func sidecar(cat *fhircodec.Catalogue) *Schema {
	s := &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"id": {Type: "string"},
		},
		AdditionalProperties: false,
	}
	if ext := cat.ExtensionType(); ext != nil {
		s.Properties["extension"] = &Schema{Type: "array", Items: ref(ext.Name())}
	}
	return s
}
