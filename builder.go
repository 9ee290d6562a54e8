package fhircodec

import (
	"errors"
	"fmt"
	"slices"
)

// TypeSpec defines one type by name. References to other types are by name
// and may point forward.
type TypeSpec struct {
	Name         string
	Base         string
	Abstract     bool
	Dispatchable bool
	Fields       []FieldSpec
}

// FieldSpec defines one declared field.
type FieldSpec struct {
	Name     string
	List     bool
	Required bool
	Kind     KindSpec
}

// KindSpec is the unresolved form of a FieldKind.
type KindSpec struct {
	Tag          KindTag
	Shape        ValueShape
	Enum         []string
	Type         string
	Allowed      []string
	Alternatives []AltSpec
}

// AltSpec is one alternative of a choice.
type AltSpec struct {
	Suffix string
	Kind   KindSpec
}

// Prim is a primitive kind with an open value.
func Prim(s ValueShape) KindSpec { return KindSpec{Tag: KindPrimitive, Shape: s} }

// Code is a string primitive bound to a closed set of codes.
func Code(codes ...string) KindSpec {
	return KindSpec{Tag: KindPrimitive, Shape: ShapeString, Enum: codes}
}

// Complex is a nested value of the named type.
func Complex(name string) KindSpec { return KindSpec{Tag: KindComplex, Type: name} }

// Poly is a polymorphic value of any concrete type deriving from one of names.
func Poly(names ...string) KindSpec { return KindSpec{Tag: KindPolymorphic, Allowed: names} }

// Choice is a field holding exactly one of alts.
func Choice(alts ...AltSpec) KindSpec { return KindSpec{Tag: KindChoice, Alternatives: alts} }

func Alt(suffix string, k KindSpec) AltSpec { return AltSpec{Suffix: suffix, Kind: k} }

// CatalogueBuilder collects TypeSpecs and builds an immutable Catalogue.
type CatalogueBuilder struct {
	specs       []TypeSpec
	extension   string
	fallback    string
	fallbackSet bool
}

// NewCatalogueBuilder returns a builder whose sidecar extension type is
// "Extension" and whose fallback type is "Resource" when defined.
func NewCatalogueBuilder() *CatalogueBuilder {
	return &CatalogueBuilder{extension: "Extension", fallback: "Resource"}
}

// Add appends type definitions.
func (b *CatalogueBuilder) Add(specs ...TypeSpec) *CatalogueBuilder {
	b.specs = append(b.specs, specs...)
	return b
}

// ExtensionType names the record type of sidecar extensions.
func (b *CatalogueBuilder) ExtensionType(name string) *CatalogueBuilder {
	b.extension = name
	return b
}

// FallbackType names the open type for unrecognized resources. An explicit
// name must exist; "" disables the fallback.
func (b *CatalogueBuilder) FallbackType(name string) *CatalogueBuilder {
	b.fallback = name
	b.fallbackSet = true
	return b
}

// Build resolves every reference and validates the result.
func (b *CatalogueBuilder) Build() (*Catalogue, error) {
	c := &Catalogue{types: make(map[string]*TypeDescriptor, len(b.specs))}
	var errs []error
	for _, s := range b.specs {
		if s.Name == "" {
			errs = append(errs, errors.New("catalogue: type with empty name"))
			continue
		}
		if _, dup := c.types[s.Name]; dup {
			errs = append(errs, fmt.Errorf("catalogue: type %s defined twice", s.Name))
			continue
		}
		t := &TypeDescriptor{name: s.Name, abstract: s.Abstract, dispatchable: s.Dispatchable}
		c.types[s.Name] = t
		c.order = append(c.order, t)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, s := range b.specs {
		if s.Base == "" {
			continue
		}
		t := c.types[s.Name]
		if t.base = c.types[s.Base]; t.base == nil {
			errs = append(errs, fmt.Errorf("catalogue: %s: base %s not defined", s.Name, s.Base))
		}
	}
	for _, t := range c.order {
		if err := checkAcyclic(t, len(c.order)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, s := range b.specs {
		t := c.types[s.Name]
		t.byName = make(map[string]*FieldDescriptor, len(s.Fields))
		for _, fs := range s.Fields {
			f, err := c.resolveField(t, fs)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			t.fields = append(t.fields, f)
			t.byName[f.wireName] = f
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, t := range c.order {
		errs = append(errs, checkWireNames(t)...)
	}
	if b.extension != "" {
		if c.extension = c.types[b.extension]; c.extension == nil {
			errs = append(errs, fmt.Errorf("catalogue: extension type %s not defined", b.extension))
		}
	}
	if b.fallback != "" {
		c.fallback = c.types[b.fallback]
		if c.fallback == nil && b.fallbackSet {
			errs = append(errs, fmt.Errorf("catalogue: fallback type %s not defined", b.fallback))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// MustBuild is Build that panics on error.
func (b *CatalogueBuilder) MustBuild() *Catalogue {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

func checkAcyclic(t *TypeDescriptor, limit int) error {
	n := 0
	for cur := t.base; cur != nil; cur = cur.base {
		if cur == t || n > limit {
			return fmt.Errorf("catalogue: %s: base chain is cyclic", t.name)
		}
		n++
	}
	return nil
}

func (c *Catalogue) resolveField(owner *TypeDescriptor, fs FieldSpec) (*FieldDescriptor, error) {
	where := owner.name + "." + fs.Name
	if fs.Name == "" {
		return nil, fmt.Errorf("catalogue: %s: field with empty name", owner.name)
	}
	k, err := c.resolveKind(where, fs.Kind, false)
	if err != nil {
		return nil, err
	}
	card := Scalar
	if fs.List {
		card = List
		if k.tag == KindChoice {
			return nil, fmt.Errorf("catalogue: %s: choice fields cannot repeat", where)
		}
	}
	return &FieldDescriptor{wireName: fs.Name, card: card, kind: k, required: fs.Required, owner: owner}, nil
}

func (c *Catalogue) resolveKind(where string, ks KindSpec, inChoice bool) (FieldKind, error) {
	k := FieldKind{tag: ks.Tag}
	switch ks.Tag {
	case KindPrimitive:
		if !ks.Shape.valid() {
			return k, fmt.Errorf("catalogue: %s: invalid value shape %d", where, ks.Shape)
		}
		k.shape = ks.Shape
		if len(ks.Enum) > 0 {
			if ks.Shape != ShapeString {
				return k, fmt.Errorf("catalogue: %s: value sets bind string shapes only", where)
			}
			k.enum = slices.Clone(ks.Enum)
			k.enumSet = make(map[string]struct{}, len(ks.Enum))
			for _, code := range ks.Enum {
				k.enumSet[code] = struct{}{}
			}
		}
	case KindComplex:
		if k.typ = c.types[ks.Type]; k.typ == nil {
			return k, fmt.Errorf("catalogue: %s: type %s not defined", where, ks.Type)
		}
	case KindPolymorphic:
		if len(ks.Allowed) == 0 {
			return k, fmt.Errorf("catalogue: %s: polymorphic field allows no types", where)
		}
		for _, name := range ks.Allowed {
			t := c.types[name]
			switch {
			case t == nil:
				return k, fmt.Errorf("catalogue: %s: type %s not defined", where, name)
			case !t.dispatchable:
				return k, fmt.Errorf("catalogue: %s: type %s is not dispatchable", where, name)
			}
			k.allowed = append(k.allowed, t)
		}
	case KindChoice:
		if inChoice {
			return k, fmt.Errorf("catalogue: %s: nested choice", where)
		}
		if len(ks.Alternatives) == 0 {
			return k, fmt.Errorf("catalogue: %s: choice without alternatives", where)
		}
		seen := map[string]bool{}
		for _, as := range ks.Alternatives {
			if as.Suffix == "" {
				return k, fmt.Errorf("catalogue: %s: alternative with empty suffix", where)
			}
			wire := capitalize(as.Suffix)
			if seen[wire] {
				return k, fmt.Errorf("catalogue: %s: alternative %s repeated", where, as.Suffix)
			}
			seen[wire] = true
			ak, err := c.resolveKind(where+"["+as.Suffix+"]", as.Kind, true)
			if err != nil {
				return k, err
			}
			k.alts = append(k.alts, Alternative{suffix: as.Suffix, kind: &ak})
		}
	default:
		return k, fmt.Errorf("catalogue: %s: unknown kind %d", where, ks.Tag)
	}
	return k, nil
}

// checkWireNames verifies that every wire name in t's flattened view has exactly
// one owner.
func checkWireNames(t *TypeDescriptor) []error {
	owners := map[string]*FieldDescriptor{}
	var errs []error
	claim := func(name string, f *FieldDescriptor) {
		if name == DiscriminatorName {
			errs = append(errs, fmt.Errorf("catalogue: %s.%s: wire name %s is reserved", f.owner.name, f.wireName, name))
			return
		}
		if prev, ok := owners[name]; ok {
			errs = append(errs, fmt.Errorf("catalogue: %s: wire name %s claimed by %s.%s and %s.%s",
				t.name, name, prev.owner.name, prev.wireName, f.owner.name, f.wireName))
			return
		}
		owners[name] = f
	}
	chain := t.Chain()
	slices.Reverse(chain)
	for _, cur := range chain {
		for _, f := range cur.fields {
			claim(f.wireName, f)
			switch f.kind.tag {
			case KindPrimitive:
				claim("_"+f.wireName, f)
			case KindChoice:
				for _, a := range f.kind.alts {
					wire := f.wireName + capitalize(a.suffix)
					claim(wire, f)
					if a.kind.tag == KindPrimitive {
						claim("_"+wire, f)
					}
				}
			}
		}
	}
	return errs
}
