package fhircodec

import "slices"

// DiscriminatorName is the wire property naming a dispatchable type.
const DiscriminatorName = "resourceType"

// KindTag names the family of a FieldKind.
type KindTag int

const (
	KindPrimitive KindTag = iota
	KindComplex
	KindPolymorphic
	KindChoice
)

func (k KindTag) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindComplex:
		return "complex"
	case KindPolymorphic:
		return "polymorphic"
	case KindChoice:
		return "choice"
	}
	return "unknown"
}

// Cardinality is Scalar or List.
type Cardinality int

const (
	Scalar Cardinality = iota
	List
)

// FieldKind describes what a field holds. It is immutable once built.
type FieldKind struct {
	tag     KindTag
	shape   ValueShape
	enum    []string
	enumSet map[string]struct{}
	typ     *TypeDescriptor
	allowed []*TypeDescriptor
	alts    []Alternative
}

func (k *FieldKind) Tag() KindTag { return k.tag }

// Shape is the value shape of a primitive kind.
func (k *FieldKind) Shape() ValueShape { return k.shape }

// Enum returns the closed code set of a primitive kind, or nil for an open string.
func (k *FieldKind) Enum() []string { return slices.Clone(k.enum) }

// Bound reports whether the primitive carries a closed code set.
func (k *FieldKind) Bound() bool { return k.enumSet != nil }

func (k *FieldKind) allows(code string) bool {
	_, ok := k.enumSet[code]
	return ok
}

// Type is the nested type of a complex kind.
func (k *FieldKind) Type() *TypeDescriptor { return k.typ }

// Allowed lists the declared targets of a polymorphic kind.
func (k *FieldKind) Allowed() []*TypeDescriptor { return slices.Clone(k.allowed) }

// Alternatives lists the alternatives of a choice kind in declaration order.
func (k *FieldKind) Alternatives() []Alternative { return slices.Clone(k.alts) }

// Alternative is one arm of a choice field.
type Alternative struct {
	suffix string
	kind   *FieldKind
}

// Suffix is the alternative tag as declared; the wire form capitalizes it.
func (a Alternative) Suffix() string   { return a.suffix }
func (a Alternative) Kind() *FieldKind { return a.kind }

// FieldDescriptor is one declared field of a type.
type FieldDescriptor struct {
	wireName string
	card     Cardinality
	kind     FieldKind
	required bool
	owner    *TypeDescriptor
}

func (f *FieldDescriptor) WireName() string         { return f.wireName }
func (f *FieldDescriptor) Cardinality() Cardinality { return f.card }
func (f *FieldDescriptor) Kind() *FieldKind         { return &f.kind }
func (f *FieldDescriptor) Required() bool           { return f.required }
func (f *FieldDescriptor) Owner() *TypeDescriptor   { return f.owner }
func (f *FieldDescriptor) IsList() bool             { return f.card == List }

// AlternativeWireName returns the property name alternative a of this choice
// field is written under, for example value + Quantity.
func (f *FieldDescriptor) AlternativeWireName(a Alternative) string {
	return f.wireName + capitalize(a.suffix)
}

// HasSidecar reports whether values of this field may carry id/extension
// metadata under "_"+WireName.
func (f *FieldDescriptor) HasSidecar() bool { return f.kind.tag == KindPrimitive }

// TypeDescriptor is one record type. Inherited fields are reached through Base.
type TypeDescriptor struct {
	name         string
	base         *TypeDescriptor
	abstract     bool
	dispatchable bool
	fields       []*FieldDescriptor
	byName       map[string]*FieldDescriptor
}

func (t *TypeDescriptor) Name() string          { return t.name }
func (t *TypeDescriptor) Base() *TypeDescriptor { return t.base }
func (t *TypeDescriptor) Abstract() bool        { return t.abstract }
func (t *TypeDescriptor) Dispatchable() bool    { return t.dispatchable }

// Fields returns the declared fields in catalogue order.
func (t *TypeDescriptor) Fields() []*FieldDescriptor { return slices.Clone(t.fields) }

// Field looks up a field by wire name, walking the base chain.
func (t *TypeDescriptor) Field(name string) *FieldDescriptor {
	for cur := t; cur != nil; cur = cur.base {
		if f, ok := cur.byName[name]; ok {
			return f
		}
	}
	return nil
}

// Chain returns the type followed by its bases, most derived first.
func (t *TypeDescriptor) Chain() []*TypeDescriptor {
	var out []*TypeDescriptor
	for cur := t; cur != nil; cur = cur.base {
		out = append(out, cur)
	}
	return out
}

// IsA reports whether t is other or derives from it.
func (t *TypeDescriptor) IsA(other *TypeDescriptor) bool {
	for cur := t; cur != nil; cur = cur.base {
		if cur == other {
			return true
		}
	}
	return false
}

// Catalogue is the immutable set of types the codec works against. It is safe
// for concurrent use.
type Catalogue struct {
	types     map[string]*TypeDescriptor
	order     []*TypeDescriptor
	extension *TypeDescriptor
	fallback  *TypeDescriptor
}

// Type returns the named type or nil.
func (c *Catalogue) Type(name string) *TypeDescriptor { return c.types[name] }

// Dispatchable returns the named type when it may be selected by resourceType.
func (c *Catalogue) Dispatchable(name string) *TypeDescriptor {
	if t := c.types[name]; t != nil && t.dispatchable {
		return t
	}
	return nil
}

// Types returns every type in definition order.
func (c *Catalogue) Types() []*TypeDescriptor { return slices.Clone(c.order) }

// ExtensionType is the record type of sidecar extensions.
func (c *Catalogue) ExtensionType() *TypeDescriptor { return c.extension }

// FallbackType is the open type used for unrecognized resources, or nil.
func (c *Catalogue) FallbackType() *TypeDescriptor { return c.fallback }
