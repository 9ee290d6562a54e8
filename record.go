package fhircodec

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Primitive is a primitive value with its optional sidecar metadata. Value is
// nil when only the sidecar is present.
type Primitive struct {
	Value     any
	ID        string
	Extension []*Record
}

// Bool, Int, Dec, Str, and Bin build a Primitive holding the Go value each
// shape expects.
func Bool(b bool) *Primitive  { return &Primitive{Value: b} }
func Int(n int64) *Primitive  { return &Primitive{Value: n} }
func Dec(s string) *Primitive { return &Primitive{Value: Decimal(s)} }
func Str(s string) *Primitive { return &Primitive{Value: s} }
func Bin(b []byte) *Primitive { return &Primitive{Value: b} }
func Absent() *Primitive      { return &Primitive{} }

// WithID sets the sidecar id and returns p.
func (p *Primitive) WithID(id string) *Primitive {
	p.ID = id
	return p
}

// WithExtension appends sidecar extensions and returns p.
func (p *Primitive) WithExtension(ext ...*Record) *Primitive {
	p.Extension = append(p.Extension, ext...)
	return p
}

func (p *Primitive) HasValue() bool { return p != nil && p.Value != nil }

func (p *Primitive) HasSidecar() bool {
	return p != nil && (p.ID != "" || len(p.Extension) > 0)
}

// Equal compares the value, id, and extensions.
func (p *Primitive) Equal(o *Primitive) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.ID != o.ID || !valueEqual(p.Value, o.Value) {
		return false
	}
	return slices.EqualFunc(p.Extension, o.Extension, (*Record).Equal)
}

func valueEqual(a, b any) bool {
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ab, bb)
	}
	if _, ok := b.([]byte); ok {
		return false
	}
	return a == b
}

// Record is one instance of a catalogue type. Slots are keyed by wire name;
// a choice alternative uses its suffixed wire name (valueQuantity). Slot
// values are *Primitive, []*Primitive, *Record, or []*Record.
type Record struct {
	typ   *TypeDescriptor
	open  string
	slots map[string]any
}

// NewRecord returns an empty record of type t.
func NewRecord(t *TypeDescriptor) *Record {
	return &Record{typ: t, slots: map[string]any{}}
}

func (r *Record) Type() *TypeDescriptor { return r.typ }

// OpenType is the resourceType a fallback record was decoded from. It is empty
// for records whose type matched the input.
func (r *Record) OpenType() string { return r.open }

// ResourceType is the name written as resourceType.
func (r *Record) ResourceType() string {
	if r.open != "" {
		return r.open
	}
	return r.typ.name
}

// Get returns the slot value or nil.
func (r *Record) Get(name string) any { return r.slots[name] }

// Has reports whether the slot is populated.
func (r *Record) Has(name string) bool {
	_, ok := r.slots[name]
	return ok
}

// Set stores v under the wire name. A nil value or an empty list clears the
// slot. Set panics when the type has no such slot or v has the wrong shape.
func (r *Record) Set(name string, v any) *Record {
	f, alt := r.typ.slot(name)
	if f == nil {
		panic(fmt.Sprintf("fhircodec: %s has no field %q", r.typ.name, name))
	}
	k := &f.kind
	if alt != nil {
		k = alt.kind
	}
	if err := checkSlot(k, f.card, v); err != "" {
		panic(fmt.Sprintf("fhircodec: %s.%s: %s", r.typ.name, name, err))
	}
	r.put(name, v)
	return r
}

func (r *Record) put(name string, v any) {
	if isEmptySlot(v) {
		delete(r.slots, name)
		return
	}
	r.slots[name] = v
}

func isEmptySlot(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case *Primitive:
		return x == nil
	case *Record:
		return x == nil
	case []*Primitive:
		return len(x) == 0
	case []*Record:
		return len(x) == 0
	}
	return false
}

func checkSlot(k *FieldKind, card Cardinality, v any) string {
	if v == nil {
		return ""
	}
	switch k.tag {
	case KindPrimitive:
		if card == List {
			l, ok := v.([]*Primitive)
			if !ok {
				return "want []*Primitive"
			}
			for i, p := range l {
				if p == nil {
					return "nil element at index " + strconv.Itoa(i)
				}
			}
		} else if _, ok := v.(*Primitive); !ok {
			return "want *Primitive"
		}
	case KindComplex, KindPolymorphic:
		if card == List {
			l, ok := v.([]*Record)
			if !ok {
				return "want []*Record"
			}
			for i, r := range l {
				if r == nil {
					return "nil element at index " + strconv.Itoa(i)
				}
			}
		} else if _, ok := v.(*Record); !ok {
			return "want *Record"
		}
	case KindChoice:
		return "set a suffixed alternative instead"
	}
	return ""
}

// SetChoice stores v as the suffix alternative of choice field name and
// clears the other alternatives.
func (r *Record) SetChoice(name, suffix string, v any) *Record {
	f := r.typ.Field(name)
	if f == nil || f.kind.tag != KindChoice {
		panic(fmt.Sprintf("fhircodec: %s has no choice field %q", r.typ.name, name))
	}
	for _, a := range f.kind.alts {
		delete(r.slots, name+capitalize(a.suffix))
	}
	return r.Set(name+capitalize(suffix), v)
}

// Choice returns the populated alternative of choice field name. With several
// populated the first in declaration order is returned.
func (r *Record) Choice(name string) (suffix string, v any) {
	f := r.typ.Field(name)
	if f == nil || f.kind.tag != KindChoice {
		return "", nil
	}
	for _, a := range f.kind.alts {
		if v, ok := r.slots[name+capitalize(a.suffix)]; ok {
			return a.suffix, v
		}
	}
	return "", nil
}

func (r *Record) Primitive(name string) *Primitive {
	p, _ := r.slots[name].(*Primitive)
	return p
}

func (r *Record) Primitives(name string) []*Primitive {
	p, _ := r.slots[name].([]*Primitive)
	return p
}

func (r *Record) Child(name string) *Record {
	c, _ := r.slots[name].(*Record)
	return c
}

func (r *Record) Children(name string) []*Record {
	c, _ := r.slots[name].([]*Record)
	return c
}

// Slots returns the populated slot names in sorted order.
func (r *Record) Slots() []string { return slices.Sorted(maps.Keys(r.slots)) }

func (r *Record) Len() int { return len(r.slots) }

// Equal reports deep equality of type, open type, and every slot.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.typ != o.typ || r.open != o.open || len(r.slots) != len(o.slots) {
		return false
	}
	for k, a := range r.slots {
		b, ok := o.slots[k]
		if !ok || !slotEqual(a, b) {
			return false
		}
	}
	return true
}

func slotEqual(a, b any) bool {
	switch x := a.(type) {
	case *Primitive:
		y, ok := b.(*Primitive)
		return ok && x.Equal(y)
	case []*Primitive:
		y, ok := b.([]*Primitive)
		return ok && slices.EqualFunc(x, y, (*Primitive).Equal)
	case *Record:
		y, ok := b.(*Record)
		return ok && x.Equal(y)
	case []*Record:
		y, ok := b.([]*Record)
		return ok && slices.EqualFunc(x, y, (*Record).Equal)
	}
	return false
}

// String renders a short debugging form such as Patient{active,name}.
func (r *Record) String() string {
	if r == nil {
		return "<nil>"
	}
	return r.ResourceType() + "{" + strings.Join(r.Slots(), ",") + "}"
}

// slot resolves a slot name to its field and, for choice slots, the alternative.
func (t *TypeDescriptor) slot(name string) (*FieldDescriptor, *Alternative) {
	if f := t.Field(name); f != nil {
		return f, nil
	}
	for cur := t; cur != nil; cur = cur.base {
		for _, f := range cur.fields {
			if f.kind.tag != KindChoice || !strings.HasPrefix(name, f.wireName) {
				continue
			}
			for i := range f.kind.alts {
				if f.wireName+capitalize(f.kind.alts[i].suffix) == name {
					return f, &f.kind.alts[i]
				}
			}
		}
	}
	return nil, nil
}
