package fhircodec

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// FieldPlan names the serializer and deserializer path a field takes.
type FieldPlan int

const (
	PlanPrimitiveScalar FieldPlan = iota
	PlanPrimitiveList
	PlanComplexScalar
	PlanComplexList
	PlanPolymorphicScalar
	PlanPolymorphicList
	PlanChoice
)

var planNames = [...]string{
	PlanPrimitiveScalar:   "primitive-scalar",
	PlanPrimitiveList:     "primitive-list",
	PlanComplexScalar:     "complex-scalar",
	PlanComplexList:       "complex-list",
	PlanPolymorphicScalar: "polymorphic-scalar",
	PlanPolymorphicList:   "polymorphic-list",
	PlanChoice:            "choice",
}

func (p FieldPlan) String() string {
	if p >= 0 && int(p) < len(planNames) {
		return planNames[p]
	}
	return fmt.Sprintf("plan(%d)", int(p))
}

func (p FieldPlan) isList() bool {
	return p == PlanPrimitiveList || p == PlanComplexList || p == PlanPolymorphicList
}

// PlanFor computes the plan of one field.
func PlanFor(f *FieldDescriptor) (FieldPlan, error) {
	return kindPlan(&f.kind, f.card, f.owner.name+"."+f.wireName)
}

func kindPlan(k *FieldKind, card Cardinality, where string) (FieldPlan, error) {
	list := card == List
	switch k.tag {
	case KindPrimitive:
		if !k.shape.valid() {
			return 0, fmt.Errorf("plan: %s: invalid value shape", where)
		}
		if list {
			return PlanPrimitiveList, nil
		}
		return PlanPrimitiveScalar, nil
	case KindComplex:
		if k.typ == nil {
			return 0, fmt.Errorf("plan: %s: complex kind without type", where)
		}
		if list {
			return PlanComplexList, nil
		}
		return PlanComplexScalar, nil
	case KindPolymorphic:
		if len(k.allowed) == 0 {
			return 0, fmt.Errorf("plan: %s: polymorphic kind without targets", where)
		}
		if list {
			return PlanPolymorphicList, nil
		}
		return PlanPolymorphicScalar, nil
	case KindChoice:
		if list || len(k.alts) == 0 {
			return 0, fmt.Errorf("plan: %s: choice must be scalar with alternatives", where)
		}
		return PlanChoice, nil
	}
	return 0, fmt.Errorf("plan: %s: unknown kind %v", where, k.tag)
}

// fieldPlan is the compiled form of one declared field.
type fieldPlan struct {
	field   *FieldDescriptor
	kind    *FieldKind
	plan    FieldPlan
	wire    string
	sidecar string
	alts    []altPlan
}

// altPlan is one choice alternative compiled to a scalar plan.
type altPlan struct {
	suffix  string
	kind    *FieldKind
	plan    FieldPlan
	wire    string
	sidecar string
}

// propertyRef is what a wire property name resolves to.
type propertyRef struct {
	fp      *fieldPlan
	alt     int // index into fp.alts, -1 for non-choice fields
	sidecar bool
}

// slotName is the record slot the property populates.
func (r propertyRef) slotName() string {
	if r.alt >= 0 {
		return r.fp.alts[r.alt].wire
	}
	return r.fp.wire
}

func (r propertyRef) target() (*FieldKind, FieldPlan) {
	if r.alt >= 0 {
		a := &r.fp.alts[r.alt]
		return a.kind, a.plan
	}
	return r.fp.kind, r.fp.plan
}

// typePlan holds the compiled declared fields of one type. Inherited fields
// belong to the base type's plan.
type typePlan struct {
	t      *TypeDescriptor
	fields []*fieldPlan
	props  map[string]propertyRef
}

func compileType(t *TypeDescriptor) (*typePlan, error) {
	tp := &typePlan{t: t, props: map[string]propertyRef{}}
	for _, f := range t.fields {
		p, err := PlanFor(f)
		if err != nil {
			return nil, err
		}
		fp := &fieldPlan{field: f, kind: &f.kind, plan: p, wire: f.wireName}
		switch p {
		case PlanPrimitiveScalar, PlanPrimitiveList:
			fp.sidecar = "_" + f.wireName
			tp.props[fp.sidecar] = propertyRef{fp: fp, alt: -1, sidecar: true}
		case PlanChoice:
			for i, a := range f.kind.alts {
				ap, err := kindPlan(a.kind, Scalar, f.owner.name+"."+f.wireName+"["+a.suffix+"]")
				if err != nil {
					return nil, err
				}
				if ap == PlanChoice {
					return nil, fmt.Errorf("plan: %s.%s: nested choice", t.name, f.wireName)
				}
				wire := f.wireName + capitalize(a.suffix)
				alt := altPlan{suffix: a.suffix, kind: a.kind, plan: ap, wire: wire}
				tp.props[wire] = propertyRef{fp: fp, alt: i}
				if ap == PlanPrimitiveScalar {
					alt.sidecar = "_" + wire
					tp.props[alt.sidecar] = propertyRef{fp: fp, alt: i, sidecar: true}
				}
				fp.alts = append(fp.alts, alt)
			}
			tp.fields = append(tp.fields, fp)
			continue
		}
		tp.props[fp.wire] = propertyRef{fp: fp, alt: -1}
		tp.fields = append(tp.fields, fp)
	}
	return tp, nil
}

// capitalize upper-cases the first rune only: "dateTime" becomes "DateTime".
func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 || unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
