package fhircodec

import (
	"context"
	"strconv"
)

// encoder is the per-call serializer state.
type encoder struct {
	c    *Codec
	ctx  context.Context
	sink Sink
}

func (e *encoder) emit(k TokenKind) error { return e.sink.WriteToken(Token{Kind: k}) }

func (e *encoder) key(name string) error {
	return e.sink.WriteToken(Token{Kind: TokenKey, String: name})
}

// record writes rec with its object envelope.
func (e *encoder) record(rec *Record, path string) error {
	return e.serialize(rec, rec.typ, path, true)
}

// serialize writes the fields t declares, after those of its bases. Only the
// outermost call for a record writes the envelope and resourceType.
func (e *encoder) serialize(rec *Record, t *TypeDescriptor, path string, envelope bool) error {
	tp, err := e.c.plan(t)
	if err != nil {
		return err
	}
	if envelope {
		if err := e.emit(TokenBeginObject); err != nil {
			return err
		}
		if rec.typ.dispatchable || rec.open != "" {
			if err := e.key(DiscriminatorName); err != nil {
				return err
			}
			if err := e.sink.WriteToken(Token{Kind: TokenString, String: rec.ResourceType()}); err != nil {
				return err
			}
		}
	}
	if t.base != nil {
		if err := e.serialize(rec, t.base, path, false); err != nil {
			return err
		}
	}
	for _, fp := range tp.fields {
		if err := canceled(e.ctx, path); err != nil {
			return err
		}
		if err := e.field(rec, fp, path); err != nil {
			return err
		}
	}
	if envelope {
		return e.emit(TokenEndObject)
	}
	return nil
}

func (e *encoder) field(rec *Record, fp *fieldPlan, path string) error {
	if fp.plan == PlanChoice {
		return e.choice(rec, fp, path)
	}
	v, ok := rec.slots[fp.wire]
	if !ok {
		return nil
	}
	return e.slot(fp.kind, fp.plan, fp.wire, fp.sidecar, v, path)
}

// slot writes one populated slot under wire according to plan.
func (e *encoder) slot(k *FieldKind, plan FieldPlan, wire, sidecar string, v any, path string) error {
	parent := path
	path = joinPath(path, wire)
	switch plan {
	case PlanPrimitiveScalar:
		p, ok := v.(*Primitive)
		if !ok {
			return issueHint(CodeInvalidType, path, "want *Primitive")
		}
		return e.primitive(k, wire, sidecar, p, parent)
	case PlanPrimitiveList:
		ps, ok := v.([]*Primitive)
		if !ok {
			return issueHint(CodeInvalidType, path, "want []*Primitive")
		}
		return e.primitives(k, wire, sidecar, ps, parent)
	case PlanComplexScalar, PlanPolymorphicScalar:
		child, ok := v.(*Record)
		if !ok {
			return issueHint(CodeInvalidType, path, "want *Record")
		}
		if err := e.checkChild(k, child, path); err != nil {
			return err
		}
		if err := e.key(wire); err != nil {
			return err
		}
		return e.record(child, path)
	case PlanComplexList, PlanPolymorphicList:
		children, ok := v.([]*Record)
		if !ok {
			return issueHint(CodeInvalidType, path, "want []*Record")
		}
		if err := e.key(wire); err != nil {
			return err
		}
		if err := e.emit(TokenBeginArray); err != nil {
			return err
		}
		for i, child := range children {
			ip := joinPath(path, strconv.Itoa(i))
			if err := canceled(e.ctx, ip); err != nil {
				return err
			}
			if err := e.checkChild(k, child, ip); err != nil {
				return err
			}
			if err := e.record(child, ip); err != nil {
				return err
			}
		}
		return e.emit(TokenEndArray)
	}
	return issueHint(CodeInvalidType, path, "unsupported plan "+plan.String())
}

// checkChild verifies a nested record fits the declared kind. Polymorphic
// values are written with their own runtime type and must carry a discriminator.
func (e *encoder) checkChild(k *FieldKind, child *Record, path string) error {
	if child == nil {
		return issueHint(CodeInvalidType, path, "nil record in list")
	}
	switch k.tag {
	case KindComplex:
		if !child.typ.IsA(k.typ) {
			return issueHint(CodeInvalidType, path, "want "+k.typ.name+", got "+child.typ.name)
		}
	case KindPolymorphic:
		if !child.typ.dispatchable && child.open == "" {
			return issueHint(CodeInvalidType, path, child.typ.name+" is not dispatchable")
		}
		if e.c.opts.EnforceAllowed && !allowedBy(k, child.typ) {
			return issueHint(CodeInvalidType, path, child.typ.name+" is not allowed here")
		}
	}
	return nil
}

func (e *encoder) choice(rec *Record, fp *fieldPlan, path string) error {
	var chosen *altPlan
	var v any
	for i := range fp.alts {
		a := &fp.alts[i]
		sv, ok := rec.slots[a.wire]
		if !ok {
			continue
		}
		if chosen != nil {
			iss := issue(CodeChoiceViolation, joinPath(path, fp.wire+"[x]"), map[string]string{"field": fp.wire})
			iss[0].Hint = chosen.wire + " and " + a.wire + " are both set"
			return iss
		}
		chosen, v = a, sv
	}
	if chosen == nil {
		if fp.field.required {
			iss := issue(CodeChoiceViolation, joinPath(path, fp.wire+"[x]"), map[string]string{"field": fp.wire})
			iss[0].Hint = "required choice has no alternative set"
			return iss
		}
		return nil
	}
	return e.slot(chosen.kind, chosen.plan, chosen.wire, chosen.sidecar, v, path)
}

func (e *encoder) primitive(k *FieldKind, wire, sidecar string, p *Primitive, parent string) error {
	if p.HasValue() {
		tok, err := e.value(k, p.Value, joinPath(parent, wire))
		if err != nil {
			return err
		}
		if err := e.key(wire); err != nil {
			return err
		}
		if err := e.sink.WriteToken(tok); err != nil {
			return err
		}
	}
	if p.HasSidecar() {
		if err := e.key(sidecar); err != nil {
			return err
		}
		return e.sidecar(p, joinPath(parent, sidecar))
	}
	return nil
}

// primitives writes the value array when any element has a value and the
// sidecar array when any element has metadata. Missing entries become null.
func (e *encoder) primitives(k *FieldKind, wire, sidecar string, ps []*Primitive, parent string) error {
	path := joinPath(parent, wire)
	var anyValue, anySidecar bool
	for _, p := range ps {
		anyValue = anyValue || p.HasValue()
		anySidecar = anySidecar || p.HasSidecar()
	}
	if anyValue {
		if err := e.key(wire); err != nil {
			return err
		}
		if err := e.emit(TokenBeginArray); err != nil {
			return err
		}
		for i, p := range ps {
			if !p.HasValue() {
				if err := e.emit(TokenNull); err != nil {
					return err
				}
				continue
			}
			tok, err := e.value(k, p.Value, joinPath(path, strconv.Itoa(i)))
			if err != nil {
				return err
			}
			if err := e.sink.WriteToken(tok); err != nil {
				return err
			}
		}
		if err := e.emit(TokenEndArray); err != nil {
			return err
		}
	}
	if !anySidecar {
		return nil
	}
	spath := joinPath(parent, sidecar)
	if err := e.key(sidecar); err != nil {
		return err
	}
	if err := e.emit(TokenBeginArray); err != nil {
		return err
	}
	for i, p := range ps {
		if !p.HasSidecar() {
			if err := e.emit(TokenNull); err != nil {
				return err
			}
			continue
		}
		if err := e.sidecar(p, joinPath(spath, strconv.Itoa(i))); err != nil {
			return err
		}
	}
	return e.emit(TokenEndArray)
}

func (e *encoder) value(k *FieldKind, v any, path string) (Token, error) {
	tok, serr := encodeShape(k.shape, v)
	if serr != nil {
		return Token{}, serr.issue(path, k.shape)
	}
	if k.Bound() && e.c.opts.Enums == EnumReject && !k.allows(tok.String) {
		iss := issue(CodeInvalidEnum, path, map[string]string{"value": tok.String})
		return Token{}, iss
	}
	return tok, nil
}

func (e *encoder) sidecar(p *Primitive, path string) error {
	if err := e.emit(TokenBeginObject); err != nil {
		return err
	}
	if p.ID != "" {
		if err := e.key("id"); err != nil {
			return err
		}
		if err := e.sink.WriteToken(Token{Kind: TokenString, String: p.ID}); err != nil {
			return err
		}
	}
	if len(p.Extension) > 0 {
		if err := e.key("extension"); err != nil {
			return err
		}
		if err := e.emit(TokenBeginArray); err != nil {
			return err
		}
		for i, ext := range p.Extension {
			ip := joinPath(joinPath(path, "extension"), strconv.Itoa(i))
			if ext == nil {
				return issueHint(CodeInvalidType, ip, "nil extension")
			}
			if err := e.record(ext, ip); err != nil {
				return err
			}
		}
		if err := e.emit(TokenEndArray); err != nil {
			return err
		}
	}
	return e.emit(TokenEndObject)
}

func allowedBy(k *FieldKind, t *TypeDescriptor) bool {
	for _, a := range k.allowed {
		if t.IsA(a) {
			return true
		}
	}
	return false
}
