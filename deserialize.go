package fhircodec

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/reoring/fhircodec/internal/stream"
)

// decoder is the per-call deserializer state. A replay decoder reads from a
// discriminator buffer, so its offsets do not refer to the caller's input.
type decoder struct {
	c      *Codec
	ctx    context.Context
	src    Source
	log    *zerolog.Logger
	replay bool
}

func (c *Codec) newDecoder(ctx context.Context, src Source) *decoder {
	return &decoder{c: c, ctx: ctx, src: src, log: c.opts.logger()}
}

func (d *decoder) offset() int64 {
	if d.replay {
		return -1
	}
	return d.src.Location()
}

func (d *decoder) next(path string) (Token, error) {
	tok, err := d.src.NextToken()
	if err != nil {
		return Token{}, sourceError(err, path, d.offset())
	}
	return tok, nil
}

func (d *decoder) mismatch(path, want string, got Token) error {
	iss := issueAt(CodeInvalidType, path, d.offset(), nil, nil)
	iss[0].Hint = "expected " + want + ", got " + got.Kind.String()
	return iss
}

func (d *decoder) expectObject(path string) error {
	tok, err := d.next(path)
	if err != nil {
		return err
	}
	if tok.Kind != TokenBeginObject {
		return d.mismatch(path, "object", tok)
	}
	return nil
}

// readMembers reads properties until the end of the current object, then
// reconciles primitive values with their sidecars.
func (d *decoder) readMembers(rec *Record, path string) error {
	var pend pendingSet
	for {
		if err := canceled(d.ctx, path); err != nil {
			return err
		}
		tok, err := d.next(path)
		if err != nil {
			return err
		}
		if tok.Kind == TokenEndObject {
			return pend.reconcile(rec, path)
		}
		if tok.Kind != TokenKey {
			iss := issueAt(CodeParseError, path, d.offset(), nil, nil)
			iss[0].Hint = "expected property name, got " + tok.Kind.String()
			return iss
		}
		if err := d.property(rec, tok.String, path, &pend); err != nil {
			return err
		}
	}
}

// lookup resolves a wire name against t's declared fields, then its bases.
func (d *decoder) lookup(t *TypeDescriptor, name string) (propertyRef, bool) {
	for cur := t; cur != nil; cur = cur.base {
		if tp := d.c.plans[cur]; tp != nil {
			if ref, ok := tp.props[name]; ok {
				return ref, true
			}
		}
	}
	return propertyRef{}, false
}

func (d *decoder) property(rec *Record, name, path string, pend *pendingSet) error {
	ppath := joinPath(path, name)
	if name == DiscriminatorName && (rec.typ.dispatchable || rec.open != "") {
		return d.discriminator(rec, ppath)
	}
	ref, ok := d.lookup(rec.typ, name)
	if !ok {
		return d.unknown(rec.typ.name, name, ppath)
	}
	vt, err := d.next(ppath)
	if err != nil {
		return err
	}
	if ref.alt >= 0 && vt.Kind != TokenNull {
		if err := pend.choose(ref, path); err != nil {
			return err
		}
	}
	if ref.sidecar {
		return d.sidecarProperty(ref, vt, ppath, pend)
	}
	return d.valueProperty(rec, ref, vt, ppath, pend)
}

// discriminator checks a resourceType read after the type was fixed.
func (d *decoder) discriminator(rec *Record, path string) error {
	vt, err := d.next(path)
	if err != nil {
		return err
	}
	if vt.Kind != TokenString {
		return d.mismatch(path, "string", vt)
	}
	if vt.String != rec.ResourceType() {
		iss := issueAt(CodeInvalidType, path, d.offset(), nil, map[string]string{"type": vt.String})
		iss[0].Hint = "resourceType " + vt.String + " does not match " + rec.ResourceType()
		return iss
	}
	return nil
}

func (d *decoder) unknown(owner, name, path string) error {
	if d.c.opts.UnknownFields == UnknownReject {
		iss := issueAt(CodeUnknownKey, path, d.offset(), nil, map[string]string{"key": name})
		iss[0].Hint = owner + " has no property " + name
		return iss
	}
	d.log.Debug().Str("type", owner).Str("path", path).Msg("skipping unknown property")
	vt, err := d.next(path)
	if err != nil {
		return err
	}
	if err := stream.Skip(d.src, vt); err != nil {
		return sourceError(err, path, d.offset())
	}
	return nil
}

func (d *decoder) valueProperty(rec *Record, ref propertyRef, vt Token, path string, pend *pendingSet) error {
	k, plan := ref.target()
	slot := ref.slotName()
	if vt.Kind == TokenNull {
		return nil
	}
	switch plan {
	case PlanPrimitiveScalar:
		v, err := d.primitive(k, vt, path)
		if err != nil {
			return err
		}
		pp := pend.get(slot, false)
		pp.values, pp.hasValues = []*Primitive{{Value: v}}, true
		return nil
	case PlanPrimitiveList:
		if vt.Kind != TokenBeginArray {
			return d.mismatch(path, "array", vt)
		}
		var vals []*Primitive
		for i := 0; ; i++ {
			ip := joinPath(path, strconv.Itoa(i))
			if err := canceled(d.ctx, ip); err != nil {
				return err
			}
			et, err := d.next(ip)
			if err != nil {
				return err
			}
			if et.Kind == TokenEndArray {
				break
			}
			if et.Kind == TokenNull {
				vals = append(vals, nil)
				continue
			}
			v, err := d.primitive(k, et, ip)
			if err != nil {
				return err
			}
			vals = append(vals, &Primitive{Value: v})
		}
		pp := pend.get(slot, true)
		pp.values, pp.hasValues = vals, true
		return nil
	case PlanComplexScalar, PlanPolymorphicScalar:
		if vt.Kind != TokenBeginObject {
			return d.mismatch(path, "object", vt)
		}
		child, err := d.nested(k, plan, path)
		if err != nil {
			return err
		}
		rec.put(slot, child)
		return nil
	case PlanComplexList, PlanPolymorphicList:
		if vt.Kind != TokenBeginArray {
			return d.mismatch(path, "array", vt)
		}
		var children []*Record
		for i := 0; ; i++ {
			ip := joinPath(path, strconv.Itoa(i))
			if err := canceled(d.ctx, ip); err != nil {
				return err
			}
			et, err := d.next(ip)
			if err != nil {
				return err
			}
			if et.Kind == TokenEndArray {
				break
			}
			if et.Kind != TokenBeginObject {
				return d.mismatch(ip, "object", et)
			}
			child, err := d.nested(k, plan, ip)
			if err != nil {
				return err
			}
			children = append(children, child)
		}
		rec.put(slot, children)
		return nil
	}
	return issueHint(CodeInvalidType, path, "unsupported plan "+plan.String())
}

// nested reads one object whose begin token was consumed.
func (d *decoder) nested(k *FieldKind, plan FieldPlan, path string) (*Record, error) {
	if plan == PlanPolymorphicScalar || plan == PlanPolymorphicList {
		return d.resolve(path, k)
	}
	child := NewRecord(k.typ)
	if err := d.readMembers(child, path); err != nil {
		return nil, err
	}
	return child, nil
}

func (d *decoder) primitive(k *FieldKind, vt Token, path string) (any, error) {
	if !vt.Kind.IsScalar() {
		return nil, d.mismatch(path, k.shape.String(), vt)
	}
	v, serr := decodeShape(k.shape, vt)
	if serr != nil {
		iss := serr.issue(path, k.shape)
		iss[0].Offset = d.offset()
		return nil, iss
	}
	if k.Bound() {
		code := v.(string)
		if !k.allows(code) {
			if d.c.opts.Enums == EnumReject {
				return nil, issueAt(CodeInvalidEnum, path, d.offset(), nil, map[string]string{"value": code})
			}
			d.log.Warn().Str("path", path).Str("code", code).Msg("keeping code outside value set")
		}
	}
	return v, nil
}

func (d *decoder) sidecarProperty(ref propertyRef, vt Token, path string, pend *pendingSet) error {
	_, plan := ref.target()
	slot := ref.slotName()
	if vt.Kind == TokenNull {
		return nil
	}
	if plan == PlanPrimitiveScalar {
		sc, err := d.sidecar(vt, path)
		if err != nil {
			return err
		}
		pp := pend.get(slot, false)
		pp.sidecars, pp.hasSidecars = []*Primitive{sc}, true
		return nil
	}
	if vt.Kind != TokenBeginArray {
		return d.mismatch(path, "array", vt)
	}
	var scs []*Primitive
	for i := 0; ; i++ {
		ip := joinPath(path, strconv.Itoa(i))
		if err := canceled(d.ctx, ip); err != nil {
			return err
		}
		et, err := d.next(ip)
		if err != nil {
			return err
		}
		if et.Kind == TokenEndArray {
			break
		}
		sc, err := d.sidecar(et, ip)
		if err != nil {
			return err
		}
		scs = append(scs, sc)
	}
	pp := pend.get(slot, true)
	pp.sidecars, pp.hasSidecars = scs, true
	return nil
}

// sidecar reads one {id, extension} object. null yields nil.
func (d *decoder) sidecar(vt Token, path string) (*Primitive, error) {
	if vt.Kind == TokenNull {
		return nil, nil
	}
	if vt.Kind != TokenBeginObject {
		return nil, d.mismatch(path, "object", vt)
	}
	sc := &Primitive{}
	ext := d.c.cat.extension
	for {
		tok, err := d.next(path)
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokenEndObject {
			return sc, nil
		}
		if tok.Kind != TokenKey {
			return nil, issueHint(CodeParseError, path, "expected property name")
		}
		kp := joinPath(path, tok.String)
		switch {
		case tok.String == "id":
			vt, err := d.next(kp)
			if err != nil {
				return nil, err
			}
			switch vt.Kind {
			case TokenNull:
			case TokenString:
				sc.ID = vt.String
			default:
				return nil, d.mismatch(kp, "string", vt)
			}
		case tok.String == "extension" && ext != nil:
			vt, err := d.next(kp)
			if err != nil {
				return nil, err
			}
			if vt.Kind == TokenNull {
				continue
			}
			if vt.Kind != TokenBeginArray {
				return nil, d.mismatch(kp, "array", vt)
			}
			for i := 0; ; i++ {
				ip := joinPath(kp, strconv.Itoa(i))
				et, err := d.next(ip)
				if err != nil {
					return nil, err
				}
				if et.Kind == TokenEndArray {
					break
				}
				if et.Kind != TokenBeginObject {
					return nil, d.mismatch(ip, "object", et)
				}
				er := NewRecord(ext)
				if err := d.readMembers(er, ip); err != nil {
					return nil, err
				}
				sc.Extension = append(sc.Extension, er)
			}
		default:
			if err := d.unknown("sidecar", tok.String, kp); err != nil {
				return nil, err
			}
		}
	}
}
