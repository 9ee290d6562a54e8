package fhircodec

import (
	"errors"
	"io"

	"github.com/reoring/fhircodec/internal/arena"
	"github.com/reoring/fhircodec/internal/stream"
	"github.com/reoring/fhircodec/internal/wire"
)

// cancelEvery is the number of copied tokens between cancellation checks.
const cancelEvery = 256

// resolve decodes a polymorphic object whose begin token was consumed. When
// resourceType is the first property the object is read in place; otherwise
// the object is copied into an arena and replayed once the type is known.
// k carries the declared targets and may be nil.
func (d *decoder) resolve(path string, k *FieldKind) (*Record, error) {
	tok, err := d.next(path)
	if err != nil {
		return nil, err
	}
	switch tok.Kind {
	case TokenEndObject:
		return d.concrete("", path, k)
	case TokenKey:
	default:
		return nil, issueHint(CodeParseError, path, "expected property name, got "+tok.Kind.String())
	}

	if tok.String == DiscriminatorName {
		dpath := joinPath(path, DiscriminatorName)
		vt, err := d.next(dpath)
		if err != nil {
			return nil, err
		}
		if vt.Kind != TokenString {
			return nil, d.mismatch(dpath, "string", vt)
		}
		rec, err := d.concrete(vt.String, path, k)
		if err != nil {
			return nil, err
		}
		if err := d.readMembers(rec, path); err != nil {
			return nil, err
		}
		return rec, nil
	}
	return d.replayResolve(tok, path, k)
}

// replayResolve buffers the rest of the object, watching for resourceType at
// the object's own level, then decodes the buffer against the found type.
func (d *decoder) replayResolve(first Token, path string, k *FieldKind) (*Record, error) {
	buf := arena.Acquire()
	defer buf.Release()

	w := wire.NewWriter(buf)
	if err := w.WriteToken(Token{Kind: TokenBeginObject}); err != nil {
		return nil, err
	}
	if err := w.WriteToken(first); err != nil {
		return nil, err
	}

	view := stream.ResumeObject(d.src)
	var (
		disc    string
		found   bool
		atDisc  bool
		lastKey = first.String
		copied  int
	)
	for {
		if copied%cancelEvery == 0 {
			if err := canceled(d.ctx, path); err != nil {
				return nil, err
			}
		}
		tok, err := view.NextToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, sourceError(err, joinPath(path, lastKey), d.offset())
		}
		copied++
		if atDisc {
			atDisc = false
			dpath := joinPath(path, DiscriminatorName)
			if tok.Kind != TokenString {
				return nil, d.mismatch(dpath, "string", tok)
			}
			if found && tok.String != disc {
				return nil, issueHint(CodeDuplicateKey, dpath, "conflicting resourceType "+disc+" and "+tok.String)
			}
			disc, found = tok.String, true
		}
		if tok.Kind == TokenKey && view.Depth() == 1 {
			lastKey = tok.String
			atDisc = tok.String == DiscriminatorName
		}
		if err := w.WriteToken(tok); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}

	rec, err := d.concrete(disc, path, k)
	if err != nil {
		return nil, err
	}
	d.log.Debug().Str("type", rec.ResourceType()).Str("path", rootPath(path)).Int("bytes", buf.Len()).Msg("replaying buffered resource")

	sub := &decoder{c: d.c, ctx: d.ctx, src: d.c.opts.driver().NewBytes(buf.Bytes()), log: d.log, replay: true}
	if err := sub.expectObject(path); err != nil {
		return nil, err
	}
	if err := sub.readMembers(rec, path); err != nil {
		return nil, err
	}
	return rec, nil
}

// concrete maps a discriminator value to an empty record of its type. An empty
// name means resourceType was absent.
func (d *decoder) concrete(name, path string, k *FieldKind) (*Record, error) {
	dpath := joinPath(path, DiscriminatorName)
	fb := d.fallbackFor(k)
	if name == "" {
		if fb != nil {
			d.log.Warn().Str("path", rootPath(path)).Str("as", fb.name).Msg("resourceType missing, decoding as fallback type")
			return NewRecord(fb), nil
		}
		return nil, issueAt(CodeDiscriminatorMissing, dpath, d.offset(), nil, nil)
	}
	t := d.c.cat.Dispatchable(name)
	if t == nil {
		if fb != nil {
			d.log.Warn().Str("path", rootPath(path)).Str("resourceType", name).Str("as", fb.name).Msg("unknown resourceType, decoding as fallback type")
			rec := NewRecord(fb)
			rec.open = name
			return rec, nil
		}
		return nil, issueAt(CodeDiscriminatorUnknown, dpath, d.offset(), nil, map[string]string{"type": name})
	}
	if t.abstract {
		iss := issueAt(CodeInvalidType, dpath, d.offset(), nil, map[string]string{"type": name})
		iss[0].Hint = name + " is abstract"
		return nil, iss
	}
	if k != nil && d.c.opts.EnforceAllowed && !allowedBy(k, t) {
		iss := issueAt(CodeInvalidType, dpath, d.offset(), nil, map[string]string{"type": name})
		iss[0].Hint = name + " is not allowed here"
		return nil, iss
	}
	return NewRecord(t), nil
}

// fallbackFor picks the record type for an unrecognized resource in a field of
// kind k: the nearest abstract ancestor shared by every allowed type, provided
// it derives from the catalogue fallback. Nil means the fallback is off or the
// field's allowed set rules it out.
func (d *decoder) fallbackFor(k *FieldKind) *TypeDescriptor {
	fb := d.c.cat.fallback
	if d.c.opts.UnknownResources != ResourceFallback || fb == nil {
		return nil
	}
	if k == nil || len(k.allowed) == 0 {
		return fb
	}
	if t := commonAbstract(k.allowed); t != nil && t.IsA(fb) {
		return t
	}
	if d.c.opts.EnforceAllowed && !allowedBy(k, fb) {
		return nil
	}
	return fb
}

func commonAbstract(ts []*TypeDescriptor) *TypeDescriptor {
outer:
	for cur := ts[0]; cur != nil; cur = cur.base {
		if !cur.abstract {
			continue
		}
		for _, t := range ts[1:] {
			if !t.IsA(cur) {
				continue outer
			}
		}
		return cur
	}
	return nil
}
