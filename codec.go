package fhircodec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// Codec serializes and deserializes records of one Catalogue. Plans are compiled
// once by NewCodec; a Codec is safe for concurrent use.
type Codec struct {
	cat   *Catalogue
	opts  Options
	plans map[*TypeDescriptor]*typePlan
}

// NewCodec compiles the plans of every type in cat. The last Options wins.
func NewCodec(cat *Catalogue, opts ...Options) (*Codec, error) {
	if cat == nil {
		return nil, errors.New("fhircodec: nil catalogue")
	}
	c := &Codec{cat: cat, opts: lastOpt(opts), plans: make(map[*TypeDescriptor]*typePlan, len(cat.order))}
	var errs []error
	for _, t := range cat.order {
		tp, err := compileType(t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.plans[t] = tp
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// MustCodec is NewCodec that panics on error.
func MustCodec(cat *Catalogue, opts ...Options) *Codec {
	c, err := NewCodec(cat, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Codec) Catalogue() *Catalogue { return c.cat }
func (c *Codec) Options() Options      { return c.opts }

// Plan returns the compiled plan of field f.
func (c *Codec) Plan(f *FieldDescriptor) (FieldPlan, bool) {
	tp := c.plans[f.owner]
	if tp == nil {
		return 0, false
	}
	for _, fp := range tp.fields {
		if fp.field == f {
			return fp.plan, true
		}
	}
	return 0, false
}

func (c *Codec) plan(t *TypeDescriptor) (*typePlan, error) {
	if tp := c.plans[t]; tp != nil {
		return tp, nil
	}
	return nil, fmt.Errorf("fhircodec: type %s is not in the catalogue", t.name)
}

// Serialize writes rec as one JSON object to sink. Dispatchable types lead with
// resourceType. Serialize does not flush the sink.
func (c *Codec) Serialize(ctx context.Context, rec *Record, sink Sink) error {
	if rec == nil {
		return errors.New("fhircodec: nil record")
	}
	e := &encoder{c: c, ctx: ctx, sink: sink}
	return e.record(rec, "")
}

// Deserialize reads the next object of src as type t. A resourceType property,
// when present, must name t.
func (c *Codec) Deserialize(ctx context.Context, t *TypeDescriptor, src Source) (*Record, error) {
	if t == nil {
		return nil, errors.New("fhircodec: nil type")
	}
	return c.deserialize(ctx, t, EnforceSource(src, c.opts))
}

func (c *Codec) deserialize(ctx context.Context, t *TypeDescriptor, src Source) (*Record, error) {
	if _, err := c.plan(t); err != nil {
		return nil, err
	}
	d := c.newDecoder(ctx, src)
	if err := d.expectObject(""); err != nil {
		return nil, err
	}
	rec := NewRecord(t)
	if err := d.readMembers(rec, ""); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeserializePolymorphic reads the next object of src, selecting its type from
// resourceType wherever the property appears.
func (c *Codec) DeserializePolymorphic(ctx context.Context, src Source) (*Record, error) {
	return c.deserializePolymorphic(ctx, EnforceSource(src, c.opts))
}

func (c *Codec) deserializePolymorphic(ctx context.Context, src Source) (*Record, error) {
	d := c.newDecoder(ctx, src)
	if err := d.expectObject(""); err != nil {
		return nil, err
	}
	return d.resolve("", nil)
}

// Marshal renders rec as compact canonical JSON.
func (c *Codec) Marshal(ctx context.Context, rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(ctx, &buf, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes rec as compact canonical JSON to w.
func (c *Codec) Encode(ctx context.Context, w io.Writer, rec *Record) error {
	sink := NewJSONSink(w)
	if err := c.Serialize(ctx, rec, sink); err != nil {
		return err
	}
	return sink.Flush()
}

// Unmarshal decodes exactly one JSON object. A nil t decodes polymorphically.
func (c *Codec) Unmarshal(ctx context.Context, data []byte, t *TypeDescriptor) (*Record, error) {
	return c.decodeOne(ctx, c.opts.driver().NewBytes(data), t)
}

// Decode reads exactly one JSON object from r. A nil t decodes polymorphically.
func (c *Codec) Decode(ctx context.Context, r io.Reader, t *TypeDescriptor) (*Record, error) {
	return c.decodeOne(ctx, c.opts.driver().NewReader(r), t)
}

func (c *Codec) decodeOne(ctx context.Context, src Source, t *TypeDescriptor) (*Record, error) {
	src = EnforceSource(src, c.opts)
	var (
		rec *Record
		err error
	)
	if t == nil {
		rec, err = c.deserializePolymorphic(ctx, src)
	} else {
		rec, err = c.deserialize(ctx, t, src)
	}
	if err != nil {
		return nil, err
	}
	return rec, expectEnd(src)
}

// expectEnd fails when input continues after the decoded value.
func expectEnd(src Source) error {
	tok, err := src.NextToken()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return sourceError(err, "", src.Location())
	}
	iss := issueAt(CodeParseError, "", tok.Offset, nil, nil)
	iss[0].Hint = "trailing data after value"
	return iss
}
