// Package jsoniter is a token source backed by github.com/json-iterator/go.
//
// The iterator consumes object and array delimiters lazily, so an empty
// property name cannot be told apart from the end of an object and ends it.
package jsoniter

import (
	"bytes"
	"errors"
	"io"

	ji "github.com/json-iterator/go"

	"github.com/reoring/fhircodec"
	eng "github.com/reoring/fhircodec/internal/engine"
)

// Driver returns a fhircodec.JSONDriver backed by json-iterator.
func Driver() fhircodec.JSONDriver { return driverJSONIter{} }

type driverJSONIter struct{}

func (driverJSONIter) NewReader(r io.Reader) fhircodec.Source { return NewReader(r) }
func (driverJSONIter) NewBytes(b []byte) fhircodec.Source     { return NewBytes(b) }
func (driverJSONIter) Name() string                           { return "json-iterator" }

type frame struct {
	object    bool
	wantValue bool
}

type source struct {
	it    *ji.Iterator
	stack []frame
}

// NewReader wraps an io.Reader into an engine.TokenSource using json-iterator.
func NewReader(r io.Reader) eng.TokenSource {
	return &source{it: ji.Parse(ji.ConfigCompatibleWithStandardLibrary, r, 4096)}
}

// NewBytes wraps a byte slice into an engine.TokenSource using json-iterator.
func NewBytes(b []byte) eng.TokenSource { return NewReader(bytes.NewReader(b)) }

func (s *source) NextToken() (eng.Token, error) {
	n := len(s.stack)
	if n == 0 {
		return s.value()
	}
	top := &s.stack[n-1]
	if top.object {
		if top.wantValue {
			top.wantValue = false
			return s.value()
		}
		key := s.it.ReadObject()
		if err := s.err(); err != nil {
			return eng.Token{}, err
		}
		if key == "" {
			s.stack = s.stack[:n-1]
			return eng.Token{Kind: eng.KindEndObject, Offset: -1}, nil
		}
		top.wantValue = true
		return eng.Token{Kind: eng.KindKey, String: key, Offset: -1}, nil
	}
	more := s.it.ReadArray()
	if err := s.err(); err != nil {
		return eng.Token{}, err
	}
	if !more {
		s.stack = s.stack[:n-1]
		return eng.Token{Kind: eng.KindEndArray, Offset: -1}, nil
	}
	return s.value()
}

func (s *source) value() (eng.Token, error) {
	kind := s.it.WhatIsNext()
	if err := s.err(); err != nil {
		return eng.Token{}, err
	}
	var tok eng.Token
	switch kind {
	case ji.ObjectValue:
		s.stack = append(s.stack, frame{object: true})
		return eng.Token{Kind: eng.KindBeginObject, Offset: -1}, nil
	case ji.ArrayValue:
		s.stack = append(s.stack, frame{})
		return eng.Token{Kind: eng.KindBeginArray, Offset: -1}, nil
	case ji.StringValue:
		tok = eng.Token{Kind: eng.KindString, String: s.it.ReadString()}
	case ji.NumberValue:
		tok = eng.Token{Kind: eng.KindNumber, Number: string(s.it.ReadNumber())}
	case ji.BoolValue:
		tok = eng.Token{Kind: eng.KindBool, Bool: s.it.ReadBool()}
	case ji.NilValue:
		s.it.ReadNil()
		tok = eng.Token{Kind: eng.KindNull}
	default:
		s.it.ReportError("NextToken", "invalid value")
	}
	// A top-level number may end exactly at end of input.
	if err := s.err(); err != nil && !(len(s.stack) == 0 && err == io.EOF && kind != ji.InvalidValue) {
		return eng.Token{}, err
	}
	tok.Offset = -1
	return tok, nil
}

// err reports the iterator error, turning end of input inside a value into
// io.ErrUnexpectedEOF.
func (s *source) err() error {
	err := s.it.Error
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) && len(s.stack) > 0 {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (s *source) Location() int64 { return -1 }
