package stream

import (
	"io"

	eng "github.com/reoring/fhircodec/internal/engine"
)

// ValueSource exposes exactly one JSON value of an underlying source. The
// first token of the value has usually been consumed already by the caller
// and is handed in at construction; remaining tokens are pulled from inner
// until the matching end token, after which io.EOF is returned.
type ValueSource struct {
	inner     eng.TokenSource
	preloaded *eng.Token
	depth     int
	done      bool
}

// NewValueSource returns a view over the value starting with first.
func NewValueSource(inner eng.TokenSource, first eng.Token) *ValueSource {
	return &ValueSource{inner: inner, preloaded: &first}
}

// ResumeObject returns a view over the rest of an object whose begin token
// and zero or more members were already consumed from inner.
func ResumeObject(inner eng.TokenSource) *ValueSource {
	return &ValueSource{inner: inner, depth: 1}
}

// Depth is the container nesting relative to the value, after the last token
// returned. Members of the outermost object are at depth 1.
func (v *ValueSource) Depth() int { return v.depth }

func (v *ValueSource) NextToken() (eng.Token, error) {
	if v.done {
		return eng.Token{}, io.EOF
	}
	var tok eng.Token
	if v.preloaded != nil {
		tok = *v.preloaded
		v.preloaded = nil
	} else {
		t, err := v.inner.NextToken()
		if err != nil {
			if err == io.EOF {
				return eng.Token{}, io.ErrUnexpectedEOF
			}
			return eng.Token{}, err
		}
		tok = t
	}
	switch tok.Kind {
	case eng.KindBeginObject, eng.KindBeginArray:
		v.depth++
	case eng.KindEndObject, eng.KindEndArray:
		v.depth--
	}
	if v.depth <= 0 {
		v.done = true
	}
	return tok, nil
}

func (v *ValueSource) Location() int64 { return v.inner.Location() }

// Skip drains the value starting with first from inner.
func Skip(inner eng.TokenSource, first eng.Token) error {
	vs := NewValueSource(inner, first)
	for {
		if _, err := vs.NextToken(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
