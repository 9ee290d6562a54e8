package fhircodec

import (
	"io"

	eng "github.com/reoring/fhircodec/internal/engine"
	"github.com/reoring/fhircodec/internal/wire"
	jsonsrc "github.com/reoring/fhircodec/source/json"
)

// TokenKind enumerates JSON token kinds. Drivers and sinks outside this module
// branch on the exported constants.
type TokenKind = eng.Kind

const (
	TokenBeginObject TokenKind = eng.KindBeginObject
	TokenEndObject   TokenKind = eng.KindEndObject
	TokenBeginArray  TokenKind = eng.KindBeginArray
	TokenEndArray    TokenKind = eng.KindEndArray
	TokenKey         TokenKind = eng.KindKey
	TokenString      TokenKind = eng.KindString
	TokenNumber      TokenKind = eng.KindNumber
	TokenBool        TokenKind = eng.KindBool
	TokenNull        TokenKind = eng.KindNull
)

// Token describes a token in the input stream. Offset records the byte position
// when known (-1 otherwise). Number holds the literal text of a number.
type Token = eng.Token

// Source is a forward-only pull reader of tokens. The codec never looks ahead;
// it only calls NextToken.
type Source = eng.TokenSource

// Sink is a push writer of tokens. It owns structural separators, so the codec
// only emits tokens.
type Sink = eng.TokenSink

// JSONDriver converts JSON input into a Source. The codec opens a second
// Source over its replay buffer with the same driver.
type JSONDriver interface {
	NewReader(r io.Reader) Source
	NewBytes(b []byte) Source
	Name() string
}

// StdlibDriver returns the encoding/json backed driver. It is the default.
func StdlibDriver() JSONDriver { return stdlibDriver{} }

type stdlibDriver struct{}

func (stdlibDriver) NewReader(r io.Reader) Source { return jsonsrc.NewReader(r) }
func (stdlibDriver) NewBytes(b []byte) Source     { return jsonsrc.NewBytes(b) }
func (stdlibDriver) Name() string                 { return "encoding/json" }

// JSONReader wraps an io.Reader as a JSON Source using the default driver.
func JSONReader(r io.Reader) Source { return jsonsrc.NewReader(r) }

// JSONBytes wraps a byte slice as a JSON Source using the default driver.
func JSONBytes(b []byte) Source { return jsonsrc.NewBytes(b) }

// JSONSink writes canonical compact JSON. Call Flush once the last token is written.
type JSONSink = wire.Writer

// NewJSONSink returns a Sink rendering JSON into w.
func NewJSONSink(w io.Writer) *JSONSink { return wire.NewWriter(w) }

// EnforceSource wraps s with duplicate-key, depth, and size enforcement. It
// returns s unchanged when the options disable all checks.
func EnforceSource(s Source, opt Options) Source {
	return eng.WrapWithEnforcement(s, eng.EnforceOptions{
		OnDuplicate: toEngineDup(opt.Strictness.OnDuplicateKey),
		MaxDepth:    opt.MaxDepth,
		MaxBytes:    opt.MaxBytes,
		IssueSink:   opt.duplicateSink(),
	})
}

func toEngineDup(s Severity) eng.DuplicateStrictness {
	switch s {
	case Error:
		return eng.DupError
	case Warn:
		return eng.DupWarn
	default:
		return eng.DupIgnore
	}
}
