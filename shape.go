package fhircodec

import (
	"encoding/base64"
	"math"
	"regexp"
	"strconv"
)

// ValueShape is the wire and Go representation of a primitive value.
//
//	shape        Go value   wire
//	boolean      bool       true/false
//	integer      int64      number
//	integer64    int64      string
//	decimal      Decimal    number (text kept exactly)
//	string       string     string
//	date         string     string (checked)
//	dateTime     string     string (checked)
//	instant      string     string (checked)
//	time         string     string (checked)
//	binary       []byte     base64 string
type ValueShape int

const (
	ShapeString ValueShape = iota
	ShapeBoolean
	ShapeInteger
	ShapeInteger64
	ShapeDecimal
	ShapeDate
	ShapeDateTime
	ShapeInstant
	ShapeTime
	ShapeBinary
)

var shapeNames = [...]string{
	ShapeString:    "string",
	ShapeBoolean:   "boolean",
	ShapeInteger:   "integer",
	ShapeInteger64: "integer64",
	ShapeDecimal:   "decimal",
	ShapeDate:      "date",
	ShapeDateTime:  "dateTime",
	ShapeInstant:   "instant",
	ShapeTime:      "time",
	ShapeBinary:    "base64Binary",
}

func (s ValueShape) String() string {
	if s >= 0 && int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return "shape(" + strconv.Itoa(int(s)) + ")"
}

func (s ValueShape) valid() bool { return s >= 0 && int(s) < len(shapeNames) }

// fhirPrimitives maps FHIR primitive type names onto shapes.
var fhirPrimitives = map[string]ValueShape{
	"boolean":      ShapeBoolean,
	"integer":      ShapeInteger,
	"unsignedInt":  ShapeInteger,
	"positiveInt":  ShapeInteger,
	"integer64":    ShapeInteger64,
	"decimal":      ShapeDecimal,
	"string":       ShapeString,
	"code":         ShapeString,
	"id":           ShapeString,
	"markdown":     ShapeString,
	"uri":          ShapeString,
	"url":          ShapeString,
	"canonical":    ShapeString,
	"oid":          ShapeString,
	"uuid":         ShapeString,
	"xhtml":        ShapeString,
	"date":         ShapeDate,
	"dateTime":     ShapeDateTime,
	"instant":      ShapeInstant,
	"time":         ShapeTime,
	"base64Binary": ShapeBinary,
}

// ShapeOf resolves a FHIR primitive type name such as "positiveInt" or "code".
func ShapeOf(name string) (ValueShape, bool) {
	s, ok := fhirPrimitives[name]
	return s, ok
}

// Decimal is a decimal number kept as its exact wire text.
type Decimal string

var (
	reDecimal  = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)
	reDate     = regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)(-(0[1-9]|1[0-2])(-(0[1-9]|[1-2][0-9]|3[0-1]))?)?$`)
	reDateTime = regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)(-(0[1-9]|1[0-2])(-(0[1-9]|[1-2][0-9]|3[0-1])(T([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]{1,9})?)?)?(Z|(\+|-)((0[0-9]|1[0-3]):[0-5][0-9]|14:00)?)?)?$`)
	reInstant  = regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)-(0[1-9]|1[0-2])-(0[1-9]|[1-2][0-9]|3[0-1])T([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]{1,9})?(Z|(\+|-)((0[0-9]|1[0-3]):[0-5][0-9]|14:00))$`)
	reTime     = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]{1,9})?$`)
)

// Pattern returns the regular expression lexical values of s must match, or
// "" when s has none.
func (s ValueShape) Pattern() string {
	if s == ShapeDecimal {
		return reDecimal.String()
	}
	if re := formatPattern(s); re != nil {
		return re.String()
	}
	return ""
}

func formatPattern(s ValueShape) *regexp.Regexp {
	switch s {
	case ShapeDate:
		return reDate
	case ShapeDateTime:
		return reDateTime
	case ShapeInstant:
		return reInstant
	case ShapeTime:
		return reTime
	}
	return nil
}

// shapeError distinguishes a wrong token kind or Go type (invalid_type) from
// a well-typed value with bad content (invalid_format).
type shapeError struct {
	code string
	hint string
}

func (e *shapeError) issue(path string, s ValueShape) Issues {
	iss := issue(e.code, path, map[string]string{"shape": s.String()})
	iss[0].Hint = e.hint
	return iss
}

func typeErr(hint string) *shapeError   { return &shapeError{code: CodeInvalidType, hint: hint} }
func formatErr(hint string) *shapeError { return &shapeError{code: CodeInvalidFormat, hint: hint} }

// decodeShape converts a scalar token into the Go value of shape s.
func decodeShape(s ValueShape, tok Token) (any, *shapeError) {
	switch s {
	case ShapeBoolean:
		if tok.Kind != TokenBool {
			return nil, typeErr("expected boolean")
		}
		return tok.Bool, nil
	case ShapeInteger:
		if tok.Kind != TokenNumber {
			return nil, typeErr("expected integer")
		}
		n, err := strconv.ParseInt(tok.Number, 10, 32)
		if err != nil {
			return nil, formatErr("expected 32-bit integer, got " + tok.Number)
		}
		return n, nil
	case ShapeInteger64:
		if tok.Kind != TokenString {
			return nil, typeErr("expected integer64 string")
		}
		n, err := strconv.ParseInt(tok.String, 10, 64)
		if err != nil {
			return nil, formatErr("expected 64-bit integer, got " + strconv.Quote(tok.String))
		}
		return n, nil
	case ShapeDecimal:
		if tok.Kind != TokenNumber {
			return nil, typeErr("expected decimal")
		}
		if !reDecimal.MatchString(tok.Number) {
			return nil, formatErr("bad decimal " + tok.Number)
		}
		return Decimal(tok.Number), nil
	case ShapeBinary:
		if tok.Kind != TokenString {
			return nil, typeErr("expected base64 string")
		}
		b, err := base64.StdEncoding.DecodeString(tok.String)
		if err != nil {
			return nil, formatErr("bad base64: " + err.Error())
		}
		return b, nil
	default:
		if tok.Kind != TokenString {
			return nil, typeErr("expected " + s.String())
		}
		if re := formatPattern(s); re != nil && !re.MatchString(tok.String) {
			return nil, formatErr("bad " + s.String() + " " + strconv.Quote(tok.String))
		}
		return tok.String, nil
	}
}

// encodeShape converts a Go value of shape s into its scalar token.
func encodeShape(s ValueShape, v any) (Token, *shapeError) {
	switch s {
	case ShapeBoolean:
		b, ok := v.(bool)
		if !ok {
			return Token{}, typeErr("expected bool value")
		}
		return Token{Kind: TokenBool, Bool: b}, nil
	case ShapeInteger, ShapeInteger64:
		var n int64
		switch x := v.(type) {
		case int64:
			n = x
		case int:
			n = int64(x)
		case int32:
			n = int64(x)
		default:
			return Token{}, typeErr("expected integer value")
		}
		if s == ShapeInteger64 {
			return Token{Kind: TokenString, String: strconv.FormatInt(n, 10)}, nil
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return Token{}, formatErr("expected 32-bit integer, got " + strconv.FormatInt(n, 10))
		}
		return Token{Kind: TokenNumber, Number: strconv.FormatInt(n, 10)}, nil
	case ShapeDecimal:
		d, ok := v.(Decimal)
		if !ok {
			return Token{}, typeErr("expected Decimal value")
		}
		if !reDecimal.MatchString(string(d)) {
			return Token{}, formatErr("bad decimal " + string(d))
		}
		return Token{Kind: TokenNumber, Number: string(d)}, nil
	case ShapeBinary:
		b, ok := v.([]byte)
		if !ok {
			return Token{}, typeErr("expected []byte value")
		}
		return Token{Kind: TokenString, String: base64.StdEncoding.EncodeToString(b)}, nil
	default:
		str, ok := v.(string)
		if !ok {
			return Token{}, typeErr("expected string value")
		}
		if re := formatPattern(s); re != nil && !re.MatchString(str) {
			return Token{}, formatErr("bad " + s.String() + " " + strconv.Quote(str))
		}
		return Token{Kind: TokenString, String: str}, nil
	}
}
