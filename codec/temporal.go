// Package codec converts FHIR temporal primitives to and from time.Time.
// Records keep date, dateTime and instant values as their wire text so partial
// precision survives a round trip; these helpers are for callers that need
// arithmetic on them.
package codec

import (
	"fmt"
	"time"

	"github.com/reoring/fhircodec"
)

// Precision is the granularity a temporal literal was written with.
type Precision int

const (
	Year Precision = iota + 1
	Month
	Day
	Second
)

func (p Precision) String() string {
	switch p {
	case Year:
		return "year"
	case Month:
		return "month"
	case Day:
		return "day"
	case Second:
		return "second"
	}
	return fmt.Sprintf("Precision(%d)", int(p))
}

var layouts = map[Precision]string{
	Year:  "2006",
	Month: "2006-01",
	Day:   "2006-01-02",
}

// ParseTemporal parses a FHIR date, dateTime or instant literal. Partial dates
// are returned at their first instant in UTC.
func ParseTemporal(s string) (time.Time, Precision, error) {
	var prec Precision
	switch len(s) {
	case 4:
		prec = Year
	case 7:
		prec = Month
	case 10:
		prec = Day
	}
	if prec != 0 {
		t, err := time.Parse(layouts[prec], s)
		if err != nil {
			return time.Time{}, 0, invalid(s, err)
		}
		return t, prec, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, 0, invalid(s, err)
	}
	return t, Second, nil
}

func invalid(s string, err error) error {
	return fhircodec.Issues{{
		Path:    "/",
		Code:    fhircodec.CodeInvalidFormat,
		Message: "invalid FHIR date/time " + s,
		Cause:   err,
		Offset:  -1,
		Params:  map[string]string{"value": s},
	}}
}

// FormatTemporal renders t at the given precision. Second precision keeps the
// zone of t and trims trailing fractional zeros.
func FormatTemporal(t time.Time, prec Precision) string {
	if l, ok := layouts[prec]; ok {
		return t.Format(l)
	}
	return t.Format(time.RFC3339Nano)
}

// Time returns the instant held by a temporal primitive.
func Time(p *fhircodec.Primitive) (time.Time, Precision, error) {
	if !p.HasValue() {
		return time.Time{}, 0, fhircodec.Issues{{Path: "/", Code: fhircodec.CodeInvalidType, Message: "primitive has no value", Offset: -1}}
	}
	s, ok := p.Value.(string)
	if !ok {
		return time.Time{}, 0, fhircodec.Issues{{Path: "/", Code: fhircodec.CodeInvalidType, Message: fmt.Sprintf("expected temporal text, got %T", p.Value), Offset: -1}}
	}
	return ParseTemporal(s)
}

// FromTime builds a dateTime primitive at the given precision.
func FromTime(t time.Time, prec Precision) *fhircodec.Primitive {
	return fhircodec.Str(FormatTemporal(t, prec))
}

// Instant builds an instant primitive normalized to UTC.
func Instant(t time.Time) *fhircodec.Primitive {
	return fhircodec.Str(t.UTC().Format(time.RFC3339Nano))
}
