// Package wire renders a token stream as compact JSON text.
package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	eng "github.com/reoring/fhircodec/internal/engine"
)

// ErrStructure reports a token that is illegal at the writer's position.
var ErrStructure = errors.New("wire: token not allowed here")

type frameKind uint8

const (
	inObject frameKind = iota
	inArray
)

type frame struct {
	kind     frameKind
	count    int
	afterKey bool
}

// Writer is an engine.TokenSink producing canonical JSON: no insignificant
// whitespace, commas between members, a colon after each key.
type Writer struct {
	w     *bufio.Writer
	stack []frame
	// roots counts completed top-level values; they are newline separated.
	roots int
	err   error
}

// NewWriter returns a Writer over w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Depth is the current container nesting.
func (wr *Writer) Depth() int { return len(wr.stack) }

// WriteToken implements engine.TokenSink.
func (wr *Writer) WriteToken(tok eng.Token) error {
	if wr.err != nil {
		return wr.err
	}
	if err := wr.write(tok); err != nil {
		wr.err = err
		return err
	}
	return nil
}

func (wr *Writer) write(tok eng.Token) error {
	switch tok.Kind {
	case eng.KindKey:
		top := wr.top()
		if top == nil || top.kind != inObject || top.afterKey {
			return fmt.Errorf("%w: %s", ErrStructure, tok.Kind)
		}
		if top.count > 0 {
			wr.w.WriteByte(',')
		}
		top.count++
		top.afterKey = true
		if err := wr.quote(tok.String); err != nil {
			return err
		}
		return wr.w.WriteByte(':')
	case eng.KindEndObject, eng.KindEndArray:
		top := wr.top()
		want := inObject
		closer := byte('}')
		if tok.Kind == eng.KindEndArray {
			want, closer = inArray, ']'
		}
		if top == nil || top.kind != want || top.afterKey {
			return fmt.Errorf("%w: %s", ErrStructure, tok.Kind)
		}
		wr.stack = wr.stack[:len(wr.stack)-1]
		wr.valueWritten()
		return wr.w.WriteByte(closer)
	}

	if err := wr.beforeValue(tok.Kind); err != nil {
		return err
	}
	switch tok.Kind {
	case eng.KindBeginObject:
		wr.stack = append(wr.stack, frame{kind: inObject})
		return wr.w.WriteByte('{')
	case eng.KindBeginArray:
		wr.stack = append(wr.stack, frame{kind: inArray})
		return wr.w.WriteByte('[')
	case eng.KindString:
		err := wr.quote(tok.String)
		wr.valueWritten()
		return err
	case eng.KindNumber:
		if tok.Number == "" {
			return fmt.Errorf("%w: empty number", ErrStructure)
		}
		_, err := wr.w.WriteString(tok.Number)
		wr.valueWritten()
		return err
	case eng.KindBool:
		lit := "false"
		if tok.Bool {
			lit = "true"
		}
		_, err := wr.w.WriteString(lit)
		wr.valueWritten()
		return err
	case eng.KindNull:
		_, err := wr.w.WriteString("null")
		wr.valueWritten()
		return err
	}
	return fmt.Errorf("%w: %s", ErrStructure, tok.Kind)
}

// beforeValue validates the position of a value and writes its separator.
func (wr *Writer) beforeValue(k eng.Kind) error {
	top := wr.top()
	switch {
	case top == nil:
		if wr.roots > 0 {
			return wr.w.WriteByte('\n')
		}
		return nil
	case top.kind == inObject:
		if !top.afterKey {
			return fmt.Errorf("%w: %s without key", ErrStructure, k)
		}
		return nil
	default:
		if top.count > 0 {
			if err := wr.w.WriteByte(','); err != nil {
				return err
			}
		}
		top.count++
		return nil
	}
}

// valueWritten records completion of a value in the enclosing container.
func (wr *Writer) valueWritten() {
	top := wr.top()
	if top == nil {
		wr.roots++
		return
	}
	if top.kind == inObject {
		top.afterKey = false
	}
}

func (wr *Writer) top() *frame {
	if n := len(wr.stack); n > 0 {
		return &wr.stack[n-1]
	}
	return nil
}

const hex = "0123456789abcdef"

// quote writes s as a JSON string. Only '"', '\\', control characters and
// U+2028/U+2029 are escaped; markup such as narrative xhtml stays readable.
// Invalid UTF-8 is replaced by U+FFFD.
func (wr *Writer) quote(s string) error {
	w := wr.w
	w.WriteByte('"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			if c >= 0x20 && c != '"' && c != '\\' {
				i++
				continue
			}
			w.WriteString(s[start:i])
			switch c {
			case '"', '\\':
				w.WriteByte('\\')
				w.WriteByte(c)
			case '\n':
				w.WriteString(`\n`)
			case '\r':
				w.WriteString(`\r`)
			case '\t':
				w.WriteString(`\t`)
			default:
				w.WriteString(`\u00`)
				w.WriteByte(hex[c>>4])
				w.WriteByte(hex[c&0xf])
			}
			i++
			start = i
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			w.WriteString(s[start:i])
			w.WriteString(`\ufffd`)
			i += size
			start = i
			continue
		}
		if r == '\u2028' || r == '\u2029' {
			w.WriteString(s[start:i])
			w.WriteString(`\u202`)
			w.WriteByte(hex[r&0xf])
			i += size
			start = i
			continue
		}
		i += size
	}
	w.WriteString(s[start:])
	_, err := w.Write([]byte{'"'})
	return err
}

// Newline terminates the current top-level value with '\n', the NDJSON line
// separator. It is only legal between top-level values.
func (wr *Writer) Newline() error {
	if wr.err != nil {
		return wr.err
	}
	if len(wr.stack) > 0 {
		return fmt.Errorf("%w: newline inside container", ErrStructure)
	}
	wr.roots = 0
	return wr.w.WriteByte('\n')
}

// Flush writes buffered output. It fails when a container is still open.
func (wr *Writer) Flush() error {
	if wr.err != nil {
		return wr.err
	}
	if len(wr.stack) > 0 {
		return fmt.Errorf("%w: %d unclosed containers", ErrStructure, len(wr.stack))
	}
	return wr.w.Flush()
}
