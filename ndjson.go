package fhircodec

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strconv"
)

// maxNDJSONLine bounds a single bulk line.
const maxNDJSONLine = 64 << 20

// DecodeNDJSON decodes a newline delimited stream of resources (FHIR Bulk
// Data) and calls fn for each. Blank lines are skipped. A decode error is
// returned with its path prefixed by the line number, e.g. /3/name.
func (c *Codec) DecodeNDJSON(ctx context.Context, r io.Reader, fn func(line int, rec *Record) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxNDJSONLine)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		if err := canceled(ctx, "/"+strconv.Itoa(line)); err != nil {
			return err
		}
		rec, err := c.Unmarshal(ctx, b, nil)
		if err != nil {
			return prefixIssues(err, line)
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return issueAt(CodeTruncated, "/"+strconv.Itoa(line+1), -1, err, nil)
	}
	return nil
}

func prefixIssues(err error, line int) error {
	iss, ok := AsIssues(err)
	if !ok {
		return err
	}
	out := make(Issues, len(iss))
	prefix := "/" + strconv.Itoa(line)
	for i, it := range iss {
		if it.Path == "/" {
			it.Path = prefix
		} else {
			it.Path = prefix + it.Path
		}
		out[i] = it
	}
	return out
}

// NDJSONWriter writes resources in NDJSON (Newline Delimited JSON) format:
// one canonical object per line, as the FHIR Bulk Data Access specification
// requires.
type NDJSONWriter struct {
	c    *Codec
	sink *JSONSink
}

// NewNDJSONWriter creates a new NDJSONWriter that writes to w.
func (c *Codec) NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{c: c, sink: NewJSONSink(w)}
}

// Write serialises rec as a single line followed by a newline character.
// After an error the writer holds a partial line and must not be reused.
func (n *NDJSONWriter) Write(ctx context.Context, rec *Record) error {
	if err := n.c.Serialize(ctx, rec, n.sink); err != nil {
		return err
	}
	return n.sink.Newline()
}

// Flush flushes any buffered data to the underlying writer.
func (n *NDJSONWriter) Flush() error { return n.sink.Flush() }
