package fhircodec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/reoring/fhircodec/i18n"
	eng "github.com/reoring/fhircodec/internal/engine"
)

// Issue codes (exported consts for IDE completion and type safety by convention)
const (
	CodeParseError           = "parse_error"
	CodeInvalidType          = "invalid_type"
	CodeUnknownKey           = "unknown_key"
	CodeDuplicateKey         = "duplicate_key"
	CodeInvalidEnum          = "invalid_enum"
	CodeInvalidFormat        = "invalid_format"
	CodeDiscriminatorMissing = "discriminator_missing"
	CodeDiscriminatorUnknown = "discriminator_unknown"
	CodeChoiceViolation      = "choice_violation"
	CodeSidecarMismatch      = "sidecar_mismatch"
	CodeTruncated            = "truncated"
	CodeCanceled             = "canceled"
)

// Issue represents a single codec failure.
type Issue struct {
	Path    string // JSON Pointer (for example: /entry/2/resource/name).
	Code    string // One of the codes listed above.
	Message string
	Hint    string // Optional: remediation hints, expected type names, etc.
	Cause   error  // Optional: underlying error.
	Offset  int64  // Byte offset in the input source (-1 when unknown).
	// Params carries structured parameters (e.g., {"type":"Foo"}) for i18n
	// and observability.
	Params map[string]string
}

// Issues is a collection of codec errors that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := min(n, maxShown)
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		// e.g. invalid_type at /path: invalid type
		fmt.Fprintf(b, "%s at %s", it.Code, rootPath(it.Path))
		if it.Message != "" {
			b.WriteString(": ")
			b.WriteString(it.Message)
		}
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// Unwrap exposes the causes so errors.Is sees context.Canceled and friends.
func (iss Issues) Unwrap() []error {
	var out []error
	for _, it := range iss {
		if it.Cause != nil {
			out = append(out, it.Cause)
		}
	}
	return out
}

// HasCode reports whether any issue carries code.
func (iss Issues) HasCode(code string) bool {
	for _, it := range iss {
		if it.Code == code {
			return true
		}
	}
	return false
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	return append(dst, more...)
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

func rootPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// issue builds a single-entry Issues with a translated message.
func issue(code, path string, params map[string]string) Issues {
	return Issues{{Path: rootPath(path), Code: code, Message: i18n.T(code, params), Offset: -1, Params: params}}
}

func issueHint(code, path, hint string) Issues {
	iss := issue(code, path, nil)
	iss[0].Hint = hint
	return iss
}

func joinPath(base, token string) string { return eng.JoinPointer(base, token) }

func issueAt(code, path string, offset int64, cause error, params map[string]string) Issues {
	iss := issue(code, path, params)
	iss[0].Offset = offset
	iss[0].Cause = cause
	return iss
}

// canceled reports ctx's error as an Issue, or nil while ctx is live.
func canceled(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return issueAt(CodeCanceled, path, -1, err, nil)
	}
	return nil
}

// sourceError normalizes an error returned by a Source into Issues. Issues
// pass through unchanged; enforcement errors keep their own code and path.
func sourceError(err error, path string, offset int64) error {
	if err == nil {
		return nil
	}
	if _, ok := AsIssues(err); ok {
		return err
	}
	var ie eng.IssueError
	if errors.As(err, &ie) {
		return Issues{{Path: ie.Path, Code: ie.Code, Message: i18n.T(ie.Code, nil), Hint: ie.Message, Offset: ie.Offset, Cause: err}}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return issueAt(CodeTruncated, path, offset, err, nil)
	}
	return issueAt(CodeParseError, path, offset, err, nil)
}
