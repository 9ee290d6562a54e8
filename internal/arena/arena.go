// Package arena provides pooled byte buffers with scoped ownership.
package arena

import (
	"github.com/valyala/bytebufferpool"
)

var pool bytebufferpool.Pool

// Arena is a growable byte buffer owned by exactly one caller at a time.
// Readers created over Bytes borrow the memory and must not outlive Release.
type Arena struct {
	buf *bytebufferpool.ByteBuffer
}

// Acquire takes an empty arena from the pool.
func Acquire() *Arena {
	return &Arena{buf: pool.Get()}
}

// Write implements io.Writer.
func (a *Arena) Write(p []byte) (int, error) { return a.buf.Write(p) }

// Bytes returns the accumulated bytes.
func (a *Arena) Bytes() []byte { return a.buf.B }

// Len returns the number of accumulated bytes.
func (a *Arena) Len() int { return a.buf.Len() }

// Release returns the memory to the pool. It is safe to call more than once.
func (a *Arena) Release() {
	if a.buf == nil {
		return
	}
	pool.Put(a.buf)
	a.buf = nil
}
