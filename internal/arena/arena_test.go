package arena

import "testing"

func TestArena_WriteAndRelease(t *testing.T) {
	a := Acquire()
	if a.Len() != 0 {
		t.Fatalf("fresh arena must be empty, len=%d", a.Len())
	}
	if _, err := a.Write([]byte(`{"a":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if string(a.Bytes()) != `{"a":1}` {
		t.Fatalf("bytes=%q", a.Bytes())
	}
	a.Release()
	a.Release()

	b := Acquire()
	defer b.Release()
	if b.Len() != 0 {
		t.Fatalf("reacquired arena must be reset, len=%d", b.Len())
	}
}
