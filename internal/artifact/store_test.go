package artifact

import (
	"testing"
	"time"
)

func TestPutIsContentAddressedAndIdempotent(t *testing.T) {
	s := New(10, 1<<20)
	id1 := s.Put([]byte("hello"), KindText, 0)
	id2 := s.Put([]byte("hello"), KindText, 0)
	if id1 != id2 {
		t.Fatalf("put(b) twice returned different ids: %s vs %s", id1, id2)
	}
	a, ok := s.Get(id1)
	if !ok {
		t.Fatalf("get missing after put")
	}
	if string(a.Bytes) != "hello" {
		t.Fatalf("bytes mismatch: %s", a.Bytes)
	}
}

func TestEvictionByMaxEntries(t *testing.T) {
	s := New(2, 0)
	a := s.Put([]byte("a"), KindText, 0)
	_ = s.Put([]byte("b"), KindText, 0)
	_ = s.Put([]byte("c"), KindText, 0)
	if _, ok := s.Get(a); ok {
		t.Fatalf("least-recently-used entry should have been evicted")
	}
}

func TestEvictionByTTL(t *testing.T) {
	s := New(10, 0)
	id := s.Put([]byte("short-lived"), KindText, 1)
	time.Sleep(5 * time.Millisecond)
	if _, ok := s.Get(id); ok {
		t.Fatalf("expired artifact should not be returned")
	}
}
