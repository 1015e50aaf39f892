package internal

import (
	"bytes"
	"io"
	"math/rand"
	"testing"
)

func TestRingWriteRead(t *testing.T) {
	r := &Ring{Buf: make([]byte, 8)}
	n, err := r.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write()=%d,%v want 5,nil", n, err)
	}
	if got := r.Buffered(); got != 5 {
		t.Fatalf("Buffered()=%d want 5", got)
	}
	var buf [5]byte
	n, err = r.Read(buf[:])
	if err != nil || n != 5 || string(buf[:]) != "hello" {
		t.Fatalf("Read()=%d,%q,%v want 5,hello,nil", n, buf[:n], err)
	}
	if r.Buffered() != 0 {
		t.Fatalf("Buffered() after drain = %d want 0", r.Buffered())
	}
}

func TestRingReadEmpty(t *testing.T) {
	r := &Ring{Buf: make([]byte, 4)}
	var buf [4]byte
	if _, err := r.Read(buf[:]); err != io.EOF {
		t.Fatalf("Read() on empty ring = %v want io.EOF", err)
	}
}

func TestRingWrapsAround(t *testing.T) {
	r := &Ring{Buf: make([]byte, 8)}
	mustWrite(t, r, "abcdef") // Off=0 End=6
	var tmp [4]byte
	mustRead(t, r, tmp[:4], "abcd") // Off=4 End=6
	mustWrite(t, r, "ghij")         // wraps: End wraps to 2
	if r.Buffered() != 6 {
		t.Fatalf("Buffered()=%d want 6", r.Buffered())
	}
	got := make([]byte, 6)
	n, err := r.Read(got)
	if err != nil || n != 6 || string(got) != "efghij" {
		t.Fatalf("Read()=%d,%q,%v want 6,efghij,nil", n, got[:n], err)
	}
}

func TestRingFullRejectsWrite(t *testing.T) {
	r := &Ring{Buf: make([]byte, 4)}
	mustWrite(t, r, "abcd")
	if _, err := r.Write([]byte("e")); err != errRingBufferFull {
		t.Fatalf("Write() on full ring = %v want errRingBufferFull", err)
	}
}

func TestRingReadDiscard(t *testing.T) {
	r := &Ring{Buf: make([]byte, 8)}
	mustWrite(t, r, "abcdef")
	if err := r.ReadDiscard(3); err != nil {
		t.Fatalf("ReadDiscard: %v", err)
	}
	if r.Buffered() != 3 {
		t.Fatalf("Buffered()=%d want 3", r.Buffered())
	}
	got := make([]byte, 3)
	mustRead(t, r, got, "def")
}

func TestRingReadPeekDoesNotAdvance(t *testing.T) {
	r := &Ring{Buf: make([]byte, 8)}
	mustWrite(t, r, "abc")
	var peek [3]byte
	n, err := r.ReadPeek(peek[:])
	if err != nil || n != 3 || string(peek[:]) != "abc" {
		t.Fatalf("ReadPeek()=%d,%q,%v", n, peek[:n], err)
	}
	if r.Buffered() != 3 {
		t.Fatalf("Buffered() after peek = %d want 3 (unchanged)", r.Buffered())
	}
}

// TestRingRandom drives the ring buffer with randomized write/read/discard
// sizes and checks the output against a reference bytes.Buffer FIFO, the
// same differential strategy the teacher's ring buffer test uses.
func TestRingRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	r := &Ring{Buf: make([]byte, 32)}
	var ref bytes.Buffer
	var produced byte
	for i := 0; i < 500; i++ {
		if r.Buffered() < len(r.Buf) && rng.Intn(2) == 0 {
			n := rng.Intn(len(r.Buf)-r.Buffered()) + 1
			data := make([]byte, n)
			for j := range data {
				data[j] = produced
				produced++
			}
			if _, err := r.Write(data); err != nil {
				t.Fatalf("Write: %v", err)
			}
			ref.Write(data)
			continue
		}
		if r.Buffered() == 0 {
			continue
		}
		n := rng.Intn(r.Buffered()) + 1
		got := make([]byte, n)
		rn, err := r.Read(got)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		want := make([]byte, rn)
		ref.Read(want)
		if !bytes.Equal(got[:rn], want) {
			t.Fatalf("iteration %d: Read=%v want %v", i, got[:rn], want)
		}
	}
}

func mustWrite(t *testing.T, r *Ring, s string) {
	t.Helper()
	n, err := r.Write([]byte(s))
	if err != nil || n != len(s) {
		t.Fatalf("Write(%q)=%d,%v want %d,nil", s, n, err, len(s))
	}
}

func mustRead(t *testing.T, r *Ring, buf []byte, want string) {
	t.Helper()
	n, err := r.Read(buf)
	if err != nil || string(buf[:n]) != want {
		t.Fatalf("Read()=%q,%v want %q,nil", buf[:n], err, want)
	}
}
