package tcp

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestByteQueuePushRead(t *testing.T) {
	q := newByteQueue(8)
	q.Push([]byte("hello"))
	if q.Len() != 5 {
		t.Fatalf("Len() = %d want 5", q.Len())
	}
	got := make([]byte, 5)
	n, err := q.Read(got)
	if err != nil || n != 5 || string(got) != "hello" {
		t.Fatalf("Read() = %d,%v,%q", n, err, got)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() after full read = %d want 0", q.Len())
	}
}

func TestByteQueueReadEmptyIsNotEOF(t *testing.T) {
	q := newByteQueue(4)
	n, err := q.Read(make([]byte, 4))
	if n != 0 || err != nil {
		t.Fatalf("Read() on empty queue = %d,%v want 0,nil", n, err)
	}
}

func TestByteQueueGrowsPastInitialCapacity(t *testing.T) {
	q := newByteQueue(4)
	payload := bytes.Repeat([]byte{'x'}, 100)
	q.Push(payload)
	if q.Len() != len(payload) {
		t.Fatalf("Len() = %d want %d", q.Len(), len(payload))
	}
	got := make([]byte, len(payload))
	n, err := q.Read(got)
	if err != nil || n != len(payload) || !bytes.Equal(got, payload) {
		t.Fatalf("Read() after growth = %d,%v", n, err)
	}
}

func TestByteQueueGrowPreservesOrderAcrossWrap(t *testing.T) {
	q := newByteQueue(8)
	q.Push([]byte("abcdef"))
	discard := make([]byte, 4)
	q.Read(discard) // advance the ring's offset so the remaining data wraps
	q.Push([]byte("ghijklmnop"))

	want := "ef" + "ghijklmnop"
	got := make([]byte, len(want))
	n, err := q.Read(got)
	if err != nil || n != len(want) || string(got) != want {
		t.Fatalf("Read() = %d,%v,%q want %q", n, err, got, want)
	}
}

func TestByteQueueSlicesMirrorsBufferedBytes(t *testing.T) {
	q := newByteQueue(8)
	q.Push([]byte("abcdef"))
	head, tail := q.Slices()
	if string(head)+string(tail) != "abcdef" {
		t.Fatalf("Slices() = %q,%q want concatenation abcdef", head, tail)
	}
}

func TestByteQueueSlicesWrapped(t *testing.T) {
	q := newByteQueue(8)
	q.Push([]byte("abcdef"))
	q.Drain(4)
	q.Push([]byte("ghij")) // wraps the backing array around

	head, tail := q.Slices()
	got := string(head) + string(tail)
	if got != "efghij" {
		t.Fatalf("Slices() joined = %q want %q", got, "efghij")
	}
}

func TestByteQueueDrain(t *testing.T) {
	q := newByteQueue(8)
	q.Push([]byte("abcdef"))
	q.Drain(3)
	if q.Len() != 3 {
		t.Fatalf("Len() after Drain(3) = %d want 3", q.Len())
	}
	got := make([]byte, 3)
	q.Read(got)
	if string(got) != "def" {
		t.Fatalf("Read() after Drain = %q want %q", got, "def")
	}
}

func TestByteQueueDrainZeroOrNegativeIsNoop(t *testing.T) {
	q := newByteQueue(8)
	q.Push([]byte("abc"))
	q.Drain(0)
	q.Drain(-5)
	if q.Len() != 3 {
		t.Fatalf("Len() after no-op Drain calls = %d want 3", q.Len())
	}
}

// TestByteQueueRandom differentially checks byteQueue's push/read/drain
// sequencing against a plain bytes.Buffer reference across growth and wrap.
func TestByteQueueRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	q := newByteQueue(4)
	var ref bytes.Buffer

	for i := 0; i < 500; i++ {
		switch rng.Intn(3) {
		case 0:
			n := rng.Intn(20)
			b := make([]byte, n)
			rng.Read(b)
			q.Push(b)
			ref.Write(b)
		case 1:
			n := rng.Intn(10)
			got := make([]byte, n)
			gn, _ := q.Read(got)
			want := make([]byte, n)
			wn, _ := ref.Read(want)
			if gn != wn || !bytes.Equal(got[:gn], want[:wn]) {
				t.Fatalf("iteration %d: Read mismatch got=%q(%d) want=%q(%d)", i, got[:gn], gn, want[:wn], wn)
			}
		case 2:
			n := rng.Intn(ref.Len() + 1)
			q.Drain(n)
			ref.Next(n)
		}
		if q.Len() != ref.Len() {
			t.Fatalf("iteration %d: Len()=%d want %d", i, q.Len(), ref.Len())
		}
	}
}
