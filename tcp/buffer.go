package tcp

import (
	"io"

	"github.com/nilsocket/tuntcp/internal"
)

// byteQueue is a growable FIFO byte queue used for both a connection's
// unread received bytes and its unacknowledged sent bytes. It wraps
// [internal.Ring], which gives O(1) append/consume without shifting data on
// every read, and adds automatic growth: where a fixed-capacity ring would
// reject a write that doesn't fit, byteQueue reallocates a larger backing
// array, the way a VecDeque grows.
type byteQueue struct {
	ring internal.Ring
}

func newByteQueue(initialCap int) *byteQueue {
	return &byteQueue{ring: internal.Ring{Buf: make([]byte, initialCap)}}
}

// Len returns the number of unread bytes buffered.
func (q *byteQueue) Len() int { return q.ring.Buffered() }

func (q *byteQueue) grow(extra int) {
	need := q.ring.Buffered() + extra
	if len(q.ring.Buf) >= need {
		return
	}
	newCap := len(q.ring.Buf) * 2
	if newCap < need {
		newCap = need
	}
	grown := make([]byte, newCap)
	n, err := q.ring.ReadPeek(grown)
	if err != nil && err != io.EOF {
		panic("tcp: byteQueue grow: " + err.Error())
	}
	q.ring.Buf = grown
	q.ring.Off = 0
	q.ring.End = n
}

// Push appends b to the back of the queue, growing the backing array if
// necessary. Never fails.
func (q *byteQueue) Push(b []byte) {
	if len(b) == 0 {
		return
	}
	q.grow(len(b))
	if _, err := q.ring.Write(b); err != nil {
		panic("tcp: byteQueue push: " + err.Error())
	}
}

// Slices returns up to two contiguous views of the buffered data in order:
// head is always present when Len()>0, tail is non-nil only when the
// buffered region wraps around the end of the backing array. Mirrors
// VecDeque::as_slices so callers can walk buffered bytes without forcing a
// copy into one contiguous slice.
func (q *byteQueue) Slices() (head, tail []byte) {
	r := &q.ring
	if r.Buffered() == 0 {
		return nil, nil
	}
	if r.End > r.Off {
		return r.Buf[r.Off:r.End], nil
	}
	return r.Buf[r.Off:], r.Buf[:r.End]
}

// Drain discards the first n buffered bytes without copying them out,
// advancing the read cursor past already-acknowledged or already-read data.
func (q *byteQueue) Drain(n int) {
	if n <= 0 {
		return
	}
	if err := q.ring.ReadDiscard(n); err != nil {
		panic("tcp: byteQueue drain: " + err.Error())
	}
}

// Read copies up to len(b) buffered bytes into b and advances the read
// cursor, returning 0, nil if the queue is currently empty rather than
// io.EOF: an empty receive queue on an open connection is not end of stream.
func (q *byteQueue) Read(b []byte) (int, error) {
	n, err := q.ring.Read(b)
	if err == io.EOF {
		return 0, nil
	}
	return n, err
}
