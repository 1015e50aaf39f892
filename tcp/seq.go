package tcp

// Value is a TCP sequence or acknowledgment number: a 32 bit counter that
// wraps to zero and must always be compared with wrap-aware arithmetic
// instead of plain integer comparison.
type Value uint32

// Size is a span of sequence space: a segment's data length, a window, or
// the distance between two [Value]s. Unlike Value it does not represent a
// point in the space and so is never itself compared with wraparound rules.
type Size uint32

// Add returns v advanced by n octets of sequence space. Wraps the same way
// the underlying uint32 arithmetic does.
func Add(v Value, n Size) Value { return v + Value(n) }

// Sub returns the wrap-aware distance from other to v, i.e. how many octets
// of sequence space separate other (earlier) from v (later).
func Sub(v, other Value) Size { return Size(v - other) }

// Less reports whether v precedes other in the 32 bit sequence space.
//
// Per RFC 1323, TCP determines whether a sequence number is "old" or "new"
// by testing whether it falls within 2**31 of the left edge of the window:
// v is considered to precede other exactly when v - other (mod 2**32)
// exceeds 2**31. The cut point is the literal value 1<<31, not the result of
// XOR-ing against 2^31 -- that XOR gives the wrong answer for roughly half
// of all inputs and was a defect in the implementation this package
// descends from.
func (v Value) Less(other Value) bool {
	return Size(v-other) > (1 << 31)
}

// LessEq reports v.Less(other) || v == other.
func (v Value) LessEq(other Value) bool { return v == other || v.Less(other) }

// Greater reports other.Less(v).
func (v Value) Greater(other Value) bool { return other.Less(v) }

// GreaterEq reports v == other || other.Less(v).
func (v Value) GreaterEq(other Value) bool { return v == other || other.Less(v) }

// IsBetweenWrapped reports whether x falls strictly between start and end,
// wrap-aware: start < x < end with both endpoints excluded. Used throughout
// the acceptability test and ACK validation to test membership in a
// sequence-space window without being fooled by wraparound.
func IsBetweenWrapped(start, x, end Value) bool {
	return start.Less(x) && x.Less(end)
}
