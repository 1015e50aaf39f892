package tcp

import (
	"errors"
	"math/bits"
)

// errAlreadyClosed is returned by Close when the connection is already past
// the point where an active close is meaningful.
var errAlreadyClosed = errors.New("tcp: connection already closed")

// Flags is the TCP flags field: SYN, ACK, FIN, RST and friends, bit-masked.
type Flags uint16

const (
	FlagFIN Flags = 1 << iota // FlagFIN - no more data from sender.
	FlagSYN                   // FlagSYN - synchronize sequence numbers.
	FlagRST                   // FlagRST - reset the connection.
	FlagPSH                   // FlagPSH - push function.
	FlagACK                   // FlagACK - acknowledgment field significant.
	FlagURG                   // FlagURG - urgent pointer field significant.
	FlagECE                   // FlagECE - ECN-Echo.
	FlagCWR                   // FlagCWR - congestion window reduced.
)

const flagMask = 0x00ff

const (
	synack = FlagSYN | FlagACK
	finack = FlagFIN | FlagACK
)

// HasAll reports whether every bit in mask is set in flags.
func (f Flags) HasAll(mask Flags) bool { return f&mask == mask }

// HasAny reports whether any bit in mask is set in flags.
func (f Flags) HasAny(mask Flags) bool { return f&mask != 0 }

// Mask returns f with non-flag bits cleared.
func (f Flags) Mask() Flags { return f & flagMask }

// String returns a human readable flag list, e.g. "[SYN,ACK]".
func (f Flags) String() string {
	switch f {
	case 0:
		return "[]"
	case synack:
		return "[SYN,ACK]"
	case finack:
		return "[FIN,ACK]"
	case FlagACK:
		return "[ACK]"
	case FlagSYN:
		return "[SYN]"
	case FlagFIN:
		return "[FIN]"
	case FlagRST:
		return "[RST]"
	}
	buf := make([]byte, 0, 2+4*bits.OnesCount16(uint16(f)))
	buf = append(buf, '[')
	buf = f.AppendFormat(buf)
	buf = append(buf, ']')
	return string(buf)
}

// AppendFormat appends the human readable flag list to b, without brackets.
func (f Flags) AppendFormat(b []byte) []byte {
	const names = "FIN SYN RST PSH ACK URG ECE CWR "
	const namelen = 4
	first := true
	for f != 0 {
		i := bits.TrailingZeros16(uint16(f))
		if !first {
			b = append(b, ',')
		}
		first = false
		b = append(b, names[i*namelen:i*namelen+3]...)
		f &= ^(1 << i)
	}
	return b
}

// Segment is a TCP segment's control fields, stripped of addressing: the
// sequence/ack numbers, advertised window, payload length and flags that
// drive the state machine and acceptability test.
type Segment struct {
	SEQ     Value
	ACK     Value
	DATALEN Size
	WND     Size
	Flags   Flags
}

// LEN is the length of the segment in sequence-space octets, counting SYN
// and FIN as occupying one octet each.
func (seg Segment) LEN() Size {
	l := seg.DATALEN
	if seg.Flags.HasAny(FlagSYN) {
		l++
	}
	if seg.Flags.HasAny(FlagFIN) {
		l++
	}
	return l
}

// Last returns the sequence number of the final octet occupied by seg, or
// SEQ itself for a zero-length segment (a bare ACK).
func (seg Segment) Last() Value {
	l := seg.LEN()
	if l == 0 {
		return seg.SEQ
	}
	return Add(seg.SEQ, l) - 1
}

// State enumerates the states a connection progresses through. Only the
// states reachable by a TUN endpoint that never initiates a connection and
// never survives past a passive close are modeled; there is no SYN-SENT,
// CLOSE-WAIT, LAST-ACK, CLOSING or simultaneous-open handling.
type State uint8

const (
	// StateClosed is a pseudo-state: no connection object exists yet, or its
	// state has been fully torn down.
	StateClosed State = iota
	// StateSynRcvd: both SYN received and SYN+ACK sent, awaiting the final
	// ACK of the three-way handshake.
	StateSynRcvd
	// StateEstablished: open connection, data flows both directions.
	StateEstablished
	// StateFinWait1: local FIN sent, awaiting its acknowledgment.
	StateFinWait1
	// StateFinWait2: local FIN acknowledged, awaiting remote FIN.
	StateFinWait2
	// StateTimeWait: remote FIN received and acknowledged; waiting out 2*MSL
	// before the connection is fully forgotten.
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateSynRcvd:
		return "SYN-RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN-WAIT-1"
	case StateFinWait2:
		return "FIN-WAIT-2"
	case StateTimeWait:
		return "TIME-WAIT"
	default:
		return "UNKNOWN"
	}
}

// IsClosed reports whether the connection can be relieved of all remote
// state: either it never existed or it has run out its TIME-WAIT.
func (s State) IsClosed() bool { return s == StateClosed }

// CanSend reports whether the user is still allowed to queue outgoing data.
// False from FinWait1 onward: once the local FIN is queued no further data
// follows it.
func (s State) CanSend() bool { return s == StateSynRcvd || s == StateEstablished }

// CanRecv reports whether incoming data octets are still accepted into the
// receive queue. False once the remote FIN has been processed (FinWait2 is
// the last state where new data is expected).
func (s State) CanRecv() bool {
	return s == StateSynRcvd || s == StateEstablished || s == StateFinWait1 || s == StateFinWait2
}

// Availability is a bitmask of conditions a Manager checks after processing
// a segment to decide which condition variables to signal, mirroring the
// connection's own notion of what changed without the manager re-deriving
// it from scratch.
type Availability uint8

const (
	// AvailableReadable marks that the receive queue grew or the connection
	// reached a state (closed, reset) that unblocks a pending Read.
	AvailableReadable Availability = 1 << iota
	// AvailableAcceptable marks that a new pending connection was queued for
	// a bound listener.
	AvailableAcceptable
)
