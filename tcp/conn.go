package tcp

import (
	"log/slog"
	"time"
)

// sendSeq is the send sequence space of RFC 793 S3.2 F4: the window of
// sequence numbers a connection is permitted to use for outgoing data.
type sendSeq struct {
	iss Value // initial send sequence number
	una Value // oldest unacknowledged octet
	nxt Value // next octet to send
	wnd Size  // peer-advertised window
	wl1 Value // SEQ of the segment used for the last window update
	wl2 Value // ACK of the segment used for the last window update
}

// recvSeq is the receive sequence space of RFC 793 S3.2 F5: the window of
// sequence numbers a connection is willing to accept from the peer.
type recvSeq struct {
	irs Value // initial receive sequence number
	nxt Value // next octet expected
	wnd Size  // advertised receive window
}

// Conn is one TCP connection's state machine and sequence-space bookkeeping.
// It carries no lock of its own: every field is protected by the Manager
// that owns it, and all of Conn's methods assume that lock is already held
// by the caller, matching the single coarse mutex the rest of the package is
// built around.
type Conn struct {
	quad  Quad
	state State
	snd   sendSeq
	rcv   recvSeq

	// incoming holds received application data not yet consumed by Read.
	incoming *byteQueue
	// unacked holds every byte Write has accepted that the peer has not yet
	// acknowledged, whether or not it has been transmitted yet: the offset of
	// a byte within unacked relative to dataSeq() is exactly its place in the
	// send sequence space.
	unacked *byteQueue

	sendTimes map[Value]time.Time
	srtt      float64 // seconds, exponentially weighted

	closed   bool   // user called Close; a FIN must eventually be sent
	closedAt *Value // sequence number carrying the FIN, once scheduled

	// timeWaitAt records when the connection entered TIME-WAIT, so the
	// Manager knows when the 2*MSL quiet time has elapsed and the
	// connection can be forgotten entirely.
	timeWaitAt time.Time

	log *slog.Logger
}

// Accept evaluates an inbound segment addressed to no existing connection.
// If seg carries SYN, a new connection in SYN-RECEIVED is returned along
// with the SYN-ACK segment and (empty) payload to transmit. Any other
// segment addressed to a closed port is not a connection attempt and ok is
// false; the caller should either ignore it or answer with RST.
func Accept(quad Quad, seg Segment, iss Value, wnd Size) (c *Conn, out Segment, payload []byte, ok bool) {
	if !seg.Flags.HasAny(FlagSYN) {
		return nil, Segment{}, nil, false
	}
	c = &Conn{
		quad:  quad,
		state: StateSynRcvd,
		snd: sendSeq{
			iss: iss,
			una: iss,
			nxt: iss,
			wnd: seg.WND, // peer's advertised window from the inbound SYN
		},
		rcv: recvSeq{
			irs: seg.SEQ,
			nxt: Add(seg.SEQ, 1),
			wnd: wnd, // our own receive capacity, advertised back in the SYN+ACK
		},
		incoming:  newByteQueue(4096),
		unacked:   newByteQueue(4096),
		sendTimes: make(map[Value]time.Time),
		// A conservative one-minute opening estimate: better to wait too
		// long before the first retransmit than to fire before any real
		// RTT sample exists.
		srtt: 60,
	}
	out, payload = c.buildSegment(c.snd.nxt, 0, FlagSYN, time.Now())
	return c, out, payload, true
}

// writeSoftLimit caps how much unacknowledged data Write will queue ahead of
// the peer actually acknowledging it, independent of the peer's advertised
// window: a slow peer can stall Tick's pacing, but it can't make Write
// buffer unbounded memory on its behalf.
const writeSoftLimit = 1024

// Write enqueues application data for transmission and reports how many
// bytes were accepted, which may be fewer than len(b) once writeSoftLimit
// worth of data is already queued. Nothing is sent directly: data queued
// here is picked up and paced out by Tick according to the peer's
// advertised window.
func (c *Conn) Write(b []byte) int {
	if !c.state.CanSend() || len(b) == 0 {
		return 0
	}
	room := writeSoftLimit - c.unacked.Len()
	if room <= 0 {
		return 0
	}
	if len(b) > room {
		b = b[:room]
	}
	c.unacked.Push(b)
	return len(b)
}

// Close requests an active close: once any data already queued by Write has
// been sent, a FIN follows. From SYN-RECEIVED or ESTABLISHED it moves the
// connection to FIN-WAIT-1; in FIN-WAIT-1 or FIN-WAIT-2 it is a no-op that
// returns nil; in any other state it returns errAlreadyClosed.
func (c *Conn) Close() error {
	c.closed = true
	switch c.state {
	case StateSynRcvd, StateEstablished:
		c.state = StateFinWait1
	case StateFinWait1, StateFinWait2:
		// already closing, nothing to do
	default:
		return errAlreadyClosed
	}
	return nil
}

// Availability reports which blocking waiters should be woken after state
// changes driven by an incoming segment or a tick.
func (c *Conn) Availability() Availability {
	var a Availability
	if c.state == StateTimeWait || c.incoming.Len() > 0 {
		a |= AvailableReadable
	}
	return a
}

// dataSeq returns the sequence number of the first byte currently sitting in
// unacked. It is snd.una, except while the initial SYN -- which consumes one
// sequence number but is never itself queued as data -- is still
// unacknowledged, in which case it is snd.una+1. Every computation that maps
// a sequence number onto an offset into the unacked queue must go through
// this, not snd.una directly, or it misses the SYN's place in the sequence
// space.
func (c *Conn) dataSeq() Value {
	if c.snd.una == c.snd.iss {
		return Add(c.snd.una, 1)
	}
	return c.snd.una
}

// acceptable runs the RFC 793 S3.3 segment acceptability test against the
// current receive window, given the segment's starting sequence number and
// its length in sequence-space octets (payload plus one each for SYN/FIN).
func (c *Conn) acceptable(seqn Value, segLen Size) bool {
	wend := Add(c.rcv.nxt, c.rcv.wnd)
	low := Add(c.rcv.nxt, ^Size(0)) // rcv.nxt - 1, wrap-aware
	if segLen == 0 {
		if c.rcv.wnd == 0 {
			return seqn == c.rcv.nxt
		}
		return IsBetweenWrapped(low, seqn, wend)
	}
	if c.rcv.wnd == 0 {
		return false
	}
	last := Add(seqn, segLen-1)
	return IsBetweenWrapped(low, seqn, wend) || IsBetweenWrapped(low, last, wend)
}

// onSegmentResult tells the caller what, if anything, to transmit in
// response to a processed inbound segment.
type onSegmentResult struct {
	reply   *Segment
	payload []byte
	avail   Availability
}

// OnSegment feeds one inbound segment (already matched to this connection's
// four-tuple) through the state machine: acceptability, ACK processing,
// data delivery and the peer's FIN that ends FIN-WAIT-2. now is the time to stamp
// any segment this call decides to send, so tests can drive the clock.
func (c *Conn) OnSegment(seg Segment, data []byte, now time.Time) onSegmentResult {
	c.traceSeg("recv", seg)
	if !c.acceptable(seg.SEQ, seg.LEN()) {
		out, payload := c.buildSegment(c.snd.nxt, 0, 0, now)
		return onSegmentResult{reply: &out, payload: payload, avail: c.Availability()}
	}

	if !seg.Flags.HasAny(FlagACK) {
		if seg.Flags.HasAny(FlagSYN) && len(data) == 0 {
			c.rcv.nxt = Add(seg.SEQ, 1)
		}
		return onSegmentResult{avail: c.Availability()}
	}

	ackn := seg.ACK
	if c.state == StateSynRcvd {
		if IsBetweenWrapped(Add(c.snd.una, ^Size(0)), ackn, Add(c.snd.nxt, 1)) {
			c.state = StateEstablished
			c.traceSnd("established")
		}
	}

	if c.state == StateEstablished || c.state == StateFinWait1 || c.state == StateFinWait2 {
		// Advance snd.una whenever the ACK falls inside the outstanding
		// window, whether or not there is still unacked data queued: a FIN
		// carries no application bytes but still occupies a sequence number
		// that must be acknowledged for FIN-WAIT-1 to ever reach
		// FIN-WAIT-2.
		if IsBetweenWrapped(c.snd.una, ackn, Add(c.snd.nxt, 1)) {
			if c.unacked.Len() > 0 {
				ackedLen := int(Sub(ackn, c.dataSeq()))
				if ackedLen > c.unacked.Len() {
					ackedLen = c.unacked.Len()
				}
				if ackedLen > 0 {
					c.unacked.Drain(ackedLen)
				}
			}

			oldUna := c.snd.una
			for seq, sent := range c.sendTimes {
				if IsBetweenWrapped(oldUna, seq, ackn) {
					sample := now.Sub(sent).Seconds()
					c.srtt = 0.8*c.srtt + 0.2*sample
					delete(c.sendTimes, seq)
				}
			}
			c.snd.una = ackn
		}

		// RFC 793 S3.7 window update rule: only accept a new send window
		// from a segment that is at least as recent as the one that set
		// wl1/wl2 last, so a reordered old segment can't shrink or stall
		// the window after a newer one already advanced it.
		if c.snd.wl1.Less(seg.SEQ) || (c.snd.wl1 == seg.SEQ && c.snd.wl2.LessEq(ackn)) {
			c.snd.wnd = seg.WND
			c.snd.wl1 = seg.SEQ
			c.snd.wl2 = ackn
		}
	}

	if c.state == StateFinWait1 && c.closedAt != nil && c.snd.una == Add(*c.closedAt, 1) {
		c.state = StateFinWait2
		c.traceSnd("fin acked")
	}

	var reply *Segment
	var payload []byte
	if len(data) > 0 && (c.state == StateEstablished || c.state == StateFinWait1 || c.state == StateFinWait2) {
		unreadAt := int(Sub(c.rcv.nxt, seg.SEQ))
		if unreadAt > len(data) {
			// Must be a retransmitted FIN we already consumed: rcv.nxt
			// points past the FIN, which is not present in data.
			unreadAt = 0
		}
		c.incoming.Push(data[unreadAt:])
		c.rcv.nxt = Add(seg.SEQ, Size(len(data)))
		out, p := c.buildSegment(c.snd.nxt, 0, 0, now)
		reply, payload = &out, p
	}

	if seg.Flags.HasAny(FlagFIN) {
		switch c.state {
		case StateFinWait2:
			c.rcv.nxt = Add(c.rcv.nxt, 1)
			out, p := c.buildSegment(c.snd.nxt, 0, 0, now)
			reply, payload = &out, p
			c.state = StateTimeWait
			c.timeWaitAt = now
			c.traceRcv("time-wait")
		default:
			// A FIN outside FIN-WAIT-2 would require CLOSE-WAIT/LAST-ACK/
			// simultaneous-close handling this connection never enters;
			// log and drop rather than mishandle it.
			c.logerr("fin outside finwait2", slog.String("state", c.state.String()))
		}
	}

	return onSegmentResult{reply: reply, payload: payload, avail: c.Availability()}
}

// Tick drives retransmission and new-data transmission. It is called
// periodically by the Manager for every live connection. now is the current
// time and is threaded through explicitly so tests can control it.
func (c *Conn) Tick(now time.Time) (out *Segment, payload []byte) {
	if c.state == StateFinWait2 || c.state == StateTimeWait {
		return nil, nil
	}

	finEdge := c.snd.nxt
	if c.closedAt != nil {
		finEdge = *c.closedAt
	}
	nunacked := Sub(finEdge, c.dataSeq())
	unsent := Size(c.unacked.Len()) - nunacked

	// Find the oldest outstanding send at or after snd.una: the smallest
	// recorded sequence number not already acknowledged.
	var waitedFor time.Duration
	haveWaited := false
	var oldestSeq Value
	for seq, sent := range c.sendTimes {
		if seq.Less(c.snd.una) {
			continue
		}
		if !haveWaited || seq.Less(oldestSeq) {
			oldestSeq = seq
			waitedFor = now.Sub(sent)
			haveWaited = true
		}
	}

	rto := 1.5 * c.srtt
	shouldRetransmit := haveWaited && waitedFor > time.Second && waitedFor.Seconds() > rto

	if shouldRetransmit {
		resend := Size(c.unacked.Len())
		if resend > c.snd.wnd {
			resend = c.snd.wnd
		}
		var flags Flags
		if resend < c.snd.wnd && c.closed && c.closedAt == nil {
			flags = FlagFIN
			end := Add(c.dataSeq(), Size(c.unacked.Len()))
			c.closedAt = &end
		}
		seg, p := c.buildSegment(c.dataSeq(), int(resend), flags, now)
		return &seg, p
	}

	if unsent == 0 && c.closedAt != nil {
		return nil, nil
	}
	allowed := Size(0)
	if c.snd.wnd > nunacked {
		allowed = c.snd.wnd - nunacked
	}
	if allowed == 0 {
		return nil, nil
	}
	send := unsent
	if send > allowed {
		send = allowed
	}
	var flags Flags
	if send < allowed && c.closed && c.closedAt == nil {
		flags = FlagFIN
		end := Add(c.dataSeq(), Size(c.unacked.Len()))
		c.closedAt = &end
	}
	if send == 0 && flags == 0 {
		// Nothing new to push and no FIN to append: an idle connection
		// shouldn't re-send an empty ACK on every tick.
		return nil, nil
	}
	seg, p := c.buildSegment(c.snd.nxt, int(send), flags, now)
	return &seg, p
}

// Read copies up to len(b) bytes of received, unread application data into
// b. Use Availability/state to decide whether to block for more.
func (c *Conn) Read(b []byte) int {
	n, _ := c.incoming.Read(b)
	return n
}

// buildSegment assembles the segment and payload to transmit starting at
// seq, bounded to limit bytes of application data, with the given one-shot
// flags (SYN/FIN) layered on top of the permanent ACK. It advances snd.nxt
// and records the send time used by Tick's retransmission timer.
func (c *Conn) buildSegment(seq Value, limit int, flags Flags, now time.Time) (seg Segment, payload []byte) {
	offset := int(Sub(seq, c.dataSeq()))
	if c.closedAt != nil && seq == Add(*c.closedAt, 1) {
		offset = 0
		limit = 0
	}

	head, tail := c.unacked.Slices()
	if len(head) >= offset {
		head = head[offset:]
	} else {
		skipped := len(head)
		head = nil
		rem := offset - skipped
		if rem <= len(tail) {
			tail = tail[rem:]
		} else {
			tail = nil
		}
	}

	maxData := limit
	if avail := len(head) + len(tail); avail < maxData {
		maxData = avail
	}
	if maxData < 0 {
		maxData = 0
	}
	payload = make([]byte, 0, maxData)
	p1 := maxData
	if p1 > len(head) {
		p1 = len(head)
	}
	payload = append(payload, head[:p1]...)
	remaining := maxData - p1
	p2 := remaining
	if p2 > len(tail) {
		p2 = len(tail)
	}
	payload = append(payload, tail[:p2]...)

	seg = Segment{
		SEQ:     seq,
		ACK:     c.rcv.nxt,
		WND:     c.rcv.wnd,
		DATALEN: Size(len(payload)),
		Flags:   flags | FlagACK,
	}

	next := Add(seq, Size(len(payload)))
	if flags.HasAny(FlagSYN) {
		next = Add(next, 1)
	}
	if flags.HasAny(FlagFIN) {
		next = Add(next, 1)
	}
	if c.snd.nxt.Less(next) {
		c.snd.nxt = next
	}
	if c.sendTimes == nil {
		c.sendTimes = make(map[Value]time.Time)
	}
	c.sendTimes[seq] = now
	c.traceSeg("send", seg)
	return seg, payload
}
