package tcp

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nilsocket/tuntcp/frame"
	"github.com/nilsocket/tuntcp/internal"
)

// timeWait is the quiet time a connection spends in TIME-WAIT before the
// Manager forgets it entirely, standing in for 2*MSL.
const timeWait = 60 * time.Second

const tickInterval = 10 * time.Millisecond

// Device is the minimal raw-IP transport a Manager drives: read and write
// whole IPv4 datagrams, which is all a TUN device exposes.
type Device interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// Manager demultiplexes inbound IPv4/TCP datagrams across connections keyed
// by four-tuple, runs the periodic retransmission tick, and hands out
// Listener/Stream handles. Every field below mu is protected by it; there
// is deliberately one lock for the whole interface rather than one per
// connection, matching the Conn type's own assumption that it carries no
// lock of its own.
type Manager struct {
	mu         sync.Mutex
	pendingVar *sync.Cond
	rcvVar     *sync.Cond
	sendVar    *sync.Cond

	dev Device
	iss issGenerator

	conns     map[Quad]*Conn
	pending   map[uint16][]Quad
	listening map[uint16]bool
	terminate bool

	log *slog.Logger
}

// NewManager constructs a Manager driving dev. log may be nil to disable
// logging.
func NewManager(dev Device, log *slog.Logger) (*Manager, error) {
	iss, err := newISSGenerator()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		dev:       dev,
		iss:       iss,
		conns:     make(map[Quad]*Conn),
		pending:   make(map[uint16][]Quad),
		listening: make(map[uint16]bool),
		log:       log,
	}
	m.pendingVar = sync.NewCond(&m.mu)
	m.rcvVar = sync.NewCond(&m.mu)
	m.sendVar = sync.NewCond(&m.mu)
	return m, nil
}

// Bind marks port as listening and returns a Listener for it. Returns an
// *OpError with KindAddrInUse if the port is already bound.
func (m *Manager) Bind(port uint16) (*Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listening[port] {
		return nil, &OpError{Op: "bind", Kind: KindAddrInUse}
	}
	m.listening[port] = true
	m.pending[port] = nil
	return &Listener{m: m, port: port}, nil
}

// Run starts the ingest and tick goroutines and blocks until ctx is
// canceled or either goroutine returns an error, then wakes every blocked
// Accept/Read so they can observe termination.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.ingestLoop(gctx) })
	g.Go(func() error { return m.tickLoop(gctx) })
	err := g.Wait()

	m.mu.Lock()
	m.terminate = true
	m.pendingVar.Broadcast()
	m.rcvVar.Broadcast()
	m.sendVar.Broadcast()
	m.mu.Unlock()
	return err
}

func (m *Manager) ingestLoop(ctx context.Context) error {
	buf := make([]byte, 65536)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := m.dev.Read(buf)
		if err != nil {
			return err
		}
		m.handleDatagram(buf[:n], time.Now())
	}
}

func (m *Manager) tickLoop(ctx context.Context) error {
	t := time.NewTicker(tickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			m.tick(now)
		}
	}
}

func (m *Manager) tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for quad, c := range m.conns {
		if c.state == StateTimeWait && now.Sub(c.timeWaitAt) > timeWait {
			delete(m.conns, quad)
			continue
		}
		seg, payload := c.Tick(now)
		if seg != nil {
			if err := m.sendSegment(quad, *seg, payload); err != nil {
				internal.LogAttrs(m.log, slog.LevelError, "tick write failed",
					slog.String("quad", quad.String()), slog.Any("err", err))
			}
		}
	}
}

func (m *Manager) handleDatagram(raw []byte, now time.Time) {
	ipf, err := frame.NewIPv4(raw)
	if err != nil {
		internal.LogAttrs(m.log, slog.LevelDebug, "drop short ipv4 frame", slog.Any("err", err))
		return
	}
	if err := ipf.ValidateSize(); err != nil {
		internal.LogAttrs(m.log, slog.LevelDebug, "drop malformed ipv4 frame",
			internal.SlogAddr4("src", ipf.SourceAddr()), slog.Any("err", err))
		return
	}
	if ipf.Protocol() != frame.ProtocolTCP {
		return // non-TCP traffic is silently out of scope, not an error
	}
	tf, err := frame.NewTCP(ipf.Payload())
	if err != nil || tf.ValidateSize() != nil {
		internal.LogAttrs(m.log, slog.LevelDebug, "drop malformed tcp segment",
			internal.SlogAddr4("src", ipf.SourceAddr()), internal.SlogAddr4("dst", ipf.DestinationAddr()))
		return
	}
	data := tf.Payload()
	seg := toSegment(tf, len(data))

	quad := Quad{
		Local:  netip.AddrPortFrom(netip.AddrFrom4(*ipf.DestinationAddr()), tf.DestinationPort()),
		Remote: netip.AddrPortFrom(netip.AddrFrom4(*ipf.SourceAddr()), tf.SourcePort()),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminate {
		return
	}

	if c, ok := m.conns[quad]; ok {
		res := c.OnSegment(seg, data, now)
		if res.reply != nil {
			m.sendSegment(quad, *res.reply, res.payload)
		}
		if res.avail.HasReadable() {
			m.rcvVar.Broadcast()
		}
		if c.unacked.Len() == 0 {
			m.sendVar.Broadcast()
		}
		return
	}

	if !seg.Flags.HasAny(FlagSYN) || !m.listening[quad.Local.Port()] {
		return
	}
	c, out, payload, ok := Accept(quad, seg, m.iss.next(quad, now), 1024)
	if !ok {
		return
	}
	c.setLogger(m.log)
	m.conns[quad] = c
	m.pending[quad.Local.Port()] = append(m.pending[quad.Local.Port()], quad)
	m.sendSegment(quad, out, payload)
	m.pendingVar.Broadcast()
}

// HasReadable reports whether a connects Availability includes a readable
// signal, used instead of a bare bitwise check to read naturally at call
// sites.
func (a Availability) HasReadable() bool { return a&AvailableReadable != 0 }

func toSegment(tf frame.TCP, dataLen int) Segment {
	_, rawFlags := tf.OffsetAndFlags()
	return Segment{
		SEQ:     Value(tf.Seq()),
		ACK:     Value(tf.Ack()),
		WND:     Size(tf.WindowSize()),
		DATALEN: Size(dataLen),
		Flags:   Flags(rawFlags),
	}
}

func (m *Manager) sendSegment(quad Quad, seg Segment, payload []byte) error {
	var buf [2048]byte
	const ipHdr = 20
	tf, err := frame.BuildTCP(buf[ipHdr:], quad.Local.Port(), quad.Remote.Port(),
		uint32(seg.SEQ), uint32(seg.ACK), uint16(seg.Flags), uint16(seg.WND), payload)
	if err != nil {
		return err
	}
	total := ipHdr + len(tf.RawData())
	ipf, err := frame.NewIPv4(buf[:total])
	if err != nil {
		return err
	}
	ipf.ClearHeader()
	ipf.SetVersionAndIHL(4, 5)
	ipf.SetTotalLength(uint16(total))
	ipf.SetTTL(64)
	ipf.SetProtocol(frame.ProtocolTCP)
	*ipf.SourceAddr() = quad.Local.Addr().As4()
	*ipf.DestinationAddr() = quad.Remote.Addr().As4()
	ipf.SetCRC(ipf.CalculateHeaderCRC())
	tf.SetCRC(frame.ChecksumTCP(*ipf.SourceAddr(), *ipf.DestinationAddr(), tf.RawData()))

	_, err = m.dev.Write(ipf.RawData())
	return err
}

func (m *Manager) popPending(port uint16) (Quad, bool) {
	qs := m.pending[port]
	for len(qs) > 0 {
		q := qs[0]
		qs = qs[1:]
		m.pending[port] = qs
		if c, ok := m.conns[q]; ok && !c.state.IsClosed() {
			return q, true
		}
	}
	return Quad{}, false
}
