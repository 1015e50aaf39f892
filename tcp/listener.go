package tcp

import "io"

// Listener accepts inbound connections on a bound port. Obtain one with
// [Manager.Bind].
type Listener struct {
	m    *Manager
	port uint16
}

// Accept blocks until a connection is pending on the listener's port,
// returning a Stream for it. Returns an *OpError with KindNotConnected if
// the Manager shuts down while waiting.
func (l *Listener) Accept() (*Stream, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	for {
		if q, ok := l.m.popPending(l.port); ok {
			return &Stream{m: l.m, quad: q}, nil
		}
		if l.m.terminate {
			return nil, &OpError{Op: "accept", Kind: KindNotConnected}
		}
		l.m.pendingVar.Wait()
	}
}

// Close stops accepting on the listener's port and frees it for a future
// Bind, mirroring a dropped TcpListener removing its pending-queue entry.
func (l *Listener) Close() error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	delete(l.m.pending, l.port)
	delete(l.m.listening, l.port)
	return nil
}

// Stream is one accepted connection's read/write handle.
type Stream struct {
	m    *Manager
	quad Quad
}

// Read blocks until data is available, the connection reaches TIME-WAIT (in
// which case it returns io.EOF once the queue drains), or the Manager shuts
// down.
func (s *Stream) Read(b []byte) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for {
		c, ok := s.m.conns[s.quad]
		if !ok {
			return 0, io.EOF
		}
		if c.incoming.Len() > 0 {
			return c.Read(b), nil
		}
		if c.state == StateTimeWait {
			return 0, io.EOF
		}
		if s.m.terminate {
			return 0, &OpError{Op: "read", Addr: s.quad.Remote, Kind: KindNotConnected}
		}
		s.m.rcvVar.Wait()
	}
}

// Write enqueues b for transmission, returning an *OpError with
// KindBrokenPipe if the connection no longer accepts outgoing data.
func (s *Stream) Write(b []byte) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.conns[s.quad]
	if !ok || !c.state.CanSend() {
		return 0, &OpError{Op: "write", Addr: s.quad.Remote, Kind: KindBrokenPipe}
	}
	return c.Write(b), nil
}

// Flush blocks until every byte previously accepted by Write has been
// acknowledged by the peer, or the Manager shuts down.
func (s *Stream) Flush() error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for {
		c, ok := s.m.conns[s.quad]
		if !ok || c.unacked.Len() == 0 {
			return nil
		}
		if s.m.terminate {
			return &OpError{Op: "flush", Addr: s.quad.Remote, Kind: KindNotConnected}
		}
		s.m.sendVar.Wait()
	}
}

// Close requests an active close of the stream's connection.
func (s *Stream) Close() error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.conns[s.quad]
	if !ok {
		return nil
	}
	return c.Close()
}
