package tcp

import (
	"context"
	"log/slog"

	"github.com/nilsocket/tuntcp/internal"
)

func (c *Conn) logenabled(lvl slog.Level) bool {
	return internal.HeapAllocDebugging || (c.log != nil && c.log.Handler().Enabled(context.Background(), lvl))
}

func (c *Conn) logattrs(lvl slog.Level, msg string, attrs ...slog.Attr) {
	internal.LogAttrs(c.log, lvl, msg, attrs...)
}

func (c *Conn) debug(msg string, attrs ...slog.Attr) {
	c.logattrs(slog.LevelDebug, msg, attrs...)
}

func (c *Conn) trace(msg string, attrs ...slog.Attr) {
	c.logattrs(internal.LevelTrace, msg, attrs...)
}

func (c *Conn) logerr(msg string, attrs ...slog.Attr) {
	c.logattrs(slog.LevelError, msg, attrs...)
}

func (c *Conn) traceSnd(msg string) {
	c.trace(msg,
		slog.String("state", c.state.String()),
		slog.Uint64("snd.nxt", uint64(c.snd.nxt)),
		slog.Uint64("snd.una", uint64(c.snd.una)),
		slog.Uint64("snd.wnd", uint64(c.snd.wnd)),
	)
}

func (c *Conn) traceRcv(msg string) {
	c.trace(msg,
		slog.String("state", c.state.String()),
		slog.Uint64("rcv.nxt", uint64(c.rcv.nxt)),
		slog.Uint64("rcv.wnd", uint64(c.rcv.wnd)),
	)
}

func (c *Conn) traceSeg(msg string, seg Segment) {
	if c.logenabled(internal.LevelTrace) {
		c.trace(msg,
			slog.Uint64("seg.seq", uint64(seg.SEQ)),
			slog.Uint64("seg.ack", uint64(seg.ACK)),
			slog.Uint64("seg.wnd", uint64(seg.WND)),
			slog.String("seg.flags", seg.Flags.String()),
			slog.Uint64("seg.data", uint64(seg.DATALEN)),
		)
	}
}

// setLogger attaches l to the connection for trace/debug/error logging. A
// nil logger disables logging entirely. Callers must hold the owning
// Manager's lock, since Conn itself carries no mutex -- all of its state is
// protected by the single Manager-wide lock described in Manager.
func (c *Conn) setLogger(l *slog.Logger) { c.log = l }
