package tcp

import "net/netip"

// Quad is the four-tuple that uniquely identifies a connection: the local
// and remote address/port pairs as seen on the TUN interface.
type Quad struct {
	Local  netip.AddrPort
	Remote netip.AddrPort
}

func (q Quad) String() string {
	return q.Local.String() + "<-" + q.Remote.String()
}
