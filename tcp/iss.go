package tcp

import (
	"crypto/rand"
	"encoding/binary"
	"net/netip"
	"time"

	"golang.org/x/crypto/blake2b"
)

// issGenerator produces initial sequence numbers the way RFC 6528
// recommends: a keyed hash of the connection identity plus a coarse clock,
// instead of a predictable counter (or the fixed zero the implementation
// this package descends from used). Guessing the ISS of a future connection
// between the same two endpoints requires recovering the key.
type issGenerator struct {
	key [32]byte
}

func newISSGenerator() (issGenerator, error) {
	var g issGenerator
	if _, err := rand.Read(g.key[:]); err != nil {
		return g, err
	}
	return g, nil
}

// next returns the ISS for a connection identified by quad, as observed at
// time now. The clock is hashed in at a coarse (4 microsecond) granularity
// matching RFC 6528's "roughly 4 microsecond" ISN clock, so the same quad
// gets a fresh ISS once the clock has moved on by 4 microseconds. Because
// the clock goes through the hash rather than being added to it, successive
// ISS values for the same peer are unrelated and do not increase
// monotonically.
func (g issGenerator) next(q Quad, now time.Time) Value {
	h, err := blake2b.New256(g.key[:])
	if err != nil {
		panic("tcp: blake2b keyed hash: " + err.Error())
	}
	writeAddrPort(h, q.Local)
	writeAddrPort(h, q.Remote)
	var tbuf [8]byte
	binary.BigEndian.PutUint64(tbuf[:], uint64(now.UnixMicro())>>2)
	h.Write(tbuf[:])
	sum := h.Sum(nil)
	return Value(binary.BigEndian.Uint32(sum[:4]))
}

func writeAddrPort(h interface{ Write([]byte) (int, error) }, ap netip.AddrPort) {
	addr := ap.Addr().As4()
	h.Write(addr[:])
	var pbuf [2]byte
	binary.BigEndian.PutUint16(pbuf[:], ap.Port())
	h.Write(pbuf[:])
}
