package frame

import "encoding/binary"

// CRC791 computes the checksum defined by RFC 791 and reused by RFC 793:
// the 16 bit ones'-complement of the ones'-complement sum of all 16 bit
// words fed to it. An odd trailing byte is treated as LSB-padded with a
// zero, matching the standard's "last word" rule.
//
// The zero value is ready to use.
type CRC791 struct {
	sum     uint32
	carry   byte
	pending bool
}

func checksum16(sum uint32) uint16 {
	sum = (sum & 0xffff) + sum>>16
	// sum is at most 0x1ffff here, so one more fold is always enough.
	return ^uint16(sum + sum>>16)
}

// Write adds the bytes in p to the running checksum. Unlike a fixed
// even-length-only writer, Write carries a dangling odd byte across calls
// so pseudo-header, header and payload can be folded in with separate
// calls regardless of each call's length.
func (c *CRC791) Write(p []byte) (int, error) {
	n := len(p)
	if c.pending && n > 0 {
		c.sum += uint32(binary.BigEndian.Uint16([]byte{c.carry, p[0]}))
		p = p[1:]
		c.pending = false
	}
	for len(p) >= 2 {
		c.sum += uint32(binary.BigEndian.Uint16(p))
		p = p[2:]
	}
	if len(p) == 1 {
		c.carry = p[0]
		c.pending = true
	}
	return n, nil
}

// AddUint32 folds a 32 bit value into the running checksum as two 16 bit
// big-endian (network order) words.
func (c *CRC791) AddUint32(v uint32) {
	c.AddUint16(uint16(v >> 16))
	c.AddUint16(uint16(v))
}

// AddUint16 folds a 16 bit value into the running checksum, network order.
func (c *CRC791) AddUint16(v uint16) { c.sum += uint32(v) }

// Sum16 returns the checksum of everything written to c so far.
func (c *CRC791) Sum16() uint16 {
	sum := c.sum
	if c.pending {
		sum += uint32(c.carry) << 8
	}
	return checksum16(sum)
}

// Reset zeros out the CRC791, restoring it to the initial state.
func (c *CRC791) Reset() { *c = CRC791{} }

// NeverZeroChecksum returns 0xffff in place of 0x0000: a real checksum of
// zero and "checksum disabled" are the same value in ones'-complement math,
// so TCP/UDP checksums must never be transmitted as the literal zero.
func NeverZeroChecksum(sum16 uint16) uint16 {
	if sum16 == 0 {
		return 0xffff
	}
	return sum16
}
