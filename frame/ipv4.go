package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

const ipv4HeaderSize = 20

// Protocol identifies the payload protocol carried by an IPv4 datagram, per
// the IANA protocol numbers registry. Only the one value this module cares
// about is named.
type Protocol uint8

// ProtocolTCP is the IPv4 protocol number for TCP.
const ProtocolTCP Protocol = 6

var (
	errShortIPv4Header = errors.New("frame: short ipv4 buffer")
	errBadTotalLength  = errors.New("frame: bad ipv4 total length")
	errBadIHL          = errors.New("frame: bad ipv4 ihl")
	errBadVersion      = errors.New("frame: bad ipv4 version")
)

// IPv4 encapsulates the raw bytes of an IPv4 datagram and provides
// accessor/mutator methods for its fields, reading and writing directly
// into the backing buffer. See RFC 791.
type IPv4 struct {
	buf []byte
}

// NewIPv4 wraps buf as an IPv4 datagram. An error is returned if buf is
// shorter than the fixed IPv4 header. Call ValidateSize before trusting
// Payload to avoid a panic on a malformed datagram.
func NewIPv4(buf []byte) (IPv4, error) {
	if len(buf) < ipv4HeaderSize {
		return IPv4{}, errShortIPv4Header
	}
	return IPv4{buf: buf}, nil
}

// RawData returns the underlying slice the frame was built from.
func (f IPv4) RawData() []byte { return f.buf }

func (f IPv4) ihl() uint8     { return f.buf[0] & 0xf }
func (f IPv4) version() uint8 { return f.buf[0] >> 4 }

// HeaderLength returns the IPv4 header length in bytes, options included.
func (f IPv4) HeaderLength() int { return int(f.ihl()) * 4 }

// SetVersionAndIHL sets the version (always 4 here) and header length in
// 32-bit words.
func (f IPv4) SetVersionAndIHL(version, ihl uint8) { f.buf[0] = version<<4 | ihl&0xf }

// TotalLength is the entire datagram size in bytes, header and payload.
func (f IPv4) TotalLength() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }

// SetTotalLength sets TotalLength. See [IPv4.TotalLength].
func (f IPv4) SetTotalLength(v uint16) { binary.BigEndian.PutUint16(f.buf[2:4], v) }

// ID is the identification field used to group datagram fragments.
func (f IPv4) ID() uint16 { return binary.BigEndian.Uint16(f.buf[4:6]) }

// SetID sets ID. See [IPv4.ID].
func (f IPv4) SetID(v uint16) { binary.BigEndian.PutUint16(f.buf[4:6], v) }

// TTL is the time-to-live hop counter.
func (f IPv4) TTL() uint8 { return f.buf[8] }

// SetTTL sets TTL. See [IPv4.TTL].
func (f IPv4) SetTTL(v uint8) { f.buf[8] = v }

// Protocol identifies the next-header protocol. See [Protocol].
func (f IPv4) Protocol() Protocol { return Protocol(f.buf[9]) }

// SetProtocol sets Protocol. See [IPv4.Protocol].
func (f IPv4) SetProtocol(p Protocol) { f.buf[9] = uint8(p) }

// CRC returns the header checksum field.
func (f IPv4) CRC() uint16 { return binary.BigEndian.Uint16(f.buf[10:12]) }

// SetCRC sets the header checksum field. See [IPv4.CRC].
func (f IPv4) SetCRC(v uint16) { binary.BigEndian.PutUint16(f.buf[10:12], v) }

// SourceAddr returns a pointer to the 4-byte source address in the header.
func (f IPv4) SourceAddr() *[4]byte { return (*[4]byte)(f.buf[12:16]) }

// DestinationAddr returns a pointer to the 4-byte destination address.
func (f IPv4) DestinationAddr() *[4]byte { return (*[4]byte)(f.buf[16:20]) }

// Payload returns the datagram's payload, which may be empty. Call
// ValidateSize first to avoid an out-of-range panic on a malformed buffer.
func (f IPv4) Payload() []byte {
	off := f.HeaderLength()
	l := int(f.TotalLength())
	return f.buf[off:l]
}

// ClearHeader zeros out the fixed (non-option) header bytes.
func (f IPv4) ClearHeader() {
	for i := range f.buf[:ipv4HeaderSize] {
		f.buf[i] = 0
	}
}

// CalculateHeaderCRC computes the IPv4 header checksum over the header with
// the checksum field itself excluded.
func (f IPv4) CalculateHeaderCRC() uint16 {
	var crc CRC791
	crc.Write(f.buf[0:10])
	crc.Write(f.buf[12:20])
	return crc.Sum16()
}

// ValidateSize checks the datagram's length fields against the backing
// buffer and against the minimum valid IPv4 header.
func (f IPv4) ValidateSize() error {
	switch {
	case f.version() != 4:
		return errBadVersion
	case f.ihl() < 5:
		return errBadIHL
	case int(f.TotalLength()) < ipv4HeaderSize, int(f.TotalLength()) > len(f.buf):
		return errBadTotalLength
	case f.HeaderLength() > int(f.TotalLength()):
		return errBadIHL
	}
	return nil
}

func (f IPv4) String() string {
	dst := netip.AddrFrom4(*f.DestinationAddr())
	src := netip.AddrFrom4(*f.SourceAddr())
	return fmt.Sprintf("IP src=%s dst=%s len=%d ttl=%d proto=%d", src, dst, f.TotalLength(), f.TTL(), f.Protocol())
}
