package frame

import (
	"encoding/binary"
	"errors"
)

const tcpHeaderSize = 20

var (
	errShortTCPHeader = errors.New("frame: short tcp buffer")
	errBadTCPOffset   = errors.New("frame: bad tcp data offset")
)

// TCP encapsulates the raw bytes of a TCP segment and provides
// accessor/mutator methods for its fields, reading and writing directly
// into the backing buffer. See RFC 9293. Flags are returned as the raw 9
// bit field rather than a typed flags value, so this package has no
// dependency on the tcp package's state-machine types.
type TCP struct {
	buf []byte
}

// NewTCP wraps buf as a TCP segment. An error is returned if buf is shorter
// than the fixed TCP header.
func NewTCP(buf []byte) (TCP, error) {
	if len(buf) < tcpHeaderSize {
		return TCP{}, errShortTCPHeader
	}
	return TCP{buf: buf}, nil
}

// RawData returns the underlying slice the frame was built from.
func (f TCP) RawData() []byte { return f.buf }

// SourcePort identifies the sending port.
func (f TCP) SourcePort() uint16 { return binary.BigEndian.Uint16(f.buf[0:2]) }

// SetSourcePort sets SourcePort. See [TCP.SourcePort].
func (f TCP) SetSourcePort(v uint16) { binary.BigEndian.PutUint16(f.buf[0:2], v) }

// DestinationPort identifies the receiving port.
func (f TCP) DestinationPort() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }

// SetDestinationPort sets DestinationPort. See [TCP.DestinationPort].
func (f TCP) SetDestinationPort(v uint16) { binary.BigEndian.PutUint16(f.buf[2:4], v) }

// Seq returns the segment's sequence number.
func (f TCP) Seq() uint32 { return binary.BigEndian.Uint32(f.buf[4:8]) }

// SetSeq sets Seq. See [TCP.Seq].
func (f TCP) SetSeq(v uint32) { binary.BigEndian.PutUint32(f.buf[4:8], v) }

// Ack returns the segment's acknowledgment number.
func (f TCP) Ack() uint32 { return binary.BigEndian.Uint32(f.buf[8:12]) }

// SetAck sets Ack. See [TCP.Ack].
func (f TCP) SetAck(v uint32) { binary.BigEndian.PutUint32(f.buf[8:12], v) }

// OffsetAndFlags returns the data offset in 32-bit words and the low 9 bits
// holding the TCP flags.
func (f TCP) OffsetAndFlags() (offset uint8, flags uint16) {
	v := binary.BigEndian.Uint16(f.buf[12:14])
	return uint8(v >> 12), v & 0x01ff
}

// SetOffsetAndFlags sets offset and flags. See [TCP.OffsetAndFlags].
func (f TCP) SetOffsetAndFlags(offset uint8, flags uint16) {
	v := uint16(offset)<<12 | flags&0x01ff
	binary.BigEndian.PutUint16(f.buf[12:14], v)
}

// HeaderLength returns the TCP header length in bytes, options included.
func (f TCP) HeaderLength() int {
	offset, _ := f.OffsetAndFlags()
	return int(offset) * 4
}

// WindowSize is the advertised receive window.
func (f TCP) WindowSize() uint16 { return binary.BigEndian.Uint16(f.buf[14:16]) }

// SetWindowSize sets WindowSize. See [TCP.WindowSize].
func (f TCP) SetWindowSize(v uint16) { binary.BigEndian.PutUint16(f.buf[14:16], v) }

// CRC returns the checksum field.
func (f TCP) CRC() uint16 { return binary.BigEndian.Uint16(f.buf[16:18]) }

// SetCRC sets CRC. See [TCP.CRC].
func (f TCP) SetCRC(v uint16) { binary.BigEndian.PutUint16(f.buf[16:18], v) }

// Payload returns the segment's data, following the header and any options.
// Call ValidateSize first to avoid a panic on a malformed segment.
func (f TCP) Payload() []byte { return f.buf[f.HeaderLength():] }

// ClearHeader zeros out the fixed (non-option) header bytes.
func (f TCP) ClearHeader() {
	for i := range f.buf[:tcpHeaderSize] {
		f.buf[i] = 0
	}
}

// ValidateSize checks the header's offset field against the backing buffer.
func (f TCP) ValidateSize() error {
	off := f.HeaderLength()
	if off < tcpHeaderSize || off > len(f.buf) {
		return errBadTCPOffset
	}
	return nil
}

// BuildTCP writes a minimal, option-free TCP header followed by payload into
// buf, which must have room for tcpHeaderSize+len(payload) bytes.
func BuildTCP(buf []byte, srcPort, dstPort uint16, seq, ack uint32, flags uint16, window uint16, payload []byte) (TCP, error) {
	total := tcpHeaderSize + len(payload)
	if len(buf) < total {
		return TCP{}, errShortTCPHeader
	}
	f := TCP{buf: buf[:total]}
	f.ClearHeader()
	f.SetSourcePort(srcPort)
	f.SetDestinationPort(dstPort)
	f.SetSeq(seq)
	f.SetAck(ack)
	f.SetOffsetAndFlags(tcpHeaderSize/4, flags)
	f.SetWindowSize(window)
	copy(f.buf[tcpHeaderSize:], payload)
	return f, nil
}

// ChecksumTCP computes the TCP checksum (RFC 793 S3.1) over the IPv4
// pseudo-header formed from src/dst plus the full TCP segment (header and
// payload), never returning the reserved all-zero value.
func ChecksumTCP(src, dst [4]byte, segment []byte) uint16 {
	var crc CRC791
	crc.Write(src[:])
	crc.Write(dst[:])
	crc.AddUint16(uint16(ProtocolTCP))
	crc.AddUint16(uint16(len(segment)))
	crc.Write(segment)
	return NeverZeroChecksum(crc.Sum16())
}
