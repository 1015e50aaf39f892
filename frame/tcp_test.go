package frame

import (
	"bytes"
	"testing"
)

func TestBuildTCPAndChecksum(t *testing.T) {
	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}
	payload := []byte("hello, TCP")

	buf := make([]byte, tcpHeaderSize+len(payload))
	tf, err := BuildTCP(buf, 1234, 80, 1000, 2000, 0x18 /* PSH|ACK */, 4096, payload)
	if err != nil {
		t.Fatal(err)
	}
	if tf.SourcePort() != 1234 || tf.DestinationPort() != 80 {
		t.Fatalf("ports = %d,%d want 1234,80", tf.SourcePort(), tf.DestinationPort())
	}
	if tf.Seq() != 1000 || tf.Ack() != 2000 {
		t.Fatalf("seq,ack = %d,%d want 1000,2000", tf.Seq(), tf.Ack())
	}
	if tf.WindowSize() != 4096 {
		t.Fatalf("window = %d want 4096", tf.WindowSize())
	}
	if !bytes.Equal(tf.Payload(), payload) {
		t.Fatalf("Payload()=%q want %q", tf.Payload(), payload)
	}
	if err := tf.ValidateSize(); err != nil {
		t.Fatalf("ValidateSize: %v", err)
	}

	crc := ChecksumTCP(src, dst, tf.RawData())
	if crc == 0 {
		t.Fatal("ChecksumTCP must never return the literal zero value")
	}
	tf.SetCRC(crc)

	// Recomputing the checksum over the segment with the checksum field
	// now populated must fold to zero (the standard ones'-complement
	// self-verification property), unless the true sum happened to be
	// zero and got remapped to 0xffff by NeverZeroChecksum.
	var c CRC791
	c.Write(src[:])
	c.Write(dst[:])
	c.AddUint16(uint16(ProtocolTCP))
	c.AddUint16(uint16(len(tf.RawData())))
	c.Write(tf.RawData())
	if got := c.Sum16(); got != 0 && crc != 0xffff {
		t.Fatalf("checksum self-verification failed: got %#04x", got)
	}
}

func TestBuildTCPShortBuffer(t *testing.T) {
	buf := make([]byte, tcpHeaderSize-1)
	if _, err := BuildTCP(buf, 1, 2, 0, 0, 0, 0, nil); err == nil {
		t.Fatal("BuildTCP should reject a buffer shorter than the fixed header")
	}
}

func TestTCPOffsetAndFlagsRoundTrip(t *testing.T) {
	buf := make([]byte, tcpHeaderSize)
	f, err := NewTCP(buf)
	if err != nil {
		t.Fatal(err)
	}
	f.SetOffsetAndFlags(8, 0x012)
	off, flags := f.OffsetAndFlags()
	if off != 8 {
		t.Fatalf("offset=%d want 8", off)
	}
	if flags != 0x012 {
		t.Fatalf("flags=%#03x want 0x012", flags)
	}
	if f.HeaderLength() != 32 {
		t.Fatalf("HeaderLength()=%d want 32 (8 words)", f.HeaderLength())
	}
}

func TestTCPValidateSize(t *testing.T) {
	buf := make([]byte, tcpHeaderSize)
	f, err := NewTCP(buf)
	if err != nil {
		t.Fatal(err)
	}
	f.SetOffsetAndFlags(5, 0)
	if err := f.ValidateSize(); err != nil {
		t.Fatalf("minimal header rejected: %v", err)
	}
	f.SetOffsetAndFlags(15, 0) // 60 byte header, beyond the 20 byte buffer
	if err := f.ValidateSize(); err == nil {
		t.Fatal("offset beyond the backing buffer should be rejected")
	}
}
