package crc16

import "testing"

func TestChecksumOfZeroByte(t *testing.T) {
	if got := Checksum([]byte{0x00}); got != 0x0000 {
		t.Fatalf("Checksum(0x00) = %#04x, want 0x0000", got)
	}
}

func TestChecksumOfKnownVector(t *testing.T) {
	data := []byte{
		0xFE, 0x29, 0x15, 0x7C, 0xA7, 0xAE, 0x7C, 0x42,
		0x21, 0xA5, 0xA6, 0xDA, 0x6B, 0x32, 0x12, 0x94,
	}
	if got := Checksum(data); got != 0x17FB {
		t.Fatalf("Checksum(data) = %#04x, want 0x17FB", got)
	}
}
