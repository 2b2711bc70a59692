package ip6

import (
	"bytes"
	"errors"
	"net/netip"
	"testing"
)

// TestUDPRoundTrip verifies a built datagram parses back with a valid checksum.
func TestUDPRoundTrip(t *testing.T) {
	src := netip.MustParseAddrPort("[fe80::1]:5000")
	dst := netip.MustParseAddrPort("[fe80::2]:1212")

	pkt, err := AppendUDP(nil, src, dst, []byte("ping"))
	if err != nil {
		t.Fatalf("AppendUDP: %v", err)
	}
	if len(pkt) != HeaderLen+UDPHeaderLen+4 {
		t.Fatalf("len = %d", len(pkt))
	}

	d, err := ParseUDP(pkt)
	if err != nil {
		t.Fatalf("ParseUDP: %v", err)
	}
	if d.Src != src || d.Dst != dst {
		t.Errorf("endpoints = %s -> %s", d.Src, d.Dst)
	}
	if !bytes.Equal(d.Payload, []byte("ping")) {
		t.Errorf("payload = %q", d.Payload)
	}
}

// TestUDPChecksumMismatch verifies corrupted payloads are rejected.
func TestUDPChecksumMismatch(t *testing.T) {
	src := netip.MustParseAddrPort("[fd00::1]:1")
	dst := netip.MustParseAddrPort("[fd00::2]:2")
	pkt, err := AppendUDP(nil, src, dst, []byte("hello"))
	if err != nil {
		t.Fatalf("AppendUDP: %v", err)
	}
	pkt[len(pkt)-1] ^= 0xff

	if _, err := ParseUDP(pkt); !errors.Is(err, ErrChecksum) {
		t.Fatalf("ParseUDP error = %v, want ErrChecksum", err)
	}
}

// TestAppendUDPTooLarge verifies the MTU bound.
func TestAppendUDPTooLarge(t *testing.T) {
	src := netip.MustParseAddrPort("[fd00::1]:1")
	dst := netip.MustParseAddrPort("[fd00::2]:2")
	_, err := AppendUDP(nil, src, dst, make([]byte, MinMTU))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("AppendUDP error = %v, want ErrTooLarge", err)
	}
}

// TestParseHeaderRejectsGarbage verifies non-IPv6 input fails.
func TestParseHeaderRejectsGarbage(t *testing.T) {
	if _, err := ParseHeader([]byte{0x45, 0, 0}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("ParseHeader error = %v, want ErrMalformed", err)
	}
	pkt := make([]byte, HeaderLen)
	pkt[0] = 0x40
	if _, err := ParseHeader(pkt); !errors.Is(err, ErrMalformed) {
		t.Fatalf("ParseHeader(v4) error = %v, want ErrMalformed", err)
	}
}

// TestAddressHelpers verifies IID derivation and the mesh-local prefix.
func TestAddressHelpers(t *testing.T) {
	ext := [8]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	ll := WithIID(LinkLocalPrefix, IIDFromExt(ext))
	if want := netip.MustParseAddr("fe80::1034:5678:9abc:def0"); ll != want {
		t.Errorf("link-local = %s, want %s", ll, want)
	}
	if ExtFromIID(IID(ll)) != ext {
		t.Error("ExtFromIID did not invert IIDFromExt")
	}

	ml := MeshLocalPrefix([8]byte{0x3a, 0x90, 0xe3, 0xa3, 0x19, 0xa9, 0x04, 0x94})
	if want := netip.MustParsePrefix("fd3a:90e3:a319:a904::/64"); ml != want {
		t.Errorf("mesh-local = %s, want %s", ml, want)
	}

	rloc := WithIID(ml, RLOCIID(0x0400))
	if r, ok := IsRLOC(IID(rloc)); !ok || r != 0x0400 {
		t.Errorf("IsRLOC(%s) = %04x, %v", rloc, r, ok)
	}
}
