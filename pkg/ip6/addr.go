package ip6

import "net/netip"

// LinkLocalPrefix is fe80::/64.
var LinkLocalPrefix = netip.MustParsePrefix("fe80::/64")

// AllNodes is the link-local all-nodes multicast address.
var AllNodes = netip.MustParseAddr("ff02::1")

// IIDFromExt returns the interface identifier for an extended MAC address
// (RFC 4944: the universal/local bit is inverted).
func IIDFromExt(ext [8]byte) [8]byte {
	ext[0] ^= 0x02
	return ext
}

// ExtFromIID reverses IIDFromExt.
func ExtFromIID(iid [8]byte) [8]byte {
	iid[0] ^= 0x02
	return iid
}

// WithIID combines the upper 64 bits of prefix with iid.
func WithIID(prefix netip.Prefix, iid [8]byte) netip.Addr {
	a := prefix.Addr().As16()
	copy(a[8:], iid[:])
	return netip.AddrFrom16(a)
}

// IID returns the lower 64 bits of a.
func IID(a netip.Addr) [8]byte {
	var iid [8]byte
	b := a.As16()
	copy(iid[:], b[8:])
	return iid
}

// RLOCIID returns the interface identifier of a routing locator
// (0000:00ff:fe00:rloc16).
func RLOCIID(rloc16 uint16) [8]byte {
	return [8]byte{0, 0, 0, 0xff, 0xfe, 0, byte(rloc16 >> 8), byte(rloc16)}
}

// IsRLOC reports whether iid is a routing locator IID and returns its RLOC16.
func IsRLOC(iid [8]byte) (uint16, bool) {
	if iid[0] != 0 || iid[1] != 0 || iid[2] != 0 || iid[3] != 0xff || iid[4] != 0xfe || iid[5] != 0 {
		return 0, false
	}
	return uint16(iid[6])<<8 | uint16(iid[7]), true
}

// MeshLocalPrefix derives the /64 mesh-local prefix from an extended PAN ID:
// fd followed by its first seven bytes.
func MeshLocalPrefix(extPanID [8]byte) netip.Prefix {
	var a [16]byte
	a[0] = 0xfd
	copy(a[1:8], extPanID[:7])
	return netip.PrefixFrom(netip.AddrFrom16(a), 64)
}
