// Package ip6 builds and parses the IPv6 and UDP packets exchanged between
// the mesh engine and the network-stack driver adapter.
//
// Header parsing is delegated to golang.org/x/net/ipv6. Only packets without
// extension headers are produced; received packets with extension headers are
// passed through untouched by callers that do not need the UDP payload.
package ip6
