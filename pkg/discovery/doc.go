// Package discovery publishes SRP registrations on mDNS/DNS-SD.
//
// A registrar acts as an advertising proxy: every service a mesh host
// registers through SRP is re-announced on the adjacent link with
// zeroconf, under its own instance name and service type, with the TXT
// attributes the host supplied.
//
// # Advertising
//
// Proxy keeps the advertised set in step with the registrar's table. Publish
// replaces the set of one host; services that disappeared are withdrawn,
// changed TXT records are updated in place and new services are registered.
// Host-only registrations (a host with no services) are not published.
//
// # Browsing
//
// MDNSBrowser finds advertised services of one type on the link, merging
// the addresses seen on several interfaces into one entry.
package discovery
