// Package mesh is a software protocol engine for simulation and tests.
//
// A Node implements thread.Native on top of any radio.Radio. It is a
// deliberately small single-hop mesh, not a Thread implementation:
//
//   - Attach: a detached node multicasts a parent request and becomes leader
//     of a new partition when no leader answers in time. Leaders advertise
//     periodically; when two partitions meet, the one with the higher
//     partition ID wins and the other leader re-attaches as a child.
//   - Addressing: link-local and mesh-local EID addresses while Thread is
//     enabled, plus a routing locator once attached.
//   - Link: uncompressed IPv6 over 802.15.4 with RFC 4944 fragmentation.
//     Every data frame is protected with ChaCha20-Poly1305 under a key
//     derived from the network key.
//   - Services: an SRP client that registers with the registrar announced in
//     the leader data, and a registrar on the leader that stores
//     registrations and optionally advertises them over mDNS.
//
// Non-volatile state (extended address, frame counter, mesh-local IID, SRP
// key, active dataset, registrations) is kept in a persistence.SettingsStore
// when one is configured.
package mesh
