// Package persistence keeps the non-volatile settings of a mesh node.
//
// The software engine stores its identity (extended address, mesh-local
// interface identifier, SRP key), the MAC frame counter, the last active
// dataset and, on a registrar, the accepted SRP registrations. Settings are
// written as one JSON file so that a restarted node keeps its addresses and
// does not reuse frame counters.
package persistence
