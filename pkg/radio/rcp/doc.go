// Package rcp drives a radio co-processor over a serial line.
//
// The host and the co-processor exchange CBOR messages, each carried in a
// length-prefixed frame:
//
//	+--------+--------+------------------+
//	| len hi | len lo | CBOR message ... |
//	+--------+--------+------------------+
//
// The host sends configuration, transmit and capability requests, each with a
// sequence number; the co-processor answers with the same sequence number and
// pushes received frames unsolicited. A response that arrives after its
// request timed out is discarded by sequence number.
//
// Open connects to a serial device. New wraps any byte stream, and Serve runs
// the co-processor side of the protocol on top of a radio.Radio, which lets a
// simulated or remote radio stand in for hardware.
package rcp
