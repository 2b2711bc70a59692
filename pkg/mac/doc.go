// Package mac encodes and decodes IEEE 802.15.4-2006 MAC frame headers.
//
// Only the subset used by the software mesh engine and the simulated radio
// medium is supported: data, ack and command frames, short and extended
// addressing, PAN ID compression, and an auxiliary security header carrying
// a 32-bit frame counter and a key index.
//
// Extended addresses are carried in the order they are printed (most
// significant byte first). On the air they are little-endian, as are all
// multi-byte header fields.
package mac
