// Package wire defines the CBOR wire format of the software mesh engine.
//
// Messages use CBOR (RFC 8949) with integer keys for compactness, encoded
// deterministically so the same message always produces the same bytes.
// The same codec packs SRP service records into fixed-size arena slots.
//
// # Message Families
//
//   - MLE: link control carried over UDP port 19788 (advertisements,
//     parent requests, child ID responses).
//   - SRP: service registration updates and responses carried over UDP
//     to the registrar.
//
// # Forward Compatibility
//
// Unknown keys are ignored on decode. New fields must use new keys.
package wire
