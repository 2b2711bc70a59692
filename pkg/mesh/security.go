package mesh

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/threadkit/threadkit-go/pkg/dataset"
)

// macKeyInfo is the HKDF info label of the frame protection key.
const macKeyInfo = "threadkit mac frame key"

// frameCipher protects MAC frame payloads. The MAC header, including the
// auxiliary security header, is authenticated but not encrypted.
type frameCipher struct {
	aead cipher.AEAD
}

// newFrameCipher derives the frame key from the network key, salted with
// the extended PAN ID.
func newFrameCipher(key dataset.NetworkKey, xpan dataset.ExtendedPanID) (*frameCipher, error) {
	kdf := hkdf.New(sha256.New, key[:], xpan[:], []byte(macKeyInfo))
	k := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, k); err != nil {
		return nil, fmt.Errorf("derive frame key: %w", err)
	}
	aead, err := chacha20poly1305.New(k)
	if err != nil {
		return nil, fmt.Errorf("frame cipher: %w", err)
	}
	return &frameCipher{aead: aead}, nil
}

// overhead is the number of bytes sealing adds to a payload.
func (c *frameCipher) overhead() int {
	return c.aead.Overhead()
}

// nonce is the sender's extended address followed by the frame counter.
func frameNonce(src [8]byte, counter uint32) []byte {
	n := make([]byte, chacha20poly1305.NonceSize)
	copy(n, src[:])
	binary.BigEndian.PutUint32(n[8:], counter)
	return n
}

// seal returns hdr followed by the protected payload.
func (c *frameCipher) seal(hdr, payload []byte, src [8]byte, counter uint32) []byte {
	out := make([]byte, len(hdr), len(hdr)+len(payload)+c.overhead())
	copy(out, hdr)
	return c.aead.Seal(out, frameNonce(src, counter), payload, hdr)
}

// open authenticates and decrypts a payload protected under hdr.
func (c *frameCipher) open(hdr, payload []byte, src [8]byte, counter uint32) ([]byte, error) {
	return c.aead.Open(nil, frameNonce(src, counter), payload, hdr)
}
