package mesh

import (
	"bytes"
	"testing"
)

func TestFrameCipher(t *testing.T) {
	ds := testDataset()
	c, err := newFrameCipher(*ds.NetworkKey, *ds.ExtendedPanID)
	if err != nil {
		t.Fatal(err)
	}
	src := [8]byte{0x02, 0, 0, 0, 0, 0, 0, 1}
	hdr := []byte{0x69, 0xdc, 0x01, 0x34, 0x12}
	payload := []byte("hello mesh")

	frame := c.seal(hdr, payload, src, 7)
	if !bytes.Equal(frame[:len(hdr)], hdr) {
		t.Fatal("header not kept in the clear")
	}
	if len(frame) != len(hdr)+len(payload)+c.overhead() {
		t.Fatalf("frame length %d", len(frame))
	}
	if bytes.Contains(frame, payload) {
		t.Fatal("payload not encrypted")
	}

	got, err := c.open(hdr, frame[len(hdr):], src, 7)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q", got)
	}

	t.Run("wrong counter", func(t *testing.T) {
		if _, err := c.open(hdr, frame[len(hdr):], src, 8); err == nil {
			t.Error("opened with the wrong counter")
		}
	})
	t.Run("wrong source", func(t *testing.T) {
		other := src
		other[7] = 2
		if _, err := c.open(hdr, frame[len(hdr):], other, 7); err == nil {
			t.Error("opened with the wrong source")
		}
	})
	t.Run("tampered header", func(t *testing.T) {
		h := bytes.Clone(hdr)
		h[3] ^= 1
		if _, err := c.open(h, frame[len(hdr):], src, 7); err == nil {
			t.Error("opened under a modified header")
		}
	})
	t.Run("other network", func(t *testing.T) {
		xpan := *ds.ExtendedPanID
		xpan[0] ^= 1
		other, err := newFrameCipher(*ds.NetworkKey, xpan)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := other.open(hdr, frame[len(hdr):], src, 7); err == nil {
			t.Error("opened with a key derived for another network")
		}
	})
}

func TestFrameNonceLayout(t *testing.T) {
	n := frameNonce([8]byte{1, 2, 3, 4, 5, 6, 7, 8}, 0x0a0b0c0d)
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 0x0a, 0x0b, 0x0c, 0x0d}
	if !bytes.Equal(n, want) {
		t.Errorf("nonce % x, want % x", n, want)
	}
}
