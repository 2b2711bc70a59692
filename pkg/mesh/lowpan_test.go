package mesh

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/threadkit/threadkit-go/pkg/mac"
)

func testPacket(n int) []byte {
	pkt := make([]byte, n)
	for i := range pkt {
		pkt[i] = byte(i * 7)
	}
	return pkt
}

func TestFragmentSmallPacket(t *testing.T) {
	pkt := testPacket(60)
	frags := fragment(pkt, 80, 1)
	if len(frags) != 1 {
		t.Fatalf("got %d fragments, want 1", len(frags))
	}
	if frags[0][0] != dispatchIPv6 || !bytes.Equal(frags[0][1:], pkt) {
		t.Errorf("unexpected payload % x", frags[0][:4])
	}
}

func TestFragmentReassemble(t *testing.T) {
	src := mac.ExtAddress([8]byte{1, 2, 3, 4, 5, 6, 7, 8})
	now := time.Now()

	tests := []struct {
		name    string
		size    int
		mtu     int
		reverse bool
	}{
		{"two fragments", 120, 80, false},
		{"many fragments", 1280, 81, false},
		{"out of order", 500, 64, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pkt := testPacket(tc.size)
			frags := fragment(pkt, tc.mtu, 42)
			if len(frags) < 2 {
				t.Fatalf("got %d fragments", len(frags))
			}
			for _, f := range frags {
				if len(f) > tc.mtu {
					t.Fatalf("fragment of %d bytes exceeds mtu %d", len(f), tc.mtu)
				}
			}
			if tc.reverse {
				for i, j := 0, len(frags)-1; i < j; i, j = i+1, j-1 {
					frags[i], frags[j] = frags[j], frags[i]
				}
			}

			r := newReassembler(time.Second)
			var got []byte
			for i, f := range frags {
				out, err := r.add(src, f, now)
				if err != nil {
					t.Fatalf("fragment %d: %v", i, err)
				}
				if out != nil {
					if i != len(frags)-1 {
						t.Fatalf("packet complete after fragment %d of %d", i, len(frags))
					}
					got = out
				}
			}
			if !bytes.Equal(got, pkt) {
				t.Error("reassembled packet differs")
			}
			if len(r.pending) != 0 {
				t.Errorf("%d reassemblies left", len(r.pending))
			}
		})
	}
}

func TestReassemblyKeepsSendersApart(t *testing.T) {
	a := mac.ExtAddress([8]byte{1})
	b := mac.ExtAddress([8]byte{2})
	now := time.Now()
	pa, pb := testPacket(200), bytes.Repeat([]byte{0xee}, 200)
	fa, fb := fragment(pa, 80, 7), fragment(pb, 80, 7)

	r := newReassembler(time.Second)
	var outA, outB []byte
	for i := range fa {
		out, err := r.add(a, fa[i], now)
		if err != nil {
			t.Fatal(err)
		}
		if out != nil {
			outA = out
		}
		out, err = r.add(b, fb[i], now)
		if err != nil {
			t.Fatal(err)
		}
		if out != nil {
			outB = out
		}
	}
	if !bytes.Equal(outA, pa) || !bytes.Equal(outB, pb) {
		t.Error("interleaved packets were mixed")
	}
}

func TestReassemblyTimeout(t *testing.T) {
	src := mac.ExtAddress([8]byte{1})
	now := time.Now()
	frags := fragment(testPacket(300), 80, 3)

	r := newReassembler(2 * time.Second)
	if _, err := r.add(src, frags[0], now); err != nil {
		t.Fatal(err)
	}
	next, dropped := r.expire(now.Add(time.Second))
	if dropped != 0 || !next.Equal(now.Add(2*time.Second)) {
		t.Fatalf("expire early: next %v dropped %d", next, dropped)
	}
	next, dropped = r.expire(now.Add(2 * time.Second))
	if dropped != 1 || !next.IsZero() {
		t.Fatalf("expire: next %v dropped %d", next, dropped)
	}

	// The rest of the packet alone never completes it.
	for _, f := range frags[1:] {
		out, err := r.add(src, f, now.Add(3*time.Second))
		if err != nil {
			t.Fatal(err)
		}
		if out != nil {
			t.Fatal("packet completed without its first fragment")
		}
	}
}

func TestReassemblyTableFull(t *testing.T) {
	r := newReassembler(time.Second)
	now := time.Now()
	for i := range maxReassemblies {
		frags := fragment(testPacket(200), 80, uint16(i))
		if _, err := r.add(mac.ExtAddress([8]byte{1}), frags[0], now); err != nil {
			t.Fatal(err)
		}
	}
	frags := fragment(testPacket(200), 80, 99)
	if _, err := r.add(mac.ExtAddress([8]byte{1}), frags[0], now); !errors.Is(err, errReassembly) {
		t.Errorf("got %v, want errReassembly", err)
	}
	r.reset()
	if _, err := r.add(mac.ExtAddress([8]byte{1}), frags[0], now); err != nil {
		t.Errorf("after reset: %v", err)
	}
}

func TestReassemblyRejectsMalformed(t *testing.T) {
	src := mac.ExtAddress([8]byte{1})
	tests := []struct {
		name    string
		payload []byte
		want    error
	}{
		{"empty", nil, errDispatch},
		{"unknown dispatch", []byte{0x7f, 0}, errDispatch},
		{"short first fragment", []byte{dispatchFrag1, 100, 0}, errFragment},
		{"first fragment without ipv6 dispatch", []byte{dispatchFrag1, 100, 0, 1, 0x00}, errFragment},
		{"short subsequent fragment", []byte{dispatchFragN, 100, 0, 1}, errFragment},
		{"beyond size", append([]byte{dispatchFragN, 16, 0, 1, 1}, make([]byte, 16)...), errFragment},
		{"oversized", append([]byte{dispatchFrag1 | 0x07, 0xff, 0, 1, dispatchIPv6}, make([]byte, 8)...), errFragment},
		{"unaligned", append([]byte{dispatchFrag1, 100, 0, 1, dispatchIPv6}, make([]byte, 5)...), errFragment},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newReassembler(time.Second)
			if _, err := r.add(src, tc.payload, time.Now()); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}
