package dataset

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func exampleDataset() *Dataset {
	return &Dataset{
		ActiveTimestamp: &Timestamp{Seconds: 1, Ticks: 0, Authoritative: false},
		NetworkKey: &NetworkKey{
			0xfe, 0x04, 0x58, 0xf7, 0xdb, 0x96, 0x35, 0x4e,
			0xaa, 0x60, 0x41, 0xb8, 0x80, 0xea, 0x9c, 0x0f,
		},
		NetworkName:   Ptr("OpenThread-58d1"),
		ExtendedPanID: &ExtendedPanID{0x3a, 0x90, 0xe3, 0xa3, 0x19, 0xa9, 0x04, 0x94},
		PanID:         Ptr(uint16(0x58d1)),
		Channel:       Ptr(uint8(11)),
		ChannelMask:   Ptr(uint32(0x07fff800)),
	}
}

// TestMarshalTLVExample verifies the exact wire encoding of a known dataset.
func TestMarshalTLVExample(t *testing.T) {
	want := "000300000b" +
		"010258d1" +
		"02083a90e3a319a90494" +
		"030f4f70656e5468726561642d35386431" +
		"0510fe0458f7db96354eaa6041b880ea9c0f" +
		"0e080000000000010000" +
		"35060004001fffe0"

	got, err := exampleDataset().MarshalHex()
	if err != nil {
		t.Fatalf("MarshalHex: %v", err)
	}
	if got != want {
		t.Errorf("encoding mismatch\n got  %s\n want %s", got, want)
	}
}

// TestTLVRoundTrip verifies that every field survives encode and decode.
func TestTLVRoundTrip(t *testing.T) {
	in := exampleDataset()
	in.ActiveTimestamp = &Timestamp{Seconds: 0xabcdef0123, Ticks: 0x7fff, Authoritative: true}

	b, err := in.MarshalTLV()
	if err != nil {
		t.Fatalf("MarshalTLV: %v", err)
	}
	out, err := UnmarshalTLV(b)
	if err != nil {
		t.Fatalf("UnmarshalTLV: %v", err)
	}

	if *out.ActiveTimestamp != *in.ActiveTimestamp {
		t.Errorf("timestamp: got %+v, want %+v", *out.ActiveTimestamp, *in.ActiveTimestamp)
	}
	if *out.NetworkKey != *in.NetworkKey {
		t.Error("network key mismatch")
	}
	if *out.NetworkName != *in.NetworkName {
		t.Errorf("network name: got %q", *out.NetworkName)
	}
	if *out.ExtendedPanID != *in.ExtendedPanID {
		t.Errorf("ext pan id: got %s", out.ExtendedPanID)
	}
	if *out.PanID != *in.PanID || *out.Channel != *in.Channel || *out.ChannelMask != *in.ChannelMask {
		t.Errorf("pan/channel/mask: got %04x/%d/%08x", *out.PanID, *out.Channel, *out.ChannelMask)
	}

	again, err := out.MarshalTLV()
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if !bytes.Equal(again, b) {
		t.Error("re-encoding is not bit-exact")
	}
}

// TestUnmarshalSkipsUnknownTLV verifies forward compatibility.
func TestUnmarshalSkipsUnknownTLV(t *testing.T) {
	// Type 7 (mesh-local prefix) is not modelled and must be skipped.
	raw, _ := hex.DecodeString("010258d1" + "0703fdde00" + "000300000f")
	d, err := UnmarshalTLV(raw)
	if err != nil {
		t.Fatalf("UnmarshalTLV: %v", err)
	}
	if d.PanID == nil || *d.PanID != 0x58d1 {
		t.Errorf("pan id not decoded")
	}
	if d.Channel == nil || *d.Channel != 15 {
		t.Errorf("channel not decoded")
	}
}

// TestUnmarshalTruncated verifies malformed streams are rejected.
func TestUnmarshalTruncated(t *testing.T) {
	for _, in := range []string{"01", "0102ff", "0510fe04"} {
		raw, _ := hex.DecodeString(in)
		if _, err := UnmarshalTLV(raw); !errors.Is(err, ErrMalformedTLV) {
			t.Errorf("%s: got %v, want ErrMalformedTLV", in, err)
		}
	}
}

// TestResolved verifies required-field detection.
func TestResolved(t *testing.T) {
	d := exampleDataset()
	if err := d.Resolved(); err != nil {
		t.Fatalf("complete dataset: %v", err)
	}

	partial := &Dataset{NetworkName: Ptr("x")}
	err := partial.Resolved()
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("partial dataset: got %v, want ErrIncomplete", err)
	}
}

// TestValidate verifies range checks.
func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		d    Dataset
	}{
		{"channel too low", Dataset{Channel: Ptr(uint8(10))}},
		{"channel not in mask", Dataset{Channel: Ptr(uint8(11)), ChannelMask: Ptr(uint32(1 << 12))}},
		{"name too long", Dataset{NetworkName: Ptr("0123456789abcdefg")}},
		{"empty name", Dataset{NetworkName: Ptr("")}},
		{"broadcast pan", Dataset{PanID: Ptr(uint16(0xffff))}},
		{"ticks overflow", Dataset{ActiveTimestamp: &Timestamp{Ticks: 0x8000}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.d.Validate(); !errors.Is(err, ErrInvalidDataset) {
				t.Errorf("got %v, want ErrInvalidDataset", err)
			}
		})
	}
}

// TestConfigDataset verifies the hex configuration form.
func TestConfigDataset(t *testing.T) {
	cfg := Config{
		NetworkKey:    "fe0458f7db96354eaa6041b880ea9c0f",
		NetworkName:   "OpenThread-58d1",
		ExtendedPanID: "3a90e3a319a90494",
		PanID:         Ptr(uint16(0x58d1)),
		Channel:       Ptr(uint8(11)),
	}
	d, err := cfg.Dataset()
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	if *d.NetworkKey != *exampleDataset().NetworkKey {
		t.Error("network key mismatch")
	}

	cfg.NetworkKey = "abcd"
	if _, err := cfg.Dataset(); !errors.Is(err, ErrInvalidDataset) {
		t.Errorf("short key: got %v", err)
	}
}

// TestConfigOverridesTLVs verifies explicit fields win over the TLV base.
func TestConfigOverridesTLVs(t *testing.T) {
	hexDS, _ := exampleDataset().MarshalHex()
	cfg := Config{TLVs: hexDS, Channel: Ptr(uint8(15))}

	d, err := cfg.Dataset()
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	if *d.Channel != 15 {
		t.Errorf("channel = %d, want 15", *d.Channel)
	}
	if *d.NetworkName != "OpenThread-58d1" {
		t.Errorf("network name = %q", *d.NetworkName)
	}
}

// TestStringHidesKey verifies the key is never printed.
func TestStringHidesKey(t *testing.T) {
	s := exampleDataset().String()
	if bytes.Contains([]byte(s), []byte("fe0458")) {
		t.Errorf("String leaks key: %s", s)
	}
}
