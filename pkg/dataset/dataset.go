package dataset

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Sizes of fixed-length dataset fields.
const (
	NetworkKeySize    = 16
	ExtendedPanIDSize = 8
	MaxNetworkNameLen = 16

	// MinChannel and MaxChannel bound the 2.4 GHz O-QPSK channel page 0.
	MinChannel = 11
	MaxChannel = 26

	// MaxTimestampSeconds and MaxTimestampTicks are the widths of the
	// timestamp fields on the wire (48 and 15 bits).
	MaxTimestampSeconds = 1<<48 - 1
	MaxTimestampTicks   = 1<<15 - 1
)

// Dataset errors.
var (
	// ErrInvalidDataset indicates a field value is out of range.
	ErrInvalidDataset = errors.New("invalid dataset")

	// ErrIncomplete indicates a required field is missing.
	ErrIncomplete = errors.New("dataset incomplete")
)

// Timestamp is the active timestamp of a dataset.
type Timestamp struct {
	Seconds       uint64 `yaml:"seconds" json:"seconds"`
	Ticks         uint16 `yaml:"ticks" json:"ticks"`
	Authoritative bool   `yaml:"authoritative" json:"authoritative"`
}

// Compare orders timestamps by seconds, then ticks.
func (t Timestamp) Compare(o Timestamp) int {
	switch {
	case t.Seconds < o.Seconds:
		return -1
	case t.Seconds > o.Seconds:
		return 1
	case t.Ticks < o.Ticks:
		return -1
	case t.Ticks > o.Ticks:
		return 1
	}
	return 0
}

// NetworkKey is the 128-bit network master key.
type NetworkKey [NetworkKeySize]byte

// String hides the key material.
func (k NetworkKey) String() string {
	return "NetworkKey(****)"
}

// ExtendedPanID is the 64-bit extended PAN identifier.
type ExtendedPanID [ExtendedPanIDSize]byte

// String returns the hex form.
func (e ExtendedPanID) String() string {
	return hex.EncodeToString(e[:])
}

// Dataset is a partially specified Operational Dataset.
// Nil fields are absent.
type Dataset struct {
	ActiveTimestamp *Timestamp
	NetworkKey      *NetworkKey
	NetworkName     *string
	ExtendedPanID   *ExtendedPanID
	PanID           *uint16
	Channel         *uint8
	ChannelMask     *uint32
}

// Validate checks the ranges of the fields that are present.
func (d *Dataset) Validate() error {
	if d.NetworkName != nil {
		n := len(*d.NetworkName)
		if n == 0 || n > MaxNetworkNameLen {
			return fmt.Errorf("%w: network name length %d", ErrInvalidDataset, n)
		}
	}
	if d.Channel != nil {
		if c := *d.Channel; c < MinChannel || c > MaxChannel {
			return fmt.Errorf("%w: channel %d", ErrInvalidDataset, c)
		}
		if d.ChannelMask != nil && *d.ChannelMask&(1<<*d.Channel) == 0 {
			return fmt.Errorf("%w: channel %d not in mask 0x%08x", ErrInvalidDataset, *d.Channel, *d.ChannelMask)
		}
	}
	if d.ActiveTimestamp != nil {
		if d.ActiveTimestamp.Seconds > MaxTimestampSeconds {
			return fmt.Errorf("%w: timestamp seconds exceed 48 bits", ErrInvalidDataset)
		}
		if d.ActiveTimestamp.Ticks > MaxTimestampTicks {
			return fmt.Errorf("%w: timestamp ticks exceed 15 bits", ErrInvalidDataset)
		}
	}
	if d.PanID != nil && *d.PanID == 0xffff {
		return fmt.Errorf("%w: broadcast PAN ID", ErrInvalidDataset)
	}
	return nil
}

// Resolved returns nil when every field needed to enable Thread is present
// and valid, and a wrapped ErrIncomplete naming the first missing field
// otherwise.
func (d *Dataset) Resolved() error {
	var missing []string
	if d.NetworkKey == nil {
		missing = append(missing, "network_key")
	}
	if d.NetworkName == nil {
		missing = append(missing, "network_name")
	}
	if d.ExtendedPanID == nil {
		missing = append(missing, "extended_pan_id")
	}
	if d.PanID == nil {
		missing = append(missing, "pan_id")
	}
	if d.Channel == nil {
		missing = append(missing, "channel")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	return d.Validate()
}

// Merge overlays the fields present in o onto a copy of d.
func (d Dataset) Merge(o *Dataset) Dataset {
	if o == nil {
		return d
	}
	if o.ActiveTimestamp != nil {
		d.ActiveTimestamp = o.ActiveTimestamp
	}
	if o.NetworkKey != nil {
		d.NetworkKey = o.NetworkKey
	}
	if o.NetworkName != nil {
		d.NetworkName = o.NetworkName
	}
	if o.ExtendedPanID != nil {
		d.ExtendedPanID = o.ExtendedPanID
	}
	if o.PanID != nil {
		d.PanID = o.PanID
	}
	if o.Channel != nil {
		d.Channel = o.Channel
	}
	if o.ChannelMask != nil {
		d.ChannelMask = o.ChannelMask
	}
	return d
}

// Clone returns a deep copy.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	c := &Dataset{}
	if d.ActiveTimestamp != nil {
		v := *d.ActiveTimestamp
		c.ActiveTimestamp = &v
	}
	if d.NetworkKey != nil {
		v := *d.NetworkKey
		c.NetworkKey = &v
	}
	if d.NetworkName != nil {
		v := *d.NetworkName
		c.NetworkName = &v
	}
	if d.ExtendedPanID != nil {
		v := *d.ExtendedPanID
		c.ExtendedPanID = &v
	}
	if d.PanID != nil {
		v := *d.PanID
		c.PanID = &v
	}
	if d.Channel != nil {
		v := *d.Channel
		c.Channel = &v
	}
	if d.ChannelMask != nil {
		v := *d.ChannelMask
		c.ChannelMask = &v
	}
	return c
}

// String renders the dataset without the network key.
func (d *Dataset) String() string {
	var b strings.Builder
	b.WriteString("Dataset{")
	sep := ""
	field := func(name string, v any) {
		fmt.Fprintf(&b, "%s%s: %v", sep, name, v)
		sep = ", "
	}
	if d.ActiveTimestamp != nil {
		field("active_timestamp", *d.ActiveTimestamp)
	}
	if d.NetworkKey != nil {
		field("network_key", *d.NetworkKey)
	}
	if d.NetworkName != nil {
		field("network_name", *d.NetworkName)
	}
	if d.ExtendedPanID != nil {
		field("extended_pan_id", *d.ExtendedPanID)
	}
	if d.PanID != nil {
		field("pan_id", fmt.Sprintf("0x%04x", *d.PanID))
	}
	if d.Channel != nil {
		field("channel", *d.Channel)
	}
	if d.ChannelMask != nil {
		field("channel_mask", fmt.Sprintf("0x%08x", *d.ChannelMask))
	}
	b.WriteString("}")
	return b.String()
}

// Ptr returns a pointer to v, for building datasets literally.
func Ptr[T any](v T) *T {
	return &v
}
