package dataset

import (
	"encoding/hex"
	"fmt"
)

// Config is the human-editable form of a dataset, as found in YAML
// configuration files. Binary fields are hex strings. When TLVs is set it
// is decoded first and the remaining fields override it.
type Config struct {
	TLVs            string     `yaml:"tlvs,omitempty"`
	ActiveTimestamp *Timestamp `yaml:"active_timestamp,omitempty"`
	NetworkKey      string     `yaml:"network_key,omitempty"`
	NetworkName     string     `yaml:"network_name,omitempty"`
	ExtendedPanID   string     `yaml:"extended_pan_id,omitempty"`
	PanID           *uint16    `yaml:"pan_id,omitempty"`
	Channel         *uint8     `yaml:"channel,omitempty"`
	ChannelMask     *uint32    `yaml:"channel_mask,omitempty"`
}

// Dataset converts the configuration into a validated Dataset.
func (c *Config) Dataset() (*Dataset, error) {
	d := &Dataset{}
	if c.TLVs != "" {
		base, err := UnmarshalHex(c.TLVs)
		if err != nil {
			return nil, err
		}
		d = base
	}

	if c.ActiveTimestamp != nil {
		ts := *c.ActiveTimestamp
		d.ActiveTimestamp = &ts
	}
	if c.NetworkKey != "" {
		var k NetworkKey
		if err := decodeFixedHex(c.NetworkKey, k[:]); err != nil {
			return nil, fmt.Errorf("%w: network_key: %v", ErrInvalidDataset, err)
		}
		d.NetworkKey = &k
	}
	if c.NetworkName != "" {
		d.NetworkName = Ptr(c.NetworkName)
	}
	if c.ExtendedPanID != "" {
		var e ExtendedPanID
		if err := decodeFixedHex(c.ExtendedPanID, e[:]); err != nil {
			return nil, fmt.Errorf("%w: extended_pan_id: %v", ErrInvalidDataset, err)
		}
		d.ExtendedPanID = &e
	}
	if c.PanID != nil {
		d.PanID = Ptr(*c.PanID)
	}
	if c.Channel != nil {
		d.Channel = Ptr(*c.Channel)
	}
	if c.ChannelMask != nil {
		d.ChannelMask = Ptr(*c.ChannelMask)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeFixedHex(s string, dst []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("got %d bytes, want %d", len(b), len(dst))
	}
	copy(dst, b)
	return nil
}
