package wire

import "fmt"

// SrpPort is the UDP port of the registrar.
const SrpPort = 53535

// SrpCode is the registrar's answer to an update.
type SrpCode uint8

const (
	// SrpSuccess indicates the update was applied.
	SrpSuccess SrpCode = 0

	// SrpFormatError indicates a malformed update.
	SrpFormatError SrpCode = 1

	// SrpServerFailure indicates the registrar could not store the update.
	SrpServerFailure SrpCode = 2

	// SrpRefused indicates the registrar refused the update.
	SrpRefused SrpCode = 5

	// SrpNameExists indicates the host name is owned by another key.
	SrpNameExists SrpCode = 6
)

// String returns the code name.
func (c SrpCode) String() string {
	switch c {
	case SrpSuccess:
		return "SUCCESS"
	case SrpFormatError:
		return "FORMAT_ERROR"
	case SrpServerFailure:
		return "SERVER_FAILURE"
	case SrpRefused:
		return "REFUSED"
	case SrpNameExists:
		return "NAME_EXISTS"
	default:
		return fmt.Sprintf("CODE_%d", uint8(c))
	}
}

// TxtEntry is one TXT attribute.
type TxtEntry struct {
	Key   string `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
}

// ServiceRecord is a service instance in an update. The same encoding packs
// records into arena slots.
//
// CBOR encoding:
//
//	{
//	  1: name,          // "_foo._tcp"
//	  2: instance,      // instance label
//	  3: subtypes,      // [string]
//	  4: port,          // uint16
//	  5: priority,      // uint8
//	  6: weight,        // uint8
//	  7: txt,           // [TxtEntry]
//	  8: lease,         // uint32 seconds
//	  9: keyLease,      // uint32 seconds
//	  10: remove        // bool
//	}
type ServiceRecord struct {
	Name     string     `cbor:"1,keyasint"`
	Instance string     `cbor:"2,keyasint"`
	Subtypes []string   `cbor:"3,keyasint,omitempty"`
	Port     uint16     `cbor:"4,keyasint"`
	Priority uint8      `cbor:"5,keyasint,omitempty"`
	Weight   uint8      `cbor:"6,keyasint,omitempty"`
	Txt      []TxtEntry `cbor:"7,keyasint,omitempty"`
	Lease    uint32     `cbor:"8,keyasint,omitempty"`
	KeyLease uint32     `cbor:"9,keyasint,omitempty"`
	Remove   bool       `cbor:"10,keyasint,omitempty"`
}

// SrpUpdate registers, refreshes or removes a host and its services.
type SrpUpdate struct {
	Kind       Kind            `cbor:"1,keyasint"`
	ID         uint32          `cbor:"2,keyasint"`
	Host       string          `cbor:"3,keyasint"`
	Addresses  [][]byte        `cbor:"4,keyasint,omitempty"`
	Key        []byte          `cbor:"5,keyasint"`
	Lease      uint32          `cbor:"6,keyasint"`
	KeyLease   uint32          `cbor:"7,keyasint"`
	RemoveHost bool            `cbor:"8,keyasint,omitempty"`
	Services   []ServiceRecord `cbor:"9,keyasint,omitempty"`
}

// SrpResponse answers an SrpUpdate.
type SrpResponse struct {
	Kind     Kind    `cbor:"1,keyasint"`
	ID       uint32  `cbor:"2,keyasint"`
	Code     SrpCode `cbor:"3,keyasint"`
	Lease    uint32  `cbor:"4,keyasint,omitempty"`
	KeyLease uint32  `cbor:"5,keyasint,omitempty"`
}

// Validate checks if the update is well formed.
func (u *SrpUpdate) Validate() error {
	if u.Kind != KindSrpUpdate {
		return fmt.Errorf("invalid kind: %s", u.Kind)
	}
	if u.Host == "" {
		return fmt.Errorf("empty host name")
	}
	if len(u.Key) == 0 {
		return fmt.Errorf("missing host key")
	}
	for i := range u.Services {
		if u.Services[i].Name == "" || u.Services[i].Instance == "" {
			return fmt.Errorf("service %d: empty name", i)
		}
	}
	return nil
}

// EncodeSrpUpdate encodes an update to CBOR bytes.
func EncodeSrpUpdate(u *SrpUpdate) ([]byte, error) {
	u.Kind = KindSrpUpdate
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("invalid srp update: %w", err)
	}
	return Marshal(u)
}

// DecodeSrpUpdate decodes CBOR bytes into an update.
func DecodeSrpUpdate(data []byte) (*SrpUpdate, error) {
	var u SrpUpdate
	if err := Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to decode srp update: %w", err)
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("invalid srp update: %w", err)
	}
	return &u, nil
}

// EncodeSrpResponse encodes a response to CBOR bytes.
func EncodeSrpResponse(r *SrpResponse) ([]byte, error) {
	r.Kind = KindSrpResponse
	return Marshal(r)
}

// DecodeSrpResponse decodes CBOR bytes into a response.
func DecodeSrpResponse(data []byte) (*SrpResponse, error) {
	var r SrpResponse
	if err := Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode srp response: %w", err)
	}
	if r.Kind != KindSrpResponse {
		return nil, fmt.Errorf("not an srp response: kind=%s", r.Kind)
	}
	return &r, nil
}
