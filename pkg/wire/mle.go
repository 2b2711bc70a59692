package wire

import "fmt"

// MLEPort is the UDP port for mesh link establishment messages.
const MLEPort = 19788

// Kind identifies a message.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAdvertisement
	KindParentRequest
	KindChildIDResponse
	KindSrpUpdate
	KindSrpResponse
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k >= KindAdvertisement && k <= KindSrpResponse
}

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAdvertisement:
		return "ADVERTISEMENT"
	case KindParentRequest:
		return "PARENT_REQUEST"
	case KindChildIDResponse:
		return "CHILD_ID_RESPONSE"
	case KindSrpUpdate:
		return "SRP_UPDATE"
	case KindSrpResponse:
		return "SRP_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// LeaderData describes the partition a leader serves.
//
// CBOR encoding:
//
//	{
//	  1: partitionId,    // uint32
//	  2: leaderRloc16,   // uint16
//	  3: registrar,      // bytes(16), absent without a registrar
//	  4: registrarPort,  // uint16
//	  5: weighting       // uint8
//	}
type LeaderData struct {
	PartitionID   uint32 `cbor:"1,keyasint"`
	LeaderRLOC16  uint16 `cbor:"2,keyasint"`
	Registrar     []byte `cbor:"3,keyasint,omitempty"`
	RegistrarPort uint16 `cbor:"4,keyasint,omitempty"`
	Weighting     uint8  `cbor:"5,keyasint,omitempty"`
}

// MLE is a mesh link establishment message.
//
// CBOR encoding:
//
//	{
//	  1: kind,        // uint8
//	  2: seq,         // uint32
//	  3: extAddress,  // bytes(8)
//	  4: rloc16,      // uint16
//	  5: leader,      // LeaderData
//	  6: challenge    // bytes
//	}
type MLE struct {
	Kind       Kind        `cbor:"1,keyasint"`
	Seq        uint32      `cbor:"2,keyasint"`
	ExtAddress []byte      `cbor:"3,keyasint"`
	RLOC16     uint16      `cbor:"4,keyasint,omitempty"`
	Leader     *LeaderData `cbor:"5,keyasint,omitempty"`
	Challenge  []byte      `cbor:"6,keyasint,omitempty"`
}

// Validate checks if the message is well formed.
func (m *MLE) Validate() error {
	switch m.Kind {
	case KindAdvertisement, KindChildIDResponse:
		if m.Leader == nil {
			return fmt.Errorf("%s without leader data", m.Kind)
		}
	case KindParentRequest:
	default:
		return fmt.Errorf("invalid mle kind: %d", m.Kind)
	}
	if len(m.ExtAddress) != 8 {
		return fmt.Errorf("invalid extended address length: %d", len(m.ExtAddress))
	}
	return nil
}

// EncodeMLE encodes an MLE message to CBOR bytes.
func EncodeMLE(m *MLE) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mle message: %w", err)
	}
	return Marshal(m)
}

// DecodeMLE decodes CBOR bytes into an MLE message.
func DecodeMLE(data []byte) (*MLE, error) {
	var m MLE
	if err := Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode mle message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mle message: %w", err)
	}
	return &m, nil
}
