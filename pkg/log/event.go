package log

import (
	"time"
)

// MaxCaptureDataSize is the maximum payload size stored in an event.
// Larger payloads are truncated.
const MaxCaptureDataSize = 256

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// InstanceID uniquely identifies the engine instance (UUID).
	InstanceID string `cbor:"2,keyasint"`

	// Direction indicates data flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// ExtAddress is the local extended address in hex.
	ExtAddress string `cbor:"6,keyasint,omitempty"`

	// Peer is the remote party (extended address, or address:port).
	Peer string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Radio layer
	Datagram    *DatagramEvent    `cbor:"11,keyasint,omitempty"` // Socket layer
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Role, SRP, socket lifecycle
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn indicates incoming data.
	DirectionIn Direction = 0
	// DirectionOut indicates outgoing data.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerRadio is the 802.15.4 frame layer (raw bytes).
	LayerRadio Layer = 0
	// LayerMesh is the mesh layer (attach, roles, addressing).
	LayerMesh Layer = 1
	// LayerSocket is the UDP socket layer.
	LayerSocket Layer = 2
	// LayerService is the service registration layer.
	LayerService Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerRadio:
		return "RADIO"
	case LayerMesh:
		return "MESH"
	case LayerSocket:
		return "SOCKET"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a frame or datagram.
	CategoryMessage Category = 0
	// CategoryControl indicates link control (acks, channel busy).
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a radio frame.
type FrameEvent struct {
	// Size is the frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`

	// Channel is the radio channel.
	Channel uint8 `cbor:"4,keyasint,omitempty"`

	// RSSI of a received frame in dBm.
	RSSI int8 `cbor:"5,keyasint,omitempty"`

	// TxResult of a transmitted frame (ACK, NO_ACK, CHANNEL_BUSY).
	TxResult string `cbor:"6,keyasint,omitempty"`
}

// NewFrameEvent builds a FrameEvent, truncating data to MaxCaptureDataSize.
func NewFrameEvent(data []byte) *FrameEvent {
	d, truncated := clip(data)
	return &FrameEvent{Size: len(data), Data: d, Truncated: truncated}
}

// DatagramEvent captures a UDP datagram at the socket layer.
type DatagramEvent struct {
	// Local is the local endpoint (address:port).
	Local string `cbor:"1,keyasint"`

	// Remote is the remote endpoint (address:port).
	Remote string `cbor:"2,keyasint"`

	// Length is the payload length in bytes.
	Length int `cbor:"3,keyasint"`

	// Payload is the datagram payload (may be truncated).
	Payload []byte `cbor:"4,keyasint,omitempty"`

	// Truncated indicates if Payload was truncated.
	Truncated bool `cbor:"5,keyasint,omitempty"`
}

// NewDatagramEvent builds a DatagramEvent, truncating the payload.
func NewDatagramEvent(local, remote string, payload []byte) *DatagramEvent {
	d, truncated := clip(payload)
	return &DatagramEvent{Local: local, Remote: remote, Length: len(payload), Payload: d, Truncated: truncated}
}

func clip(b []byte) ([]byte, bool) {
	if len(b) > MaxCaptureDataSize {
		return append([]byte(nil), b[:MaxCaptureDataSize]...), true
	}
	return append([]byte(nil), b...), false
}

// StateChangeEvent captures lifecycle transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`

	// Name identifies the instance (service name, socket endpoint).
	Name string `cbor:"5,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityRole indicates a device role change.
	StateEntityRole StateEntity = 0
	// StateEntitySrpClient indicates an SRP host state change.
	StateEntitySrpClient StateEntity = 1
	// StateEntitySrpService indicates an SRP service state change.
	StateEntitySrpService StateEntity = 2
	// StateEntitySocket indicates a socket bind or close.
	StateEntitySocket StateEntity = 3
	// StateEntityEngine indicates an engine lifecycle change.
	StateEntityEngine StateEntity = 4
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityRole:
		return "ROLE"
	case StateEntitySrpClient:
		return "SRP_CLIENT"
	case StateEntitySrpService:
		return "SRP_SERVICE"
	case StateEntitySocket:
		return "SOCKET"
	case StateEntityEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
