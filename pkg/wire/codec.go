package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Mesh messages use canonical CBOR with integer keys. Decoding ignores
// unknown keys so newer peers can add fields.
var (
	encMode = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	})
	decMode = mustDecMode(cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: bad CBOR encoder options: %v", err))
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: bad CBOR decoder options: %v", err))
	}
	return m
}

// Marshal encodes v.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v. Trailing bytes are an error.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// UnmarshalFirst decodes the first CBOR item in data and ignores the rest.
// It is used for records packed into zero-padded fixed-size buffers.
func UnmarshalFirst(data []byte, v any) error {
	_, err := decMode.UnmarshalFirst(data, v)
	return err
}

// PeekKind returns the kind of an encoded message (key 1) without decoding
// its body.
func PeekKind(data []byte) (Kind, error) {
	var peek struct {
		Kind Kind `cbor:"1,keyasint"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return KindUnknown, fmt.Errorf("peek message kind: %w", err)
	}
	if !peek.Kind.IsValid() {
		return KindUnknown, fmt.Errorf("unknown message kind: %d", peek.Kind)
	}
	return peek.Kind, nil
}
