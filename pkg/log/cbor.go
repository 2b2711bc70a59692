package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Capture files are a plain concatenation of CBOR-encoded events. Times
// keep nanoseconds so events from one radio window stay ordered.
var (
	eventEnc cbor.EncMode
	eventDec cbor.DecMode
)

func init() {
	var err error
	eventEnc, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture encoder: %v", err))
	}
	eventDec, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture decoder: %v", err))
	}
}

// DecodeEvent decodes a single event.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	err := eventDec.Unmarshal(data, &ev)
	return ev, err
}

// DecodeEvents splits a capture file's contents into events. Events decoded
// before a malformed one are returned with the error.
func DecodeEvents(data []byte) ([]Event, error) {
	var events []Event
	for len(data) > 0 {
		var ev Event
		rest, err := eventDec.UnmarshalFirst(data, &ev)
		if err != nil {
			return events, err
		}
		events = append(events, ev)
		data = rest
	}
	return events, nil
}

func newEventEncoder(w io.Writer) *cbor.Encoder {
	return eventEnc.NewEncoder(w)
}

func newEventDecoder(r io.Reader) *cbor.Decoder {
	return eventDec.NewDecoder(r)
}
