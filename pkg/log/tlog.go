package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Trace files hold back-to-back CBOR-encoded events. Encoding is canonical
// so identical traces are byte-comparable, and timestamps keep nanosecond
// precision so frame and envelope events can be ordered within a burst.
// Decoding is lenient: a reader should get through trace files written by
// older builds.
var (
	tlogEnc cbor.EncMode
	tlogDec cbor.DecMode
)

func init() {
	var err error
	tlogEnc, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace encoder mode: %v", err))
	}
	tlogDec, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("trace decoder mode: %v", err))
	}
}

// EncodeEvent encodes a single event in the trace file format.
func EncodeEvent(event Event) ([]byte, error) {
	return tlogEnc.Marshal(event)
}

// DecodeEvent decodes a single event in the trace file format.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := tlogDec.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

func newEventEncoder(w io.Writer) *cbor.Encoder {
	return tlogEnc.NewEncoder(w)
}

func newEventDecoder(r io.Reader) *cbor.Decoder {
	return tlogDec.NewDecoder(r)
}
