// Package codec provides the binary record codec for stored values.
//
// Records are encoded as CBOR with Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no indefinite-length
// items. The same logical record always produces identical bytes, which
// keeps the upsert-or-skip comparison during seeding cheap and makes stored
// values diffable.
//
// Decoding is strict about structure: malformed bytes or a value whose CBOR
// shape does not match the target type fail with an error rather than
// producing a partially populated record. Unknown map keys are ignored for
// forward compatibility.
package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// The default epoch-integer time encoding truncates to whole seconds.
	// Index keys are derived from record timestamps at nanosecond
	// precision, so stored times must round-trip exactly.
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Stored records only ever use string map keys. When a decode
		// target is any-typed the decoder must pick a concrete map type;
		// map[string]any interoperates with encoding/json, the CBOR
		// default map[interface{}]interface{} does not.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal decodes data into v. Trailing garbage after the first CBOR
// item is treated as corruption, not ignored.
func Unmarshal(data []byte, v any) error {
	rest, err := decMode.UnmarshalFirst(data, v)
	if err != nil {
		return fmt.Errorf("codec: unmarshal into %T: %w", v, err)
	}
	if len(rest) != 0 {
		return fmt.Errorf("codec: unmarshal into %T: %d trailing bytes", v, len(rest))
	}
	return nil
}
