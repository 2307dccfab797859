// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer widths, no indefinite-length items. The same
// logical operation record always encodes to identical bytes, which is
// what lets the envelope fingerprint double as an equality check.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Unknown struct fields are ignored so
// newer writers stay readable by older readers.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Operation payloads are map[string]any. CBOR's default
		// any-target map type is map[interface{}]interface{}, which
		// nothing downstream (encoding/json included) can consume.
		// Struct field decoding is unaffected by this setting.
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value, for delaying decode or
// splicing pre-encoded output. Alias so consumers import only
// lib/codec, never fxamacker/cbor directly.
type RawMessage = cbor.RawMessage
