// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the SDK's binary encoding: CBOR with Core
// Deterministic Encoding (RFC 8949 §4.2). The spool forwarder records
// events in this encoding; determinism means the same event always
// produces identical bytes, which keeps record checksums meaningful.
//
// Consumers import only this package, never fxamacker/cbor directly,
// so the encoding configuration stays in one place.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode applies Core Deterministic Encoding: sorted map keys,
// smallest integer widths, no indefinite-length items.
var encMode cbor.EncMode

// decMode accepts standard CBOR and ignores unknown fields for
// forward compatibility.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// event.EventID implements encoding.TextMarshaler; serialize it as
	// a CBOR text string so spooled records show the same 32-hex form
	// as JSON. Without this the unexported array would encode as an
	// empty map.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	// Timestamps keep nanosecond precision across a spool round-trip.
	// The tag is required so the decoder recognizes the field as a
	// time.Time.
	encOptions.Time = cbor.TimeRFC3339Nano
	encOptions.TimeTag = cbor.EncTagRequired
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Event properties are map[string]any. When the decode target
		// is any, pick that map type instead of CBOR's default
		// map[interface{}]interface{}, which encoding/json refuses.
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value, useful to delay decoding.
type RawMessage = cbor.RawMessage

// NewEncoder returns a stream encoder writing deterministic CBOR to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
