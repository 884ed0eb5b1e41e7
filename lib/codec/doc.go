// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used for on-disk records.
//
// JSON is the wire format towards homeservers; CBOR is used where the
// migrator persists structured values itself, such as the content
// snapshots kept in the migration ledger. The encoder uses Core
// Deterministic Encoding (RFC 8949 §4.2): sorted map keys, smallest
// integer encoding, no indefinite-length items. Same logical data
// always produces identical bytes, so two snapshots of the same message
// compare equal byte for byte.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Types with `json` struct tags encode with the same field names in
// CBOR: fxamacker/cbor reads `json` tags when `cbor` tags are absent.
// Identifier types implementing encoding.TextMarshaler (ref.RoomID,
// ref.ContentURI, ...) encode as CBOR text strings.
package codec
