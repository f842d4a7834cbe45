// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// the broker wire protocol and its clients.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) so the
// same logical message always produces identical bytes. Decoding
// ignores unknown fields, letting old clients talk to new daemons.
package codec
