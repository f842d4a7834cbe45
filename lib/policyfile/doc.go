// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package policyfile loads operator-authored device policy documents.
//
// Documents are JSONC (JSON with comments and trailing commas): a
// list of device match entries, each carrying a verdict, plus the
// driver sets consumed by the built-in rules. The daemon ships no
// policy of its own — everything an installation allows or denies
// lives in these files.
//
// Loading computes a domain-keyed BLAKE3 digest of the raw bytes so
// the running daemon can state exactly which policy it is enforcing;
// the digest appears in status output and in every audit record.
package policyfile
