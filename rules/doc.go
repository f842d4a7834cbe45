// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rules provides the built-in policy.Rule implementations.
//
// Every rule is pure — a function of the device handle and the
// configuration it was constructed with — and returns Ignore when it
// has no opinion, leaving the verdict to the rest of the chain. Which
// devices an installation actually allows is entirely the content of
// the operator's policy documents; this package contributes mechanism
// (matching, interface-claim analysis), never policy.
package rules
