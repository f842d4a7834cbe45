// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker is the daemon service layer around the policy
// engine: the unix-socket CBOR protocol ([Server], [Client]), and the
// durable audit journal ([Journal]).
//
// The protocol is deliberately minimal — check, status, watch — and
// carries no policy semantics of its own; everything a response says
// about a device came from a policy.Decision. The engine core has no
// dependency on this package and would work unchanged behind a
// different transport.
package broker
