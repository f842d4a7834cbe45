// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy decides whether a client may access a device node.
//
// [Engine.ProcessPath] is the single entry point: given an untrusted
// path, it waits for the device-metadata indexer's event queue to
// settle, resolves and classifies the node, evaluates the registered
// [Rule] set in order, and returns a [Verdict]. The combination
// algorithm is fail-closed — an unresolvable device, a failed queue
// wait, and a panicking rule all collapse to [Deny] — and [Deny] is
// absorbing: the first rule to produce it ends the evaluation.
//
// The queue wait exists because indexer metadata arrives
// asynchronously after a node appears. Evaluating against a
// half-annotated record would let a device slip past vendor or
// interface matching, so the engine never consults a record while the
// indexer reports pending events.
//
// Every decision is logged and delivered to the registered
// [DecisionSink]s; the audit trail is part of the engine's contract.
package policy
