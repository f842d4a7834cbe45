// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"github.com/bureau-foundation/devbroker/lib/devnode"
	"github.com/bureau-foundation/devbroker/udev"
)

// Device is the per-request device handle passed to every rule: the
// resolved node identity plus the indexer's settled metadata record.
//
// A Device belongs exclusively to the evaluation that built it. The
// engine constructs one per request after queue synchronization and
// discards it when the verdict is final; holding a Device across
// requests would pin a record the indexer may since have reprocessed.
type Device struct {
	// Node is the resolved device node: simplified path, kind, and
	// device number.
	Node devnode.Node

	// Record is the indexer's metadata for the node's backing device.
	// Never nil — lookup failure denies the request before any rule
	// runs.
	Record *udev.Device
}

// Rule is one pluggable policy evaluator. Implementations are
// registered once at daemon start and live for the process lifetime.
//
// Evaluate must be a pure function of the device: no I/O, no mutable
// state shared across calls. The engine stops evaluating after the
// first Deny, so a rule can never rely on being reached.
type Rule interface {
	// Name identifies the rule in the audit trail.
	Name() string

	// Evaluate returns the rule's verdict for the device. Rules
	// return Ignore when they have no opinion.
	Evaluate(device *Device) Verdict
}
