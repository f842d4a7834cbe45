// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"github.com/bureau-foundation/devbroker/policy"
)

// Uninitialized denies devices the indexer has not finished
// processing. Queue synchronization makes this rare — the queue was
// observed empty just before lookup — but a record can still predate
// its annotations (the daemon writes the data file before all
// properties land), and matching against a half-annotated record
// would grant on missing evidence. Register this rule first.
type Uninitialized struct{}

// Name implements policy.Rule.
func (Uninitialized) Name() string { return "uninitialized" }

// Evaluate implements policy.Rule.
func (Uninitialized) Evaluate(device *policy.Device) policy.Verdict {
	if !device.Record.Initialized {
		return policy.Deny
	}
	return policy.Ignore
}
