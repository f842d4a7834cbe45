// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"github.com/bureau-foundation/devbroker/lib/devnode"
	"github.com/bureau-foundation/devbroker/policy"
)

// TTY allows character devices in the tty subsystem whose driver is
// in the operator's serial driver set. This covers the common "any
// USB serial adapter of this kind" case without enumerating vendor
// IDs in the policy document. Everything else gets Ignore.
type TTY struct {
	drivers map[string]bool
}

// NewTTY builds the rule from the operator's tty driver list.
func NewTTY(ttyDrivers []string) *TTY {
	drivers := make(map[string]bool, len(ttyDrivers))
	for _, driver := range ttyDrivers {
		drivers[driver] = true
	}
	return &TTY{drivers: drivers}
}

// Name implements policy.Rule.
func (r *TTY) Name() string { return "tty" }

// Evaluate implements policy.Rule.
func (r *TTY) Evaluate(device *policy.Device) policy.Verdict {
	if device.Node.Kind != devnode.Character {
		return policy.Ignore
	}
	if device.Record.Subsystem != "tty" {
		return policy.Ignore
	}
	if r.drivers[device.Record.Driver] {
		return policy.Allow
	}
	return policy.Ignore
}
