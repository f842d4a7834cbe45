// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"github.com/bureau-foundation/devbroker/policy"
)

// ClaimedInterfaces gates USB devices whose interfaces a kernel
// driver has already claimed. Handing such a device to a client would
// have two drivers fighting over it, so the device is denied — unless
// every claiming driver is in the operator's detachable set, in which
// case access is granted with a forced detach first.
//
// Devices without claimed interfaces (including all non-USB devices)
// get Ignore.
type ClaimedInterfaces struct {
	detachable map[string]bool
}

// NewClaimedInterfaces builds the rule from the operator's detachable
// driver list.
func NewClaimedInterfaces(detachableDrivers []string) *ClaimedInterfaces {
	detachable := make(map[string]bool, len(detachableDrivers))
	for _, driver := range detachableDrivers {
		detachable[driver] = true
	}
	return &ClaimedInterfaces{detachable: detachable}
}

// Name implements policy.Rule.
func (r *ClaimedInterfaces) Name() string { return "claimed-interfaces" }

// Evaluate implements policy.Rule.
func (r *ClaimedInterfaces) Evaluate(device *policy.Device) policy.Verdict {
	claimed := false
	for _, usbInterface := range device.Record.Interfaces {
		if usbInterface.Driver == "" {
			continue
		}
		claimed = true
		if !r.detachable[usbInterface.Driver] {
			return policy.Deny
		}
	}
	if claimed {
		return policy.AllowWithDetach
	}
	return policy.Ignore
}
