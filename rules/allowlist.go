// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"fmt"
	"path"

	"github.com/bureau-foundation/devbroker/lib/policyfile"
	"github.com/bureau-foundation/devbroker/policy"
	"github.com/bureau-foundation/devbroker/udev"
)

// Allowlist evaluates the operator's policy document entries. The
// first entry whose match fields all hold decides; a device matching
// no entry gets Ignore. First-match-wins lets operators carve out a
// narrow deny above a broad allow within one document.
type Allowlist struct {
	entries []compiledEntry
}

type compiledEntry struct {
	match   policyfile.Entry
	verdict policy.Verdict
}

// NewAllowlist compiles a validated policy document into a rule. The
// verdict strings were checked at load time; an unparseable one here
// means the document skipped validation, which is a caller bug worth
// failing loudly on.
func NewAllowlist(document *policyfile.Document) (*Allowlist, error) {
	rule := &Allowlist{}
	for i, entry := range document.Entries {
		verdict, err := policy.ParseVerdict(entry.Verdict)
		if err != nil {
			return nil, fmt.Errorf("policy entry %d: %w", i, err)
		}
		rule.entries = append(rule.entries, compiledEntry{match: entry, verdict: verdict})
	}
	return rule, nil
}

// Name implements policy.Rule.
func (r *Allowlist) Name() string { return "allowlist" }

// Evaluate implements policy.Rule.
func (r *Allowlist) Evaluate(device *policy.Device) policy.Verdict {
	for _, entry := range r.entries {
		if entryMatches(entry.match, device) {
			return entry.verdict
		}
	}
	return policy.Ignore
}

func entryMatches(entry policyfile.Entry, device *policy.Device) bool {
	record := device.Record

	if entry.Kind != "" && entry.Kind != device.Node.Kind.String() {
		return false
	}
	if entry.Subsystem != "" && entry.Subsystem != record.Subsystem {
		return false
	}
	if entry.Vendor != "" && entry.Vendor != record.VendorID() {
		return false
	}
	if entry.Model != "" && entry.Model != record.ModelID() {
		return false
	}
	if entry.Devlink != "" && !devlinkMatches(entry.Devlink, record) {
		return false
	}
	return true
}

func devlinkMatches(glob string, record *udev.Device) bool {
	for _, devlink := range record.Devlinks {
		// The glob was validated at load time; Match cannot fail
		// with a bad pattern here.
		if matched, _ := path.Match(glob, devlink); matched {
			return true
		}
	}
	return false
}
