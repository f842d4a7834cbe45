// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "fmt"

// Verdict is the outcome of policy evaluation for one device-access
// request.
type Verdict int

const (
	// Ignore means the rule (or the whole rule set) has no opinion.
	// It is the identity element of verdict combination: the engine
	// starts there and no rule result ever moves back to it.
	Ignore Verdict = iota

	// Allow grants access.
	Allow

	// AllowWithDetach grants access after force-detaching any kernel
	// driver bound to the device.
	AllowWithDetach

	// AllowWithLockdown grants access under the restricted device
	// lockdown mode.
	AllowWithLockdown

	// Deny refuses access. Deny absorbs: once any rule produces it,
	// the evaluation stops and nothing can override it.
	Deny
)

// String returns the canonical name used in logs, audit records, and
// policy files.
func (v Verdict) String() string {
	switch v {
	case Ignore:
		return "ignore"
	case Allow:
		return "allow"
	case AllowWithDetach:
		return "allow-with-detach"
	case AllowWithLockdown:
		return "allow-with-lockdown"
	case Deny:
		return "deny"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// ParseVerdict parses a canonical verdict name.
func ParseVerdict(name string) (Verdict, error) {
	switch name {
	case "ignore":
		return Ignore, nil
	case "allow":
		return Allow, nil
	case "allow-with-detach":
		return AllowWithDetach, nil
	case "allow-with-lockdown":
		return AllowWithLockdown, nil
	case "deny":
		return Deny, nil
	default:
		return Ignore, fmt.Errorf("unknown verdict %q", name)
	}
}

// Grants reports whether the verdict permits access in some form.
func (v Verdict) Grants() bool {
	return v == Allow || v == AllowWithDetach || v == AllowWithLockdown
}

// Combine folds one rule's verdict into the running result:
//
//   - Deny absorbs (callers additionally stop evaluating).
//   - AllowWithDetach and AllowWithLockdown overwrite unconditionally,
//     including each other — the two special grants have no defined
//     precedence, so the one produced last wins.
//   - Allow upgrades Ignore but never downgrades a special grant.
//   - Ignore leaves the result untouched.
//
// An already-absorbed Deny result is never fed back through Combine;
// the engine stops first.
func Combine(result, next Verdict) Verdict {
	switch next {
	case Deny:
		return Deny
	case AllowWithDetach, AllowWithLockdown:
		return next
	case Allow:
		if result == AllowWithDetach || result == AllowWithLockdown {
			return result
		}
		return Allow
	default:
		return result
	}
}
