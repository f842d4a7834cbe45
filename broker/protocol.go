// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"time"

	"github.com/bureau-foundation/devbroker/policy"
)

// Request actions. One CBOR request per connection; "watch" keeps the
// connection open for a response stream.
const (
	// ActionCheck evaluates device access for Path.
	ActionCheck = "check"

	// ActionStatus reports daemon identity and decision counters.
	ActionStatus = "status"

	// ActionWatch subscribes to the live decision stream.
	ActionWatch = "watch"
)

// Request is the single message a client sends after connecting.
type Request struct {
	// Action is one of the Action* constants.
	Action string `cbor:"action"`

	// Path is the device path to evaluate (check only).
	Path string `cbor:"path,omitempty"`
}

// Response answers check and status requests, and acknowledges a
// watch subscription before the event stream starts.
type Response struct {
	// OK is false when the request itself failed; Error says why.
	OK    bool   `cbor:"ok"`
	Error string `cbor:"error,omitempty"`

	// Check outcome. Verdict is always populated for a successful
	// check — including "deny" — so clients never confuse transport
	// failure with policy denial.
	Verdict string `cbor:"verdict,omitempty"`
	Rule    string `cbor:"rule,omitempty"`
	Reason  string `cbor:"reason,omitempty"`
	Kind    string `cbor:"kind,omitempty"`
	Devnum  string `cbor:"devnum,omitempty"`

	// Status payload.
	Status *StatusInfo `cbor:"status,omitempty"`
}

// StatusInfo is the daemon's self-description.
type StatusInfo struct {
	// Version is the daemon build version.
	Version string `cbor:"version"`

	// PolicyDigest identifies the loaded policy document set.
	PolicyDigest string `cbor:"policy_digest"`

	// Rules are the registered rule names in evaluation order.
	Rules []string `cbor:"rules"`

	// DeviceRoot and RunDir echo the engine configuration.
	DeviceRoot string `cbor:"device_root"`
	RunDir     string `cbor:"run_dir"`

	// Started is when the daemon began serving.
	Started time.Time `cbor:"started"`

	// Decisions counts evaluations since start, keyed by verdict
	// name.
	Decisions map[string]uint64 `cbor:"decisions"`
}

// DecisionEvent is one decision on a watch stream.
type DecisionEvent struct {
	Time    time.Time `cbor:"time"`
	Path    string    `cbor:"path"`
	Verdict string    `cbor:"verdict"`
	Rule    string    `cbor:"rule,omitempty"`
	Reason  string    `cbor:"reason"`
	Kind    string    `cbor:"kind,omitempty"`
	Devnum  string    `cbor:"devnum,omitempty"`

	// DurationMicros is the evaluation time in microseconds, queue
	// wait included.
	DurationMicros int64 `cbor:"duration_us"`
}

// eventFromDecision converts an engine decision to its wire form.
func eventFromDecision(decision policy.Decision) DecisionEvent {
	return DecisionEvent{
		Time:           decision.Time,
		Path:           decision.Path,
		Verdict:        decision.VerdictName,
		Rule:           decision.Rule,
		Reason:         decision.Reason,
		Kind:           decision.Kind,
		Devnum:         decision.Devnum,
		DurationMicros: decision.Duration.Microseconds(),
	}
}
