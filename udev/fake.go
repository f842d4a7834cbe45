// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package udev

import (
	"sync"

	"github.com/bureau-foundation/devbroker/lib/devnode"
)

// Fake is an in-memory Indexer for tests: a canned record table plus
// a queue that reports busy for a configurable number of checks
// before settling. It lives in the package proper (not a _test file)
// because the policy, rules, and broker tests all drive the engine
// through it.
type Fake struct {
	mu        sync.Mutex
	records   map[string]*Device
	busyPolls int
	polls     int
	lookups   int
}

// NewFake returns an empty Fake whose queue is already settled.
func NewFake() *Fake {
	return &Fake{records: make(map[string]*Device)}
}

// Add registers a record under the device's own (Kind, Devnum) key.
func (f *Fake) Add(device *Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[device.Kind.Prefix()+device.Devnum.String()] = device
}

// SetBusyPolls makes the next n QueueEmpty calls report a non-empty
// queue before the fake settles.
func (f *Fake) SetBusyPolls(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busyPolls = n
	f.polls = 0
}

// QueueEmpty implements Indexer.
func (f *Fake) QueueEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.polls > f.busyPolls
}

// Lookup implements Indexer.
func (f *Fake) Lookup(kind devnode.Kind, devnum devnode.Devnum) (*Device, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	device, ok := f.records[kind.Prefix()+devnum.String()]
	return device, ok
}

// QueueChecks returns how many times QueueEmpty has been called.
func (f *Fake) QueueChecks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// Lookups returns how many times Lookup has been called. Tests use
// this to assert that the engine does not touch the record table
// before the queue settles.
func (f *Fake) Lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}
