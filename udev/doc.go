// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package udev reads the device-metadata indexer's published state.
//
// The indexer (the system udev daemon) is an external, asynchronous
// process. This package never talks to it; it consumes the state the
// daemon publishes: the queue file that exists while events are
// pending, the per-device data files under <run>/data, and the sysfs
// tree the records point into. [Database] is the production
// implementation, [Fake] the test double, and [Indexer] the interface
// the policy engine consumes.
//
// Records returned by Lookup are snapshots. The indexer may reprocess
// a device at any time, so a record is only trustworthy for the single
// policy decision it was fetched for.
package udev
