// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// devbrokerd is the device-access broker daemon.
//
// It loads the operator's policy documents, connects the policy engine
// to the system udev database, and serves check/status/watch requests
// on a unix socket until SIGINT or SIGTERM. Every decision is logged
// and appended to the audit journal under the state directory.
package main
