// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package devnode resolves untrusted filesystem paths to kernel device
// identities.
//
// [Resolve] takes a client-supplied path and a device directory root
// (normally /dev) and returns the node's kind (character or block) and
// device number, or an error. The path is simplified lexically — "."
// and ".." segments are collapsed without consulting the filesystem —
// and then required to lie strictly under the root. This ordering is
// the security boundary: a path like /dev/../etc/passwd is rejected
// before anything touches the filesystem, so no information about
// files outside the device directory leaks through error messages or
// timing.
//
// Symlinks under the root are followed by the stat itself. That is
// deliberate: the returned device number identifies the actual device
// regardless of which alias named it, and the device number — not the
// path — is what policy evaluation keys on.
package devnode
