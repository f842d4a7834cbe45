// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dirwatch watches a directory for entries moved into it.
//
// It wraps inotify's IN_MOVED_TO event class behind a small
// open/wait/drain/close surface. The intended use is rendezvous with a
// process that signals completion by atomically renaming a file into a
// well-known directory: install the watch first, then re-check the
// condition, then wait. That ordering means a rename landing between
// the check and the wait is never missed.
package dirwatch
