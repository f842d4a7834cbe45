// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the devbroker daemon configuration.
//
// Configuration is a single YAML file named explicitly by the --config
// flag. There are no fallbacks and no automatic discovery: what the
// daemon enforces must be auditable from the command line that started
// it. Unknown keys are errors, so a typo cannot silently fall back to
// a default.
package config
