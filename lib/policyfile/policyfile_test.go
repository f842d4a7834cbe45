// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policyfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const serialPolicy = `{
	// CH341 USB serial adapters for the firmware bench.
	"entries": [
		{
			"subsystem": "tty",
			"vendor": "1a86",
			"model": "7523",
			"verdict": "allow",
			"comment": "bench serial adapters",
		},
		{
			"devlink": "/dev/serial/by-id/usb-FTDI_*",
			"verdict": "allow-with-lockdown",
		},
	],
	"detachable_drivers": ["usbfs", "cdc_acm"],
	"tty_drivers": ["ch341-uart"],
}`

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.jsonc")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSONC(t *testing.T) {
	document, digest, err := Load(writePolicy(t, serialPolicy))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(document.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(document.Entries))
	}
	if document.Entries[0].Vendor != "1a86" || document.Entries[0].Verdict != "allow" {
		t.Errorf("first entry = %+v", document.Entries[0])
	}
	if len(document.DetachableDrivers) != 2 || len(document.TTYDrivers) != 1 {
		t.Errorf("driver sets = %v / %v", document.DetachableDrivers, document.TTYDrivers)
	}
	if digest == (Digest{}) {
		t.Error("digest is zero")
	}
}

func TestDigestStability(t *testing.T) {
	path := writePolicy(t, serialPolicy)

	_, first, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	_, second, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("same bytes produced different digests")
	}

	_, other, err := Load(writePolicy(t, serialPolicy+"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if other == first {
		t.Error("different bytes produced the same digest")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`{"entries": [{"vendorr": "1a86", "verdict": "allow"}]}`))
	if err == nil {
		t.Fatal("unknown field should fail the parse")
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	document := &Document{Entries: []Entry{
		{Verdict: "allow"},                           // no match fields
		{Vendor: "1A86", Verdict: "allow"},           // uppercase hex
		{Subsystem: "tty", Verdict: "permit"},        // unknown verdict
		{Devlink: "/dev/[", Verdict: "deny"},         // bad glob
		{Subsystem: "block", Kind: "disk", Verdict: "deny"}, // bad kind
	}}

	err := document.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	message := err.Error()
	for _, fragment := range []string{"entry 0", "entry 1", "entry 2", "entry 3", "entry 4"} {
		if !strings.Contains(message, fragment) {
			t.Errorf("validation error missing %q: %v", fragment, message)
		}
	}
}

func TestLoadAllMergesInOrder(t *testing.T) {
	first := writePolicy(t, `{"entries": [{"subsystem": "tty", "verdict": "allow"}], "tty_drivers": ["ch341-uart"]}`)
	second := writePolicy(t, `{"entries": [{"subsystem": "block", "verdict": "deny"}], "tty_drivers": ["ch341-uart", "ftdi_sio"]}`)

	merged, digest, err := LoadAll([]string{first, second})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(merged.Entries) != 2 || merged.Entries[0].Subsystem != "tty" {
		t.Errorf("merged entries = %+v", merged.Entries)
	}
	if len(merged.TTYDrivers) != 2 {
		t.Errorf("tty drivers = %v, want deduplicated union", merged.TTYDrivers)
	}

	// Order is part of policy identity: swapping the files must
	// change the combined digest.
	_, swapped, err := LoadAll([]string{second, first})
	if err != nil {
		t.Fatal(err)
	}
	if swapped == digest {
		t.Error("file order did not affect the combined digest")
	}
}

func TestLoadAllEmptyList(t *testing.T) {
	merged, _, err := LoadAll(nil)
	if err != nil {
		t.Fatalf("LoadAll(nil): %v", err)
	}
	if len(merged.Entries) != 0 {
		t.Errorf("entries = %v, want none", merged.Entries)
	}
}
