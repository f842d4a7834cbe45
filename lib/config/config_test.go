// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.SocketPath != "/run/devbroker/broker.sock" {
		t.Errorf("socket_path = %q", cfg.SocketPath)
	}
	if cfg.DeviceRoot != "/dev" {
		t.Errorf("device_root = %q", cfg.DeviceRoot)
	}
	if cfg.UdevRunDir != "/run/udev" {
		t.Errorf("udev_run_dir = %q", cfg.UdevRunDir)
	}
	if cfg.PollInterval.Std() != time.Second {
		t.Errorf("poll_interval = %v", cfg.PollInterval.Std())
	}
	if len(cfg.PolicyFiles) != 0 {
		t.Errorf("default config must not name policy files, got %v", cfg.PolicyFiles)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devbroker.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
socket_path: /run/test/broker.sock
poll_interval: 250ms
sync_deadline: 5s
policy_files:
  - /etc/devbroker/bench.jsonc
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.SocketPath != "/run/test/broker.sock" {
		t.Errorf("socket_path = %q", cfg.SocketPath)
	}
	if cfg.PollInterval.Std() != 250*time.Millisecond {
		t.Errorf("poll_interval = %v", cfg.PollInterval.Std())
	}
	if cfg.SyncDeadline.Std() != 5*time.Second {
		t.Errorf("sync_deadline = %v", cfg.SyncDeadline.Std())
	}
	// Untouched keys keep their defaults.
	if cfg.DeviceRoot != "/dev" {
		t.Errorf("device_root = %q, want default", cfg.DeviceRoot)
	}
	if len(cfg.PolicyFiles) != 1 {
		t.Errorf("policy_files = %v", cfg.PolicyFiles)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "socket_pathh: /run/x.sock\n")

	if _, err := LoadFile(path); err == nil {
		t.Fatal("unknown key should fail the load")
	}
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "poll_interval: fast\n")

	if _, err := LoadFile(path); err == nil {
		t.Fatal("unparseable duration should fail the load")
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Config{
		SocketPath:    "",
		DeviceRoot:    "dev",
		UdevRunDir:    "run/udev",
		PollInterval:  0,
		SyncDeadline:  -1,
		StateDir:      "",
		PolicyFiles:   []string{"relative.jsonc"},
		AuditMaxBytes: -1,
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	message := err.Error()
	for _, fragment := range []string{
		"socket_path", "device_root", "udev_run_dir", "poll_interval",
		"sync_deadline", "state_dir", "policy_files[0]", "audit_max_bytes",
	} {
		if !strings.Contains(message, fragment) {
			t.Errorf("validation error missing %q:\n%v", fragment, message)
		}
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing config file should fail the load")
	}
}
