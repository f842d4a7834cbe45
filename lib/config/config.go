// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from the YAML string
// form ("500ms", "10s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\": %w", err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard-library form.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the devbroker daemon configuration.
type Config struct {
	// SocketPath is the unix socket the broker serves on.
	SocketPath string `yaml:"socket_path"`

	// DeviceRoot is the directory client paths must resolve under.
	DeviceRoot string `yaml:"device_root"`

	// UdevRunDir is the indexer's run directory: the queue file and
	// data files live here, and queue synchronization watches it.
	UdevRunDir string `yaml:"udev_run_dir"`

	// PollInterval bounds each wait for a queue-drain notification.
	PollInterval Duration `yaml:"poll_interval"`

	// SyncDeadline bounds a whole queue synchronization; zero waits
	// forever.
	SyncDeadline Duration `yaml:"sync_deadline"`

	// StateDir holds persistent daemon state (the audit journal).
	StateDir string `yaml:"state_dir"`

	// PolicyFiles are the policy documents, loaded and merged in
	// order. Which devices this installation allows is entirely
	// their content.
	PolicyFiles []string `yaml:"policy_files"`

	// AuditMaxBytes is the journal rotation threshold; zero disables
	// rotation.
	AuditMaxBytes int64 `yaml:"audit_max_bytes"`
}

// Default returns the configuration an installation starts from.
// Policy files have no default: a daemon with no policy documents
// answers Ignore for every resolvable device, which the operator must
// have chosen explicitly.
func Default() Config {
	return Config{
		SocketPath:    "/run/devbroker/broker.sock",
		DeviceRoot:    "/dev",
		UdevRunDir:    "/run/udev",
		PollInterval:  Duration(time.Second),
		SyncDeadline:  Duration(10 * time.Second),
		StateDir:      "/var/lib/devbroker",
		AuditMaxBytes: 8 << 20,
	}
}

// LoadFile reads a YAML config file over the defaults. The file is
// named explicitly by the caller — there is no search path and no
// environment fallback, so what the daemon runs with is exactly what
// the flag said.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []error

	if c.SocketPath == "" {
		problems = append(problems, errors.New("socket_path must not be empty"))
	}
	if !filepath.IsAbs(c.DeviceRoot) {
		problems = append(problems, fmt.Errorf("device_root %q must be an absolute path", c.DeviceRoot))
	}
	if !filepath.IsAbs(c.UdevRunDir) {
		problems = append(problems, fmt.Errorf("udev_run_dir %q must be an absolute path", c.UdevRunDir))
	}
	if c.PollInterval <= 0 {
		problems = append(problems, errors.New("poll_interval must be positive"))
	}
	if c.SyncDeadline < 0 {
		problems = append(problems, errors.New("sync_deadline must not be negative"))
	}
	if c.StateDir == "" {
		problems = append(problems, errors.New("state_dir must not be empty"))
	}
	if c.AuditMaxBytes < 0 {
		problems = append(problems, errors.New("audit_max_bytes must not be negative"))
	}
	for i, policyFile := range c.PolicyFiles {
		if !filepath.IsAbs(policyFile) {
			problems = append(problems, fmt.Errorf("policy_files[%d] %q must be an absolute path", i, policyFile))
		}
	}

	return errors.Join(problems...)
}
