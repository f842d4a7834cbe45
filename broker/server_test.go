// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/devbroker/lib/devnode"
	"github.com/bureau-foundation/devbroker/policy"
	"github.com/bureau-foundation/devbroker/udev"
)

// allowRule grants everything; enough for exercising the transport.
type allowRule struct{}

func (allowRule) Name() string                    { return "allow-all" }
func (allowRule) Evaluate(*policy.Device) policy.Verdict { return policy.Allow }

// startServer brings up a full engine + server on a unix socket and
// returns a connected client. The fake indexer knows /dev/null.
func startServer(t *testing.T) (*Client, *policy.Engine) {
	t.Helper()

	fake := udev.NewFake()
	var stat unix.Stat_t
	if err := unix.Stat("/dev/null", &stat); err != nil {
		t.Fatalf("stat /dev/null: %v", err)
	}
	fake.Add(&udev.Device{
		Kind:        devnode.Character,
		Devnum:      devnode.DevnumFromRdev(uint64(stat.Rdev)),
		Subsystem:   "mem",
		Initialized: true,
	})

	logger := slog.New(slog.DiscardHandler)
	engine := policy.New(policy.Config{
		Indexer:      fake,
		RunDir:       "/run/udev",
		PollInterval: 5 * time.Millisecond,
		DeviceRoot:   "/dev",
		Logger:       logger,
	})
	engine.AddRule(allowRule{})

	server := NewServer(ServerConfig{
		Engine:       engine,
		Version:      "test",
		PolicyDigest: "abc123",
		DeviceRoot:   "/dev",
		RunDir:       "/run/udev",
		Logger:       logger,
	})
	engine.AddSink(server)

	socketPath := filepath.Join(t.TempDir(), "broker.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.Serve(ctx, listener)

	return NewClient(socketPath), engine
}

func TestCheckRoundTrip(t *testing.T) {
	client, _ := startServer(t)

	response, err := client.Check("/dev/null")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if response.Verdict != "allow" {
		t.Errorf("verdict = %q, want allow", response.Verdict)
	}
	if response.Rule != "allow-all" {
		t.Errorf("rule = %q, want allow-all", response.Rule)
	}
	if response.Reason != policy.ReasonPolicy {
		t.Errorf("reason = %q, want %q", response.Reason, policy.ReasonPolicy)
	}
	if response.Kind != "char" {
		t.Errorf("kind = %q, want char", response.Kind)
	}
}

func TestCheckDeniedPathStillOK(t *testing.T) {
	// A policy Deny is a successful check, not a protocol error.
	client, _ := startServer(t)

	response, err := client.Check("/etc/passwd")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if response.Verdict != "deny" {
		t.Errorf("verdict = %q, want deny", response.Verdict)
	}
	if response.Reason != policy.ReasonLookup {
		t.Errorf("reason = %q, want %q", response.Reason, policy.ReasonLookup)
	}
}

func TestCheckRequiresPath(t *testing.T) {
	client, _ := startServer(t)

	if _, err := client.Check(""); err == nil {
		t.Fatal("check without a path should be refused")
	}
}

func TestStatus(t *testing.T) {
	client, _ := startServer(t)

	// Two decisions so the counters have content.
	if _, err := client.Check("/dev/null"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Check("/etc/passwd"); err != nil {
		t.Fatal(err)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Version != "test" || status.PolicyDigest != "abc123" {
		t.Errorf("identity = %q / %q", status.Version, status.PolicyDigest)
	}
	if len(status.Rules) != 1 || status.Rules[0] != "allow-all" {
		t.Errorf("rules = %v", status.Rules)
	}
	if status.Decisions["allow"] != 1 || status.Decisions["deny"] != 1 {
		t.Errorf("decision counters = %v", status.Decisions)
	}
}

func TestWatchStreamsDecisions(t *testing.T) {
	client, _ := startServer(t)

	events := make(chan DecisionEvent, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- client.Watch(ctx, func(event DecisionEvent) error {
			events <- event
			return nil
		})
	}()

	// Give the subscription time to register before deciding.
	time.Sleep(50 * time.Millisecond)

	if _, err := client.Check("/dev/null"); err != nil {
		t.Fatal(err)
	}

	select {
	case event := <-events:
		if event.Path != "/dev/null" || event.Verdict != "allow" {
			t.Errorf("event = %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no decision event arrived on the watch stream")
	}

	cancel()
	select {
	case err := <-watchErr:
		if err != context.Canceled {
			t.Logf("watch ended with: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not end after cancellation")
	}
}

func TestUnknownAction(t *testing.T) {
	client, _ := startServer(t)

	if _, err := client.roundTrip(Request{Action: "reboot"}); err == nil {
		t.Fatal("unknown action should be refused")
	}
}
