// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bureau-foundation/devbroker/broker"
	"github.com/bureau-foundation/devbroker/lib/config"
	"github.com/bureau-foundation/devbroker/lib/policyfile"
	"github.com/bureau-foundation/devbroker/lib/version"
	"github.com/bureau-foundation/devbroker/policy"
	"github.com/bureau-foundation/devbroker/rules"
	"github.com/bureau-foundation/devbroker/udev"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to devbroker.yaml (defaults apply when empty)")
	flag.StringVar(&socketPath, "socket", "", "broker socket path (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("devbrokerd %s\n", version.Info())
		return nil
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		cfg = loaded
	}
	if socketPath != "" {
		cfg.SocketPath = socketPath
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Policy documents. An empty document set is legal but worth a
	// loud warning: every decision will be Ignore or fail-closed Deny.
	document, digest, err := policyfile.LoadAll(cfg.PolicyFiles)
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if len(cfg.PolicyFiles) == 0 {
		logger.Warn("no policy files configured; no device will be granted")
	}
	logger.Info("policy loaded",
		"files", cfg.PolicyFiles,
		"entries", len(document.Entries),
		"digest", digest.String(),
	)

	indexer := udev.NewDatabase(cfg.UdevRunDir, "/sys", logger)

	engine := policy.New(policy.Config{
		Indexer:      indexer,
		RunDir:       cfg.UdevRunDir,
		PollInterval: cfg.PollInterval.Std(),
		SyncDeadline: cfg.SyncDeadline.Std(),
		DeviceRoot:   cfg.DeviceRoot,
		Logger:       logger,
	})

	// Registration order is evaluation order. The screens run first
	// so a broken or contended device is denied before anything can
	// grant it; the operator's allowlist runs last so its special
	// grants (detach, lockdown) have the final word.
	allowlist, err := rules.NewAllowlist(document)
	if err != nil {
		return fmt.Errorf("compiling allowlist: %w", err)
	}
	engine.AddRule(rules.Uninitialized{})
	engine.AddRule(rules.NewClaimedInterfaces(document.DetachableDrivers))
	engine.AddRule(rules.NewTTY(document.TTYDrivers))
	engine.AddRule(allowlist)

	journal, err := broker.NewJournal(filepath.Join(cfg.StateDir, "audit"), cfg.AuditMaxBytes, logger)
	if err != nil {
		return fmt.Errorf("audit journal: %w", err)
	}
	defer journal.Close()
	engine.AddSink(journal)

	server := broker.NewServer(broker.ServerConfig{
		Engine:       engine,
		Version:      version.Info(),
		PolicyDigest: digest.String(),
		DeviceRoot:   cfg.DeviceRoot,
		RunDir:       cfg.UdevRunDir,
		Logger:       logger,
	})
	engine.AddSink(server)

	listener, err := listenSocket(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("broker socket: %w", err)
	}
	defer listener.Close()
	defer os.Remove(cfg.SocketPath)

	logger.Info("devbrokerd serving",
		"socket", cfg.SocketPath,
		"device_root", cfg.DeviceRoot,
		"udev_run_dir", cfg.UdevRunDir,
		"rules", engine.RuleNames(),
		"version", version.Info(),
	)

	server.Serve(ctx, listener)

	logger.Info("devbrokerd shutting down")
	return nil
}

// listenSocket creates the unix socket listener, removing any stale
// socket file from a previous run.
func listenSocket(socketPath string) (net.Listener, error) {
	socketDir := filepath.Dir(socketPath)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating socket directory %s: %w", socketDir, err)
	}

	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	// Group access for unprivileged clients; the daemon itself runs
	// with enough privilege to stat device nodes.
	if err := os.Chmod(socketPath, 0o660); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}

	return listener, nil
}
