// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// devbroker is the operator CLI for the device-access broker daemon.
//
// Subcommands:
//
//	devbroker check <path>   evaluate device access for a path
//	devbroker status         show daemon identity and decision counters
//	devbroker watch          stream decisions as they are made
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/devbroker/broker"
	"github.com/bureau-foundation/devbroker/lib/version"
)

const defaultSocket = "/run/devbroker/broker.sock"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("devbroker", pflag.ContinueOnError)
	socketPath := flagSet.String("socket", defaultSocket, "broker daemon socket path")
	showVersion := flagSet.Bool("version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if *showVersion {
		fmt.Printf("devbroker %s\n", version.Info())
		return nil
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return fmt.Errorf("a subcommand is required")
	}

	logger := newCommandLogger()
	client := broker.NewClient(*socketPath)

	switch args[0] {
	case "check":
		if len(args) != 2 {
			return fmt.Errorf("usage: devbroker check <path>")
		}
		return runCheck(client, args[1])

	case "status":
		if len(args) != 1 {
			return fmt.Errorf("usage: devbroker status")
		}
		return runStatus(client)

	case "watch":
		if len(args) != 1 {
			return fmt.Errorf("usage: devbroker watch")
		}
		return runWatch(client, logger)

	default:
		return fmt.Errorf("unknown subcommand %q (want check, status, or watch)", args[0])
	}
}

// newCommandLogger selects the log handler by destination: human
// text on a terminal, JSON when piped (scripts, CI), matching the
// daemon's log format for ingestion.
func newCommandLogger() *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

func runCheck(client *broker.Client, path string) error {
	response, err := client.Check(path)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "path:\t%s\n", path)
	fmt.Fprintf(writer, "verdict:\t%s\n", response.Verdict)
	if response.Rule != "" {
		fmt.Fprintf(writer, "rule:\t%s\n", response.Rule)
	}
	fmt.Fprintf(writer, "reason:\t%s\n", response.Reason)
	if response.Kind != "" {
		fmt.Fprintf(writer, "device:\t%s %s\n", response.Kind, response.Devnum)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	// Exit status mirrors the verdict so scripts can branch without
	// parsing output: 0 grants, 2 denies, 3 no policy applied.
	switch response.Verdict {
	case "deny":
		os.Exit(2)
	case "ignore":
		os.Exit(3)
	}
	return nil
}

func runStatus(client *broker.Client) error {
	status, err := client.Status()
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "version:\t%s\n", status.Version)
	fmt.Fprintf(writer, "policy digest:\t%s\n", status.PolicyDigest)
	fmt.Fprintf(writer, "device root:\t%s\n", status.DeviceRoot)
	fmt.Fprintf(writer, "udev run dir:\t%s\n", status.RunDir)
	fmt.Fprintf(writer, "started:\t%s (up %s)\n",
		status.Started.Format(time.RFC3339),
		time.Since(status.Started).Round(time.Second),
	)
	fmt.Fprintf(writer, "rules:\t")
	for i, rule := range status.Rules {
		if i > 0 {
			fmt.Fprint(writer, ", ")
		}
		fmt.Fprint(writer, rule)
	}
	fmt.Fprintln(writer)
	for _, verdict := range []string{"allow", "allow-with-detach", "allow-with-lockdown", "deny", "ignore"} {
		if count := status.Decisions[verdict]; count > 0 {
			fmt.Fprintf(writer, "decisions[%s]:\t%d\n", verdict, count)
		}
	}
	return writer.Flush()
}

func runWatch(client *broker.Client, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("watching decisions; interrupt to stop")

	err := client.Watch(ctx, func(event broker.DecisionEvent) error {
		fmt.Printf("%s  %-20s  %-12s  rule=%s reason=%s device=%s %s (%dus)\n",
			event.Time.Format(time.RFC3339),
			event.Path,
			event.Verdict,
			event.Rule,
			event.Reason,
			event.Kind,
			event.Devnum,
			event.DurationMicros,
		)
		return nil
	})
	if err == context.Canceled {
		return nil
	}
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Println("devbroker - device-access broker CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  devbroker [flags] check <path>")
	fmt.Println("  devbroker [flags] status")
	fmt.Println("  devbroker [flags] watch")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println(flagSet.FlagUsages())
}
