// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// devbroker-monitor is a terminal viewer for the broker's live
// decision stream.
//
// It subscribes over the daemon's watch protocol and renders a
// scrolling table of decisions: path, verdict, deciding rule, device
// identity. Space pauses the scroll, "/" filters on path, rule, or
// verdict, "q" quits. The monitor is a read-only observer; losing the
// daemon connection ends the program with an error.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	tea "github.com/charmbracelet/bubbletea"

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
	flagSet := pflag.NewFlagSet("devbroker-monitor", pflag.ContinueOnError)
	socketPath := flagSet.String("socket", defaultSocket, "broker daemon socket path")
	showVersion := flagSet.Bool("version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			fmt.Println(flagSet.FlagUsages())
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Println(flagSet.FlagUsages())
		return nil
	}
	if *showVersion {
		fmt.Printf("devbroker-monitor %s\n", version.Info())
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan broker.DecisionEvent, 64)
	streamErr := make(chan error, 1)

	client := broker.NewClient(*socketPath)
	go func() {
		streamErr <- client.Watch(ctx, func(event broker.DecisionEvent) error {
			select {
			case events <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}()

	program := tea.NewProgram(newModel(events, streamErr), tea.WithAltScreen())
	finalModel, err := program.Run()
	cancel()
	if err != nil {
		return err
	}
	if m, ok := finalModel.(model); ok && m.fatal != nil {
		return m.fatal
	}
	return nil
}
