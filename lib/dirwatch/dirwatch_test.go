// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dirwatch

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestNewMissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("expected error watching a missing directory")
	}
}

func TestRenameIntoWatchedDirectory(t *testing.T) {
	staging := t.TempDir()
	watched := t.TempDir()

	watcher, err := New(watched)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer watcher.Close()

	source := filepath.Join(staging, "queue")
	if err := os.WriteFile(source, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing staging file: %v", err)
	}
	if err := os.Rename(source, filepath.Join(watched, "queue")); err != nil {
		t.Fatalf("rename: %v", err)
	}

	woke, err := watcher.Wait(2 * time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !woke {
		t.Fatal("Wait timed out; expected a moved-into event")
	}

	names, err := watcher.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(names) != 1 || names[0] != "queue" {
		t.Fatalf("Drain returned %v, want [queue]", names)
	}
}

func TestCreateDoesNotWake(t *testing.T) {
	// Plain creates are not renames. The udev queue protocol signals
	// with a rename, and watching only IN_MOVED_TO keeps unrelated
	// file churn in the run directory from waking the loop.
	watched := t.TempDir()

	watcher, err := New(watched)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer watcher.Close()

	if err := os.WriteFile(filepath.Join(watched, "noise"), nil, 0o644); err != nil {
		t.Fatalf("creating file: %v", err)
	}

	woke, err := watcher.Wait(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if woke {
		t.Fatal("woke on IN_CREATE; watch should cover IN_MOVED_TO only")
	}
}

func TestDrainEmpty(t *testing.T) {
	watcher, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer watcher.Close()

	names, err := watcher.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("Drain returned %v for an idle watch", names)
	}
}

func TestClosedWatcher(t *testing.T) {
	watcher, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := watcher.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := watcher.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := watcher.Wait(time.Millisecond); err == nil {
		t.Fatal("Wait on closed watcher should error")
	}
	if _, err := watcher.Drain(); err == nil {
		t.Fatal("Drain on closed watcher should error")
	}
}

// rawEvent builds one wire-format inotify event with the given name,
// null-padded the way the kernel pads it.
func rawEvent(name string, pad int) []byte {
	nameBytes := append([]byte(name), make([]byte, pad+1)...)
	event := make([]byte, unix.SizeofInotifyEvent, unix.SizeofInotifyEvent+len(nameBytes))
	binary.NativeEndian.PutUint32(event[4:8], unix.IN_MOVED_TO)
	binary.NativeEndian.PutUint32(event[12:16], uint32(len(nameBytes)))
	return append(event, nameBytes...)
}

func TestEventNamesParsing(t *testing.T) {
	var buffer []byte
	buffer = append(buffer, rawEvent("queue", 10)...)
	buffer = append(buffer, rawEvent("data", 3)...)

	names := eventNames(buffer)
	if len(names) != 2 || names[0] != "queue" || names[1] != "data" {
		t.Fatalf("eventNames = %v, want [queue data]", names)
	}
}

func TestEventNamesTruncatedBuffer(t *testing.T) {
	buffer := rawEvent("queue", 2)

	// A partial trailing event must not panic or produce a name.
	names := eventNames(buffer[:len(buffer)-4])
	if len(names) != 0 {
		t.Fatalf("eventNames on truncated buffer = %v, want none", names)
	}
}
