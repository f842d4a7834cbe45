// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dirwatch

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Watcher observes a single directory for entries moved into it
// (IN_MOVED_TO). It is the primitive behind queue-settle waiting: the
// udev daemon signals a drained event queue by renaming a control file
// into its run directory, so a rename is the only event class that
// matters here.
//
// A Watcher is single-use and not safe for concurrent use. Callers
// open a fresh Watcher per wait so that the watch is installed before
// the state it guards is re-checked; reusing a cached descriptor would
// reintroduce the race the install-then-check ordering exists to
// avoid.
type Watcher struct {
	fd     int
	dir    string
	buffer []byte
	closed bool
}

// New installs an inotify watch for moved-into events on the given
// directory. Failure here is an environment problem (descriptor
// exhaustion, missing directory, missing permission), not a transient
// condition — callers must not proceed as if the directory were being
// watched.
func New(directory string) (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}

	if _, err := unix.InotifyAddWatch(fd, directory, unix.IN_MOVED_TO); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("inotify_add_watch on %s: %w", directory, err)
	}

	return &Watcher{
		fd:     fd,
		dir:    directory,
		buffer: make([]byte, 4096),
	}, nil
}

// Wait blocks until at least one event is pending or the timeout
// expires. Returns true if the descriptor became readable, false on
// timeout. EINTR restarts the wait with the full timeout; the waits
// here are short poll intervals, so the imprecision does not matter.
func (w *Watcher) Wait(timeout time.Duration) (bool, error) {
	if w.closed {
		return false, fmt.Errorf("dirwatch: watcher for %s is closed", w.dir)
	}

	for {
		descriptors := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
		count, err := unix.Poll(descriptors, int(timeout.Milliseconds()))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false, fmt.Errorf("poll on watch for %s: %w", w.dir, err)
		}
		return count > 0, nil
	}
}

// Drain reads and discards all pending events, returning the entry
// names they carried. The names exist for logging and tests; the
// events' arrival is the signal, not their content. Returns an empty
// slice when nothing is pending (the descriptor is non-blocking).
func (w *Watcher) Drain() ([]string, error) {
	if w.closed {
		return nil, fmt.Errorf("dirwatch: watcher for %s is closed", w.dir)
	}

	var names []string
	for {
		bytesRead, err := unix.Read(w.fd, w.buffer)
		if err != nil {
			if err == unix.EAGAIN {
				return names, nil
			}
			if err == unix.EINTR {
				continue
			}
			return names, fmt.Errorf("reading watch events for %s: %w", w.dir, err)
		}
		names = append(names, eventNames(w.buffer[:bytesRead])...)
	}
}

// Close releases the inotify descriptor. Safe to call more than once.
func (w *Watcher) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return unix.Close(w.fd)
}

// eventNames extracts the entry names from a buffer of raw inotify
// events.
//
// Inotify event layout (from inotify(7)):
//
//	struct inotify_event {
//	    int32_t  wd;     // offset 0
//	    uint32_t mask;   // offset 4
//	    uint32_t cookie; // offset 8
//	    uint32_t len;    // offset 12
//	    char     name[]; // offset 16, null-padded to alignment
//	};
func eventNames(buffer []byte) []string {
	var names []string
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		eventSize := unix.SizeofInotifyEvent + nameLength
		if offset+eventSize > len(buffer) {
			break
		}

		if nameLength > 0 {
			nameBytes := buffer[offset+unix.SizeofInotifyEvent : offset+eventSize]
			if name := nullTerminatedString(nameBytes); name != "" {
				names = append(names, name)
			}
		}

		offset += eventSize
	}
	return names
}

// nullTerminatedString extracts a string from a null-padded byte
// slice, stopping at the first null byte.
func nullTerminatedString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}
