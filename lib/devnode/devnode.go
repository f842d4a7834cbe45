// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package devnode

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultRoot is the directory device nodes normally live under. Resolve
// accepts any root so tests can use a tempdir, but production callers
// should not stray from this without a reason.
const DefaultRoot = "/dev"

// Kind is the kernel device class of a node.
type Kind int

const (
	// Character is a character device (ttys, hidraw, usb endpoints).
	Character Kind = iota

	// Block is a block device (disks, partitions, loop devices).
	Block
)

// String returns "char" or "block".
func (k Kind) String() string {
	if k == Block {
		return "block"
	}
	return "char"
}

// Prefix returns the single-letter prefix udev uses for this kind in
// its on-disk database filenames and sysfs dev registries: "c" or "b".
func (k Kind) Prefix() string {
	if k == Block {
		return "b"
	}
	return "c"
}

// Devnum is a kernel device number: the (major, minor) pair that
// identifies the backing device of a node.
type Devnum struct {
	Major uint32
	Minor uint32
}

// DevnumFromRdev unpacks a stat st_rdev value into a Devnum.
func DevnumFromRdev(rdev uint64) Devnum {
	return Devnum{
		Major: unix.Major(rdev),
		Minor: unix.Minor(rdev),
	}
}

// String returns the conventional "major:minor" form.
func (d Devnum) String() string {
	return fmt.Sprintf("%d:%d", d.Major, d.Minor)
}

// Node is a resolved device node: the simplified path it was reached
// through plus the kernel identity the path led to.
type Node struct {
	// Path is the lexically simplified absolute path that was statted.
	Path string

	// Kind is the device class derived from the node's mode bits.
	Kind Kind

	// Devnum is the device number from the node's st_rdev.
	Devnum Devnum
}

// Sentinel errors for the resolution failure classes. Callers treat all
// of them as "not a usable device" — the distinctions exist for logs
// and tests, never for relaxing the outcome.
var (
	// ErrNotAbsolute is returned for relative paths. Clients name
	// devices by absolute path; anything else is malformed input.
	ErrNotAbsolute = errors.New("device path is not absolute")

	// ErrOutsideRoot is returned when the simplified path does not lie
	// under the device directory root.
	ErrOutsideRoot = errors.New("path is outside the device directory")

	// ErrNotDevice is returned when the path names something other
	// than a character or block device node.
	ErrNotDevice = errors.New("not a character or block device")
)

// Resolve validates an untrusted path against the device directory root
// and classifies the node it names. The path never mutates anything;
// resolution is read-only.
//
// The root itself is not a device node, so Resolve requires the path to
// name an entry strictly below it.
func Resolve(root, path string) (Node, error) {
	if !filepath.IsAbs(path) {
		return Node{}, fmt.Errorf("%w: %q", ErrNotAbsolute, path)
	}

	// Lexical simplification only. EvalSymlinks would stat arbitrary
	// paths the client chose before the scope check has run; Clean
	// collapses "." and ".." without touching the filesystem.
	cleaned := filepath.Clean(path)

	root = filepath.Clean(root)
	if !strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
		return Node{}, fmt.Errorf("%w: %q is not under %q", ErrOutsideRoot, cleaned, root)
	}

	var stat unix.Stat_t
	if err := unix.Stat(cleaned, &stat); err != nil {
		return Node{}, fmt.Errorf("stat %q: %w", cleaned, err)
	}

	var kind Kind
	switch stat.Mode & unix.S_IFMT {
	case unix.S_IFCHR:
		kind = Character
	case unix.S_IFBLK:
		kind = Block
	default:
		return Node{}, fmt.Errorf("%w: %q has mode %O", ErrNotDevice, cleaned, stat.Mode&unix.S_IFMT)
	}

	return Node{
		Path:   cleaned,
		Kind:   kind,
		Devnum: DevnumFromRdev(uint64(stat.Rdev)),
	}, nil
}
