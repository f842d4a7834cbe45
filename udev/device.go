// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package udev

import (
	"github.com/bureau-foundation/devbroker/lib/devnode"
)

// Well-known property keys the indexer attaches to device records.
// The values are what rules and audit output key on.
const (
	PropertyVendorID = "ID_VENDOR_ID"
	PropertyModelID  = "ID_MODEL_ID"
	PropertySerial   = "ID_SERIAL"
)

// Device is one indexer record: the settled metadata for a single
// kernel device. Records are read-only snapshots — a record observed
// by one policy decision must not be cached for the next, because the
// indexer may have reprocessed the device in between.
type Device struct {
	// Syspath is the device's directory under /sys.
	Syspath string

	// Subsystem is the kernel subsystem (tty, block, hidraw, ...).
	Subsystem string

	// Driver is the kernel driver bound to the device, or empty.
	Driver string

	// Devname is the device node path the kernel advertises, or empty.
	Devname string

	// Kind and Devnum identify the node this record backs.
	Kind   devnode.Kind
	Devnum devnode.Devnum

	// Properties are the indexer's key=value annotations
	// (ID_VENDOR_ID, ID_MODEL_ID, ID_SERIAL, ...).
	Properties map[string]string

	// Tags are the indexer's tag annotations.
	Tags []string

	// Devlinks are the symlink aliases the indexer maintains for the
	// node, as absolute paths.
	Devlinks []string

	// Initialized reports whether the indexer has finished processing
	// the device's add/change events. Uninitialized records may be
	// missing properties.
	Initialized bool

	// Interfaces are the USB interface records for devices on the USB
	// bus; empty for everything else.
	Interfaces []Interface
}

// Interface is one USB interface of a device and the kernel driver
// currently claiming it, if any.
type Interface struct {
	// Number is the bInterfaceNumber descriptor field.
	Number int

	// Class is the bInterfaceClass descriptor field.
	Class int

	// Driver is the kernel driver bound to the interface, or empty
	// when nothing has claimed it.
	Driver string
}

// Property returns the named property value, or "" when absent.
func (d *Device) Property(key string) string {
	return d.Properties[key]
}

// VendorID returns the 4-hex-digit USB vendor ID, or "".
func (d *Device) VendorID() string {
	return d.Property(PropertyVendorID)
}

// ModelID returns the 4-hex-digit USB product ID, or "".
func (d *Device) ModelID() string {
	return d.Property(PropertyModelID)
}

// HasTag reports whether the record carries the given tag.
func (d *Device) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Indexer is the engine's view of the device-metadata indexer. The
// production implementation is [Database], reading udev's published
// on-disk state; tests use [Fake].
type Indexer interface {
	// QueueEmpty reports whether the indexer has finished processing
	// all pending device events. Policy must not run against records
	// that are still settling.
	QueueEmpty() bool

	// Lookup returns the record for the device backing (kind,
	// devnum), or false when the indexer knows no such device.
	Lookup(kind devnode.Kind, devnum devnode.Devnum) (*Device, bool)
}
