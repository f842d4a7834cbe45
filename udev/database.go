// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package udev

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bureau-foundation/devbroker/lib/devnode"
)

// Database reads the indexer's published on-disk state: the queue
// file and per-device data files under its run directory, plus the
// kernel's sysfs tree for structural metadata. All reads are
// independent of the udev daemon itself — this is the same state
// libudev clients consume.
//
// Database is stateless; every Lookup re-reads from disk. Records
// must not be cached across policy decisions (the daemon may have
// reprocessed the device), and re-reading is what makes that property
// free.
type Database struct {
	runDir  string
	sysRoot string
	logger  *slog.Logger
}

// NewDatabase returns a Database over the given udev run directory
// (normally /run/udev) and sysfs root (normally /sys). Both roots are
// parameters so tests can point at fixture trees.
func NewDatabase(runDir, sysRoot string, logger *slog.Logger) *Database {
	return &Database{
		runDir:  runDir,
		sysRoot: sysRoot,
		logger:  logger,
	}
}

// QueueEmpty reports whether the indexer's event queue is drained.
// The daemon maintains a "queue" file in its run directory exactly
// while events are pending and renames it away when the queue drains,
// so absence of the file is the settled state.
func (db *Database) QueueEmpty() bool {
	_, err := os.Stat(filepath.Join(db.runDir, "queue"))
	if err == nil {
		return false
	}
	if os.IsNotExist(err) {
		return true
	}
	// Cannot confirm the queue is drained; report busy and let the
	// caller's wait loop retry.
	db.logger.Warn("cannot stat indexer queue file", "run_dir", db.runDir, "error", err)
	return false
}

// Lookup reads the data file for (kind, devnum) and enriches the
// record from sysfs. A missing data file is a failed lookup; every
// sysfs read after that is best-effort, leaving the corresponding
// field empty rather than failing the record.
func (db *Database) Lookup(kind devnode.Kind, devnum devnode.Devnum) (*Device, bool) {
	dataPath := filepath.Join(db.runDir, "data", kind.Prefix()+devnum.String())
	data, err := os.ReadFile(dataPath)
	if err != nil {
		if !os.IsNotExist(err) {
			db.logger.Warn("reading indexer data file", "path", dataPath, "error", err)
		}
		return nil, false
	}

	device := &Device{
		Kind:       kind,
		Devnum:     devnum,
		Properties: make(map[string]string),
	}
	db.parseDataFile(device, string(data))
	db.readSysfs(device)

	return device, true
}

// parseDataFile fills a Device from the udev database line format.
// Each line is a single-letter record type, a colon, and a payload:
//
//	I:<usec>          initialization timestamp
//	E:<key>=<value>   property
//	G:<tag>           tag
//	Q:<tag>           current tag (subset of G; folded into Tags)
//	S:<path>          devlink, relative to /dev
//	L:<priority>      devlink priority (ignored)
//	V:<revision>      database revision (ignored)
//
// Unknown record types are skipped so newer daemons do not break the
// parse.
func (db *Database) parseDataFile(device *Device, content string) {
	tags := make(map[string]bool)
	for _, line := range strings.Split(content, "\n") {
		if len(line) < 2 || line[1] != ':' {
			continue
		}
		payload := line[2:]
		switch line[0] {
		case 'I':
			device.Initialized = true
		case 'E':
			key, value, found := strings.Cut(payload, "=")
			if found && key != "" {
				device.Properties[key] = value
			}
		case 'G', 'Q':
			if payload != "" {
				tags[payload] = true
			}
		case 'S':
			if payload != "" {
				device.Devlinks = append(device.Devlinks, filepath.Join("/dev", payload))
			}
		}
	}

	for tag := range tags {
		device.Tags = append(device.Tags, tag)
	}
	sort.Strings(device.Tags)
}

// readSysfs resolves the device's sysfs directory from the kernel's
// device-number registry and fills the structural fields: syspath,
// subsystem, driver, devname, and — for USB devices — the vendor and
// product IDs and per-interface records.
func (db *Database) readSysfs(device *Device) {
	kindDir := "char"
	if device.Kind == devnode.Block {
		kindDir = "block"
	}
	registry := filepath.Join(db.sysRoot, "dev", kindDir, device.Devnum.String())
	target, err := os.Readlink(registry)
	if err != nil {
		db.logger.Warn("resolving sysfs device registry link", "path", registry, "error", err)
		return
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(registry), target)
	}
	device.Syspath = filepath.Clean(target)

	device.Subsystem = linkBasename(filepath.Join(device.Syspath, "subsystem"))
	device.Driver = linkBasename(filepath.Join(device.Syspath, "driver"))

	if name := ueventValue(device.Syspath, "DEVNAME"); name != "" {
		device.Devname = filepath.Join("/dev", name)
	}

	db.readUSB(device)
}

// readUSB walks from the device's syspath toward the sysfs root
// looking for the USB device ancestor (the directory carrying
// idVendor/idProduct), then records its IDs and interfaces. Non-USB
// devices have no such ancestor and are left untouched.
func (db *Database) readUSB(device *Device) {
	usbDir := ""
	for dir := device.Syspath; strings.HasPrefix(dir, db.sysRoot) && dir != db.sysRoot; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			usbDir = dir
			break
		}
	}
	if usbDir == "" {
		return
	}

	// The indexer's own properties win; sysfs fills gaps for records
	// whose property annotation has not landed yet.
	if vendor := attributeValue(usbDir, "idVendor"); vendor != "" {
		if _, ok := device.Properties[PropertyVendorID]; !ok {
			device.Properties[PropertyVendorID] = vendor
		}
	}
	if model := attributeValue(usbDir, "idProduct"); model != "" {
		if _, ok := device.Properties[PropertyModelID]; !ok {
			device.Properties[PropertyModelID] = model
		}
	}

	// Interface directories are named <usb-device>:<config>.<iface>,
	// e.g. 1-4:1.0 under 1-4.
	pattern := filepath.Join(usbDir, filepath.Base(usbDir)+":*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}
	sort.Strings(matches)
	for _, interfaceDir := range matches {
		number, numberErr := hexAttribute(interfaceDir, "bInterfaceNumber")
		class, classErr := hexAttribute(interfaceDir, "bInterfaceClass")
		if numberErr != nil || classErr != nil {
			db.logger.Warn("malformed USB interface descriptors", "path", interfaceDir)
			continue
		}
		device.Interfaces = append(device.Interfaces, Interface{
			Number: number,
			Class:  class,
			Driver: linkBasename(filepath.Join(interfaceDir, "driver")),
		})
	}
}

// linkBasename returns the basename of a symlink's target, or ""
// when the link does not exist. Sysfs expresses subsystem and driver
// membership as symlinks into the respective registries.
func linkBasename(path string) string {
	target, err := os.Readlink(path)
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

// ueventValue extracts one key's value from the uevent file in a
// sysfs device directory.
func ueventValue(syspath, key string) string {
	data, err := os.ReadFile(filepath.Join(syspath, "uevent"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if value, found := strings.CutPrefix(line, key+"="); found {
			return value
		}
	}
	return ""
}

// attributeValue reads a sysfs attribute file and trims the trailing
// newline.
func attributeValue(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// hexAttribute reads a sysfs attribute holding a hex byte value
// (bInterfaceNumber, bInterfaceClass).
func hexAttribute(dir, name string) (int, error) {
	value, err := strconv.ParseInt(attributeValue(dir, name), 16, 32)
	return int(value), err
}
