// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package udev

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/devbroker/lib/devnode"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// usbSerialFixture builds a run directory and sysfs tree describing a
// CH341 USB serial adapter at char 188:0, and returns both roots.
func usbSerialFixture(t *testing.T) (runDir, sysRoot string) {
	t.Helper()
	runDir = t.TempDir()
	sysRoot = t.TempDir()

	dataFile := "I:89346131\n" +
		"E:ID_VENDOR_ID=1a86\n" +
		"E:ID_MODEL_ID=7523\n" +
		"E:ID_SERIAL=1a86_USB_Serial\n" +
		"G:seat\n" +
		"Q:seat\n" +
		"S:serial/by-id/usb-1a86_USB_Serial-if00-port0\n" +
		"L:0\n"
	mustWrite(t, filepath.Join(runDir, "data", "c188:0"), dataFile)

	usbDevice := filepath.Join(sysRoot, "devices", "pci0000:00", "usb1", "1-4")
	interfaceDir := filepath.Join(usbDevice, "1-4:1.0")
	ttyDir := filepath.Join(interfaceDir, "ttyUSB", "ttyUSB0")

	mustWrite(t, filepath.Join(usbDevice, "idVendor"), "1a86\n")
	mustWrite(t, filepath.Join(usbDevice, "idProduct"), "7523\n")
	mustWrite(t, filepath.Join(interfaceDir, "bInterfaceNumber"), "00\n")
	mustWrite(t, filepath.Join(interfaceDir, "bInterfaceClass"), "ff\n")
	mustWrite(t, filepath.Join(ttyDir, "uevent"), "MAJOR=188\nMINOR=0\nDEVNAME=ttyUSB0\n")

	mustSymlink(t, filepath.Join(sysRoot, "class", "tty"), filepath.Join(ttyDir, "subsystem"))
	mustSymlink(t, filepath.Join(sysRoot, "bus", "usb-serial", "drivers", "ch341-uart"), filepath.Join(ttyDir, "driver"))
	mustSymlink(t, filepath.Join(sysRoot, "bus", "usb", "drivers", "ch341"), filepath.Join(interfaceDir, "driver"))

	// Registry links are relative, matching the kernel's layout.
	mustSymlink(t, "../../devices/pci0000:00/usb1/1-4/1-4:1.0/ttyUSB/ttyUSB0",
		filepath.Join(sysRoot, "dev", "char", "188:0"))

	return runDir, sysRoot
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustSymlink(t *testing.T, target, link string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		t.Fatal(err)
	}
	if filepath.IsAbs(target) {
		if err := os.MkdirAll(target, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
}

func TestQueueEmpty(t *testing.T) {
	runDir := t.TempDir()
	db := NewDatabase(runDir, t.TempDir(), testLogger())

	if !db.QueueEmpty() {
		t.Fatal("empty run directory should report a drained queue")
	}

	mustWrite(t, filepath.Join(runDir, "queue"), "")
	if db.QueueEmpty() {
		t.Fatal("queue file present should report a busy queue")
	}

	if err := os.Remove(filepath.Join(runDir, "queue")); err != nil {
		t.Fatal(err)
	}
	if !db.QueueEmpty() {
		t.Fatal("queue file removed should report a drained queue")
	}
}

func TestLookupUSBSerial(t *testing.T) {
	runDir, sysRoot := usbSerialFixture(t)
	db := NewDatabase(runDir, sysRoot, testLogger())

	device, ok := db.Lookup(devnode.Character, devnode.Devnum{Major: 188, Minor: 0})
	if !ok {
		t.Fatal("Lookup returned no record")
	}

	if !device.Initialized {
		t.Error("record with I: line should be initialized")
	}
	if got := device.VendorID(); got != "1a86" {
		t.Errorf("vendor ID = %q, want 1a86", got)
	}
	if got := device.ModelID(); got != "7523" {
		t.Errorf("model ID = %q, want 7523", got)
	}
	if !device.HasTag("seat") {
		t.Errorf("tags = %v, want seat", device.Tags)
	}
	if len(device.Devlinks) != 1 || device.Devlinks[0] != "/dev/serial/by-id/usb-1a86_USB_Serial-if00-port0" {
		t.Errorf("devlinks = %v", device.Devlinks)
	}
	if device.Subsystem != "tty" {
		t.Errorf("subsystem = %q, want tty", device.Subsystem)
	}
	if device.Driver != "ch341-uart" {
		t.Errorf("driver = %q, want ch341-uart", device.Driver)
	}
	if device.Devname != "/dev/ttyUSB0" {
		t.Errorf("devname = %q, want /dev/ttyUSB0", device.Devname)
	}

	if len(device.Interfaces) != 1 {
		t.Fatalf("interfaces = %v, want one", device.Interfaces)
	}
	iface := device.Interfaces[0]
	if iface.Number != 0 || iface.Class != 0xff || iface.Driver != "ch341" {
		t.Errorf("interface = %+v, want number 0, class ff, driver ch341", iface)
	}
}

func TestLookupMissingRecord(t *testing.T) {
	db := NewDatabase(t.TempDir(), t.TempDir(), testLogger())

	if _, ok := db.Lookup(devnode.Block, devnode.Devnum{Major: 8, Minor: 1}); ok {
		t.Fatal("Lookup with no data file should fail")
	}
}

func TestLookupUninitializedRecord(t *testing.T) {
	runDir := t.TempDir()
	mustWrite(t, filepath.Join(runDir, "data", "c188:0"), "E:ID_VENDOR_ID=1a86\n")
	db := NewDatabase(runDir, t.TempDir(), testLogger())

	device, ok := db.Lookup(devnode.Character, devnode.Devnum{Major: 188, Minor: 0})
	if !ok {
		t.Fatal("data file present; lookup should succeed")
	}
	if device.Initialized {
		t.Error("record without I: line should not be initialized")
	}
}

func TestLookupSurvivesMissingSysfs(t *testing.T) {
	// The sysfs enrichment is best-effort: a record whose device
	// vanished from /sys still resolves from the data file alone.
	runDir := t.TempDir()
	mustWrite(t, filepath.Join(runDir, "data", "b8:1"), "I:1\nE:ID_FS_TYPE=ext4\n")
	db := NewDatabase(runDir, t.TempDir(), testLogger())

	device, ok := db.Lookup(devnode.Block, devnode.Devnum{Major: 8, Minor: 1})
	if !ok {
		t.Fatal("Lookup should succeed without sysfs")
	}
	if device.Syspath != "" || device.Subsystem != "" {
		t.Errorf("sysfs fields should be empty, got syspath %q subsystem %q", device.Syspath, device.Subsystem)
	}
	if device.Property("ID_FS_TYPE") != "ext4" {
		t.Errorf("properties = %v", device.Properties)
	}
}

func TestParseDataFileMalformedLines(t *testing.T) {
	runDir := t.TempDir()
	mustWrite(t, filepath.Join(runDir, "data", "c1:3"),
		"E:NOVALUE\nE:=orphan\nX:unknown\n\nE:GOOD=yes\nbadline\n")
	db := NewDatabase(runDir, t.TempDir(), testLogger())

	device, ok := db.Lookup(devnode.Character, devnode.Devnum{Major: 1, Minor: 3})
	if !ok {
		t.Fatal("Lookup should succeed")
	}
	if len(device.Properties) != 1 || device.Property("GOOD") != "yes" {
		t.Errorf("properties = %v, want only GOOD=yes", device.Properties)
	}
}
