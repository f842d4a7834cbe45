// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policyfile

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
)

// Verdict names an entry may carry. "ignore" is deliberately absent:
// a policy entry that says nothing should not exist.
var entryVerdicts = map[string]bool{
	"allow":               true,
	"allow-with-detach":   true,
	"allow-with-lockdown": true,
	"deny":                true,
}

// usbID matches the 4-hex-digit lowercase form of USB vendor and
// product IDs, the same form the indexer publishes in ID_VENDOR_ID
// and ID_MODEL_ID.
var usbID = regexp.MustCompile(`^[0-9a-f]{4}$`)

// Document is one operator-authored policy file: the device entries
// plus the driver sets the built-in rules consume. Multiple documents
// merge in load order (see LoadAll).
type Document struct {
	// Entries are the allowlist entries, matched first to last.
	Entries []Entry `json:"entries"`

	// DetachableDrivers are kernel drivers the operator permits
	// force-detaching from a claimed USB interface.
	DetachableDrivers []string `json:"detachable_drivers,omitempty"`

	// TTYDrivers are serial drivers whose tty devices may be granted
	// without an explicit entry.
	TTYDrivers []string `json:"tty_drivers,omitempty"`
}

// Entry matches a class of devices and names the verdict for it. All
// populated match fields must hold for the entry to apply; at least
// one must be populated.
type Entry struct {
	// Subsystem matches the record's kernel subsystem exactly.
	Subsystem string `json:"subsystem,omitempty"`

	// Vendor and Model match the USB vendor/product IDs, 4 lowercase
	// hex digits each.
	Vendor string `json:"vendor,omitempty"`
	Model  string `json:"model,omitempty"`

	// Devlink is a glob matched against the record's devlink aliases
	// (e.g. "/dev/serial/by-id/usb-1a86_*").
	Devlink string `json:"devlink,omitempty"`

	// Kind restricts the entry to "char" or "block" nodes.
	Kind string `json:"kind,omitempty"`

	// Verdict is the entry's outcome: allow, allow-with-detach,
	// allow-with-lockdown, or deny.
	Verdict string `json:"verdict"`

	// Comment is free-form operator documentation.
	Comment string `json:"comment,omitempty"`
}

// Parse strips JSONC comments and trailing commas from data, then
// strict-decodes the result. Unknown fields are errors: a typoed
// match key silently matching nothing would widen policy.
func Parse(data []byte) (*Document, error) {
	stripped := jsonc.ToJSON(data)

	decoder := json.NewDecoder(bytes.NewReader(stripped))
	decoder.DisallowUnknownFields()

	var document Document
	if err := decoder.Decode(&document); err != nil {
		return nil, fmt.Errorf("parsing policy document: %w", err)
	}
	return &document, nil
}

// Validate checks every entry and reports all problems at once.
func (d *Document) Validate() error {
	var problems []error
	for i, entry := range d.Entries {
		if err := entry.validate(); err != nil {
			problems = append(problems, fmt.Errorf("entry %d: %w", i, err))
		}
	}
	return errors.Join(problems...)
}

func (e *Entry) validate() error {
	var problems []error

	if e.Subsystem == "" && e.Vendor == "" && e.Model == "" && e.Devlink == "" {
		problems = append(problems, errors.New("no match fields; an entry must name at least one of subsystem, vendor, model, devlink"))
	}
	if e.Vendor != "" && !usbID.MatchString(e.Vendor) {
		problems = append(problems, fmt.Errorf("vendor %q is not 4 lowercase hex digits", e.Vendor))
	}
	if e.Model != "" && !usbID.MatchString(e.Model) {
		problems = append(problems, fmt.Errorf("model %q is not 4 lowercase hex digits", e.Model))
	}
	if e.Devlink != "" {
		if _, err := path.Match(e.Devlink, ""); err != nil {
			problems = append(problems, fmt.Errorf("devlink glob %q: %w", e.Devlink, err))
		}
	}
	if e.Kind != "" && e.Kind != "char" && e.Kind != "block" {
		problems = append(problems, fmt.Errorf("kind %q is not \"char\" or \"block\"", e.Kind))
	}
	if !entryVerdicts[e.Verdict] {
		problems = append(problems, fmt.Errorf("verdict %q is not one of allow, allow-with-detach, allow-with-lockdown, deny", e.Verdict))
	}

	return errors.Join(problems...)
}

// Load reads, parses, and validates one policy file, returning the
// document and the digest of the file's raw bytes.
func Load(filePath string) (*Document, Digest, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, Digest{}, fmt.Errorf("reading policy file: %w", err)
	}

	document, err := Parse(data)
	if err != nil {
		return nil, Digest{}, fmt.Errorf("%s: %w", filePath, err)
	}
	if err := document.Validate(); err != nil {
		return nil, Digest{}, fmt.Errorf("%s: %w", filePath, err)
	}

	return document, digestBytes(data), nil
}

// LoadAll loads and merges the given policy files in order: entries
// concatenate (earlier files match first) and the driver sets union.
// The combined digest identifies the exact loaded policy — same
// files, same order, same bytes — in status output and every audit
// record.
func LoadAll(filePaths []string) (*Document, Digest, error) {
	merged := &Document{}
	combined := blake3Keyed()

	for _, filePath := range filePaths {
		document, digest, err := Load(filePath)
		if err != nil {
			return nil, Digest{}, err
		}
		merged.Entries = append(merged.Entries, document.Entries...)
		merged.DetachableDrivers = appendUnique(merged.DetachableDrivers, document.DetachableDrivers)
		merged.TTYDrivers = appendUnique(merged.TTYDrivers, document.TTYDrivers)
		combined.Write(digest[:])
	}

	var digest Digest
	copy(digest[:], combined.Sum(nil))
	return merged, digest, nil
}

func appendUnique(existing []string, additions []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, value := range existing {
		seen[value] = true
	}
	for _, value := range additions {
		if !seen[value] {
			existing = append(existing, value)
			seen[value] = true
		}
	}
	return existing
}

// Digest is the 32-byte BLAKE3 keyed digest of a policy document (or
// of a document set, for LoadAll).
type Digest [32]byte

// String returns the hex form used in logs and status output.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// policyDomainKey keys the digest to this use. Domain separation
// keeps policy digests from colliding with any other BLAKE3 use of
// the same bytes. The key is the ASCII domain name zero-padded to 32
// bytes, inspectable in a debugger without losing any property.
var policyDomainKey = [32]byte{
	'd', 'e', 'v', 'b', 'r', 'o', 'k', 'e', 'r', '.',
	'p', 'o', 'l', 'i', 'c', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

func blake3Keyed() *blake3.Hasher {
	hasher, err := blake3.NewKeyed(policyDomainKey[:])
	if err != nil {
		// NewKeyed fails only on wrong key length, which the fixed
		// array rules out.
		panic("policyfile: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

func digestBytes(data []byte) Digest {
	hasher := blake3Keyed()
	hasher.Write(data)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}
