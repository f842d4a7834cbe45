// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/devbroker/policy"
)

// journalName is the active audit segment filename.
const journalName = "decisions.log"

// Journal is the durable audit trail: every decision appended as one
// JSON line to <dir>/decisions.log. When the active segment exceeds
// the rotation threshold it is compressed to
// decisions-<timestamp>.log.zst and a fresh segment starts.
//
// Journal implements policy.DecisionSink. Writes happen synchronously
// on the decision path, but write failures degrade to warnings — a
// full disk must not become a device-access outage.
type Journal struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewJournal opens (or creates) the active segment under dir.
func NewJournal(dir string, maxBytes int64, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating audit directory %s: %w", dir, err)
	}

	journal := &Journal{dir: dir, maxBytes: maxBytes, logger: logger}
	if err := journal.open(); err != nil {
		return nil, err
	}
	return journal, nil
}

func (j *Journal) open() error {
	path := filepath.Join(j.dir, journalName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("opening audit journal %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("statting audit journal %s: %w", path, err)
	}
	j.file = file
	j.size = info.Size()
	return nil
}

// Record implements policy.DecisionSink.
func (j *Journal) Record(decision policy.Decision) {
	line, err := json.Marshal(decision)
	if err != nil {
		j.logger.Warn("encoding audit record", "error", err)
		return
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return
	}
	written, err := j.file.Write(line)
	j.size += int64(written)
	if err != nil {
		j.logger.Warn("writing audit record", "error", err)
		return
	}

	if j.maxBytes > 0 && j.size >= j.maxBytes {
		if err := j.rotate(); err != nil {
			j.logger.Warn("rotating audit journal", "error", err)
		}
	}
}

// rotate compresses the closed segment and starts a fresh one. Called
// with the lock held.
func (j *Journal) rotate() error {
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("closing active segment: %w", err)
	}
	j.file = nil

	active := filepath.Join(j.dir, journalName)
	stamp := time.Now().UTC().Format("20060102T150405Z")
	archive := filepath.Join(j.dir, fmt.Sprintf("decisions-%s.log.zst", stamp))

	if err := compressFile(active, archive); err != nil {
		// Leave the uncompressed segment in place; reopening appends
		// to it and rotation retries at the next threshold crossing.
		if openErr := j.open(); openErr != nil {
			return fmt.Errorf("compressing segment: %w (and reopening failed: %v)", err, openErr)
		}
		return fmt.Errorf("compressing segment: %w", err)
	}
	if err := os.Remove(active); err != nil {
		return fmt.Errorf("removing compressed segment: %w", err)
	}

	return j.open()
}

// Close flushes and closes the active segment. Records arriving after
// Close are dropped.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// compressFile writes a zstd-compressed copy of source at target.
// SpeedDefault: audit lines are repetitive JSON, where the default
// level already compresses far better than the fast level for a cost
// that is irrelevant at rotation frequency.
func compressFile(source, target string) error {
	input, err := os.Open(source)
	if err != nil {
		return err
	}
	defer input.Close()

	output, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}

	encoder, err := zstd.NewWriter(output, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		output.Close()
		os.Remove(target)
		return err
	}

	if _, err := io.Copy(encoder, input); err != nil {
		encoder.Close()
		output.Close()
		os.Remove(target)
		return err
	}
	if err := encoder.Close(); err != nil {
		output.Close()
		os.Remove(target)
		return err
	}
	if err := output.Close(); err != nil {
		os.Remove(target)
		return err
	}
	return nil
}
