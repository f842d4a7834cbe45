// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/devbroker/lib/devnode"
	"github.com/bureau-foundation/devbroker/lib/dirwatch"
	"github.com/bureau-foundation/devbroker/udev"
)

// Decision failure reasons. A decision's Reason says which stage
// produced its verdict; only "policy" means rules actually ran.
const (
	// ReasonPolicy: the verdict is the fold of the rule verdicts.
	ReasonPolicy = "policy"

	// ReasonSync: queue synchronization failed (watch setup error,
	// deadline, cancellation). Fail-closed Deny.
	ReasonSync = "sync"

	// ReasonLookup: the path did not resolve to an indexed device
	// node. Fail-closed Deny.
	ReasonLookup = "lookup"

	// ReasonRulePanic: a rule panicked. Fail-closed Deny.
	ReasonRulePanic = "rule-panic"
)

// Decision is the full audit record of one evaluation. The wire- and
// journal-facing layers consume Decisions; callers that only act on
// the outcome use [Engine.ProcessPath] and the Verdict alone.
type Decision struct {
	// Time is when the evaluation finished.
	Time time.Time `json:"time"`

	// Path is the path the client asked about, as submitted.
	Path string `json:"path"`

	// Verdict is the final combined verdict.
	Verdict Verdict `json:"-"`

	// VerdictName is the canonical verdict string, for JSON output.
	VerdictName string `json:"verdict"`

	// Rule is the rule that last set the verdict, or "" when no rule
	// did (empty rule set, or a pre-rule failure).
	Rule string `json:"rule,omitempty"`

	// Reason is the stage that produced the verdict (Reason*).
	Reason string `json:"reason"`

	// Kind and Devnum identify the resolved device; empty when
	// resolution never happened or failed.
	Kind   string `json:"kind,omitempty"`
	Devnum string `json:"devnum,omitempty"`

	// Duration is the total evaluation time, queue wait included.
	Duration time.Duration `json:"duration"`
}

// DecisionSink receives every Decision the engine makes. Sinks run
// synchronously on the evaluation path (the audit trail is part of
// the engine's contract, not best-effort), so implementations must
// not block.
type DecisionSink interface {
	Record(decision Decision)
}

// queueWatcher is the slice of dirwatch.Watcher the engine uses.
// Interface so engine tests can script wake cycles without inotify.
type queueWatcher interface {
	Wait(timeout time.Duration) (bool, error)
	Drain() ([]string, error)
	Close() error
}

// Config carries the construction-time configuration for an Engine.
type Config struct {
	// Indexer is the device-metadata indexer handle. Required.
	Indexer udev.Indexer

	// RunDir is the indexer's run directory, watched during queue
	// synchronization. Required.
	RunDir string

	// PollInterval bounds each wait for a queue-drain notification.
	// Defaults to one second.
	PollInterval time.Duration

	// SyncDeadline bounds the whole queue synchronization. Zero means
	// no ceiling: the engine waits as long as the indexer reports a
	// busy queue.
	SyncDeadline time.Duration

	// DeviceRoot is the directory device paths must resolve under.
	// Defaults to devnode.DefaultRoot.
	DeviceRoot string

	// Logger receives the audit trail. Defaults to slog.Default().
	Logger *slog.Logger
}

// Engine owns the ordered rule list and the indexer handle, and
// evaluates device-access requests. Construct once at daemon start;
// register rules and sinks before the first evaluation; share freely
// afterwards (all remaining state is per-call).
type Engine struct {
	indexer      udev.Indexer
	runDir       string
	pollInterval time.Duration
	syncDeadline time.Duration
	deviceRoot   string
	logger       *slog.Logger
	rules        []Rule
	sinks        []DecisionSink
	started      atomic.Bool

	// newWatcher creates the per-call run-directory watcher.
	// Replaced in tests.
	newWatcher func(directory string) (queueWatcher, error)
}

// New constructs an Engine from cfg. The rule list starts empty;
// register rules with AddRule before the first evaluation.
func New(cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.DeviceRoot == "" {
		cfg.DeviceRoot = devnode.DefaultRoot
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		indexer:      cfg.Indexer,
		runDir:       cfg.RunDir,
		pollInterval: cfg.PollInterval,
		syncDeadline: cfg.SyncDeadline,
		deviceRoot:   cfg.DeviceRoot,
		logger:       cfg.Logger,
		newWatcher: func(directory string) (queueWatcher, error) {
			return dirwatch.New(directory)
		},
	}
}

// AddRule appends a rule. Registration order is evaluation order and
// is significant: later rules overwrite the special grants of earlier
// ones. Panics if called after the first evaluation — the rule list
// is immutable once the engine is in service.
func (e *Engine) AddRule(rule Rule) {
	if e.started.Load() {
		panic("policy: AddRule after first evaluation")
	}
	e.rules = append(e.rules, rule)
}

// AddSink appends a decision sink. Same immutability contract as
// AddRule.
func (e *Engine) AddSink(sink DecisionSink) {
	if e.started.Load() {
		panic("policy: AddSink after first evaluation")
	}
	e.sinks = append(e.sinks, sink)
}

// RuleNames returns the registered rule names in evaluation order.
func (e *Engine) RuleNames() []string {
	names := make([]string, len(e.rules))
	for i, rule := range e.rules {
		names[i] = rule.Name()
	}
	return names
}

// ProcessPath evaluates device access for path and returns the final
// verdict. This is the engine's public operation; everything else is
// detail. The call blocks through queue synchronization, device
// resolution, and sequential rule evaluation. Every failure mode
// collapses to Deny — callers never learn whether a Deny came from
// policy or from an unresolvable device, which is deliberate.
func (e *Engine) ProcessPath(ctx context.Context, path string) Verdict {
	return e.Decide(ctx, path).Verdict
}

// Decide is ProcessPath returning the full audit record. The broker
// layer uses it to answer clients with the deciding rule and device
// identity alongside the verdict.
func (e *Engine) Decide(ctx context.Context, path string) Decision {
	e.started.Store(true)
	start := time.Now()

	if e.syncDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.syncDeadline)
		defer cancel()
	}

	if err := e.awaitQueueSettled(ctx); err != nil {
		e.logger.Error("indexer queue synchronization failed",
			"path", path,
			"error", err,
		)
		return e.finish(Decision{Path: path, Verdict: Deny, Reason: ReasonSync}, start)
	}

	node, err := devnode.Resolve(e.deviceRoot, path)
	if err != nil {
		e.logger.Warn("device resolution failed",
			"path", path,
			"error", err,
		)
		return e.finish(Decision{Path: path, Verdict: Deny, Reason: ReasonLookup}, start)
	}

	record, ok := e.indexer.Lookup(node.Kind, node.Devnum)
	if !ok {
		e.logger.Warn("no indexer record for device",
			"path", node.Path,
			"kind", node.Kind.String(),
			"devnum", node.Devnum.String(),
		)
		return e.finish(Decision{
			Path:    path,
			Verdict: Deny,
			Reason:  ReasonLookup,
			Kind:    node.Kind.String(),
			Devnum:  node.Devnum.String(),
		}, start)
	}

	device := &Device{Node: node, Record: record}
	decision := Decision{
		Path:   path,
		Reason: ReasonPolicy,
		Kind:   node.Kind.String(),
		Devnum: node.Devnum.String(),
	}

	result := Ignore
	for _, rule := range e.rules {
		verdict, panicked := e.evaluate(rule, device)
		if panicked {
			decision.Verdict = Deny
			decision.Rule = rule.Name()
			decision.Reason = ReasonRulePanic
			return e.finish(decision, start)
		}

		if verdict != Ignore {
			e.logger.Info("rule verdict",
				"rule", rule.Name(),
				"verdict", verdict.String(),
				"path", node.Path,
			)
		}

		if verdict == Deny {
			// Absorbing: nothing after this rule runs, so nothing
			// can un-deny the device.
			result = Deny
			decision.Rule = rule.Name()
			break
		}
		if combined := Combine(result, verdict); combined != result {
			result = combined
			decision.Rule = rule.Name()
		}
	}

	decision.Verdict = result
	return e.finish(decision, start)
}

// evaluate runs one rule with panic containment. A panicking rule is
// a broken pluggable component; it degrades the call to Deny rather
// than taking down the daemon or, worse, falling through to a grant.
func (e *Engine) evaluate(rule Rule, device *Device) (verdict Verdict, panicked bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			e.logger.Error("rule panicked",
				"rule", rule.Name(),
				"path", device.Node.Path,
				"panic", fmt.Sprint(recovered),
			)
			verdict = Deny
			panicked = true
		}
	}()
	return rule.Evaluate(device), false
}

// awaitQueueSettled blocks until the indexer reports an empty event
// queue. Fast path: no pending events, no watch, no blocking.
// Otherwise it installs a fresh moved-into watch on the run directory
// (the indexer renames its queue control file there when the queue
// drains), then alternates bounded waits with re-checks. The watch is
// installed before the re-check, so a drain landing in between is
// observed, not missed.
func (e *Engine) awaitQueueSettled(ctx context.Context) error {
	if e.indexer.QueueEmpty() {
		return nil
	}

	watcher, err := e.newWatcher(e.runDir)
	if err != nil {
		return fmt.Errorf("watching indexer run directory %s: %w", e.runDir, err)
	}
	defer watcher.Close()

	for !e.indexer.QueueEmpty() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("waiting for indexer queue to settle: %w", err)
		}

		woke, err := watcher.Wait(e.pollInterval)
		if err != nil {
			return fmt.Errorf("waiting for queue notification: %w", err)
		}
		if woke {
			// The events' content is irrelevant; their arrival is
			// the wake signal. Read errors here are transient — the
			// loop re-checks the queue either way.
			if _, err := watcher.Drain(); err != nil {
				e.logger.Warn("draining queue notifications", "error", err)
			}
		}
	}
	return nil
}

// finish stamps the decision, logs the contract-mandated final audit
// line, and fans the decision out to the sinks.
func (e *Engine) finish(decision Decision, start time.Time) Decision {
	decision.Time = time.Now()
	decision.VerdictName = decision.Verdict.String()
	decision.Duration = time.Since(start)

	e.logger.Info("device access decision",
		"path", decision.Path,
		"verdict", decision.VerdictName,
		"rule", decision.Rule,
		"reason", decision.Reason,
		"kind", decision.Kind,
		"devnum", decision.Devnum,
		"duration", decision.Duration,
	)

	for _, sink := range e.sinks {
		sink.Record(decision)
	}
	return decision
}
