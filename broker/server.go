// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/devbroker/lib/codec"
	"github.com/bureau-foundation/devbroker/policy"
)

// ServerConfig carries the construction-time state for a Server.
type ServerConfig struct {
	// Engine makes the decisions. Required.
	Engine *policy.Engine

	// Version is the daemon build version reported by status.
	Version string

	// PolicyDigest identifies the loaded policy document set.
	PolicyDigest string

	// DeviceRoot and RunDir echo the engine configuration in status
	// output.
	DeviceRoot string
	RunDir     string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server answers broker IPC requests over a unix socket: one CBOR
// request per connection, except "watch", which holds the connection
// open for a decision stream.
//
// Server is also a policy.DecisionSink: registering it with the
// engine feeds the per-verdict counters and the watch streams.
type Server struct {
	engine       *policy.Engine
	logger       *slog.Logger
	version      string
	policyDigest string
	deviceRoot   string
	runDir       string
	started      time.Time

	mu             sync.Mutex
	counters       map[string]uint64
	subscribers    map[uint64]chan DecisionEvent
	nextSubscriber uint64
}

// NewServer constructs a Server. Register it with the engine via
// AddSink before serving.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		engine:       cfg.Engine,
		logger:       cfg.Logger,
		version:      cfg.Version,
		policyDigest: cfg.PolicyDigest,
		deviceRoot:   cfg.DeviceRoot,
		runDir:       cfg.RunDir,
		started:      time.Now(),
		counters:     make(map[string]uint64),
		subscribers:  make(map[uint64]chan DecisionEvent),
	}
}

// Record implements policy.DecisionSink: it bumps the per-verdict
// counter and fans the decision out to watch subscribers. Sends never
// block — a subscriber that cannot keep up loses events. The journal,
// not the watch stream, is the durable audit trail.
func (s *Server) Record(decision policy.Decision) {
	event := eventFromDecision(decision)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[decision.VerdictName]++
	for _, subscriber := range s.subscribers {
		select {
		case subscriber <- event:
		default:
		}
	}
}

// Serve accepts connections until ctx is cancelled. Each connection
// is handled in its own goroutine; cancellation closes the listener,
// which unblocks Accept.
func (s *Server) Serve(ctx context.Context, listener net.Listener) {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection processes a single request/response cycle.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Deadline for the whole cycle. Watch streams clear it once the
	// subscription is acknowledged.
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	decoder := codec.NewDecoder(conn)
	encoder := codec.NewEncoder(conn)

	var request Request
	if err := decoder.Decode(&request); err != nil {
		s.logger.Error("decoding broker request", "error", err)
		if err := encoder.Encode(Response{OK: false, Error: "invalid request"}); err != nil {
			s.logger.Error("encoding broker error response", "error", err)
		}
		return
	}

	s.logger.Info("broker request", "action", request.Action, "path", request.Path)

	var response Response
	switch request.Action {
	case ActionCheck:
		response = s.handleCheck(ctx, &request)

	case ActionStatus:
		response = s.handleStatus()

	case ActionWatch:
		s.handleWatch(ctx, conn, encoder)
		return

	default:
		response = Response{OK: false, Error: "unknown action: " + request.Action}
	}

	if err := encoder.Encode(response); err != nil {
		s.logger.Error("encoding broker response", "error", err)
	}
}

func (s *Server) handleCheck(ctx context.Context, request *Request) Response {
	if request.Path == "" {
		return Response{OK: false, Error: "check requires a path"}
	}

	decision := s.engine.Decide(ctx, request.Path)
	return Response{
		OK:      true,
		Verdict: decision.VerdictName,
		Rule:    decision.Rule,
		Reason:  decision.Reason,
		Kind:    decision.Kind,
		Devnum:  decision.Devnum,
	}
}

func (s *Server) handleStatus() Response {
	s.mu.Lock()
	decisions := make(map[string]uint64, len(s.counters))
	for verdict, count := range s.counters {
		decisions[verdict] = count
	}
	s.mu.Unlock()

	return Response{
		OK: true,
		Status: &StatusInfo{
			Version:      s.version,
			PolicyDigest: s.policyDigest,
			Rules:        s.engine.RuleNames(),
			DeviceRoot:   s.deviceRoot,
			RunDir:       s.runDir,
			Started:      s.started,
			Decisions:    decisions,
		},
	}
}

// handleWatch acknowledges the subscription, then streams decision
// events until the client disconnects or ctx is cancelled. The
// connection deadline is cleared: a watch is expected to sit idle for
// as long as no device requests arrive.
func (s *Server) handleWatch(ctx context.Context, conn net.Conn, encoder *codec.Encoder) {
	if err := encoder.Encode(Response{OK: true}); err != nil {
		s.logger.Error("acknowledging watch subscription", "error", err)
		return
	}
	conn.SetDeadline(time.Time{})

	id, events := s.subscribe()
	defer s.unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if err := encoder.Encode(event); err != nil {
				// Client went away; routine end of the stream.
				return
			}
		}
	}
}

func (s *Server) subscribe() (uint64, chan DecisionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubscriber
	s.nextSubscriber++
	// Buffer absorbs decision bursts while the subscriber's encode of
	// the previous event is in flight.
	events := make(chan DecisionEvent, 64)
	s.subscribers[id] = events
	return id, events
}

func (s *Server) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, id)
}
