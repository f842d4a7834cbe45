// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bureau-foundation/devbroker/lib/codec"
)

// Client talks to a running broker daemon over its unix socket. Each
// operation opens its own connection, matching the one-request-per-
// connection protocol.
type Client struct {
	socketPath string
}

// NewClient returns a Client for the daemon at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

func (c *Client) roundTrip(request Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker at %s: %w", c.socketPath, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("sending %s request: %w", request.Action, err)
	}

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading %s response: %w", request.Action, err)
	}
	if !response.OK {
		return nil, fmt.Errorf("broker refused %s: %s", request.Action, response.Error)
	}
	return &response, nil
}

// Check asks the daemon to evaluate device access for path.
func (c *Client) Check(path string) (*Response, error) {
	return c.roundTrip(Request{Action: ActionCheck, Path: path})
}

// Status fetches the daemon's self-description.
func (c *Client) Status() (*StatusInfo, error) {
	response, err := c.roundTrip(Request{Action: ActionStatus})
	if err != nil {
		return nil, err
	}
	if response.Status == nil {
		return nil, fmt.Errorf("broker status response carried no status payload")
	}
	return response.Status, nil
}

// Watch subscribes to the decision stream and calls handle for each
// event until ctx is cancelled, the connection drops, or handle
// returns an error.
func (c *Client) Watch(ctx context.Context, handle func(DecisionEvent) error) error {
	conn, err := net.DialTimeout("unix", c.socketPath, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to broker at %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	// Cancellation unblocks the decode by closing the connection.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	if err := codec.NewEncoder(conn).Encode(Request{Action: ActionWatch}); err != nil {
		return fmt.Errorf("sending watch request: %w", err)
	}

	decoder := codec.NewDecoder(conn)
	var ack Response
	if err := decoder.Decode(&ack); err != nil {
		return fmt.Errorf("reading watch acknowledgement: %w", err)
	}
	if !ack.OK {
		return fmt.Errorf("broker refused watch: %s", ack.Error)
	}

	for {
		var event DecisionEvent
		if err := decoder.Decode(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("decision stream ended: %w", err)
		}
		if err := handle(event); err != nil {
			return err
		}
	}
}
