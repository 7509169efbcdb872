// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client talks to a running pivd. Each call opens a new
// connection, sends one request, reads one response, and closes,
// matching the daemon's one-request-per-connection model.
package client

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/bureau-foundation/pivd/lib/frame"
	"github.com/bureau-foundation/pivd/lib/protocol"
	"github.com/bureau-foundation/pivd/lib/token"
)

// DefaultTimeout bounds a call when ctx has no deadline. A PIV agreement
// that needs a touch can take several seconds.
const DefaultTimeout = 30 * time.Second

// Client sends requests to a pivd socket.
type Client struct {
	socketPath string
}

// New returns a client for the daemon listening on socketPath.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends one raw request and returns the raw response text.
func (c *Client) Call(ctx context.Context, request string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	conn.SetDeadline(deadline)

	if err := frame.Write(conn, []byte(request)); err != nil {
		return "", fmt.Errorf("writing request: %w", err)
	}

	payload, err := frame.Read(conn, make([]byte, frame.MaxPayload))
	if err != nil {
		return "", fmt.Errorf("reading response (the daemon drops malformed requests without answering): %w", err)
	}
	return string(payload), nil
}

// CalculateAgreement asks the daemon for X25519(slot key, peerKey).
// peerKey is the 33-byte tagged public key as sent on the wire. Daemon
// "error" responses are returned as *protocol.ResponseError.
func (c *Client) CalculateAgreement(ctx context.Context, slot token.Slot, peerKey []byte) ([]byte, error) {
	request := fmt.Sprintf("%s %s %s", protocol.CodeCalculateAgreement, slot, hex.EncodeToString(peerKey))
	response, err := c.Call(ctx, request)
	if err != nil {
		return nil, err
	}
	return protocol.ParseResponse(response)
}
