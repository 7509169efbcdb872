// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/curve25519"

	"github.com/bureau-foundation/pivd/lib/protocol"
	"github.com/bureau-foundation/pivd/lib/service"
	"github.com/bureau-foundation/pivd/lib/testutil"
	"github.com/bureau-foundation/pivd/lib/token"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func randomScalar(t *testing.T) []byte {
	t.Helper()
	scalar := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(scalar); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return scalar
}

// countingSession wraps a token.Session and counts Agree calls, so tests
// can tell the session is shared rather than reopened.
type countingSession struct {
	token.Session
	agreements atomic.Int32
}

func (s *countingSession) Agree(slot token.Slot, peer [token.PointSize]byte) ([]byte, error) {
	s.agreements.Add(1)
	return s.Session.Agree(slot, peer)
}

// startDaemon runs the full request path (socket server, dispatcher,
// software token) and returns a client for it.
func startDaemon(t *testing.T, slotScalar []byte) (*Client, *countingSession) {
	t.Helper()

	software, err := token.NewSoftwareSession(map[token.Slot][]byte{token.SlotR1: bytes.Clone(slotScalar)})
	if err != nil {
		t.Fatalf("NewSoftwareSession: %v", err)
	}
	t.Cleanup(func() { software.Close() })
	session := &countingSession{Session: software}

	socketPath := filepath.Join(testutil.SocketDir(t), "pivd.sock")
	server := service.NewSocketServer(
		service.SocketConfig{Path: socketPath},
		protocol.NewDispatcher(session, testLogger()),
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	serveErrors := make(chan error, 1)
	go func() { serveErrors <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, serveErrors, 5*time.Second, "waiting for Serve to return")
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")

	return New(socketPath), session
}

func TestCalculateAgreement_EndToEnd(t *testing.T) {
	slotScalar := randomScalar(t)
	slotPublic, err := curve25519.X25519(slotScalar, curve25519.Basepoint)
	if err != nil {
		t.Fatalf("slot public key: %v", err)
	}
	client, session := startDaemon(t, slotScalar)

	// Two sequential connections, each with a fresh peer key, share the
	// one session.
	for range 2 {
		peerScalar := randomScalar(t)
		peerPublic, err := curve25519.X25519(peerScalar, curve25519.Basepoint)
		if err != nil {
			t.Fatalf("peer public key: %v", err)
		}
		tagged := append([]byte{0x05}, peerPublic...)

		agreement, err := client.CalculateAgreement(context.Background(), token.SlotR1, tagged)
		if err != nil {
			t.Fatalf("CalculateAgreement: %v", err)
		}

		expected, err := curve25519.X25519(peerScalar, slotPublic)
		if err != nil {
			t.Fatalf("peer side agreement: %v", err)
		}
		if !bytes.Equal(agreement, expected) {
			t.Fatalf("agreement mismatch:\n got  %x\n want %x", agreement, expected)
		}
	}
	if used := session.agreements.Load(); used != 2 {
		t.Fatalf("session used %d times, want 2", used)
	}
}

func TestCalculateAgreement_ErrorResponse(t *testing.T) {
	client, session := startDaemon(t, randomScalar(t))

	_, err := client.CalculateAgreement(context.Background(), token.SlotR1, make([]byte, 32))
	var responseError *protocol.ResponseError
	if !errors.As(err, &responseError) {
		t.Fatalf("CalculateAgreement error = %v, want *protocol.ResponseError", err)
	}
	if !strings.HasPrefix(responseError.Message, "invalid peer key length") {
		t.Errorf("Message = %q", responseError.Message)
	}
	if used := session.agreements.Load(); used != 0 {
		t.Errorf("session used %d times, want 0", used)
	}
}

func TestCalculateAgreement_EmptySlot(t *testing.T) {
	client, _ := startDaemon(t, randomScalar(t))

	peer := append([]byte{0x05}, bytes.Repeat([]byte{9}, 32)...)
	_, err := client.CalculateAgreement(context.Background(), token.SlotR2, peer)
	var responseError *protocol.ResponseError
	if !errors.As(err, &responseError) {
		t.Fatalf("CalculateAgreement error = %v, want *protocol.ResponseError", err)
	}
	if !strings.HasPrefix(responseError.Message, "hardware failed to calculate agreement") {
		t.Errorf("Message = %q", responseError.Message)
	}
}

func TestCall_NoDaemon(t *testing.T) {
	client := New(filepath.Join(testutil.SocketDir(t), "absent.sock"))
	if _, err := client.Call(context.Background(), "calculate_agreement R1 00"); err == nil {
		t.Fatal("expected error connecting to a missing socket")
	}
}
