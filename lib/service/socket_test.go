// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/pivd/lib/frame"
	"github.com/bureau-foundation/pivd/lib/netutil"
	"github.com/bureau-foundation/pivd/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// countingHandler echoes requests back with a prefix and counts calls.
type countingHandler struct {
	calls atomic.Int32
}

func (h *countingHandler) Handle(request string) string {
	h.calls.Add(1)
	return "success " + request
}

// startServer runs a SocketServer in the background and returns it with
// a channel that receives Serve's result. The server is stopped when the
// test ends.
func startServer(t *testing.T, config SocketConfig, handler Handler) (*SocketServer, <-chan error, context.CancelFunc) {
	t.Helper()
	if config.Path == "" {
		config.Path = filepath.Join(testutil.SocketDir(t), "pivd.sock")
	}

	ctx, cancel := context.WithCancel(context.Background())
	server := NewSocketServer(config, handler, testLogger())
	serveErrors := make(chan error, 1)
	go func() {
		serveErrors <- server.Serve(ctx)
	}()
	t.Cleanup(cancel)

	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")
	return server, serveErrors, cancel
}

// exchange connects, writes raw bytes, half-closes, and returns every
// byte the server sends before closing the connection.
func exchange(t *testing.T, path string, raw []byte) []byte {
	t.Helper()

	conn, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to socket: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	// The server may drop the connection before reading everything we
	// send, which surfaces here as EPIPE or ECONNRESET.
	if _, err := conn.Write(raw); err != nil && !netutil.IsExpectedCloseError(err) {
		t.Fatalf("writing request: %v", err)
	}
	conn.(*net.UnixConn).CloseWrite()

	response, err := io.ReadAll(conn)
	if err != nil && !netutil.IsExpectedCloseError(err) {
		t.Fatalf("reading response: %v", err)
	}
	return response
}

func framed(payload string) []byte {
	message := make([]byte, frame.HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(message, uint32(len(payload)))
	copy(message[frame.HeaderSize:], payload)
	return message
}

func TestSocketServer_OneExchangePerConnection(t *testing.T) {
	handler := &countingHandler{}
	server, _, _ := startServer(t, SocketConfig{}, handler)

	// Two frames on one connection: only the first is answered, then
	// the connection closes.
	raw := append(framed("first"), framed("second")...)
	response := exchange(t, server.config.Path, raw)

	if want := framed("success first"); string(response) != string(want) {
		t.Fatalf("response = %q, want %q", response, want)
	}
	if calls := handler.calls.Load(); calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
}

func TestSocketServer_SequentialConnections(t *testing.T) {
	handler := &countingHandler{}
	server, _, _ := startServer(t, SocketConfig{}, handler)

	for _, request := range []string{"one", "two"} {
		response := exchange(t, server.config.Path, framed(request))
		if want := framed("success " + request); string(response) != string(want) {
			t.Fatalf("response = %q, want %q", response, want)
		}
	}
	if calls := handler.calls.Load(); calls != 2 {
		t.Fatalf("handler called %d times, want 2", calls)
	}
}

func TestSocketServer_DropsWithoutResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "empty", raw: nil},
		{name: "short prefix", raw: []byte{5, 0}},
		{name: "short payload", raw: append([]byte{20, 0, 0, 0}, "short"...)},
		{name: "declared length over capacity", raw: []byte{0x01, 0x20, 0x00, 0x00}},
		{name: "invalid utf-8", raw: append([]byte{3, 0, 0, 0}, 0xff, 0xfe, 0xfd)},
	}

	handler := &countingHandler{}
	server, _, _ := startServer(t, SocketConfig{}, handler)

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			response := exchange(t, server.config.Path, test.raw)
			if len(response) != 0 {
				t.Fatalf("expected no response, got %q", response)
			}
		})
	}
	if calls := handler.calls.Load(); calls != 0 {
		t.Fatalf("handler called %d times, want 0", calls)
	}

	// The server is still serving after dropped connections.
	if response := exchange(t, server.config.Path, framed("ok")); len(response) == 0 {
		t.Fatal("server stopped answering after dropped connections")
	}
}

func TestSocketServer_EmptyPayloadIsDispatched(t *testing.T) {
	handler := &countingHandler{}
	server, _, _ := startServer(t, SocketConfig{}, handler)

	response := exchange(t, server.config.Path, framed(""))
	if want := framed("success "); string(response) != string(want) {
		t.Fatalf("response = %q, want %q", response, want)
	}
}

func TestSocketServer_ReadTimeoutDropsStalledClient(t *testing.T) {
	handler := &countingHandler{}
	server, _, _ := startServer(t, SocketConfig{ReadTimeout: 200 * time.Millisecond}, handler)

	// Connects first and never sends, occupying the accept loop.
	stalled, err := net.DialTimeout("unix", server.config.Path, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting stalled client: %v", err)
	}
	defer stalled.Close()

	// Answered only once the stalled client's read deadline expires.
	response := exchange(t, server.config.Path, framed("after"))
	if want := framed("success after"); string(response) != string(want) {
		t.Fatalf("response = %q, want %q", response, want)
	}

	stalled.SetReadDeadline(time.Now().Add(5 * time.Second))
	leftover, err := io.ReadAll(stalled)
	if err != nil && !netutil.IsExpectedCloseError(err) {
		t.Fatalf("reading from stalled connection: %v", err)
	}
	if len(leftover) != 0 {
		t.Fatalf("stalled client got %q, want no response", leftover)
	}
	if calls := handler.calls.Load(); calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
}

func TestSocketServer_WriteTimeoutAbandonsUnreadResponse(t *testing.T) {
	handler := &countingHandler{}
	server := NewSocketServer(SocketConfig{WriteTimeout: 100 * time.Millisecond}, handler, testLogger())

	// net.Pipe has no buffering: the response write blocks until the
	// client reads, which this client never does.
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer serverSide.Close()
		server.exchange(serverSide, testLogger())
	}()

	clientSide.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := clientSide.Write(framed("unread")); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	testutil.RequireClosed(t, done, 5*time.Second, "exchange blocked on an unread response")
	if calls := handler.calls.Load(); calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
}

func TestSocketServer_ReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(testutil.SocketDir(t), "pivd.sock")
	if err := os.WriteFile(path, []byte("stale"), 0600); err != nil {
		t.Fatalf("creating stale file: %v", err)
	}

	server, _, _ := startServer(t, SocketConfig{Path: path}, &countingHandler{})

	info, err := os.Stat(server.config.Path)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		t.Fatalf("path is %v, want a socket", info.Mode())
	}
}

func TestSocketServer_StaleRemovalFailureIsFatal(t *testing.T) {
	// A non-empty directory at the socket path cannot be removed with
	// os.Remove.
	path := filepath.Join(testutil.SocketDir(t), "pivd.sock")
	if err := os.MkdirAll(filepath.Join(path, "child"), 0700); err != nil {
		t.Fatalf("creating directory: %v", err)
	}

	server := NewSocketServer(SocketConfig{Path: path}, &countingHandler{}, testLogger())
	if err := server.Serve(context.Background()); err == nil {
		t.Fatal("expected Serve to fail")
	}
}

func TestSocketServer_Mode(t *testing.T) {
	server, _, _ := startServer(t, SocketConfig{Mode: 0600}, &countingHandler{})

	info, err := os.Stat(server.config.Path)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Fatalf("socket mode = %v, want 0600", perm)
	}
}

func TestSocketServer_AllowedUIDs(t *testing.T) {
	uid := uint32(os.Getuid())

	handler := &countingHandler{}
	allowed, _, _ := startServer(t, SocketConfig{AllowedUIDs: []uint32{uid}}, handler)
	if response := exchange(t, allowed.config.Path, framed("hello")); string(response) != string(framed("success hello")) {
		t.Fatalf("allowed peer got %q", response)
	}

	denied, _, _ := startServer(t, SocketConfig{AllowedUIDs: []uint32{uid + 1}}, handler)
	if response := exchange(t, denied.config.Path, framed("hello")); len(response) != 0 {
		t.Fatalf("disallowed peer got %q, want no response", response)
	}
	if calls := handler.calls.Load(); calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
}

func TestSocketServer_ShutdownRemovesSocket(t *testing.T) {
	server, serveErrors, cancel := startServer(t, SocketConfig{}, &countingHandler{})

	cancel()
	if err := testutil.RequireReceive(t, serveErrors, 5*time.Second, "waiting for Serve to return"); err != nil {
		t.Fatalf("Serve returned %v, want nil", err)
	}
	if _, err := os.Stat(server.config.Path); !os.IsNotExist(err) {
		t.Fatalf("socket still present after shutdown: %v", err)
	}
}

func TestPeerCredentialsOf(t *testing.T) {
	listenerPath := filepath.Join(testutil.SocketDir(t), "peer.sock")
	listener, err := net.Listen("unix", listenerPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
		close(accepted)
	}()

	client, err := net.Dial("unix", listenerPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	conn := testutil.RequireReceive(t, accepted, 5*time.Second, "waiting for accept")
	defer conn.Close()

	credentials, err := PeerCredentialsOf(conn.(*net.UnixConn))
	if err != nil {
		t.Fatalf("PeerCredentialsOf: %v", err)
	}
	if credentials.UID != uint32(os.Getuid()) {
		t.Errorf("UID = %d, want %d", credentials.UID, os.Getuid())
	}
	if credentials.PID != int32(os.Getpid()) {
		t.Errorf("PID = %d, want %d", credentials.PID, os.Getpid())
	}
}
