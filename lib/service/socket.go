// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/bureau-foundation/pivd/lib/frame"
	"github.com/bureau-foundation/pivd/lib/netutil"
)

// Handler turns one request into one response. The server calls it from
// a single goroutine, one request at a time.
type Handler interface {
	Handle(request string) string
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(request string) string

func (f HandlerFunc) Handle(request string) string { return f(request) }

// SocketConfig configures a SocketServer.
type SocketConfig struct {
	// Path is the Unix socket path. Anything already at this path is
	// removed before binding.
	Path string

	// Mode is applied to the socket file after binding. Zero leaves the
	// umask-derived mode.
	Mode os.FileMode

	// AllowedUIDs restricts clients to these peer UIDs. Empty allows
	// any local user who can reach the socket file.
	AllowedUIDs []uint32

	// ReadTimeout bounds how long a client may take to send its
	// request. Zero means no limit: a stalled client stalls the daemon.
	ReadTimeout time.Duration

	// WriteTimeout bounds how long writing the response may take. Zero
	// means no limit.
	WriteTimeout time.Duration
}

// SocketServer serves the framed text protocol on a Unix socket. Each
// connection carries exactly one request and one response, then closes.
//
// Connections are accepted and handled one at a time on the goroutine
// that called Serve: connection N+1 is not accepted until connection N
// is closed. This is what guarantees the Handler, and the token session
// behind it, never sees concurrent requests.
type SocketServer struct {
	config  SocketConfig
	handler Handler
	logger  *slog.Logger
	ready   chan struct{}

	// buffer is the receive buffer, reused by every connection.
	buffer []byte
}

// NewSocketServer creates a server that will listen on config.Path.
func NewSocketServer(config SocketConfig, handler Handler, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		config:  config,
		handler: handler,
		logger:  logger,
		ready:   make(chan struct{}),
		buffer:  make([]byte, frame.MaxPayload),
	}
}

// Ready is closed once the socket is bound and accepting.
func (s *SocketServer) Ready() <-chan struct{} {
	return s.ready
}

// Serve binds the socket and runs the accept loop until ctx is cancelled
// or Accept fails.
//
// Failing to remove a stale socket, failing to bind, and any Accept error
// are returned: the caller is expected to exit. Cancelling ctx closes the
// listener, and Serve returns nil after the in-progress connection (if
// any) finishes. The socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.config.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.config.Path, err)
	}

	listener, err := net.Listen("unix", s.config.Path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Path, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.config.Path)
	}()

	if s.config.Mode != 0 {
		if err := os.Chmod(s.config.Path, s.config.Mode); err != nil {
			return fmt.Errorf("setting mode on %s: %w", s.config.Path, err)
		}
	}

	// Unblock Accept when the context is cancelled.
	stop := context.AfterFunc(ctx, func() {
		listener.Close()
	})
	defer stop()

	s.logger.Info("socket server listening", "path", s.config.Path)
	close(s.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, net.ErrClosed) {
				s.logger.Info("socket server stopping", "path", s.config.Path)
				return nil
			}
			return fmt.Errorf("accepting connection on %s: %w", s.config.Path, err)
		}
		s.handleConnection(conn.(*net.UnixConn))
	}
}

// handleConnection performs one exchange and closes conn. Failures
// before a request is decoded drop the connection without a response.
func (s *SocketServer) handleConnection(conn *net.UnixConn) {
	defer conn.Close()

	logger := s.logger
	credentials, credentialsErr := PeerCredentialsOf(conn)
	if credentialsErr == nil {
		logger = logger.With("peer_uid", credentials.UID, "peer_pid", credentials.PID)
	}
	if len(s.config.AllowedUIDs) > 0 {
		if credentialsErr != nil {
			logger.Warn("dropping connection: peer credentials unavailable", "error", credentialsErr)
			return
		}
		if !slices.Contains(s.config.AllowedUIDs, credentials.UID) {
			logger.Warn("dropping connection: peer uid not allowed")
			return
		}
	}
	logger.Debug("handling connection")

	s.exchange(conn, logger)
}

// exchange reads one request from conn, dispatches it, and writes the
// response, applying the configured deadlines. The caller closes conn.
func (s *SocketServer) exchange(conn net.Conn, logger *slog.Logger) {
	if s.config.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}
	payload, err := frame.Read(conn, s.buffer)
	if err != nil {
		if netutil.IsExpectedCloseError(err) {
			logger.Debug("client closed before sending a request")
		} else {
			logger.Warn("dropping connection: reading request", "error", err)
		}
		return
	}
	if !utf8.Valid(payload) {
		logger.Warn("dropping connection: request is not valid UTF-8")
		return
	}

	response := s.handler.Handle(string(payload))

	if s.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	if err := frame.Write(conn, []byte(response)); err != nil {
		logger.Warn("failed to write response", "error", err)
	}
}
