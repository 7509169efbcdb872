// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// PeerCredentials identifies the process on the other end of a Unix
// socket, as reported by the kernel at connect time.
type PeerCredentials struct {
	PID int32
	UID uint32
	GID uint32
}

// PeerCredentialsOf reads SO_PEERCRED from conn.
func PeerCredentialsOf(conn *net.UnixConn) (PeerCredentials, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return PeerCredentials{}, fmt.Errorf("peer credentials: %w", err)
	}

	var ucred *unix.Ucred
	var sockoptErr error
	if err := raw.Control(func(fd uintptr) {
		ucred, sockoptErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return PeerCredentials{}, fmt.Errorf("peer credentials: %w", err)
	}
	if sockoptErr != nil {
		return PeerCredentials{}, fmt.Errorf("peer credentials: %w", sockoptErr)
	}
	return PeerCredentials{PID: ucred.Pid, UID: ucred.Uid, GID: ucred.Gid}, nil
}
