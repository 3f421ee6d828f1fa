//go:build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package unix

import (
	"syscall"

	xunix "golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
)

// Credentials identifies the process on the other end of the socket.
type Credentials struct {
	PID int32
	UID uint32
	GID uint32
}

// PeerCredentials queries SO_PEERCRED.
func (c *Connection) PeerCredentials() (Credentials, error) {
	sc, ok := c.Socket().(syscall.Conn)
	if !ok {
		return Credentials{}, api.ErrNotConnected
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return Credentials{}, err
	}
	var (
		cred *xunix.Ucred
		cerr error
	)
	if err := raw.Control(func(fd uintptr) {
		cred, cerr = xunix.GetsockoptUcred(int(fd), xunix.SOL_SOCKET, xunix.SO_PEERCRED)
	}); err != nil {
		return Credentials{}, err
	}
	if cerr != nil {
		return Credentials{}, cerr
	}
	return Credentials{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, nil
}
