//go:build !linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package unix

import "github.com/momentics/hioload-reactor/api"

// Credentials identifies the process on the other end of the socket.
type Credentials struct {
	PID int32
	UID uint32
	GID uint32
}

// PeerCredentials is only available on Linux.
func (c *Connection) PeerCredentials() (Credentials, error) {
	return Credentials{}, api.ErrNotSupported
}
