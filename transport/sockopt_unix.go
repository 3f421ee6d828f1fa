//go:build unix

// File: transport/sockopt_unix.go
// Author: momentics <momentics@gmail.com>
//
// Live socket queries. Nothing is cached: every call reaches the kernel, so
// results reflect the socket as it is now and fail once it is closed.

package transport

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
)

// Socket option levels and names used by the TCP accessors.
const (
	LevelTCP     = unix.IPPROTO_TCP
	LevelSocket  = unix.SOL_SOCKET
	OptNoDelay   = unix.TCP_NODELAY
	OptKeepAlive = unix.SO_KEEPALIVE
)

func control(c net.Conn, fn func(fd int) error) error {
	if c == nil {
		return api.ErrNotConnected
	}
	sc, ok := c.(syscall.Conn)
	if !ok {
		return api.Wrap(api.ErrCodeNotSupported, fmt.Errorf("%T has no file descriptor", c), "")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return Classify(err)
	}
	var opErr error
	if err := raw.Control(func(fd uintptr) { opErr = fn(int(fd)) }); err != nil {
		return Classify(err)
	}
	return opErr
}

// GetsockoptInt reads an integer socket option.
func GetsockoptInt(c net.Conn, level, opt int) (int, error) {
	var v int
	err := control(c, func(fd int) error {
		var err error
		v, err = unix.GetsockoptInt(fd, level, opt)
		return err
	})
	return v, err
}

// SetsockoptInt writes an integer socket option.
func SetsockoptInt(c net.Conn, level, opt, value int) error {
	return control(c, func(fd int) error {
		return unix.SetsockoptInt(fd, level, opt, value)
	})
}

// GetsockoptBool reads a boolean socket option.
func GetsockoptBool(c net.Conn, level, opt int) (bool, error) {
	v, err := GetsockoptInt(c, level, opt)
	return v != 0, err
}

// SetsockoptBool writes a boolean socket option.
func SetsockoptBool(c net.Conn, level, opt int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return SetsockoptInt(c, level, opt, v)
}

// LocalAddress queries getsockname(2).
func LocalAddress(c net.Conn) (api.Address, error) {
	var sa unix.Sockaddr
	err := control(c, func(fd int) error {
		var err error
		sa, err = unix.Getsockname(fd)
		return err
	})
	if err != nil {
		return api.Address{}, err
	}
	return fromSockaddr(sa)
}

// RemoteAddress queries getpeername(2).
func RemoteAddress(c net.Conn) (api.Address, error) {
	var sa unix.Sockaddr
	err := control(c, func(fd int) error {
		var err error
		sa, err = unix.Getpeername(fd)
		return err
	})
	if err != nil {
		return api.Address{}, Classify(err)
	}
	return fromSockaddr(sa)
}

func fromSockaddr(sa unix.Sockaddr) (api.Address, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return api.Address{Family: api.FamilyTCP, Host: net.IP(a.Addr[:]).String(), Port: uint16(a.Port)}, nil
	case *unix.SockaddrInet6:
		return api.Address{Family: api.FamilyTCP6, Host: net.IP(a.Addr[:]).String(), Port: uint16(a.Port)}, nil
	case *unix.SockaddrUnix:
		return api.UnixAddress(a.Name), nil
	}
	return api.Address{}, api.Wrap(api.ErrCodeNotSupported, fmt.Errorf("sockaddr %T", sa), "")
}
