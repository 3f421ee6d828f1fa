//go:build !unix

// File: transport/sockopt_other.go
// Author: momentics <momentics@gmail.com>
//
// Without raw descriptor access only setters backed by package net work.

package transport

import (
	"net"

	"github.com/momentics/hioload-reactor/api"
)

const (
	LevelTCP     = 6
	LevelSocket  = 0xffff
	OptNoDelay   = 1
	OptKeepAlive = 8
)

func GetsockoptInt(c net.Conn, level, opt int) (int, error) {
	if c == nil {
		return 0, api.ErrNotConnected
	}
	return 0, api.ErrNotSupported
}

func SetsockoptInt(c net.Conn, level, opt, value int) error {
	if c == nil {
		return api.ErrNotConnected
	}
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return api.ErrNotSupported
	}
	switch {
	case level == LevelTCP && opt == OptNoDelay:
		return tc.SetNoDelay(value != 0)
	case level == LevelSocket && opt == OptKeepAlive:
		return tc.SetKeepAlive(value != 0)
	}
	return api.ErrNotSupported
}

func GetsockoptBool(c net.Conn, level, opt int) (bool, error) {
	v, err := GetsockoptInt(c, level, opt)
	return v != 0, err
}

func SetsockoptBool(c net.Conn, level, opt int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return SetsockoptInt(c, level, opt, v)
}

func LocalAddress(c net.Conn) (api.Address, error) {
	if c == nil {
		return api.Address{}, api.ErrNotConnected
	}
	return api.AddressFromNet(c.LocalAddr())
}

func RemoteAddress(c net.Conn) (api.Address, error) {
	if c == nil {
		return api.Address{}, api.ErrNotConnected
	}
	return api.AddressFromNet(c.RemoteAddr())
}
