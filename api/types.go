// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations: endpoint addresses and lifecycle states.

package api

import (
	"fmt"
	"net"
	"strconv"
)

// Family identifies the socket family of an endpoint.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyTCP
	FamilyTCP6
	FamilyUnix
)

func (f Family) String() string {
	switch f {
	case FamilyTCP:
		return "tcp4"
	case FamilyTCP6:
		return "tcp6"
	case FamilyUnix:
		return "unix"
	default:
		return "unknown"
	}
}

// Address identifies a local or remote endpoint. It is an immutable value.
type Address struct {
	Family Family
	Host   string // IP literal, hostname or unix socket path
	Port   uint16 // zero for unix sockets
}

// Network returns the Go network name matching the address family.
func (a Address) Network() string {
	switch a.Family {
	case FamilyUnix:
		return "unix"
	case FamilyTCP6:
		return "tcp6"
	default:
		return "tcp"
	}
}

// String renders host:port, or the socket path for unix addresses.
func (a Address) String() string {
	if a.Family == FamilyUnix {
		return a.Host
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// TCPAddress builds a TCP address, picking tcp6 for IPv6 literals.
func TCPAddress(host string, port uint16) Address {
	family := FamilyTCP
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		family = FamilyTCP6
	}
	return Address{Family: family, Host: host, Port: port}
}

// UnixAddress builds a unix-domain socket address.
func UnixAddress(path string) Address {
	return Address{Family: FamilyUnix, Host: path}
}

// AddressFromNet converts a net.Addr produced by the net package.
func AddressFromNet(addr net.Addr) (Address, error) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return TCPAddress(a.IP.String(), uint16(a.Port)), nil
	case *net.UnixAddr:
		return UnixAddress(a.Name), nil
	case nil:
		return Address{}, ErrNotConnected
	default:
		return Address{}, fmt.Errorf("unsupported address type %T: %w", addr, ErrNotSupported)
	}
}

// TransportState enumerates the lifecycle of a Connection.
type TransportState int

const (
	StateConnecting TransportState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s TransportState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectorState enumerates the lifecycle of a Connector.
type ConnectorState int

const (
	ConnectorDisconnected ConnectorState = iota
	ConnectorConnecting
	ConnectorConnected
)

func (s ConnectorState) String() string {
	switch s {
	case ConnectorDisconnected:
		return "disconnected"
	case ConnectorConnecting:
		return "connecting"
	case ConnectorConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ProducerState tracks read-side flow control of a Connection.
type ProducerState int

const (
	Producing ProducerState = iota
	Paused
	Stopped
)

func (s ProducerState) String() string {
	switch s {
	case Producing:
		return "producing"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
