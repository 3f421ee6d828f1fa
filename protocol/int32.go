// File: protocol/int32.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Length-prefixed messages: a 4-byte big-endian length followed by that
// many bytes of payload.

package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-reactor/api"
)

// PrefixLength is the size of the length header.
const PrefixLength = 4

// DefaultMaxLength bounds incoming messages unless MaxLength is set.
const DefaultMaxLength = 99999

// Int32Receiver splits the byte stream into length-prefixed messages.
// A message announcing more than MaxLength bytes is a protocol violation:
// the connection is closed and no further messages are delivered.
type Int32Receiver struct {
	BaseProtocol

	MaxLength int

	// OnMessage receives each complete message. The slice is only valid
	// during the call.
	OnMessage func(p *Int32Receiver, msg []byte)
	// OnLost runs from ConnectionLost; after a violation the reason is the
	// violation.
	OnLost func(p *Int32Receiver, reason error)

	buf       []byte
	violation error
}

// NewInt32Receiver creates a receiver delivering messages to onMessage.
func NewInt32Receiver(onMessage func(p *Int32Receiver, msg []byte)) *Int32Receiver {
	return &Int32Receiver{MaxLength: DefaultMaxLength, OnMessage: onMessage}
}

// DecodeInt32 parses one message from raw. It returns the payload and the
// number of bytes consumed, or n == 0 when raw holds no complete message.
func DecodeInt32(raw []byte, maxLength int) (msg []byte, n int, err error) {
	if len(raw) < PrefixLength {
		return nil, 0, nil
	}
	length := binary.BigEndian.Uint32(raw)
	if uint64(length) > uint64(maxLength) {
		return nil, 0, api.NewProtocolViolation(
			fmt.Sprintf("message of %d bytes exceeds limit of %d", length, maxLength))
	}
	end := PrefixLength + int(length)
	if len(raw) < end {
		return nil, 0, nil
	}
	return raw[PrefixLength:end], end, nil
}

// EncodeInt32 frames msg.
func EncodeInt32(msg []byte) ([]byte, error) {
	if uint64(len(msg)) > math.MaxUint32 {
		return nil, api.NewError(api.ErrCodeInvalidArgument,
			fmt.Sprintf("message of %d bytes cannot be framed", len(msg)))
	}
	out := make([]byte, PrefixLength+len(msg))
	binary.BigEndian.PutUint32(out, uint32(len(msg)))
	copy(out[PrefixLength:], msg)
	return out, nil
}

func (p *Int32Receiver) DataReceived(data []byte) {
	if p.violation != nil {
		return
	}
	p.buf = append(p.buf, data...)
	consumed := 0
	for {
		msg, n, err := DecodeInt32(p.buf[consumed:], p.MaxLength)
		if err != nil {
			p.lengthLimitExceeded(err)
			return
		}
		if n == 0 {
			break
		}
		consumed += n
		if p.OnMessage != nil {
			p.OnMessage(p, msg)
		}
		// stop once OnMessage closed the connection
		if p.Transport != nil && p.Transport.State() != api.StateConnected {
			break
		}
	}
	rest := copy(p.buf, p.buf[consumed:])
	p.buf = p.buf[:rest]
}

func (p *Int32Receiver) lengthLimitExceeded(err error) {
	p.violation = err
	p.buf = nil
	logrus.WithFields(logrus.Fields{
		"function": "Int32Receiver.DataReceived",
		"max":      p.MaxLength,
	}).WithError(err).Warn("Dropping connection")
	if p.Transport != nil {
		p.Transport.LoseConnection()
	}
}

// SendMessage writes msg with its length prefix.
func (p *Int32Receiver) SendMessage(msg []byte) error {
	if p.Transport == nil {
		return api.ErrNotConnected
	}
	frame, err := EncodeInt32(msg)
	if err != nil {
		return err
	}
	p.Transport.Write(frame)
	return nil
}

func (p *Int32Receiver) ConnectionLost(reason error) {
	p.BaseProtocol.ConnectionLost(reason)
	if p.violation != nil {
		reason = p.violation
	}
	if p.OnLost != nil {
		p.OnLost(p, reason)
	}
}

// Violation returns the error that closed the connection, if any.
func (p *Int32Receiver) Violation() error {
	return p.violation
}
