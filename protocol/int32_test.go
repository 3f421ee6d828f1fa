package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/fake"
)

func frame(msg string) []byte {
	b, err := EncodeInt32([]byte(msg))
	if err != nil {
		panic(err)
	}
	return b
}

func newReceiver() (*Int32Receiver, *fake.Connection, *[]string) {
	var got []string
	p := NewInt32Receiver(func(_ *Int32Receiver, msg []byte) {
		got = append(got, string(msg))
	})
	conn := fake.NewConnection(api.TCPAddress("127.0.0.1", 1), api.TCPAddress("127.0.0.1", 2))
	conn.Connect(p)
	return p, conn, &got
}

func TestEncodeInt32(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 3, 'a', 'b', 'c'}, frame("abc"))
	assert.Equal(t, []byte{0, 0, 0, 0}, frame(""))
}

func TestDecodeInt32(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		msg  string
		n    int
	}{
		{"empty", nil, "", 0},
		{"partial header", []byte{0, 0}, "", 0},
		{"partial body", []byte{0, 0, 0, 5, 'h', 'e'}, "", 0},
		{"exact", frame("hello"), "hello", 9},
		{"with trailer", append(frame("hi"), 0, 0), "hi", 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, n, err := DecodeInt32(tt.raw, 100)
			require.NoError(t, err)
			assert.Equal(t, tt.n, n)
			assert.Equal(t, tt.msg, string(msg))
		})
	}

	_, _, err := DecodeInt32([]byte{0xff, 0xff, 0xff, 0xff}, 100)
	assert.ErrorIs(t, err, api.ErrProtocolViolation)
}

func TestInt32ReceiverReassembles(t *testing.T) {
	_, conn, got := newReceiver()

	stream := bytes.Join([][]byte{frame("one"), frame(""), frame("three")}, nil)
	for _, b := range stream {
		conn.Deliver([]byte{b})
	}
	assert.Equal(t, []string{"one", "", "three"}, *got)

	conn.Deliver(append(frame("a"), frame("b")...))
	assert.Equal(t, []string{"one", "", "three", "a", "b"}, *got)
}

func TestInt32ReceiverSend(t *testing.T) {
	p, conn, _ := newReceiver()
	require.NoError(t, p.SendMessage([]byte("ping")))
	assert.Equal(t, frame("ping"), conn.Written())

	assert.ErrorIs(t, NewInt32Receiver(nil).SendMessage([]byte("x")), api.ErrNotConnected)
}

func TestInt32ReceiverLengthLimit(t *testing.T) {
	p, conn, got := newReceiver()
	p.MaxLength = 8
	var lost error
	p.OnLost = func(_ *Int32Receiver, reason error) { lost = reason }

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 9)
	conn.Deliver(append(frame("ok"), header...))

	assert.Equal(t, []string{"ok"}, *got)
	assert.ErrorIs(t, p.Violation(), api.ErrProtocolViolation)
	assert.Equal(t, api.StateDisconnected, conn.State())
	assert.ErrorIs(t, lost, api.ErrProtocolViolation)
	assert.False(t, p.Connected)

	conn.Deliver(frame("late"))
	assert.Equal(t, []string{"ok"}, *got)
}

func TestInt32ReceiverStopsAfterClose(t *testing.T) {
	var got []string
	p := NewInt32Receiver(func(p *Int32Receiver, msg []byte) {
		got = append(got, string(msg))
		p.Transport.LoseConnection()
	})
	conn := fake.NewConnection(api.TCPAddress("127.0.0.1", 1), api.TCPAddress("127.0.0.1", 2))
	conn.Connect(p)

	conn.Deliver(append(frame("first"), frame("second")...))
	assert.Equal(t, []string{"first"}, got)
}
