package mqtt

import "errors"

var (
	// ErrNotConnected is returned by Publish when the link is not connected.
	ErrNotConnected = errors.New("mqtt not connected")
	// ErrBrokerConnection wraps a failed connection attempt or a lost connection.
	ErrBrokerConnection = errors.New("broker connection failed")
)
