package net

import (
	"context"
	"errors"
)

// ErrSocketClosed is returned by operations on a closed socket.
var ErrSocketClosed = errors.New("socket closed")

// Socket is a message-oriented, bidirectional stream to a relay. ReadMessage
// is only called from one goroutine, and so is WriteMessage. Close may be
// called concurrently with both.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens sockets to relays.
type Dialer interface {
	Dial(ctx context.Context, address string) (Socket, error)
}
