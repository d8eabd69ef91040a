package net

import "time"

const (
	// DefaultMessageTimeout is how long a request waits for its response.
	DefaultMessageTimeout = 10 * time.Second
	// DefaultConnectTimeout is the delay between reconnection attempts, and
	// the time granted to an explicit reconnection.
	DefaultConnectTimeout = 500 * time.Millisecond
	// DefaultReadyInterval is the polling period of a send waiting for the
	// socket to open.
	DefaultReadyInterval = 250 * time.Millisecond
	// DefaultReadyMaxAttempts bounds the readiness polling.
	DefaultReadyMaxAttempts = 10
	// DefaultMaxReconnectAttempts is the number of automatic reconnections
	// after which a connection is declared dead.
	DefaultMaxReconnectAttempts = 5
	// DefaultIDWrapAround is the modulus of request ids.
	DefaultIDWrapAround = 10000
	// DefaultDialTimeout bounds a single dial.
	DefaultDialTimeout = 10 * time.Second
)

// Config holds the timing parameters of connections.
type Config struct {
	MessageTimeout       time.Duration
	ConnectTimeout       time.Duration
	ReadyInterval        time.Duration
	ReadyMaxAttempts     int
	MaxReconnectAttempts int
	IDWrapAround         int
	DialTimeout          time.Duration
}

// DefaultConfig returns the default connection parameters.
func DefaultConfig() *Config {
	return &Config{
		MessageTimeout:       DefaultMessageTimeout,
		ConnectTimeout:       DefaultConnectTimeout,
		ReadyInterval:        DefaultReadyInterval,
		ReadyMaxAttempts:     DefaultReadyMaxAttempts,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		IDWrapAround:         DefaultIDWrapAround,
		DialTimeout:          DefaultDialTimeout,
	}
}

// OpenTimeout is the time granted to a new connection to open.
func (c *Config) OpenTimeout() time.Duration {
	return c.ReadyInterval * time.Duration(c.ReadyMaxAttempts)
}
