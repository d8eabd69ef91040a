// Package net implements the transport between a client and its relays.
//
// A Connection owns the socket to one relay. It assigns every outbound
// request an id, matches responses by id, and fails requests that are not
// answered within the message timeout. When the socket breaks unexpectedly it
// reconnects a bounded number of times, re-sending the requests still
// pending, before declaring itself dead.
//
// A Manager owns the connections to every relay, deduplicated by address, and
// distributes each request over them with a SendingStrategy:
//
// - all: send on every connection, fail if any fails
//
// - first-success: try connections in order until one succeeds
//
// - random-first-success: first-success over a shuffled order
//
// - first-only: only ever use the first connection
//
// Sockets are abstracted by the Socket and Dialer interfaces. WebsocketDialer
// connects to real relays, while InmemDialer and InmemRelay are used to test
// connections without a network.
package net
