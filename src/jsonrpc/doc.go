// Package jsonrpc implements the JSON-RPC 2.0 frames exchanged with relays.
//
// Clients send subscribe, unsubscribe, publish and catchup requests, each
// carrying an id, and receive responses correlated by that id. Relays push
// broadcast notifications, which carry no id, whenever a message is published
// on a subscribed channel.
package jsonrpc
