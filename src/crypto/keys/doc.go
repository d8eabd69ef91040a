// Package keys implements the public key cryptography used to authenticate
// protocol messages.
//
// Every participant owns a key pair. The general identity key pair signs most
// messages, while single-use pop tokens (one per organization) sign messages
// that must not be linkable to the participant's identity. Both kinds are
// plain key pairs; which one signs a message is decided by the message
// registry.
//
// Signatures are Schnorr signatures over the Ed25519 group, which verify as
// EdDSA signatures. Public keys and signatures are 32 and 64 bytes long and
// travel base64url-encoded.
package keys
