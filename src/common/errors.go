package common

import (
	"encoding/json"
	"errors"
	"fmt"
)

// IntegrityReason identifies which envelope invariant was violated.
type IntegrityReason int

const (
	// MissingField means a mandatory envelope field was absent or empty.
	MissingField IntegrityReason = iota
	// BadEncoding means a field could not be base64url-decoded.
	BadEncoding
	// BadSignature means the sender's signature does not verify over data.
	BadSignature
	// HashMismatch means message_id is not the hash of data and signature.
	HashMismatch
	// BadWitnessSignature means a witness signature does not verify over
	// message_id.
	BadWitnessSignature
)

func (r IntegrityReason) String() string {
	switch r {
	case MissingField:
		return "missing field"
	case BadEncoding:
		return "bad encoding"
	case BadSignature:
		return "bad signature"
	case HashMismatch:
		return "hash mismatch"
	case BadWitnessSignature:
		return "bad witness signature"
	default:
		return "unknown"
	}
}

// IntegrityError is returned when an envelope fails one of its structural or
// cryptographic invariants. Such an envelope is never constructed.
type IntegrityError struct {
	// Reason is the violated invariant.
	Reason IntegrityReason
	// Field is the wire field at fault, e.g. "signature".
	Field string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error: %s (%s): %v", e.Reason, e.Field, e.Err)
}

// Unwrap returns the underlying cause.
func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// NewIntegrityError builds an IntegrityError with a formatted cause.
func NewIntegrityError(reason IntegrityReason, field string, f string, a ...interface{}) error {
	return &IntegrityError{Reason: reason, Field: field, Err: fmt.Errorf(f, a...)}
}

// ProtocolError is used for input that is well formed but semantically invalid
// for this client, e.g. an unknown method or an unregistered message type.
type ProtocolError struct {
	// Err is the original error.
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

// Unwrap returns the original error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError builds a ProtocolError with a formatted cause.
func NewProtocolError(f string, a ...interface{}) error {
	return &ProtocolError{Err: fmt.Errorf(f, a...)}
}

// NetworkError is used when a transport is unavailable, a request timed out or
// the connection pool is empty. Callers may retry.
type NetworkError struct {
	// Err is the original error.
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the original error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError builds a NetworkError with a formatted cause.
func NewNetworkError(f string, a ...interface{}) error {
	return &NetworkError{Err: fmt.Errorf(f, a...)}
}

// RPCOperationError is returned when a relay explicitly rejected a request. It
// carries the relay's diagnostic as-is.
type RPCOperationError struct {
	Code        int
	Description string
	Data        json.RawMessage
}

// Error implements the error interface.
func (e *RPCOperationError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc operation error %d: %s (%s)", e.Code, e.Description, string(e.Data))
	}
	return fmt.Sprintf("rpc operation error %d: %s", e.Code, e.Description)
}

// IsIntegrity reports whether err is an IntegrityError for the given reason.
func IsIntegrity(err error, reason IntegrityReason) bool {
	var ie *IntegrityError
	return errors.As(err, &ie) && ie.Reason == reason
}

// IsProtocol reports whether err is a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsRPCOperation reports whether err is an RPCOperationError.
func IsRPCOperation(err error) bool {
	var re *RPCOperationError
	return errors.As(err, &re)
}
