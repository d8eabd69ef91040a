package common

import "fmt"

// StoreErrType enumerates the failures a message store can report.
type StoreErrType uint32

const (
	// KeyNotFound is returned when looking up an unknown message id.
	KeyNotFound StoreErrType = iota
	// KeyAlreadyExists is returned when inserting a message id twice.
	KeyAlreadyExists
	// Empty is returned when the store holds no messages.
	Empty
)

// StoreErr is the error returned by message stores.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr creates a StoreErr for the given data type and key.
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error implements the error interface.
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case KeyAlreadyExists:
		m = "Key Already Exists"
	case Empty:
		m = "Empty"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that an error is of type StoreErr and that it's code matches
// the provided StoreErr code.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := err.(StoreErr)
	return ok && storeErr.errType == t
}
