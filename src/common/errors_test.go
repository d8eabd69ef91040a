package common

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestErrorClassification(t *testing.T) {
	integrity := NewIntegrityError(HashMismatch, "message_id", "expected %s", "abc")
	wrapped := xerrors.Errorf("reconstruct: %w", integrity)

	require.True(t, IsIntegrity(wrapped, HashMismatch))
	require.False(t, IsIntegrity(wrapped, BadSignature))
	require.False(t, IsProtocol(wrapped))

	require.True(t, IsProtocol(xerrors.Errorf("publish: %w", NewProtocolError("unknown method"))))
	require.True(t, IsNetwork(NewNetworkError("no connection")))
	require.True(t, IsRPCOperation(xerrors.Errorf("send: %w", &RPCOperationError{Code: -2, Description: "invalid"})))
}

func TestRPCOperationErrorKeepsData(t *testing.T) {
	err := &RPCOperationError{Code: -4, Description: "no channel", Data: []byte(`{"channel":"/root/x"}`)}
	require.Contains(t, err.Error(), `{"channel":"/root/x"}`)
}

func TestStoreErr(t *testing.T) {
	err := NewStoreErr("Record", KeyNotFound, "abc")

	require.True(t, IsStore(err, KeyNotFound))
	require.False(t, IsStore(err, Empty))
	require.Equal(t, "Record, abc, Not Found", err.Error())
}

func TestDecodeAcceptsUnpadded(t *testing.T) {
	b := []byte{1, 2, 3, 4}

	padded := EncodeToString(b)
	require.Equal(t, "AQIDBA==", padded)

	for _, s := range []string{padded, "AQIDBA"} {
		out, err := DecodeFromString(s)
		require.NoError(t, err)
		require.Equal(t, b, out)
	}

	_, err := DecodeFromString("*")
	require.Error(t, err)
}
