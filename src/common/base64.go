package common

import "encoding/base64"

// EncodeToString returns the padded base64url representation of b, which is
// how keys, signatures and hashes travel on the wire.
func EncodeToString(b []byte) string {
	return base64.URLEncoding.EncodeToString(b)
}

// DecodeFromString is the inverse of EncodeToString. Unpadded input is
// accepted as well since some relays strip the padding.
func DecodeFromString(s string) ([]byte, error) {
	b, err := base64.URLEncoding.DecodeString(s)
	if err == nil {
		return b, nil
	}

	raw, rawErr := base64.RawURLEncoding.DecodeString(s)
	if rawErr != nil {
		return nil, err
	}

	return raw, nil
}
