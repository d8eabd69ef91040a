package mobile

import (
	"encoding/hex"
	"strings"

	"github.com/popstellar/popclient/src/crypto/keys"
)

// GetPrivPublKeys generates a new key pair and returns it in the following
// formatted string <public key base64url>=!@#@!=<private key hex>.
func GetPrivPublKeys() string {
	key := keys.GenerateKeyPair()

	priv := keys.PrivateKeyHex(key)
	pub := key.Public().String()

	return pub + "=!@#@!=" + priv
}

// GetPublKey returns the public key of the given hex private key, or an empty
// string if the private key is invalid.
func GetPublKey(privKey string) string {
	key, err := parsePrivateKey(privKey)
	if err != nil {
		return ""
	}

	return key.Public().String()
}

func parsePrivateKey(privKey string) (*keys.KeyPair, error) {
	trimmedKeyString := strings.TrimSpace(privKey)

	raw, err := hex.DecodeString(trimmedKeyString)
	if err != nil {
		return nil, err
	}

	return keys.ParsePrivateKey(raw)
}
