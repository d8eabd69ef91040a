package crypto

import (
	"crypto/sha256"
	"strconv"

	"golang.org/x/xerrors"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}

// HashItems returns the SHA256 hash of the items following the protocol's
// encoding scheme: every item is prefixed with the decimal length of its
// UTF-8 bytes before being fed to the hasher. Empty items are rejected since
// they would make distinct item lists collide.
func HashItems(items ...string) ([]byte, error) {
	hasher := sha256.New()
	for i, item := range items {
		if len(item) == 0 {
			return nil, xerrors.Errorf("empty item to hash at index %d", i)
		}
		hasher.Write([]byte(strconv.Itoa(len(item))))
		hasher.Write([]byte(item))
	}
	return hasher.Sum(nil), nil
}
