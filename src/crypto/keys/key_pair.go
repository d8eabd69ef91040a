package keys

import (
	"bytes"
	"encoding/hex"

	"github.com/popstellar/popclient/src/common"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"go.dedis.ch/kyber/v3/util/key"
	"golang.org/x/xerrors"
)

// PublicKeySize is the length of a marshalled public key.
const PublicKeySize = 32

// PublicKey is the marshalled form of a public key.
type PublicKey []byte

// String returns the base64url representation of the key.
func (p PublicKey) String() string {
	return common.EncodeToString(p)
}

// Equal reports whether p and o are the same key.
func (p PublicKey) Equal(o PublicKey) bool {
	return bytes.Equal(p, o)
}

// ParsePublicKey decodes a base64url public key and checks it is a valid
// point of the group.
func ParsePublicKey(s string) (PublicKey, error) {
	raw, err := common.DecodeFromString(s)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode public key: %v", err)
	}

	if len(raw) != PublicKeySize {
		return nil, xerrors.Errorf("invalid public key length %d", len(raw))
	}

	point := suite.Point()
	if err := point.UnmarshalBinary(raw); err != nil {
		return nil, xerrors.Errorf("invalid public key: %v", err)
	}

	return PublicKey(raw), nil
}

// KeyPair holds a private scalar and its public key.
type KeyPair struct {
	public  PublicKey
	private kyber.Scalar
}

// GenerateKeyPair creates a fresh random key pair.
func GenerateKeyPair() *KeyPair {
	pair := key.NewKeyPair(suite)
	return fromScalar(pair.Private)
}

func fromScalar(private kyber.Scalar) *KeyPair {
	public := suite.Point().Mul(private, nil)

	buf, err := public.MarshalBinary()
	if err != nil {
		// marshalling a point of a known group cannot fail
		panic(err)
	}

	return &KeyPair{
		public:  PublicKey(buf),
		private: private,
	}
}

// ParsePrivateKey rebuilds a key pair from a private scalar as produced by
// DumpPrivateKey.
func ParsePrivateKey(raw []byte) (*KeyPair, error) {
	if len(raw) != suite.ScalarLen() {
		return nil, xerrors.Errorf("invalid private key length %d", len(raw))
	}

	private := suite.Scalar()
	if err := private.UnmarshalBinary(raw); err != nil {
		return nil, xerrors.Errorf("invalid private key: %v", err)
	}

	if private.Equal(suite.Scalar().Zero()) {
		return nil, xerrors.New("invalid private key, zero")
	}

	return fromScalar(private), nil
}

// DumpPrivateKey exports the private scalar into a binary dump.
func DumpPrivateKey(kp *KeyPair) []byte {
	if kp == nil {
		return nil
	}

	buf, err := kp.private.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return buf
}

// PrivateKeyHex returns the hexadecimal representation of a raw private key
// as returned by DumpPrivateKey.
func PrivateKeyHex(kp *KeyPair) string {
	return hex.EncodeToString(DumpPrivateKey(kp))
}

// Public returns the public key of the pair.
func (kp *KeyPair) Public() PublicKey {
	return kp.public
}

// Sign signs data with the private key.
func (kp *KeyPair) Sign(data []byte) ([]byte, error) {
	sig, err := schnorr.Sign(suite, kp.private, data)
	if err != nil {
		return nil, xerrors.Errorf("failed to sign: %v", err)
	}
	return sig, nil
}

// Verify checks that sig is a valid signature of data by the owner of pub.
func Verify(pub PublicKey, data []byte, sig []byte) error {
	if len(pub) != PublicKeySize {
		return xerrors.Errorf("invalid public key length %d", len(pub))
	}
	return schnorr.VerifyWithChecks(suite, pub, data, sig)
}
