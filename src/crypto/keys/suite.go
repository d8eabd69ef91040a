package keys

import (
	"go.dedis.ch/kyber/v3/group/edwards25519"
)

var suite = edwards25519.NewBlakeSHA256Ed25519()

// Suite returns the cryptographic suite used for keys and signatures.
func Suite() *edwards25519.SuiteEd25519 {
	return suite
}
