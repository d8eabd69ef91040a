package keys

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"strings"
	"sync"
)

// KeyReaderWriter reads and writes key pairs from/to any format or support.
type KeyReaderWriter interface {
	ReadKey() (*KeyPair, error)
	WriteKey(*KeyPair) error
}

// SimpleKeyfile implements KeyReaderWriter with unencrypted and unformated
// files.
type SimpleKeyfile struct {
	l       sync.Mutex
	keyfile string
}

// NewSimpleKeyfile instantiates a new SimpleKeyfile with an underlying file
func NewSimpleKeyfile(keyfile string) *SimpleKeyfile {
	return &SimpleKeyfile{
		keyfile: keyfile,
	}
}

// Path returns the location of the underlying file.
func (k *SimpleKeyfile) Path() string {
	return k.keyfile
}

// CheckFileInfo verifies that the file exists and has user permissions only.
func (k *SimpleKeyfile) CheckFileInfo() error {
	info, err := os.Stat(k.keyfile)
	if err != nil {
		return err
	}

	perm := info.Mode().Perm()

	// build 000111111 mask
	var nonUserMask os.FileMode = (1 << 6) - 1

	if perm&nonUserMask != 0 {
		return fmt.Errorf("key file permissions should exclude 'groups' and 'others'. Got %o", perm)
	}

	return nil
}

// ReadKey implements KeyReaderWriter. It reads from the underlying file which
// is expected to contain a raw hex dump of the private scalar, as produced by
// WriteKey.
func (k *SimpleKeyfile) ReadKey() (*KeyPair, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.CheckFileInfo(); err != nil {
		return nil, err
	}

	buf, err := ioutil.ReadFile(k.keyfile)
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, err
	}

	return ParsePrivateKey(raw)
}

// WriteKey implements KeyReaderWriter. It writes a raw hex dump of the private
// scalar to the underlying file.
func (k *SimpleKeyfile) WriteKey(kp *KeyPair) error {
	k.l.Lock()
	defer k.l.Unlock()

	if err := os.MkdirAll(path.Dir(k.keyfile), 0700); err != nil {
		return err
	}

	return ioutil.WriteFile(k.keyfile, []byte(PrivateKeyHex(kp)), 0600)
}

// LoadOrGenerate reads the key pair from rw, or generates and writes a new one
// if none exists yet.
func LoadOrGenerate(rw *SimpleKeyfile) (*KeyPair, error) {
	kp, err := rw.ReadKey()
	if err == nil {
		return kp, nil
	}

	if !os.IsNotExist(err) {
		return nil, err
	}

	kp = GenerateKeyPair()
	if err := rw.WriteKey(kp); err != nil {
		return nil, err
	}

	return kp, nil
}
