package keys

import (
	"crypto/ecdsa"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"sync"
)

// Keyfile stores an operator key as a raw hex dump in a file readable by the
// owner only.
type Keyfile struct {
	l       sync.Mutex
	keyfile string
}

// NewKeyfile instantiates a Keyfile with an underlying file.
func NewKeyfile(keyfile string) *Keyfile {
	return &Keyfile{
		keyfile: keyfile,
	}
}

// CheckFileInfo verifies that the file exists and has user permissions only.
func (k *Keyfile) CheckFileInfo() error {
	info, err := os.Stat(k.keyfile)
	if err != nil {
		return err
	}

	perm := info.Mode().Perm()

	// 000111111: group and other bits
	var nonUserMask os.FileMode = (1 << 6) - 1

	if perm&nonUserMask != 0 {
		return fmt.Errorf("key file permissions should exclude 'groups' and 'others'. Got %o", perm)
	}

	return nil
}

// ReadKey reads and parses the key.
func (k *Keyfile) ReadKey() (*ecdsa.PrivateKey, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.CheckFileInfo(); err != nil {
		return nil, err
	}

	buf, err := ioutil.ReadFile(k.keyfile)
	if err != nil {
		return nil, err
	}

	return PrivateKeyFromHex(string(buf))
}

// WriteKey writes the key, creating the parent directory if needed.
func (k *Keyfile) WriteKey(key *ecdsa.PrivateKey) error {
	k.l.Lock()
	defer k.l.Unlock()

	if err := os.MkdirAll(path.Dir(k.keyfile), 0700); err != nil {
		return err
	}

	return ioutil.WriteFile(k.keyfile, []byte(PrivateKeyHex(key)), 0600)
}
