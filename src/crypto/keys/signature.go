package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/mosaicnetworks/ledgerclient/src/crypto"
)

// Sign signs the SHA256 digest of data and returns r||s, each half padded to
// 32 bytes.
func Sign(priv *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(rand.Reader, priv, crypto.SHA256(data))
	if err != nil {
		return nil, err
	}
	return append(padded(r, keyBytes), padded(s, keyBytes)...), nil
}

// Verify checks a signature produced by Sign.
func Verify(pub *ecdsa.PublicKey, data []byte, sig []byte) (bool, error) {
	if len(sig) != 2*keyBytes {
		return false, fmt.Errorf("wrong signature length: got %d, want %d", len(sig), 2*keyBytes)
	}
	r := new(big.Int).SetBytes(sig[:keyBytes])
	s := new(big.Int).SetBytes(sig[keyBytes:])
	return ecdsa.Verify(pub, crypto.SHA256(data), r, s), nil
}
