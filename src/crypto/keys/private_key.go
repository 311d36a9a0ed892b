package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/mosaicnetworks/ledgerclient/src/common"
)

// keyBytes is the width of a raw private key and of each half of a signature.
const keyBytes = 32

//GenerateECDSAKey creates a new operator key.
func GenerateECDSAKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(Curve(), rand.Reader)
}

//DumpPrivateKey exports the D value of a private key, left-padded to 32 bytes.
func DumpPrivateKey(priv *ecdsa.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return padded(priv.D, keyBytes)
}

//ParsePrivateKey creates a private key with the given D value.
func ParsePrivateKey(d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) != keyBytes {
		return nil, fmt.Errorf("invalid length, need %d bytes", keyBytes)
	}

	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = Curve()
	priv.D = new(big.Int).SetBytes(d)

	if priv.D.Cmp(secp256k1N) >= 0 {
		return nil, fmt.Errorf("invalid private key, >=N")
	}
	if priv.D.Sign() <= 0 {
		return nil, fmt.Errorf("invalid private key, zero or negative")
	}

	priv.PublicKey.X, priv.PublicKey.Y = priv.PublicKey.Curve.ScalarBaseMult(d)
	if priv.PublicKey.X == nil {
		return nil, errors.New("invalid private key")
	}

	return priv, nil
}

//PrivateKeyFromHex parses a raw hex dump as produced by PrivateKeyHex. An
//optional 0x prefix is accepted.
func PrivateKeyFromHex(s string) (*ecdsa.PrivateKey, error) {
	raw, err := common.DecodeFromString(s)
	if err != nil {
		return nil, err
	}
	return ParsePrivateKey(raw)
}

//PrivateKeyHex returns the hexadecimal form of DumpPrivateKey.
func PrivateKeyHex(key *ecdsa.PrivateKey) string {
	return hex.EncodeToString(DumpPrivateKey(key))
}

func padded(v *big.Int, n int) []byte {
	b := v.Bytes()
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}
