package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"

	"github.com/mosaicnetworks/ledgerclient/src/common"
)

// FromPublicKey marshals the public key in uncompressed form. The result is
// what goes into the public-key prefix of a signature pair.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// ToPublicKey is the inverse of FromPublicKey.
func ToPublicKey(pub []byte) *ecdsa.PublicKey {
	if len(pub) == 0 {
		return nil
	}
	x, y := elliptic.Unmarshal(Curve(), pub)
	if x == nil {
		return nil
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}
}

// PublicKeyHex returns the 0X-prefixed hexadecimal form of FromPublicKey.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return common.EncodeToString(FromPublicKey(pub))
}
