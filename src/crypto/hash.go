package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
)

// SHA256 returns the SHA256 hash of the data. Signatures are computed over
// this digest.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	return hasher.Sum(nil)
}

// SHA384 returns the SHA384 hash of the data. It identifies a submitted
// transaction.
func SHA384(data []byte) []byte {
	hasher := sha512.New384()
	hasher.Write(data)
	return hasher.Sum(nil)
}
