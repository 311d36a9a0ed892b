// Package keys implements the operator keys used to sign transactions and
// query payments.
//
// Keys are ECDSA keys on the secp256k1 curve. A signature is the fixed-width
// concatenation of its r and s values over the SHA256 digest of the signed
// bytes.
package keys
