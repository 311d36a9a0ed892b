package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// EncodeToString returns the uppercase hex form of b with a 0X prefix, the
// form used for address-book hashes and public keys in logs.
func EncodeToString(b []byte) string {
	return fmt.Sprintf("0X%X", b)
}

// DecodeFromString decodes a hex string. Surrounding whitespace and a 0x or 0X
// prefix are ignored, so both EncodeToString output and raw key dumps parse.
func DecodeFromString(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if s == "" {
		return nil, fmt.Errorf("empty hex string")
	}
	return hex.DecodeString(s)
}
