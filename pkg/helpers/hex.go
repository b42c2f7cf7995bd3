package helpers

import (
	"encoding/hex"
	"strings"
)

// StripHexPrefix removes a leading 0x/0X from a hex string.
func StripHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// DecodeHex decodes a hex string with or without the 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	return hex.DecodeString(StripHexPrefix(s))
}

// EncodeHex encodes bytes as a 0x-prefixed lower-case hex string.
func EncodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// IsHex reports whether s is a valid hex string (0x prefix optional).
func IsHex(s string) bool {
	s = StripHexPrefix(s)
	if len(s) == 0 || len(s)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// EqualAddress compares two addresses ignoring case.
func EqualAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
