package utils

import (
	"encoding/hex"
	"strings"
)

// IsValidAddress checks that the given string is a 0x-prefixed 20-byte hex
// address. Checksum casing is not enforced; approvals arrive from a trusted
// boundary that normalizes casing.
func IsValidAddress(address string) bool {
	if !strings.HasPrefix(address, "0x") {
		return false
	}
	body := address[2:]
	if len(body) != 40 {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}

// NormalizeAddress lower-cases an address so that set membership checks are
// case-insensitive.
func NormalizeAddress(address string) string {
	return strings.ToLower(address)
}
