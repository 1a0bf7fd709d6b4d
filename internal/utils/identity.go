package utils

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Namehash implements the ENS namehash algorithm (EIP-137). The hash of the
// empty name is 32 zero bytes; each label extends the hash as
// keccak256(node || keccak256(label)), applied right to left.
func Namehash(name string) [32]byte {
	var node [32]byte
	if name == "" {
		return node
	}
	labels := strings.Split(strings.ToLower(name), ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := keccak256([]byte(labels[i]))
		node = keccak256(append(node[:], labelHash[:]...))
	}
	return node
}

// DeriveRequestId returns the deterministic recovery request id for an
// identity: the hex-encoded namehash of the identity with 0x prefix.
func DeriveRequestId(identity string) string {
	node := Namehash(identity)
	return "0x" + hex.EncodeToString(node[:])
}

func keccak256(data []byte) [32]byte {
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	copy(out[:], h.Sum(nil))
	return out
}
