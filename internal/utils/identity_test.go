package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Reference vectors from EIP-137.
func TestNamehash(t *testing.T) {
	empty := Namehash("")
	assert.Equal(t, make([]byte, 32), empty[:], "namehash of the empty name should be 32 zero bytes")

	assert.Equal(t,
		"0x93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae",
		DeriveRequestId("eth"),
	)
	assert.Equal(t,
		"0xde9b09fd7c5f901e23a3f19fecc54828e9c848539801e86591bd9801b019f84f",
		DeriveRequestId("foo.eth"),
	)
}

func TestNamehashIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, DeriveRequestId("alice.eth"), DeriveRequestId("Alice.ETH"))
}

func TestDeriveRequestIdIsDeterministic(t *testing.T) {
	first := DeriveRequestId("vault.alice.eth")
	second := DeriveRequestId("vault.alice.eth")
	assert.Equal(t, first, second)
	assert.Len(t, first, 66, "request id should be 0x followed by 64 hex characters")
	assert.NotEqual(t, first, DeriveRequestId("vault.bob.eth"))
}
