package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress("0x00000000219ab540356cbb839cbe05303d7705fa"))
	assert.True(t, IsValidAddress("0xAB5801A7D398351B8BE11C439E05C5B3259AEC9B"))

	assert.False(t, IsValidAddress(""))
	assert.False(t, IsValidAddress("00000000219ab540356cbb839cbe05303d7705fa"), "missing 0x prefix")
	assert.False(t, IsValidAddress("0x219ab540356cbb839cbe05303d7705fa"), "too short")
	assert.False(t, IsValidAddress("0x00000000219ab540356cbb839cbe05303d7705fazz"), "non-hex characters")
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t,
		"0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		NormalizeAddress("0xAB5801A7D398351B8BE11C439E05C5B3259AEC9B"),
	)
}

func TestDeduplicate(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Deduplicate([]string{"a", "b", "a", "c", "b"}))
	assert.Nil(t, Deduplicate([]string{}))
}
