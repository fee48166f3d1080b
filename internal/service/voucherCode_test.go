package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVoucherCode(t *testing.T) {
	code, hash, suffix, err := generateVoucherCode()
	require.NoError(t, err)

	assert.Len(t, code, codeLength)
	assert.Len(t, suffix, suffixLength)
	assert.True(t, strings.HasSuffix(code, suffix))
	assert.Equal(t, hashVoucherCode(code), hash)
	assert.Len(t, hash, 64)

	for _, r := range code {
		assert.Contains(t, codeAlphabet, string(r))
	}
}

func TestGenerateVoucherCodeUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, _, _, err := generateVoucherCode()
		require.NoError(t, err)

		_, dup := seen[code]
		require.False(t, dup, "duplicate code generated")
		seen[code] = struct{}{}
	}
}

func TestHashVoucherCodeDeterministic(t *testing.T) {
	assert.Equal(t, hashVoucherCode("ABCD2345EFGH6789"), hashVoucherCode("ABCD2345EFGH6789"))
	assert.NotEqual(t, hashVoucherCode("ABCD2345EFGH6789"), hashVoucherCode("ABCD2345EFGH678A"))
}
