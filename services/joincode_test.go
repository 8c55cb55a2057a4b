package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateJoinCodeShape(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := generateJoinCode()
		require.NoError(t, err)
		assert.Len(t, code, JoinCodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(joinCodeAlphabet, r),
				"unexpected rune %q in join code %s", r, code)
		}
	}
}

func TestJoinCodeAlphabetOmitsAmbiguousGlyphs(t *testing.T) {
	for _, forbidden := range "0o1li" {
		assert.False(t, strings.ContainsRune(joinCodeAlphabet, forbidden))
	}
}
