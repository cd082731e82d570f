package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoomToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := NewRoomToken()
		require.NoError(t, err)
		assert.Len(t, token, tokenLength)
		for _, r := range token {
			assert.True(t, strings.ContainsRune(tokenAlphabet, r), "unexpected rune %q", r)
		}
		seen[token] = true
	}
	// 100 draws from a 35^6 space collide with negligible probability.
	assert.Greater(t, len(seen), 90)
}

func TestTokenCharsAreDrawnUniformly(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	chars := takeTokenChars(nil, all)

	// 256 = 7*35 + 11: seven full passes over the alphabet, with the
	// 11-byte tail rejected rather than wrapped onto the first characters.
	require.Len(t, chars, 7*len(tokenAlphabet))
	counts := make(map[byte]int)
	for _, c := range chars {
		counts[c]++
	}
	require.Len(t, counts, len(tokenAlphabet))
	for c, n := range counts {
		assert.Equal(t, 7, n, "char %q drawn with skewed probability", c)
	}
}
