package internal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAlias(t *testing.T) {
	alias, err := GenerateAlias()
	require.NoError(t, err)
	assert.Len(t, alias, AliasLength)
	for _, r := range alias {
		assert.True(t, strings.ContainsRune(alphabet, r), "unexpected character %q", r)
	}
}

func TestGenerateAliasUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		alias, err := GenerateAlias()
		require.NoError(t, err)
		assert.False(t, seen[alias], "duplicate alias %q after %d generations", alias, i)
		seen[alias] = true
	}
}
