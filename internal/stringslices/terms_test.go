package stringslices

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToLowerASCII(t *testing.T) {
	require.Equal(t, "hello world", ToLowerASCII("Hello WORLD"))
	require.Equal(t, "123 go!", ToLowerASCII("123 Go!"))

	// Non-ASCII runes pass through unchanged, like SQLite's lower().
	require.Equal(t, "Über", ToLowerASCII("ÜBER"))
	require.Equal(t, "straße", ToLowerASCII("straße"))
}

func TestTerms(t *testing.T) {
	require.Equal(t, []string{"alpha", "beta"}, Terms("  Alpha\tBETA\n"))
	require.Nil(t, Terms("   "))
	require.Equal(t, []string{"Über", "notes"}, Terms("ÜBER Notes"))
}

func TestContainsAll(t *testing.T) {
	require.True(t, ContainsAll("alpha beta gamma", []string{"alpha", "gamma"}))
	require.False(t, ContainsAll("alpha beta", []string{"alpha", "delta"}))
	require.True(t, ContainsAll("anything", nil))
}
