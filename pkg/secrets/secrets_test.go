package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHashDeterministic tests that hashing is stable and one-way
func TestHashDeterministic(t *testing.T) {
	h1 := Hash("node_sometoken")
	h2 := Hash("node_sometoken")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "hex-encoded sha256")
	assert.NotContains(t, h1, "sometoken")

	assert.NotEqual(t, Hash("a"), Hash("b"))
}

// TestVerify tests constant-time hash verification
func TestVerify(t *testing.T) {
	token, err := MintNodeToken()
	require.NoError(t, err)

	stored := Hash(token)
	assert.True(t, Verify(token, stored))
	assert.False(t, Verify(token+"x", stored))
	assert.False(t, Verify("", stored))
}

// TestMintNodeToken tests node token format and uniqueness
func TestMintNodeToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := MintNodeToken()
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(token, "node_"))
		entropy := strings.TrimPrefix(token, "node_")
		assert.GreaterOrEqual(t, len(entropy), 30, "token entropy must be at least 30 chars")
		assert.False(t, seen[token], "minted a duplicate token")
		seen[token] = true
	}
}

// TestMintBootstrapToken tests bootstrap token format
func TestMintBootstrapToken(t *testing.T) {
	token, err := MintBootstrapToken()
	require.NoError(t, err)

	assert.False(t, strings.HasPrefix(token, "node_"))
	assert.GreaterOrEqual(t, len(token), 30)
}

// TestMintNodeKey tests generated node key format
func TestMintNodeKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		key, err := MintNodeKey()
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(key, "EDGE-"))
		suffix := strings.TrimPrefix(key, "EDGE-")
		assert.Len(t, suffix, 8)
		assert.Equal(t, strings.ToUpper(suffix), suffix, "key suffix must be uppercase")
		seen[key] = true
	}
	assert.Greater(t, len(seen), 1, "keys must not be constant")
}

// TestOnsiteNodeKey tests derived onsite key normalization and truncation
func TestOnsiteNodeKey(t *testing.T) {
	tests := []struct {
		name string
		uid  string
		want string
	}{
		{name: "simple uid", uid: "server-123", want: "ONSITE-SERVER-123"},
		{name: "spaces and symbols", uid: "srv 9 (lobby)", want: "ONSITE-SRV-9-LOBBY"},
		{name: "already upper", uid: "ABC", want: "ONSITE-ABC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OnsiteNodeKey(tt.uid))
		})
	}

	long := OnsiteNodeKey(strings.Repeat("x", 100))
	assert.Len(t, long, 64)
	assert.True(t, strings.HasPrefix(long, "ONSITE-XXXX"))

	// Deterministic: the same server always maps to the same key.
	assert.Equal(t, OnsiteNodeKey("server-123"), OnsiteNodeKey("SERVER-123"))
}
