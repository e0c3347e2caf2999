package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/cravepos/brigade/pkg/types"
)

// NodeTokenPrefix marks node credentials so misplaced tokens are
// recognizable in support tickets without revealing anything.
const NodeTokenPrefix = "node_"

const (
	edgeKeyPrefix   = "EDGE-"
	onsiteKeyPrefix = "ONSITE-"

	tokenEntropyBytes = 32
	nodeKeyChars      = 8

	// 32-character alphabet: uppercase letters and digits, no lookalikes.
	// Power-of-two size keeps byte-mod indexing unbiased.
	keyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Hash returns the opaque one-way hash persisted for a token or secret.
// Comparison against stored hashes is byte-exact; see Verify.
func Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Verify compares a presented secret against a stored hash in constant
// time.
func Verify(secret, storedHash string) bool {
	computed := Hash(secret)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// MintNodeToken returns a fresh node credential: the node_ prefix plus
// 32 bytes of entropy in URL-safe base64 (43 characters). The plaintext
// is returned to the caller exactly once; only Hash(token) is stored.
func MintNodeToken() (string, error) {
	raw, err := randomBytes(tokenEntropyBytes)
	if err != nil {
		return "", err
	}
	return NodeTokenPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// MintBootstrapToken returns a fresh unprefixed single-use registration
// token with 32 bytes of entropy.
func MintBootstrapToken() (string, error) {
	raw, err := randomBytes(tokenEntropyBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// MintNodeKey returns a fresh opaque node key: EDGE- plus 8 uppercase
// characters of entropy.
func MintNodeKey() (string, error) {
	raw, err := randomBytes(nodeKeyChars)
	if err != nil {
		return "", err
	}
	key := make([]byte, nodeKeyChars)
	for i, b := range raw {
		key[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return edgeKeyPrefix + string(key), nil
}

// OnsiteNodeKey derives the deterministic node key for a claimed
// on-premise server: ONSITE- plus the normalized server uid, truncated to
// the key length bound. The same physical server always derives the same
// key, which is what lets the claim flow detect a server already linked
// to another store.
func OnsiteNodeKey(serverUID string) string {
	key := onsiteKeyPrefix + types.NormalizeCode(serverUID)
	if len(key) > types.MaxNodeKeyLen {
		key = key[:types.MaxNodeKeyLen]
	}
	return key
}

func randomBytes(n int) ([]byte, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to read entropy: %w", err)
	}
	return raw, nil
}
