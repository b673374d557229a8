package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Key builds a namespaced cache key from parts.
func Key(prefix string, parts ...interface{}) string {
	key := prefix
	for _, p := range parts {
		key = fmt.Sprintf("%s:%v", key, p)
	}
	return key
}

// ContentKey derives a deterministic key from arbitrary payload content.
// encoding/json sorts map keys and emits struct fields in declaration order,
// so identical payloads always hash to the same key. Slices that represent
// sets must be sorted by the caller; SortedSet helps with that.
func ContentKey(prefix string, payload interface{}) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(sum[:16])), nil
}

// SortedSet returns a sorted copy of the given strings so set-valued inputs
// canonicalize independently of their original order.
func SortedSet(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
