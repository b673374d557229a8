package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "enrich:BTC:premium", Key("enrich", "BTC", "premium"))
}

func TestContentKeyDeterministic(t *testing.T) {
	type req struct {
		Asset     string   `json:"asset"`
		Providers []string `json:"providers"`
	}

	a := req{Asset: "BTC", Providers: SortedSet([]string{"sentiment", "consensus"})}
	b := req{Asset: "BTC", Providers: SortedSet([]string{"consensus", "sentiment"})}

	ka, err := ContentKey("enrich", a)
	require.NoError(t, err)
	kb, err := ContentKey("enrich", b)
	require.NoError(t, err)

	assert.Equal(t, ka, kb)
}

func TestContentKeyDistinguishesProviderSets(t *testing.T) {
	type req struct {
		Asset     string   `json:"asset"`
		Providers []string `json:"providers"`
	}

	ka, err := ContentKey("enrich", req{Asset: "BTC", Providers: []string{"sentiment"}})
	require.NoError(t, err)
	kb, err := ContentKey("enrich", req{Asset: "BTC", Providers: []string{"consensus"}})
	require.NoError(t, err)

	assert.NotEqual(t, ka, kb)
}

func TestContentKeyMapOrderIndependent(t *testing.T) {
	ka, err := ContentKey("cfg", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	kb, err := ContentKey("cfg", map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)

	assert.Equal(t, ka, kb)
}
