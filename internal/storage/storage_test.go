package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := NewJSONStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Set("account", "paper-1"))
	require.NoError(t, s.HSet("premium:1234", map[string]string{
		"symbol": "SPY",
		"price":  "1.56",
	}))
	require.NoError(t, s.LPush("premium:positions", "1234"))
	require.NoError(t, s.RPush("paper-1:values", "20000", "20150.50"))

	reopened, err := NewJSONStore(path)
	require.NoError(t, err)

	v, ok := reopened.Get("account")
	assert.True(t, ok)
	assert.Equal(t, "paper-1", v)

	h, ok := reopened.HGetAll("premium:1234")
	require.True(t, ok)
	assert.Equal(t, "SPY", h["symbol"])

	assert.Equal(t, []string{"1234"}, reopened.LRange("premium:positions", 0, -1))
	assert.Equal(t, []string{"20000", "20150.50"}, reopened.LRange("paper-1:values", 0, -1))
}

func TestListSemantics(t *testing.T) {
	s := NewMemoryStore()

	require.NoError(t, s.LPush("q", "a"))
	require.NoError(t, s.LPush("q", "b"))
	require.NoError(t, s.LPush("q", "c"))

	// LPush stacks newest-first; RPop consumes oldest-first (FIFO queue).
	assert.Equal(t, []string{"c", "b", "a"}, s.LRange("q", 0, -1))

	v, ok := s.RPop("q")
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 2, s.LLen("q"))

	require.NoError(t, s.LRem("q", "c"))
	assert.Equal(t, []string{"b"}, s.LRange("q", 0, -1))

	_, ok = s.RPop("missing")
	assert.False(t, ok)
}

func TestLRangeBounds(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.RPush("l", "0", "1", "2", "3"))

	assert.Equal(t, []string{"1", "2"}, s.LRange("l", 1, 2))
	assert.Equal(t, []string{"3"}, s.LRange("l", -1, -1))
	assert.Equal(t, []string{"0", "1", "2", "3"}, s.LRange("l", 0, 100))
	assert.Nil(t, s.LRange("l", 3, 1))
	assert.Nil(t, s.LRange("empty", 0, -1))
}

func TestIncrAndDelete(t *testing.T) {
	s := NewMemoryStore()

	n, err := s.Incr("buys")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.Incr("buys")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.HSet("k", map[string]string{"a": "1"}))
	require.NoError(t, s.Delete("k"))
	_, ok := s.HGetAll("k")
	assert.False(t, ok)
}

func TestHSetMerges(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.HSet("pos", map[string]string{"price": "1.10", "quantity": "3"}))
	require.NoError(t, s.HSet("pos", map[string]string{"last_price": "0.55"}))

	h, ok := s.HGetAll("pos")
	require.True(t, ok)
	assert.Equal(t, "1.10", h["price"])
	assert.Equal(t, "0.55", h["last_price"])
}
