package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticChain(t *testing.T) {
	now := time.Date(2019, 5, 20, 10, 0, 0, 0, time.UTC) // a Monday
	chain := SyntheticChain("MU", 39.5, now, 4)

	require.Len(t, chain.ExpirationDates, 4)
	assert.Equal(t, "2019-05-24", chain.ExpirationDates[0])
	assert.Equal(t, "2019-06-14", chain.ExpirationDates[3])

	options := chain.Options[chain.ExpirationDates[1]]
	require.NotEmpty(t, options)
	for _, o := range options {
		assert.Equal(t, "MU", (o.(*PaperOption)).Symbol)
		assert.GreaterOrEqual(t, o.ProbabilityOTM(), 0.02)
		assert.LessOrEqual(t, o.ProbabilityOTM(), 0.98)
		assert.Greater(t, o.MarkPrice(), 0.0)
	}

	// probability rises away from the money on the call side
	calls := SortByStrike(FilterOptions(options, OptionTypeCall), false)
	require.Greater(t, len(calls), 2)
	assert.Less(t, calls[0].ProbabilityOTM(), calls[len(calls)-1].ProbabilityOTM())
}

func TestSyntheticChainEmptyForZeroQuote(t *testing.T) {
	chain := SyntheticChain("MU", 0, time.Now(), 4)
	assert.Empty(t, chain.ExpirationDates)
}

func TestPaperBrokerSynthesizesChain(t *testing.T) {
	b := NewPaperBroker(100_000, "test")
	b.SetDate(time.Date(2019, 5, 20, 10, 0, 0, 0, time.UTC))
	b.SetQuote("MU", 39.5)

	chain, err := b.GetOptions("MU")
	require.NoError(t, err)
	assert.NotEmpty(t, chain.ExpirationDates)

	// cached: same chain back
	again, err := b.GetOptions("MU")
	require.NoError(t, err)
	assert.Same(t, chain, again)

	_, err = b.GetOptions("NOPE")
	assert.ErrorIs(t, err, ErrNonexistentAsset)
}
