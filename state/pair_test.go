package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortPairs_RouteKeys(t *testing.T) {
	// (source ledger, target prefix)
	keys := []Pair[string, string]{
		{V1: "usd.", V2: "jpy."},
		{V1: "eur.", V2: "usd."},
		{V1: "eur.", V2: "gbp.sub."},
		{V1: "eur.", V2: "gbp."},
	}
	SortPairs(keys)
	assert.Equal(t, []Pair[string, string]{
		{V1: "eur.", V2: "gbp."},
		{V1: "eur.", V2: "gbp.sub."},
		{V1: "eur.", V2: "usd."},
		{V1: "usd.", V2: "jpy."},
	}, keys)
}

func TestSortPairs_Seqnos(t *testing.T) {
	// (peer, seqno)
	keys := []Pair[string, uint64]{
		{V1: "mary", V2: 10},
		{V1: "martin", V2: 3},
		{V1: "mary", V2: 2},
	}
	SortPairs(keys)
	assert.Equal(t, []Pair[string, uint64]{
		{V1: "martin", V2: 3},
		{V1: "mary", V2: 2},
		{V1: "mary", V2: 10},
	}, keys)
}

func TestSortPairs_Empty(t *testing.T) {
	var keys []Pair[string, string]
	SortPairs(keys)
	assert.Empty(t, keys)
}
