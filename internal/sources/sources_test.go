package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_India(t *testing.T) {
	got := Lookup("india")
	require.Len(t, got, 6)
	assert.Equal(t, "Google Maps", got[0].Name)
	assert.InDelta(t, 7.1, got[0].Score, 0.001)
	assert.Equal(t, "GigHub", got[5].Name)
	assert.Equal(t, "Curated but sparse", got[5].Notes)
}

func TestLookup_CaseInsensitive(t *testing.T) {
	for _, region := range []string{"India", "INDIA", "iNdIa"} {
		assert.Len(t, Lookup(region), 6, region)
	}
}

func TestLookup_Unknown(t *testing.T) {
	assert.Empty(t, Lookup("europe"))
	assert.Empty(t, Lookup(""))
	assert.Empty(t, Lookup(" india"))
}

func TestLookup_ReturnsCopy(t *testing.T) {
	got := Lookup("india")
	got[0].Name = "mutated"
	assert.Equal(t, "Google Maps", Lookup("india")[0].Name)
}

func TestLookup_ScoresDescending(t *testing.T) {
	got := Lookup("india")
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestRegions(t *testing.T) {
	assert.Equal(t, []string{"india"}, Regions())
}
