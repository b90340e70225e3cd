package matching

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalog() []Item {
	return []Item{
		{ID: 1, Name: "JBL Speaker", Description: "Portable PA speaker", Rate: decimal.NewFromInt(40)},
		{ID: 2, Name: "Speaker Stand", Rate: decimal.NewFromInt(5)},
		{ID: 3, Name: "SM58", Description: "Shure vocal microphone", Rate: decimal.NewFromInt(10)},
		{ID: 4, Name: "Yamaha Mixer Professional Digital", Description: "console unit", Rate: decimal.NewFromInt(90)},
	}
}

func TestExactMatchShortCircuits(t *testing.T) {
	items := []Item{
		{ID: 1, Name: "JBL Speaker"},
		{ID: 2, Name: "JBL"},
	}
	got := FindClosestEquipment("jbl", items)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.ID)

	m, ok := BestMatch("  JBL ", items)
	require.True(t, ok)
	assert.True(t, m.Exact)
}

func TestUnrelatedReturnsNil(t *testing.T) {
	items := []Item{{ID: 1, Name: "Speaker"}, {ID: 2, Name: "Microphone"}}
	assert.Nil(t, FindClosestEquipment("xyz123", items))
}

func TestBlankAndEmptyCatalog(t *testing.T) {
	assert.Nil(t, FindClosestEquipment("   ", catalog()))
	assert.Nil(t, FindClosestEquipment("speaker", nil))
}

func TestScoring(t *testing.T) {
	items := catalog()

	// name substring 0.8, description substring 0.5, name word 0.3, description word 0.2, length 0.1
	assert.InDelta(t, 1.9, Score("speaker", items[0]), 1e-9)
	// name substring 0.8, name word 0.3
	assert.InDelta(t, 1.1, Score("speaker", items[1]), 1e-9)
	// extracted contains name 0.7, name word 0.3, two description words 0.2 each
	assert.InDelta(t, 1.4, Score("Shure SM58 microphone", items[2]), 1e-9)
}

func TestBestScoreWins(t *testing.T) {
	m, ok := BestMatch("speaker", catalog())
	require.True(t, ok)
	assert.Equal(t, int64(1), m.Item.ID)
	assert.InDelta(t, 1.9, m.Score, 1e-9)
	assert.False(t, m.Exact)

	got := FindClosestEquipment("shure sm58 microphone", catalog())
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.ID)
	assert.True(t, decimal.NewFromInt(10).Equal(got.Rate))
}

func TestThresholdIsExclusive(t *testing.T) {
	items := []Item{{ID: 9, Name: "Yamaha Mixer Professional Digital"}}
	// only the "mixer" word overlaps: exactly 0.3, which does not clear the threshold
	assert.InDelta(t, 0.3, Score("mixer console", items[0]), 1e-9)
	assert.Nil(t, FindClosestEquipment("mixer console", items))

	// a description word pushes it over
	got := FindClosestEquipment("mixer console", catalog())
	require.NotNil(t, got)
	assert.Equal(t, int64(4), got.ID)
}

func TestShortWordsIgnored(t *testing.T) {
	items := []Item{{ID: 1, Name: "PA Column Array System Large"}}
	assert.Equal(t, 0.0, Score("pa xl", items[0]))
}

func TestFirstEntryWinsTie(t *testing.T) {
	items := []Item{
		{ID: 1, Name: "Fog Machine"},
		{ID: 2, Name: "Fog Machine"},
	}
	got := FindClosestEquipment("fog machine 1000w", items)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.ID)
}

func TestDeterministic(t *testing.T) {
	items := catalog()
	first := FindClosestEquipment("portable speaker", items)
	require.NotNil(t, first)
	for i := 0; i < 20; i++ {
		again := FindClosestEquipment("portable speaker", items)
		require.NotNil(t, again)
		assert.Equal(t, first.ID, again.ID)
		for _, it := range items {
			assert.Equal(t, Score("portable speaker", it), Score("portable speaker", it))
		}
	}
}
