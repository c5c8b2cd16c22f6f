package syncengine

import (
	"testing"

	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mb = int64(1024 * 1024)

func names(items []ContentItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Name
	}
	return out
}

func TestSelectWithinBudget_SizeLimitReached(t *testing.T) {
	items := []ContentItem{
		{Name: "a", SizeBytes: 40 * mb},
		{Name: "b", SizeBytes: 40 * mb},
		{Name: "c", SizeBytes: 40 * mb},
	}

	selected, skipped := selectWithinBudget(items, nil, nil, 100*mb, logging.NewTestLogger())
	assert.Equal(t, []string{"a", "b"}, names(selected))
	assert.Equal(t, 1, skipped)
}

func TestSelectWithinBudget_SmallerItemStillFits(t *testing.T) {
	items := []ContentItem{
		{Name: "big", SizeBytes: 90 * mb},
		{Name: "huge", SizeBytes: 50 * mb},
		{Name: "small", SizeBytes: 5 * mb},
	}

	selected, skipped := selectWithinBudget(items, nil, nil, 100*mb, logging.NewTestLogger())
	assert.Equal(t, []string{"big", "small"}, names(selected))
	assert.Equal(t, 1, skipped)
}

func TestSelectWithinBudget_ZeroBudgetIsUnlimited(t *testing.T) {
	items := []ContentItem{
		{Name: "a", SizeBytes: 500 * mb},
		{Name: "b", SizeBytes: 500 * mb},
	}

	selected, skipped := selectWithinBudget(items, nil, nil, 0, logging.NewTestLogger())
	assert.Len(t, selected, 2)
	assert.Zero(t, skipped)
}

func TestSelectWithinBudget_FiltersApply(t *testing.T) {
	items := []ContentItem{
		{Name: "old", Rating: 9, Year: 1985, Genres: []string{"documentary"}},
		{Name: "bad", Rating: 3, Year: 2020, Genres: []string{"documentary"}},
		{Name: "wrong-genre", Rating: 9, Year: 2020, Genres: []string{"action"}},
		{Name: "keeper", Rating: 8, Year: 2021, Genres: []string{"Documentary"}},
	}
	filters := &config.FilterRules{MinRating: 7, MinYear: 2000, Genres: []string{"documentary"}}

	selected, skipped := selectWithinBudget(items, filters, nil, 0, logging.NewTestLogger())
	require.Len(t, selected, 1)
	assert.Equal(t, "keeper", selected[0].Name)
	assert.Equal(t, 3, skipped)
}

func TestSelectWithinBudget_PriorityOrdersByScore(t *testing.T) {
	items := []ContentItem{
		{Name: "mediocre", SizeBytes: mb, Rating: 5},
		{Name: "great", SizeBytes: mb, Rating: 9},
		{Name: "good", SizeBytes: mb, Rating: 7},
	}
	rules := []config.PriorityRule{{Field: "rating", Weight: 1}}

	selected, _ := selectWithinBudget(items, nil, rules, 0, logging.NewTestLogger())
	assert.Equal(t, []string{"great", "good", "mediocre"}, names(selected))
}

func TestSelectWithinBudget_GenreRuleAddsWeight(t *testing.T) {
	items := []ContentItem{
		{Name: "drama", SizeBytes: mb, Rating: 8, Genres: []string{"drama"}},
		{Name: "reference", SizeBytes: mb, Rating: 6, Genres: []string{"reference"}},
	}
	rules := []config.PriorityRule{
		{Field: "rating", Weight: 1},
		{Field: "genre", Weight: 10, Values: []string{"reference"}},
	}

	selected, _ := selectWithinBudget(items, nil, rules, 0, logging.NewTestLogger())
	assert.Equal(t, []string{"reference", "drama"}, names(selected))
}

func TestSelectWithinBudget_TiesBreakByName(t *testing.T) {
	items := []ContentItem{
		{Name: "b", SizeBytes: mb},
		{Name: "a", SizeBytes: mb},
		{Name: "c", SizeBytes: mb},
	}

	selected, _ := selectWithinBudget(items, nil, nil, 0, logging.NewTestLogger())
	assert.Equal(t, []string{"a", "b", "c"}, names(selected))
}
