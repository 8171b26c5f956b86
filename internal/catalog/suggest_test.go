package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSuggestKeywordCategory(t *testing.T) {
	ranker := NewRanker(testCatalog(t))

	results := ranker.Suggest("email")
	require.Len(t, results, 8)

	previous := results[0].Popularity
	for _, entry := range results {
		require.Contains(t, []string{"marketing", "communication"}, entry.Category)
		require.LessOrEqual(t, entry.Popularity, previous)
		previous = entry.Popularity
	}
	require.Equal(t, "slack", results[0].ID)
	require.NotContains(t, ids(results), "discord")
}

func TestSuggestPrefersDirectMatches(t *testing.T) {
	ranker := NewRanker(testCatalog(t))

	results := ranker.Suggest("stripe")
	require.Equal(t, "stripe", results[0].ID)
}

func TestSuggestOtherKeywords(t *testing.T) {
	ranker := NewRanker(testCatalog(t))

	require.Equal(t, []string{"stripe"}, ids(ranker.Suggest("online payment processor")))
	require.Equal(t, []string{"dropbox"}, ids(ranker.Suggest("file storage")))
}

func TestSuggestFallsBackToPopular(t *testing.T) {
	ranker := NewRanker(testCatalog(t))

	results := ranker.Suggest("zzz")
	require.Len(t, results, 10)
	require.Equal(t, "stripe", results[0].ID)
	require.Equal(t, "github", results[1].ID)
}

func TestSuggestCapsSearchResults(t *testing.T) {
	entries := make([]Entry, 0, 15)
	for i := 0; i < 15; i++ {
		entries = append(entries, Entry{
			ID:         fmt.Sprintf("widget-%02d", i),
			Name:       fmt.Sprintf("Widget %02d", i),
			Category:   "tools",
			BaseURL:    "https://widgets.example.com",
			Popularity: float64(i),
		})
	}
	c, err := New(entries)
	require.NoError(t, err)

	results := NewRanker(c).Suggest("widget")
	require.Len(t, results, 10)
	require.Equal(t, "widget-14", results[0].ID)
}

func TestSuggestDefaultCatalogEmail(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	results := NewRanker(c).Suggest("email")
	require.NotEmpty(t, results)
	require.LessOrEqual(t, len(results), 8)
	for _, entry := range results {
		require.Contains(t, []string{"marketing", "communication"}, entry.Category)
	}
}

func TestSuggestNilRanker(t *testing.T) {
	var ranker *Ranker
	require.Nil(t, ranker.Suggest("email"))
}
