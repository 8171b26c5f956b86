package catalog

import "strings"

const (
	maxSearchSuggestions   = 10
	maxCategorySuggestions = 8
	maxPopularSuggestions  = 10
)

// keywordCategories maps query keywords to catalog categories, checked in
// order.
var keywordCategories = []struct {
	keywords   []string
	categories []string
}{
	{keywords: []string{"email", "mail"}, categories: []string{"marketing", "communication"}},
	{keywords: []string{"data", "sheet"}, categories: []string{"productivity", "database"}},
	{keywords: []string{"social"}, categories: []string{"social-media"}},
	{keywords: []string{"payment"}, categories: []string{"e-commerce"}},
	{keywords: []string{"storage"}, categories: []string{"cloud-storage"}},
}

// Ranker suggests catalog entries for a query or a discovered API name.
type Ranker struct {
	Catalog *Catalog
}

// NewRanker returns a ranker over c.
func NewRanker(c *Catalog) *Ranker {
	return &Ranker{Catalog: c}
}

// Suggest returns at most ten entries. Direct search matches win; otherwise
// a keyword picks a category; otherwise the most popular entries are
// returned.
func (r *Ranker) Suggest(query string) []Entry {
	if r == nil || r.Catalog == nil {
		return nil
	}

	if matches := r.Catalog.Search(query); len(matches) > 0 {
		if len(matches) > maxSearchSuggestions {
			matches = matches[:maxSearchSuggestions]
		}
		return matches
	}

	if categories := categoriesFor(query); len(categories) > 0 {
		matches := r.Catalog.ByCategory(categories...)
		if len(matches) > maxCategorySuggestions {
			matches = matches[:maxCategorySuggestions]
		}
		return matches
	}

	return r.Catalog.Popular(maxPopularSuggestions)
}

func categoriesFor(query string) []string {
	query = strings.ToLower(query)
	for _, mapping := range keywordCategories {
		for _, keyword := range mapping.keywords {
			if strings.Contains(query, keyword) {
				return mapping.categories
			}
		}
	}
	return nil
}
