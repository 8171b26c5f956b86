package catalog

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/apilens/apilens/internal/core"
)

//go:embed data/catalog.yaml
var defaultCatalogFS embed.FS

// Entry is a predefined integration.
type Entry struct {
	ID          string              `yaml:"id" json:"id"`
	Name        string              `yaml:"name" json:"name"`
	Category    string              `yaml:"category" json:"category"`
	Description string              `yaml:"description" json:"description,omitempty"`
	BaseURL     string              `yaml:"base_url" json:"base_url"`
	Website     string              `yaml:"website" json:"website,omitempty"`
	AuthMethod  core.AuthMethod     `yaml:"auth_method" json:"auth_method"`
	Tags        []string            `yaml:"tags" json:"tags,omitempty"`
	Popularity  float64             `yaml:"popularity" json:"popularity"`
	Headers     map[string]string   `yaml:"headers" json:"headers,omitempty"`
	RateLimit   *core.RateLimitSpec `yaml:"rate_limit" json:"rate_limit,omitempty"`
}

// Definition converts the entry into a connection definition.
func (e Entry) Definition() core.Definition {
	def := core.Definition{
		Name:       e.Name,
		Origin:     core.OriginPredefined,
		BaseURL:    e.BaseURL,
		AuthMethod: e.AuthMethod,
	}
	if len(e.Headers) > 0 {
		def.Headers = make(map[string]string, len(e.Headers))
		for key, value := range e.Headers {
			def.Headers[key] = value
		}
	}
	if e.RateLimit != nil {
		limit := *e.RateLimit
		def.RateLimit = &limit
	}
	return def
}

type document struct {
	Entries []Entry `yaml:"entries"`
}

// Catalog is a read-only set of integration entries.
type Catalog struct {
	entries []Entry
	byID    map[string]int
}

// New builds a catalog, rejecting entries without an id, a name or a
// base URL and duplicate ids.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		byID:    make(map[string]int, len(entries)),
	}
	for i, entry := range entries {
		entry.ID = strings.ToLower(strings.TrimSpace(entry.ID))
		entry.Category = strings.ToLower(strings.TrimSpace(entry.Category))
		if entry.ID == "" {
			return nil, fmt.Errorf("catalog entry %d: id is required", i)
		}
		if strings.TrimSpace(entry.Name) == "" {
			return nil, fmt.Errorf("catalog entry %s: name is required", entry.ID)
		}
		if strings.TrimSpace(entry.BaseURL) == "" {
			return nil, fmt.Errorf("catalog entry %s: base_url is required", entry.ID)
		}
		if entry.AuthMethod == "" {
			entry.AuthMethod = core.AuthNone
		} else if method, ok := core.ParseAuthMethod(string(entry.AuthMethod)); ok {
			entry.AuthMethod = method
		} else {
			return nil, fmt.Errorf("catalog entry %s: unsupported auth_method %q", entry.ID, entry.AuthMethod)
		}
		if _, exists := c.byID[entry.ID]; exists {
			return nil, fmt.Errorf("catalog entry %s: duplicate id", entry.ID)
		}
		c.byID[entry.ID] = len(c.entries)
		c.entries = append(c.entries, entry)
	}
	return c, nil
}

// Parse reads a catalog YAML document.
func Parse(source string, data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", source, err)
	}
	c, err := New(doc.Entries)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", source, err)
	}
	return c, nil
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	data, err := defaultCatalogFS.ReadFile("data/catalog.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded catalog: %w", err)
	}
	return Parse("embedded", data)
}

// Load reads a catalog file, or the embedded catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path) // #nosec G304 -- catalog path is user-provided
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(path, data)
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// All returns every entry in file order.
func (c *Catalog) All() []Entry {
	if c == nil {
		return nil
	}
	return append([]Entry(nil), c.entries...)
}

// Get returns the entry with the given id.
func (c *Catalog) Get(id string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	idx, ok := c.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Entry{}, false
	}
	return c.entries[idx], true
}

// Categories returns the distinct categories, sorted.
func (c *Catalog) Categories() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, entry := range c.entries {
		seen[entry.Category] = struct{}{}
	}
	categories := make([]string, 0, len(seen))
	for category := range seen {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

// ByCategory returns entries in any of the given categories, most popular
// first.
func (c *Catalog) ByCategory(categories ...string) []Entry {
	if c == nil {
		return nil
	}
	wanted := make(map[string]bool, len(categories))
	for _, category := range categories {
		wanted[strings.ToLower(strings.TrimSpace(category))] = true
	}

	var matched []Entry
	for _, entry := range c.entries {
		if wanted[entry.Category] {
			matched = append(matched, entry)
		}
	}
	sortByPopularity(matched)
	return matched
}

// Popular returns the n most popular entries. A non-positive n returns all.
func (c *Catalog) Popular(n int) []Entry {
	all := c.All()
	sortByPopularity(all)
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// Search returns entries matching a free-text query, best match first.
// Names, ids and tags match on substrings; descriptions match on word
// prefixes.
func (c *Catalog) Search(query string) []Entry {
	query = strings.ToLower(strings.TrimSpace(query))
	if c == nil || query == "" {
		return nil
	}

	type scored struct {
		entry Entry
		score int
	}

	var results []scored
	for _, entry := range c.entries {
		if score := matchScore(entry, query); score > 0 {
			results = append(results, scored{entry: entry, score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].entry.Popularity > results[j].entry.Popularity
	})

	entries := make([]Entry, len(results))
	for i, result := range results {
		entries[i] = result.entry
	}
	return entries
}

func matchScore(entry Entry, query string) int {
	name := strings.ToLower(entry.Name)
	score := 0
	switch {
	case name == query || entry.ID == query:
		score += 100
	case strings.HasPrefix(name, query) || strings.HasPrefix(entry.ID, query):
		score += 50
	case strings.Contains(name, query) || strings.Contains(entry.ID, query):
		score += 30
	}

	for _, tag := range entry.Tags {
		tag = strings.ToLower(tag)
		if tag == query {
			score += 20
			break
		}
		if strings.Contains(tag, query) {
			score += 10
			break
		}
	}

	for _, word := range strings.FieldsFunc(strings.ToLower(entry.Description), isWordSeparator) {
		if strings.HasPrefix(word, query) {
			score += 5
			break
		}
	}

	return score
}

func isWordSeparator(r rune) bool {
	return r == ' ' || r == ',' || r == '.' || r == '-' || r == '/' || r == '(' || r == ')'
}

// MatchHost returns the entry whose base URL or website host matches the
// host of rawURL. A leading "www." is ignored, and a subdomain of an
// entry's website also matches.
func (c *Catalog) MatchHost(rawURL string) (Entry, bool) {
	host := hostOf(rawURL)
	if c == nil || host == "" {
		return Entry{}, false
	}

	for _, entry := range c.entries {
		if hostOf(entry.BaseURL) == host || hostOf(entry.Website) == host {
			return entry, true
		}
	}
	for _, entry := range c.entries {
		website := hostOf(entry.Website)
		if website != "" && strings.HasSuffix(host, "."+website) {
			return entry, true
		}
	}
	return Entry{}, false
}

func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

func sortByPopularity(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Popularity != entries[j].Popularity {
			return entries[i].Popularity > entries[j].Popularity
		}
		return entries[i].Name < entries[j].Name
	})
}
