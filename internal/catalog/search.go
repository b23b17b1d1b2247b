package catalog

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/dpshade/pocket-capsules/internal/models"
)

// searchSource adapts a capsule slice to fuzzy.Source
type searchSource []*models.Capsule

func (s searchSource) String(i int) string {
	c := s[i]
	return strings.Join([]string{c.Name, c.Description, c.ID, strings.Join(c.Tags, " ")}, " ")
}

func (s searchSource) Len() int {
	return len(s)
}

// Search ranks unique capsules matching f by fuzzy similarity of query to
// name, description, id and tags. An empty query returns the filtered list.
func (c *Catalog) Search(query string, f Filter) []*models.Capsule {
	candidates := c.List(f)
	query = strings.TrimSpace(query)
	if query == "" {
		return candidates
	}

	matches := fuzzy.FindFrom(query, searchSource(candidates))
	results := make([]*models.Capsule, 0, len(matches))
	for _, m := range matches {
		results = append(results, candidates[m.Index])
	}
	return results
}

// BooleanSearch returns unique capsules whose tags (and category) satisfy expr
func (c *Catalog) BooleanSearch(expr *models.BooleanExpression, f Filter) []*models.Capsule {
	var results []*models.Capsule
	for _, capsule := range c.List(f) {
		if expr.Matches(capsule) {
			results = append(results, capsule)
		}
	}
	return results
}
