// Package catalog aggregates capsule sources into one read-only collection
// and provides search, statistics, verification and snapshot export over it.
//
// A Catalog is immutable once built. Duplicate ids are kept in the record
// list and reported, never dropped: lookups resolve to the first occurrence.
package catalog

import (
	"sort"
	"strings"

	"github.com/dpshade/pocket-capsules/internal/models"
)

// Source is a named batch of capsules, e.g. one embedded seed file or the library
type Source struct {
	Name     string
	Capsules []*models.Capsule
}

// Duplicate describes an id that occurs more than once
type Duplicate struct {
	ID      string   `json:"id"`
	Count   int      `json:"count"`
	Sources []string `json:"sources"`
}

// Catalog is the aggregated capsule collection
type Catalog struct {
	records    []*models.Capsule
	unique     []*models.Capsule
	byID       map[string]*models.Capsule
	duplicates []Duplicate
}

// New aggregates sources in order
func New(sources ...Source) *Catalog {
	c := &Catalog{byID: make(map[string]*models.Capsule)}

	dupIndex := make(map[string]int)
	for _, src := range sources {
		for _, capsule := range src.Capsules {
			if capsule == nil {
				continue
			}
			if capsule.Source == "" {
				capsule.Source = src.Name
			}
			c.records = append(c.records, capsule)

			first, seen := c.byID[capsule.ID]
			if !seen {
				c.byID[capsule.ID] = capsule
				c.unique = append(c.unique, capsule)
				continue
			}

			i, tracked := dupIndex[capsule.ID]
			if !tracked {
				c.duplicates = append(c.duplicates, Duplicate{
					ID:      capsule.ID,
					Count:   1,
					Sources: []string{first.Source},
				})
				i = len(c.duplicates) - 1
				dupIndex[capsule.ID] = i
			}
			c.duplicates[i].Count++
			c.duplicates[i].Sources = append(c.duplicates[i].Sources, capsule.Source)
		}
	}

	return c
}

// Len returns the number of records, duplicates included
func (c *Catalog) Len() int {
	return len(c.records)
}

// Records returns every aggregated record in source order, duplicates included
func (c *Catalog) Records() []*models.Capsule {
	return append([]*models.Capsule(nil), c.records...)
}

// Capsules returns the first occurrence of every id in source order
func (c *Catalog) Capsules() []*models.Capsule {
	return append([]*models.Capsule(nil), c.unique...)
}

// Get returns the first capsule with the given id
func (c *Catalog) Get(id string) (*models.Capsule, bool) {
	capsule, ok := c.byID[id]
	return capsule, ok
}

// Has reports whether id is present
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Duplicates returns ids that occur more than once, in order of first repetition
func (c *Catalog) Duplicates() []Duplicate {
	return append([]Duplicate(nil), c.duplicates...)
}

// CategoryCount is a category and the number of unique capsules in it
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Categories returns the categories sorted by name
func (c *Catalog) Categories() []CategoryCount {
	counts := models.CategoryCounts(c.unique)
	out := make([]CategoryCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, CategoryCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Tags returns every tag in lower case, sorted and de-duplicated
func (c *Catalog) Tags() []string {
	set := make(map[string]struct{})
	for _, capsule := range c.unique {
		for _, tag := range capsule.Tags {
			set[strings.ToLower(tag)] = struct{}{}
		}
	}
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Filter narrows a listing. Empty fields match everything.
type Filter struct {
	Category string
	Tag      string
	Platform string
}

func (f Filter) matches(capsule *models.Capsule) bool {
	if f.Category != "" && !strings.EqualFold(capsule.Category, f.Category) {
		return false
	}
	if f.Tag != "" && !capsule.HasTag(f.Tag) {
		return false
	}
	if f.Platform != "" && !strings.EqualFold(capsule.Platform, f.Platform) {
		return false
	}
	return true
}

// List returns the unique capsules matching f
func (c *Catalog) List(f Filter) []*models.Capsule {
	var out []*models.Capsule
	for _, capsule := range c.unique {
		if f.matches(capsule) {
			out = append(out, capsule)
		}
	}
	return out
}

// AcceptingInput returns capsules with at least one input port satisfying accepts
func (c *Catalog) AcceptingInput(accepts func(models.Port) bool) []*models.Capsule {
	var out []*models.Capsule
	for _, capsule := range c.unique {
		for _, in := range capsule.Inputs {
			if accepts(in) {
				out = append(out, capsule)
				break
			}
		}
	}
	return out
}
