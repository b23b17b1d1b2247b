package catalog

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dpshade/pocket-capsules/internal/compat"
	"github.com/dpshade/pocket-capsules/internal/models"
)

// MinTags is the tag count at which a capsule counts as well tagged
const MinTags = 3

// TagCount is a tag and the number of capsules carrying it
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// MissingFields identifies a record that lacks required fields. Index is the
// position in Records(), which stays meaningful when the id itself is missing.
type MissingFields struct {
	Index  int      `json:"index"`
	ID     string   `json:"id,omitempty"`
	Source string   `json:"source,omitempty"`
	Fields []string `json:"fields"`
}

// AIFriendliness measures how easily a model can pick and adapt capsules.
// Percentages are of all records and rounded to one decimal.
type AIFriendliness struct {
	WellTagged         int     `json:"wellTagged"`
	WellTaggedPct      float64 `json:"wellTaggedPct"`
	ClientComponents   int     `json:"clientComponents"`
	ClientPct          float64 `json:"clientPct"`
	WithDescription    int     `json:"withDescription"`
	WithDescriptionPct float64 `json:"withDescriptionPct"`
	WithPorts          int     `json:"withPorts"`
	WithPortsPct       float64 `json:"withPortsPct"`
}

// Stats is the aggregate report over every record
type Stats struct {
	TotalCapsules  int             `json:"totalCapsules"`
	UniqueIDs      int             `json:"uniqueIds"`
	Categories     map[string]int  `json:"categories"`
	UniqueTags     int             `json:"uniqueTags"`
	TopTags        []TagCount      `json:"topTags"`
	Platforms      map[string]int  `json:"platforms"`
	DuplicateIDs   []Duplicate     `json:"duplicateIds"`
	DuplicateNames []string        `json:"duplicateNames"`
	MissingFields  []MissingFields `json:"missingFields"`
	AIFriendliness AIFriendliness  `json:"aiFriendliness"`
}

// Stats computes the report. Duplicated records are counted, not skipped.
func (c *Catalog) Stats() Stats {
	st := Stats{
		TotalCapsules:  len(c.records),
		UniqueIDs:      len(c.unique),
		Categories:     models.CategoryCounts(c.records),
		Platforms:      make(map[string]int),
		DuplicateIDs:   c.Duplicates(),
		DuplicateNames: []string{},
		MissingFields:  []MissingFields{},
	}

	tagCounts := make(map[string]int)
	nameCounts := make(map[string]int)
	var nameOrder []string

	ai := &st.AIFriendliness
	for i, capsule := range c.records {
		for _, tag := range capsule.Tags {
			tagCounts[strings.ToLower(tag)]++
		}

		if capsule.Platform != "" {
			st.Platforms[capsule.Platform]++
		}

		name := strings.ToLower(strings.TrimSpace(capsule.Name))
		if name != "" {
			if nameCounts[name] == 0 {
				nameOrder = append(nameOrder, name)
			}
			nameCounts[name]++
		}

		if missing := capsule.MissingFields(); len(missing) > 0 {
			st.MissingFields = append(st.MissingFields, MissingFields{
				Index:  i,
				ID:     capsule.ID,
				Source: capsule.Source,
				Fields: missing,
			})
		}

		if len(capsule.Tags) >= MinTags {
			ai.WellTagged++
		}
		if capsule.IsClientComponent() {
			ai.ClientComponents++
		}
		if strings.TrimSpace(capsule.Description) != "" {
			ai.WithDescription++
		}
		if capsule.HasPorts() {
			ai.WithPorts++
		}
	}

	for _, name := range nameOrder {
		if nameCounts[name] > 1 {
			st.DuplicateNames = append(st.DuplicateNames, name)
		}
	}

	st.UniqueTags = len(tagCounts)
	st.TopTags = topTags(tagCounts, 10)

	ai.WellTaggedPct = percent(ai.WellTagged, st.TotalCapsules)
	ai.ClientPct = percent(ai.ClientComponents, st.TotalCapsules)
	ai.WithDescriptionPct = percent(ai.WithDescription, st.TotalCapsules)
	ai.WithPortsPct = percent(ai.WithPorts, st.TotalCapsules)

	return st
}

func topTags(counts map[string]int, n int) []TagCount {
	out := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		out = append(out, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)*1000/float64(total)) / 10
}

// Issue is a verification finding
type Issue struct {
	Kind    string `json:"kind"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// Issue kinds
const (
	IssueDuplicateID   = "duplicate_id"
	IssueDuplicateName = "duplicate_name"
	IssueMissingField  = "missing_field"
	IssueInvalidID     = "invalid_id"
	IssueBadPort       = "bad_port"
)

// Verify checks every record and returns the issues found. An empty result
// means the catalog is consistent.
func (c *Catalog) Verify() []Issue {
	st := c.Stats()
	var issues []Issue

	for _, d := range st.DuplicateIDs {
		issues = append(issues, Issue{
			Kind:    IssueDuplicateID,
			ID:      d.ID,
			Message: fmt.Sprintf("id %q appears %d times (%s)", d.ID, d.Count, strings.Join(d.Sources, ", ")),
		})
	}
	for _, name := range st.DuplicateNames {
		issues = append(issues, Issue{
			Kind:    IssueDuplicateName,
			Message: fmt.Sprintf("name %q is used by more than one capsule", name),
		})
	}
	for _, m := range st.MissingFields {
		issues = append(issues, Issue{
			Kind:    IssueMissingField,
			ID:      m.ID,
			Message: fmt.Sprintf("record %d (%s) is missing %s", m.Index, m.Source, strings.Join(m.Fields, ", ")),
		})
	}

	for _, capsule := range c.records {
		if capsule.ID != "" && !validID(capsule.ID) {
			issues = append(issues, Issue{
				Kind:    IssueInvalidID,
				ID:      capsule.ID,
				Message: fmt.Sprintf("id %q is not a lowercase slug", capsule.ID),
			})
		}
		issues = append(issues, portIssues(capsule)...)
	}

	return issues
}

func portIssues(capsule *models.Capsule) []Issue {
	var issues []Issue
	check := func(kind string, ports []models.Port) {
		seen := make(map[string]bool)
		for _, p := range ports {
			switch {
			case p.ID == "":
				issues = append(issues, Issue{Kind: IssueBadPort, ID: capsule.ID,
					Message: fmt.Sprintf("%s port without id", kind)})
			case seen[p.ID]:
				issues = append(issues, Issue{Kind: IssueBadPort, ID: capsule.ID,
					Message: fmt.Sprintf("%s port %q declared twice", kind, p.ID)})
			}
			if _, known := compat.Parse(p.Type); !known {
				issues = append(issues, Issue{Kind: IssueBadPort, ID: capsule.ID,
					Message: fmt.Sprintf("%s port %q has unknown type %q", kind, p.ID, p.Type)})
			}
			seen[p.ID] = true
		}
	}
	check("input", capsule.Inputs)
	check("output", capsule.Outputs)
	return issues
}

func validID(id string) bool {
	for i, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' && i > 0:
		default:
			return false
		}
	}
	return id != ""
}
