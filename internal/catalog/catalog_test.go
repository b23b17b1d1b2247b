package catalog

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-capsules/internal/compat"
	"github.com/dpshade/pocket-capsules/internal/models"
)

func capsule(id, name, category string, tags ...string) *models.Capsule {
	return &models.Capsule{
		ID:          id,
		Name:        name,
		Category:    category,
		Description: name + " description",
		Tags:        tags,
		Code:        "export default function X() {}",
	}
}

func builtinCatalog(t *testing.T) *Catalog {
	t.Helper()
	sources, err := Builtin()
	require.NoError(t, err)
	return New(sources...)
}

func TestBuiltinCatalogIsConsistent(t *testing.T) {
	c := builtinCatalog(t)

	require.NotZero(t, c.Len())
	assert.Equal(t, c.Len(), len(c.Capsules()), "embedded ids must be unique")
	assert.Empty(t, c.Duplicates())
	assert.Empty(t, c.Verify())
}

func TestBuiltinSourcesAreNamedAfterFiles(t *testing.T) {
	sources, err := Builtin()
	require.NoError(t, err)

	var names []string
	for _, s := range sources {
		names = append(names, s.Name)
		for _, c := range s.Capsules {
			assert.Equal(t, s.Name, c.Source)
		}
	}
	assert.Equal(t, []string{
		"builtin:ai", "builtin:buttons", "builtin:data-display", "builtin:feedback",
		"builtin:forms", "builtin:layout", "builtin:navigation",
	}, names)
}

func TestSuggestionsExistInBuiltinCatalog(t *testing.T) {
	c := builtinCatalog(t)
	for _, dt := range compat.AllTypes() {
		for _, id := range compat.SuggestNextCapsules(dt) {
			assert.True(t, c.Has(id), "suggestion %q for %s is not in the catalog", id, dt)
		}
	}
}

func TestDuplicatesAreReportedNotDropped(t *testing.T) {
	c := New(
		Source{Name: "a", Capsules: []*models.Capsule{capsule("hero", "Hero", "layout"), capsule("card", "Card", "layout")}},
		Source{Name: "b", Capsules: []*models.Capsule{capsule("hero", "Hero Banner", "marketing")}},
		Source{Name: "c", Capsules: []*models.Capsule{capsule("hero", "Hero Three", "marketing")}},
	)

	assert.Equal(t, 4, c.Len())
	assert.Len(t, c.Capsules(), 2)

	got, ok := c.Get("hero")
	require.True(t, ok)
	assert.Equal(t, "Hero", got.Name, "first occurrence wins")

	want := []Duplicate{{ID: "hero", Count: 3, Sources: []string{"a", "b", "c"}}}
	if diff := cmp.Diff(want, c.Duplicates()); diff != "" {
		t.Errorf("duplicates mismatch (-want +got):\n%s", diff)
	}

	issues := c.Verify()
	require.NotEmpty(t, issues)
	assert.Equal(t, IssueDuplicateID, issues[0].Kind)
	assert.Contains(t, issues[0].Message, `"hero" appears 3 times`)
}

func TestStats(t *testing.T) {
	client := capsule("modal", "Modal", "overlay", "dialog", "react", "a11y")
	client.Code = "'use client'\nexport function Modal() {}"
	client.Inputs = []models.Port{{ID: "open", Name: "Open", Type: "boolean"}}

	broken := &models.Capsule{ID: "", Name: "modal", Category: "overlay"}

	c := New(Source{Name: "test", Capsules: []*models.Capsule{
		client,
		capsule("tooltip", "Tooltip", "overlay", "hover"),
		capsule("tabs", "Tabs", "navigation", "tabs", "react", "keyboard"),
		broken,
	}})

	st := c.Stats()
	assert.Equal(t, 4, st.TotalCapsules)
	assert.Equal(t, map[string]int{"overlay": 3, "navigation": 1}, st.Categories)
	assert.Equal(t, []string{"modal"}, st.DuplicateNames)
	require.Len(t, st.MissingFields, 1)
	assert.Equal(t, MissingFields{Index: 3, Source: "test", Fields: []string{"id", "description", "code"}}, st.MissingFields[0])

	assert.Equal(t, 2, st.AIFriendliness.WellTagged)
	assert.Equal(t, 50.0, st.AIFriendliness.WellTaggedPct)
	assert.Equal(t, 1, st.AIFriendliness.ClientComponents)
	assert.Equal(t, 25.0, st.AIFriendliness.ClientPct)
	assert.Equal(t, 75.0, st.AIFriendliness.WithDescriptionPct)
	assert.Equal(t, 1, st.AIFriendliness.WithPorts)

	assert.Equal(t, TagCount{Tag: "react", Count: 2}, st.TopTags[0])
}

func TestVerifyFlagsBadIDsAndPorts(t *testing.T) {
	bad := capsule("Bad_ID", "Bad", "misc", "a", "b", "c")
	bad.Outputs = []models.Port{{ID: "out", Type: "text"}, {ID: "out", Type: "hologram"}}

	issues := New(Source{Name: "x", Capsules: []*models.Capsule{bad}}).Verify()

	kinds := make(map[string]int)
	for _, i := range issues {
		kinds[i.Kind]++
	}
	assert.Equal(t, map[string]int{IssueInvalidID: 1, IssueBadPort: 2}, kinds)
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := builtinCatalog(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	snap := c.Snapshot(SnapshotOptions{Now: func() time.Time { return fixed }})
	assert.Equal(t, c.Len(), snap.Metadata.TotalCapsules)
	assert.Equal(t, fixed, snap.Metadata.GeneratedAt)

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, snap))

	back, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	require.NoError(t, c.CompareSnapshot(back))
	assert.Equal(t, snap.Capsules[0].Code, back.Capsules[0].Code)
	assert.Equal(t, snap.Metadata.Categories, back.Metadata.Categories)
}

func TestMetadataOnlySnapshotDropsCode(t *testing.T) {
	c := builtinCatalog(t)
	path := filepath.Join(t.TempDir(), "out", "capsules-metadata.json")

	require.NoError(t, WriteSnapshotFile(path, c.Snapshot(SnapshotOptions{MetadataOnly: true})))

	back, err := ReadSnapshotFile(path)
	require.NoError(t, err)
	assert.True(t, back.Metadata.MetadataOnly)
	for _, capsule := range back.Capsules {
		assert.Empty(t, capsule.Code, capsule.ID)
	}
	require.NoError(t, c.CompareSnapshot(back))

	// the catalog itself keeps its code
	original, _ := c.Get(back.Capsules[0].ID)
	assert.NotEmpty(t, original.Code)
}

func TestCompareSnapshotDetectsDrift(t *testing.T) {
	c := New(Source{Name: "s", Capsules: []*models.Capsule{
		capsule("a", "A", "forms"), capsule("b", "B", "forms"),
	}})
	snap := c.Snapshot(SnapshotOptions{})
	snap.Capsules[1] = capsule("b", "B", "layout")

	err := c.CompareSnapshot(snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `category "forms": catalog has 2, snapshot has 1`)
}

func TestSearch(t *testing.T) {
	c := builtinCatalog(t)

	results := c.Search("toggle", Filter{})
	require.NotEmpty(t, results)
	assert.Equal(t, "toggle-switch", results[0].ID)

	forms := c.Search("", Filter{Category: "forms"})
	for _, r := range forms {
		assert.Equal(t, "forms", r.Category)
	}
	assert.Len(t, forms, 6)

	assert.Empty(t, c.Search("zzzzqqq", Filter{}))
}

func TestBooleanSearch(t *testing.T) {
	c := builtinCatalog(t)

	expr, err := models.ParseBooleanExpression("audio AND NOT player")
	require.NoError(t, err)

	var ids []string
	for _, r := range c.BooleanSearch(expr, Filter{}) {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"speech-to-text", "text-to-speech"}, ids)

	expr, err = models.ParseBooleanExpression("feedback AND loading")
	require.NoError(t, err)
	assert.Len(t, c.BooleanSearch(expr, Filter{}), 3, "category matches like a tag")
}

func TestListFilters(t *testing.T) {
	c := builtinCatalog(t)

	assert.Len(t, c.List(Filter{Tag: "AI"}), 16)
	assert.Empty(t, c.List(Filter{Platform: "mobile"}))
	assert.Len(t, c.Categories(), 7)
	assert.Contains(t, c.Tags(), "accessibility")
}
