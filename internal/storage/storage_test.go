package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-capsules/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, s.InitLibrary())
	return s
}

func sampleCapsule() *models.Capsule {
	return &models.Capsule{
		ID:          "pricing-table",
		Name:        "Pricing Table",
		Category:    "marketing",
		Description: "Three-tier pricing grid",
		Tags:        []string{"pricing", "grid", "marketing"},
		Version:     "1.0.0",
		Platform:    "web",
		Outputs:     []models.Port{{ID: "plan", Name: "Plan", Type: "string"}},
		Code:        "'use client'\n\nexport function PricingTable() {\n  return <div />\n}",
	}
}

func TestInitLibraryCreatesLayout(t *testing.T) {
	s := newTestStorage(t)
	for _, dir := range []string{CapsulesDir, StateDir, filepath.Join(StateDir, "cache")} {
		info, err := os.Stat(filepath.Join(s.BaseDir(), dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
}

func TestSaveAndLoadCapsule(t *testing.T) {
	s := newTestStorage(t)
	in := sampleCapsule()

	require.NoError(t, s.SaveCapsule(in))
	assert.Equal(t, filepath.Join("capsules", "pricing-table.md"), in.FilePath)
	assert.True(t, s.Exists("pricing-table"))

	raw, err := os.ReadFile(filepath.Join(s.BaseDir(), in.FilePath))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "```tsx\n'use client'")
	assert.NotContains(t, string(raw), "code:")

	out, err := s.LoadCapsule(in.FilePath)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCodeWithFencesSurvives(t *testing.T) {
	s := newTestStorage(t)
	in := sampleCapsule()
	in.Code = "const md = `\n```js\nx()\n```\n`"

	require.NoError(t, s.SaveCapsule(in))
	out, err := s.LoadCapsule(in.FilePath)
	require.NoError(t, err)
	assert.Equal(t, in.Code, out.Code)
}

func TestDocumentationWithRuleSurvives(t *testing.T) {
	s := newTestStorage(t)
	in := sampleCapsule()
	in.Documentation = "Intro\n---\nMore\n\n  ---\nEnd"
	in.Inputs = []models.Port{{ID: "plans", Name: "Plans", Type: "array", Required: true}}

	require.NoError(t, s.SaveCapsule(in))
	out, err := s.LoadCapsule(in.FilePath)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	c, err := parseCapsuleFile([]byte("---\r\nid: crlf\r\n---\r\nbody\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "crlf", c.ID)
}

func TestParseWithoutFenceUsesBody(t *testing.T) {
	c, err := parseCapsuleFile([]byte("---\nid: plain\nname: Plain\n---\n\nexport const x = 1\n"))
	require.NoError(t, err)
	assert.Equal(t, "plain", c.ID)
	assert.Equal(t, "export const x = 1", c.Code)
}

func TestParseErrors(t *testing.T) {
	_, err := parseCapsuleFile([]byte("id: x\n"))
	assert.ErrorContains(t, err, "missing frontmatter delimiter")

	_, err = parseCapsuleFile([]byte("---\nid: x\n"))
	assert.ErrorContains(t, err, "unterminated frontmatter")

	_, err = parseCapsuleFile([]byte("---\nid: [x\n---\n"))
	assert.ErrorContains(t, err, "failed to parse frontmatter")
}

func TestSaveRejectsUnsafeIDs(t *testing.T) {
	s := newTestStorage(t)
	for _, id := range []string{"", "../escape", ".hidden", "a/b"} {
		c := sampleCapsule()
		c.ID = id
		assert.Error(t, s.SaveCapsule(c), id)
	}
}

func TestListCapsulesUsesCache(t *testing.T) {
	s := newTestStorage(t)
	first := sampleCapsule()
	second := sampleCapsule()
	second.ID = "faq-accordion"
	second.Name = "FAQ Accordion"
	require.NoError(t, s.SaveCapsule(first))
	require.NoError(t, s.SaveCapsule(second))

	// a file that cannot be parsed is skipped
	require.NoError(t, os.WriteFile(filepath.Join(s.BaseDir(), CapsulesDir, "broken.md"), []byte("nope"), 0644))

	listed, err := s.ListCapsules()
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, 2, s.cache.Len())

	// a second storage over the same root reads the persisted cache
	again, err := NewStorage(s.BaseDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, again.cache.Len())

	cached, err := again.ListCapsules()
	require.NoError(t, err)
	if diff := cmp.Diff(listed, cached, cmpopts.SortSlices(func(a, b *models.Capsule) bool { return a.ID < b.ID })); diff != "" {
		t.Errorf("cached listing differs (-fresh +cached):\n%s", diff)
	}
}

func TestListCapsulesSeesEditsAndDeletes(t *testing.T) {
	s := newTestStorage(t)
	c := sampleCapsule()
	require.NoError(t, s.SaveCapsule(c))
	_, err := s.ListCapsules()
	require.NoError(t, err)

	c.Description = "Updated"
	require.NoError(t, s.SaveCapsule(c))
	// make sure the modification time moves even on coarse file systems
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(s.BaseDir(), c.FilePath), future, future))

	listed, err := s.ListCapsules()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "Updated", listed[0].Description)

	require.NoError(t, s.DeleteCapsule(c))
	listed, err = s.ListCapsules()
	require.NoError(t, err)
	assert.Empty(t, listed)
	assert.Zero(t, s.cache.Len())

	assert.Error(t, s.DeleteCapsule(c))
}

func TestListCapsulesWithoutLibrary(t *testing.T) {
	s, err := NewStorage(filepath.Join(t.TempDir(), "missing"), nil)
	require.NoError(t, err)

	listed, err := s.ListCapsules()
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestSavedSearches(t *testing.T) {
	store := NewSavedSearchesStorage(t.TempDir())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	none, err := store.LoadSavedSearches()
	require.NoError(t, err)
	assert.Empty(t, none)

	expr, err := models.ParseBooleanExpression("forms AND NOT legacy")
	require.NoError(t, err)
	require.NoError(t, store.AddSavedSearch(models.SavedSearch{Name: "modern forms", Expression: expr}))

	clock = clock.Add(time.Hour)
	require.NoError(t, store.AddSavedSearch(models.SavedSearch{Name: "modern forms", Expression: expr, TextQuery: "input"}))

	got, err := store.GetSavedSearch("modern forms")
	require.NoError(t, err)
	assert.Equal(t, "input", got.TextQuery)
	assert.Equal(t, "([forms] AND NOT [legacy])", got.Expression.String())
	assert.True(t, got.UpdatedAt.After(got.CreatedAt), "update keeps the creation time")

	all, err := store.LoadSavedSearches()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.DeleteSavedSearch("modern forms"))
	assert.Error(t, store.DeleteSavedSearch("modern forms"))
	_, err = store.GetSavedSearch("modern forms")
	assert.Error(t, err)
}

func TestSavedSearchesSortedByName(t *testing.T) {
	store := NewSavedSearchesStorage(t.TempDir())
	for _, name := range []string{"media", "ai", "forms"} {
		require.NoError(t, store.AddSavedSearch(models.SavedSearch{Name: name, Expression: models.NewTagExpression(name)}))
	}

	all, err := store.LoadSavedSearches()
	require.NoError(t, err)
	var names []string
	for _, s := range all {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"ai", "forms", "media"}, names)

	entries, err := os.ReadDir(filepath.Dir(store.path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestMetadataCacheIgnoresOutdatedVersion(t *testing.T) {
	dir := t.TempDir()
	cache := NewMetadataCache(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(cache.path), 0755))
	stale := `{"version": 1, "entries": {"capsules/a.md": {"capsule": {"id": "a"}}}}`
	require.NoError(t, os.WriteFile(cache.path, []byte(stale), 0644))

	require.NoError(t, cache.Load())
	assert.Zero(t, cache.Len())

	require.NoError(t, os.WriteFile(cache.path, []byte("{not json"), 0644))
	require.NoError(t, cache.Load())
	assert.Zero(t, cache.Len())
}

func TestMetadataCacheMatchesSizeAndModTime(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(file, []byte("one"), 0644))
	info, err := os.Stat(file)
	require.NoError(t, err)

	cache := NewMetadataCache(dir)
	cache.Set("a.md", info, &models.Capsule{ID: "a"})
	entry, ok := cache.Get("a.md", info)
	require.True(t, ok)
	assert.Equal(t, "a", entry.ToCapsule().ID)

	// same modification time, different size
	require.NoError(t, os.WriteFile(file, []byte("one two"), 0644))
	require.NoError(t, os.Chtimes(file, info.ModTime(), info.ModTime()))
	changed, err := os.Stat(file)
	require.NoError(t, err)
	_, ok = cache.Get("a.md", changed)
	assert.False(t, ok)

	require.NoError(t, cache.Save())
	raw, err := os.ReadFile(cache.path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hash")
}
