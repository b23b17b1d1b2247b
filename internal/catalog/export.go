package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dpshade/pocket-capsules/internal/models"
)

// SnapshotOptions controls Snapshot
type SnapshotOptions struct {
	// MetadataOnly drops the code of every record
	MetadataOnly bool
	// Source labels where the records came from
	Source string
	// Now overrides the generation time
	Now func() time.Time
}

// Snapshot builds the export document over every record, duplicates included
func (c *Catalog) Snapshot(opts SnapshotOptions) *models.CatalogSnapshot {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	source := opts.Source
	if source == "" {
		source = "pocket-capsules"
	}

	records := make([]*models.Capsule, 0, len(c.records))
	for _, capsule := range c.records {
		if opts.MetadataOnly {
			records = append(records, capsule.WithoutCode())
		} else {
			records = append(records, capsule)
		}
	}

	return &models.CatalogSnapshot{
		Metadata: models.SnapshotMetadata{
			Version:       models.SnapshotFormatVersion,
			GeneratedAt:   now().UTC(),
			TotalCapsules: len(records),
			Categories:    models.CategoryCounts(records),
			Tags:          c.Stats().UniqueTags,
			Source:        source,
			MetadataOnly:  opts.MetadataOnly,
		},
		Capsules: records,
	}
}

// WriteSnapshot encodes snap as indented JSON
func WriteSnapshot(w io.Writer, snap *models.CatalogSnapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(snap)
}

// WriteSnapshotFile writes snap to path through a temporary file so readers
// never observe a partial export.
func WriteSnapshotFile(path string, snap *models.CatalogSnapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteSnapshot(tmp, snap); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadSnapshot decodes a snapshot
func ReadSnapshot(r io.Reader) (*models.CatalogSnapshot, error) {
	var snap models.CatalogSnapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// ReadSnapshotFile decodes the snapshot stored at path
func ReadSnapshotFile(path string) (*models.CatalogSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// CompareSnapshot checks that snap holds the same number of records and the
// same category distribution as the catalog. It also checks that the
// snapshot's own metadata agrees with its records.
func (c *Catalog) CompareSnapshot(snap *models.CatalogSnapshot) error {
	var problems []string

	if got, want := len(snap.Capsules), len(c.records); got != want {
		problems = append(problems, fmt.Sprintf("record count %d, catalog has %d", got, want))
	}
	if snap.Metadata.TotalCapsules != len(snap.Capsules) {
		problems = append(problems, fmt.Sprintf("metadata reports %d records, file holds %d",
			snap.Metadata.TotalCapsules, len(snap.Capsules)))
	}

	problems = append(problems, diffCounts("catalog", models.CategoryCounts(c.records), models.CategoryCounts(snap.Capsules))...)
	problems = append(problems, diffCounts("metadata", models.CategoryCounts(snap.Capsules), snap.Metadata.Categories)...)

	if len(problems) > 0 {
		return fmt.Errorf("snapshot mismatch: %s", strings.Join(problems, "; "))
	}
	return nil
}

func diffCounts(label string, want, got map[string]int) []string {
	keys := make(map[string]struct{})
	for k := range want {
		keys[k] = struct{}{}
	}
	for k := range got {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var problems []string
	for _, k := range sorted {
		if want[k] != got[k] {
			problems = append(problems, fmt.Sprintf("category %q: %s has %d, snapshot has %d", k, label, want[k], got[k]))
		}
	}
	return problems
}

// WriteMetadata writes the code-less snapshot of the catalog to w
func (c *Catalog) WriteMetadata(w io.Writer, opts SnapshotOptions) error {
	opts.MetadataOnly = true
	return WriteSnapshot(w, c.Snapshot(opts))
}
