package models

import "time"

// SnapshotFormatVersion identifies the layout of exported catalog snapshots
const SnapshotFormatVersion = "1.0.0"

// CatalogSnapshot is the JSON document written by the export tooling
type CatalogSnapshot struct {
	Metadata SnapshotMetadata `json:"metadata"`
	Capsules []*Capsule       `json:"capsules"`
}

// SnapshotMetadata summarises the exported records
type SnapshotMetadata struct {
	Version       string         `json:"version"`
	GeneratedAt   time.Time      `json:"generatedAt"`
	TotalCapsules int            `json:"totalCapsules"`
	Categories    map[string]int `json:"categories"`
	Tags          int            `json:"tags"`
	Source        string         `json:"source"`
	MetadataOnly  bool           `json:"metadataOnly,omitempty"`
}

// CategoryCounts tallies capsules per category
func CategoryCounts(capsules []*Capsule) map[string]int {
	counts := make(map[string]int)
	for _, c := range capsules {
		counts[c.Category]++
	}
	return counts
}
