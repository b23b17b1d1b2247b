package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/dpshade/pocket-capsules/internal/models"
)

// Seed capsules bundled into the binary, one file per category.
//
//go:embed data/*.json
var seedFS embed.FS

// BuiltinPrefix prefixes the source name of embedded capsules
const BuiltinPrefix = "builtin:"

// Builtin decodes the embedded seed files. Each file becomes one Source named
// "builtin:<file>"; files are returned in name order. Every call returns fresh
// records.
func Builtin() ([]Source, error) {
	entries, err := seedFS.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded catalog: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	sources := make([]Source, 0, len(names))
	for _, name := range names {
		data, err := seedFS.ReadFile(path.Join("data", name))
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded %s: %w", name, err)
		}

		capsules, err := DecodeCapsules(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse embedded %s: %w", name, err)
		}

		src := Source{
			Name:     BuiltinPrefix + strings.TrimSuffix(name, ".json"),
			Capsules: capsules,
		}
		for _, c := range capsules {
			c.Source = src.Name
		}
		sources = append(sources, src)
	}

	return sources, nil
}

// DecodeCapsules parses a JSON array of capsule records
func DecodeCapsules(data []byte) ([]*models.Capsule, error) {
	var capsules []*models.Capsule
	if err := json.Unmarshal(data, &capsules); err != nil {
		return nil, err
	}
	return capsules, nil
}
