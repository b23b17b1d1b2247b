package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dpshade/pocket-capsules/internal/models"
)

const (
	savedSearchesFile    = "saved_searches.json"
	savedSearchesVersion = "1.0"
)

// SavedSearchesStorage keeps named tag expressions in one JSON document next
// to the metadata cache, sorted by name.
type SavedSearchesStorage struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func NewSavedSearchesStorage(baseDir string) *SavedSearchesStorage {
	return &SavedSearchesStorage{
		path: filepath.Join(baseDir, StateDir, savedSearchesFile),
		now:  time.Now,
	}
}

type savedSearchesDoc struct {
	Version  string               `json:"version"`
	Searches []models.SavedSearch `json:"searches"`
}

// LoadSavedSearches returns the searches sorted by name
func (s *SavedSearchesStorage) LoadSavedSearches() ([]models.SavedSearch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// GetSavedSearch returns the search called name
func (s *SavedSearchesStorage) GetSavedSearch(name string) (*models.SavedSearch, error) {
	searches, err := s.LoadSavedSearches()
	if err != nil {
		return nil, err
	}
	i := indexOf(searches, name)
	if i < 0 {
		return nil, fmt.Errorf("saved search not found: %s", name)
	}
	return &searches[i], nil
}

// AddSavedSearch upserts search by name. Replacing a search keeps its
// creation time.
func (s *SavedSearchesStorage) AddSavedSearch(search models.SavedSearch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	searches, err := s.read()
	if err != nil {
		return err
	}

	now := s.now().UTC()
	search.UpdatedAt = now
	if i := indexOf(searches, search.Name); i >= 0 {
		search.CreatedAt = searches[i].CreatedAt
		searches[i] = search
	} else {
		if search.CreatedAt.IsZero() {
			search.CreatedAt = now
		}
		searches = append(searches, search)
	}
	return s.write(searches)
}

func (s *SavedSearchesStorage) DeleteSavedSearch(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	searches, err := s.read()
	if err != nil {
		return err
	}
	i := indexOf(searches, name)
	if i < 0 {
		return fmt.Errorf("saved search not found: %s", name)
	}
	return s.write(append(searches[:i], searches[i+1:]...))
}

// SaveSearches replaces every stored search
func (s *SavedSearchesStorage) SaveSearches(searches []models.SavedSearch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(searches)
}

func (s *SavedSearchesStorage) read() ([]models.SavedSearch, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []models.SavedSearch{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read saved searches: %w", err)
	}

	var doc savedSearchesDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	if doc.Searches == nil {
		doc.Searches = []models.SavedSearch{}
	}
	return doc.Searches, nil
}

func (s *SavedSearchesStorage) write(searches []models.SavedSearch) error {
	sorted := make([]models.SavedSearch, len(searches))
	copy(sorted, searches)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	data, err := json.MarshalIndent(savedSearchesDoc{Version: savedSearchesVersion, Searches: sorted}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode saved searches: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

func indexOf(searches []models.SavedSearch, name string) int {
	for i := range searches {
		if searches[i].Name == name {
			return i
		}
	}
	return -1
}
