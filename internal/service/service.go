// Package service is the business layer shared by the CLI, the API server
// and the TUI. It owns the aggregated catalog and the capsule library.
package service

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"github.com/dpshade/pocket-capsules/internal/catalog"
	"github.com/dpshade/pocket-capsules/internal/config"
	"github.com/dpshade/pocket-capsules/internal/errors"
	"github.com/dpshade/pocket-capsules/internal/models"
	"github.com/dpshade/pocket-capsules/internal/storage"
	"github.com/dpshade/pocket-capsules/internal/validation"
)

// LibrarySource names the library in aggregated capsule sources
const LibrarySource = "library"

// Options configures a Service
type Options struct {
	LibraryDir     string
	IncludeBuiltin bool
	Logger         *zap.Logger
}

// Service provides business logic for capsule management
type Service struct {
	storage       *storage.Storage
	savedSearches *storage.SavedSearchesStorage
	validator     *validation.Validator
	logger        *zap.Logger

	includeBuiltin bool

	// catalog is replaced wholesale on reload
	mu      sync.RWMutex
	catalog *catalog.Catalog

	newID func() string
	now   func() time.Time
}

// NewService creates a service and builds the initial catalog
func NewService(opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewStorage(opts.LibraryDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	svc := &Service{
		storage:        store,
		savedSearches:  storage.NewSavedSearchesStorage(store.BaseDir()),
		validator:      validation.NewValidator(),
		logger:         logger,
		includeBuiltin: opts.IncludeBuiltin,
		newID:          uuid.NewString,
		now:            time.Now,
	}

	if err := svc.Reload(); err != nil {
		return nil, err
	}
	return svc, nil
}

// FromConfig creates a service for cfg
func FromConfig(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	return NewService(Options{
		LibraryDir:     cfg.LibraryDir,
		IncludeBuiltin: cfg.IncludeBuiltin,
		Logger:         logger,
	})
}

// InitLibrary creates the library directory layout
func (s *Service) InitLibrary() error {
	if err := s.storage.InitLibrary(); err != nil {
		return errors.StorageError("init library", err)
	}
	return nil
}

// LibraryDir returns the library root
func (s *Service) LibraryDir() string {
	return s.storage.BaseDir()
}

// Validator returns the schema registry
func (s *Service) Validator() *validation.Validator {
	return s.validator
}

// Reload re-aggregates the embedded capsules and the library
func (s *Service) Reload() error {
	var sources []catalog.Source

	if s.includeBuiltin {
		builtin, err := catalog.Builtin()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeFileCorrupted, "Embedded catalog is unreadable")
		}
		sources = append(sources, builtin...)
	}

	library, err := s.storage.ListCapsules()
	if err != nil {
		return errors.StorageError("list capsules", err)
	}
	sources = append(sources, catalog.Source{Name: LibrarySource, Capsules: library})

	cat := catalog.New(sources...)
	if dups := cat.Duplicates(); len(dups) > 0 {
		for _, d := range dups {
			s.logger.Warn("duplicate capsule id",
				zap.String("id", d.ID),
				zap.Int("count", d.Count),
				zap.Strings("sources", d.Sources))
		}
	}

	s.mu.Lock()
	s.catalog = cat
	s.mu.Unlock()

	s.logger.Debug("catalog loaded",
		zap.Int("records", cat.Len()),
		zap.Int("library", len(library)))
	return nil
}

// Catalog returns the current aggregated catalog
func (s *Service) Catalog() *catalog.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// ListCapsules returns unique capsules matching f
func (s *Service) ListCapsules(f catalog.Filter) []*models.Capsule {
	return s.Catalog().List(f)
}

// GetCapsule returns the capsule with id
func (s *Service) GetCapsule(id string) (*models.Capsule, error) {
	capsule, ok := s.Catalog().Get(id)
	if !ok {
		return nil, errors.NotFoundError(fmt.Sprintf("Capsule '%s'", id))
	}
	return capsule, nil
}

// SearchCapsules runs a fuzzy search. limit <= 0 means no limit.
func (s *Service) SearchCapsules(query string, f catalog.Filter, limit int) []*models.Capsule {
	results := s.Catalog().Search(query, f)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// SearchCapsulesByBooleanExpression returns capsules whose tags satisfy expression
func (s *Service) SearchCapsulesByBooleanExpression(expression *models.BooleanExpression) []*models.Capsule {
	return s.Catalog().BooleanSearch(expression, catalog.Filter{})
}

// BooleanSearch parses and runs a tag expression such as "forms AND NOT legacy"
func (s *Service) BooleanSearch(expression string) ([]*models.Capsule, error) {
	expr, err := models.ParseBooleanExpression(expression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidExpression, "Invalid boolean expression").
			WithDetails(err.Error())
	}
	return s.SearchCapsulesByBooleanExpression(expr), nil
}

// Tags returns every tag in the catalog
func (s *Service) Tags() []string {
	return s.Catalog().Tags()
}

// Categories returns every category with its capsule count
func (s *Service) Categories() []catalog.CategoryCount {
	return s.Catalog().Categories()
}

// Stats computes the catalog report
func (s *Service) Stats() catalog.Stats {
	return s.Catalog().Stats()
}

// Verify returns the catalog issues
func (s *Service) Verify() []catalog.Issue {
	return s.Catalog().Verify()
}

// VerifyError returns a VERIFICATION_FAILED error listing every issue, or nil
func (s *Service) VerifyError() error {
	issues := s.Verify()
	if len(issues) == 0 {
		return nil
	}
	messages := make([]string, 0, len(issues))
	for _, i := range issues {
		messages = append(messages, fmt.Sprintf("[%s] %s", i.Kind, i.Message))
	}
	return errors.VerificationError(messages)
}

// Snapshot builds the export document
func (s *Service) Snapshot(metadataOnly bool) *models.CatalogSnapshot {
	return s.Catalog().Snapshot(catalog.SnapshotOptions{MetadataOnly: metadataOnly, Now: s.now})
}

// Export writes the snapshot to w
func (s *Service) Export(w io.Writer, metadataOnly bool) error {
	if err := catalog.WriteSnapshot(w, s.Snapshot(metadataOnly)); err != nil {
		return errors.ExportError("write snapshot", err)
	}
	return nil
}

// ExportToFile writes the snapshot to path, reads it back and checks that it
// matches the catalog.
func (s *Service) ExportToFile(path string, metadataOnly bool) (*models.CatalogSnapshot, error) {
	snap := s.Snapshot(metadataOnly)
	if err := catalog.WriteSnapshotFile(path, snap); err != nil {
		return nil, errors.ExportError(path, err)
	}

	if err := s.VerifySnapshotFile(path); err != nil {
		return nil, err
	}

	s.logger.Info("catalog exported",
		zap.String("path", path),
		zap.Int("capsules", snap.Metadata.TotalCapsules),
		zap.Bool("metadata_only", metadataOnly))
	return snap, nil
}

// VerifySnapshotFile checks a previously exported file against the catalog
func (s *Service) VerifySnapshotFile(path string) error {
	snap, err := catalog.ReadSnapshotFile(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileCorrupted, fmt.Sprintf("Cannot read snapshot %s", path))
	}
	if err := s.Catalog().CompareSnapshot(snap); err != nil {
		return errors.VerificationError([]string{err.Error()})
	}
	return nil
}

// ImportSkip is a snapshot record that was not imported
type ImportSkip struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// ImportResult summarises an import
type ImportResult struct {
	Imported []string     `json:"imported"`
	Skipped  []ImportSkip `json:"skipped"`
}

// Import writes the snapshot's capsules into the library. Records without
// code, repeated ids, embedded capsules and existing library capsules (unless
// overwrite) are skipped.
func (s *Service) Import(snap *models.CatalogSnapshot, overwrite bool) (*ImportResult, error) {
	result := &ImportResult{Imported: []string{}, Skipped: []ImportSkip{}}
	cat := s.Catalog()
	seen := make(map[string]bool, len(snap.Capsules))

	for _, record := range snap.Capsules {
		if err := validation.ValidateIdentifier(record.ID); err != nil {
			result.Skipped = append(result.Skipped, ImportSkip{ID: record.ID, Reason: err.Error()})
			continue
		}
		// the first record with an id wins, as in the catalog
		if seen[record.ID] {
			result.Skipped = append(result.Skipped, ImportSkip{ID: record.ID, Reason: "duplicate id in snapshot"})
			continue
		}
		seen[record.ID] = true
		if strings.TrimSpace(record.Code) == "" {
			result.Skipped = append(result.Skipped, ImportSkip{ID: record.ID, Reason: "record has no code"})
			continue
		}
		if existing, ok := cat.Get(record.ID); ok {
			if existing.Source != LibrarySource {
				result.Skipped = append(result.Skipped, ImportSkip{ID: record.ID, Reason: "id belongs to " + existing.Source})
				continue
			}
			if !overwrite {
				result.Skipped = append(result.Skipped, ImportSkip{ID: record.ID, Reason: "already in library"})
				continue
			}
		}

		cp := *record
		cp.Source = ""
		cp.FilePath = ""
		if err := s.storage.SaveCapsule(&cp); err != nil {
			return result, errors.StorageError("import "+record.ID, err)
		}
		result.Imported = append(result.Imported, record.ID)
	}

	if err := s.Reload(); err != nil {
		return result, err
	}
	s.logger.Info("snapshot imported",
		zap.Int("imported", len(result.Imported)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

// CreateCapsule validates capsule against the capsule_submission schema and
// writes it to the library. Ids already present anywhere in the catalog are
// rejected.
func (s *Service) CreateCapsule(capsule *models.Capsule) (*models.Capsule, error) {
	result := s.validator.Validate("capsule_submission", capsuleToMap(capsule))
	if !result.Valid {
		return nil, result.ToAppError()
	}

	return s.store(capsuleFromMap(result.Data))
}

// SubmitCapsule creates a library capsule from a payload that already passed
// the capsule_submission schema, such as an API request body read through
// the validation middleware. The payload is not normalised a second time.
func (s *Service) SubmitCapsule(data map[string]interface{}) (*models.Capsule, error) {
	return s.store(capsuleFromMap(data))
}

// store writes a normalised capsule unless its id is already taken
func (s *Service) store(created *models.Capsule) (*models.Capsule, error) {
	if existing, ok := s.Catalog().Get(created.ID); ok {
		return nil, errors.AlreadyExistsError(fmt.Sprintf("Capsule '%s'", created.ID)).
			WithContext("source", existing.Source)
	}

	if err := s.storage.SaveCapsule(created); err != nil {
		return nil, errors.StorageError("save capsule", err)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}

	s.logger.Info("capsule created", zap.String("id", created.ID))
	created.Source = LibrarySource
	return created, nil
}

// DeleteCapsule removes a library capsule. Embedded capsules are read-only.
func (s *Service) DeleteCapsule(id string) error {
	capsule, err := s.GetCapsule(id)
	if err != nil {
		return err
	}
	if capsule.Source != LibrarySource {
		return errors.NewAppError(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Capsule '%s' is part of %s and cannot be deleted", id, capsule.Source))
	}

	if err := s.storage.DeleteCapsule(capsule); err != nil {
		return errors.StorageError("delete capsule", err)
	}
	if err := s.Reload(); err != nil {
		return err
	}

	s.logger.Info("capsule deleted", zap.String("id", id))
	return nil
}

// FormSubmission is an accepted form payload
type FormSubmission struct {
	ID         string                 `json:"submissionId"`
	Schema     string                 `json:"schema"`
	Data       map[string]interface{} `json:"data"`
	ReceivedAt time.Time              `json:"receivedAt"`
}

// ValidateForm validates a form submission against one of the form schemas.
// Failures come back as a CONSTRAINT_VIOLATION AppError carrying every message.
func (s *Service) ValidateForm(schema string, data map[string]interface{}) (*FormSubmission, error) {
	if !validation.IsFormSchema(schema) {
		return nil, errors.SchemaNotFoundError(schema)
	}

	result := s.validator.Validate(schema, data)
	if !result.Valid {
		s.logger.Debug("form rejected",
			zap.String("schema", schema),
			zap.Strings("errors", result.Messages()))
		return nil, result.ToAppError()
	}

	return &FormSubmission{
		ID:         s.newID(),
		Schema:     schema,
		Data:       result.Data,
		ReceivedAt: s.now().UTC(),
	}, nil
}

// Saved search methods

// ListSavedSearches returns all saved boolean searches
func (s *Service) ListSavedSearches() ([]models.SavedSearch, error) {
	return s.savedSearches.LoadSavedSearches()
}

// GetSavedSearch retrieves a saved search by name
func (s *Service) GetSavedSearch(name string) (*models.SavedSearch, error) {
	search, err := s.savedSearches.GetSavedSearch(name)
	if err != nil {
		return nil, errors.NotFoundError(fmt.Sprintf("Saved search '%s'", name))
	}
	return search, nil
}

// SaveBooleanSearch stores search, replacing one with the same name
func (s *Service) SaveBooleanSearch(search models.SavedSearch) error {
	if strings.TrimSpace(search.Name) == "" {
		return errors.ValidationError("Saved search name cannot be empty")
	}
	if err := s.savedSearches.AddSavedSearch(search); err != nil {
		return errors.StorageError("save search", err)
	}
	return nil
}

// DeleteSavedSearch removes a saved search by name
func (s *Service) DeleteSavedSearch(name string) error {
	if err := s.savedSearches.DeleteSavedSearch(name); err != nil {
		return errors.NotFoundError(fmt.Sprintf("Saved search '%s'", name))
	}
	return nil
}

// ExecuteSavedSearch runs a saved search. A non-empty textQuery overrides
// the saved text filter.
func (s *Service) ExecuteSavedSearch(name, textQuery string) ([]*models.Capsule, error) {
	search, err := s.GetSavedSearch(name)
	if err != nil {
		return nil, err
	}

	results := s.SearchCapsulesByBooleanExpression(search.Expression)

	if textQuery == "" {
		textQuery = search.TextQuery
	}
	if textQuery == "" {
		return results, nil
	}
	return filterByText(results, textQuery), nil
}

func filterByText(capsules []*models.Capsule, query string) []*models.Capsule {
	haystack := make([]string, 0, len(capsules))
	for _, c := range capsules {
		haystack = append(haystack, fmt.Sprintf("%s %s %s", c.Name, c.Description, strings.Join(c.Tags, " ")))
	}

	var results []*models.Capsule
	for _, m := range fuzzy.Find(query, haystack) {
		results = append(results, capsules[m.Index])
	}
	return results
}

func capsuleToMap(c *models.Capsule) map[string]interface{} {
	data := map[string]interface{}{
		"id":            c.ID,
		"name":          c.Name,
		"category":      c.Category,
		"description":   c.Description,
		"code":          c.Code,
		"platform":      c.Platform,
		"version":       c.Version,
		"author":        c.Author,
		"npmPackage":    c.NPMPackage,
		"documentation": c.Documentation,
	}
	if len(c.Tags) > 0 {
		data["tags"] = append([]string(nil), c.Tags...)
	}
	if len(c.Inputs) > 0 {
		data["inputs"] = portsToList(c.Inputs)
	}
	if len(c.Outputs) > 0 {
		data["outputs"] = portsToList(c.Outputs)
	}
	return data
}

func portsToList(ports []models.Port) []interface{} {
	out := make([]interface{}, 0, len(ports))
	for _, p := range ports {
		out = append(out, map[string]interface{}{
			"id":          p.ID,
			"name":        p.Name,
			"type":        p.Type,
			"required":    p.Required,
			"description": p.Description,
		})
	}
	return out
}

func portsFromList(raw interface{}) []models.Port {
	list, _ := raw.([]interface{})
	var ports []models.Port
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		p := models.Port{}
		p.ID, _ = m["id"].(string)
		p.Name, _ = m["name"].(string)
		p.Type, _ = m["type"].(string)
		p.Required, _ = m["required"].(bool)
		p.Description, _ = m["description"].(string)
		ports = append(ports, p)
	}
	return ports
}

func capsuleFromMap(data map[string]interface{}) *models.Capsule {
	str := func(key string) string {
		v, _ := data[key].(string)
		return v
	}

	c := &models.Capsule{
		ID:            str("id"),
		Name:          str("name"),
		Category:      str("category"),
		Description:   str("description"),
		Code:          str("code"),
		Platform:      str("platform"),
		Version:       str("version"),
		Author:        str("author"),
		NPMPackage:    str("npmPackage"),
		Documentation: str("documentation"),
	}
	if tags, ok := data["tags"].([]interface{}); ok {
		for _, t := range tags {
			if tag, ok := t.(string); ok {
				c.Tags = append(c.Tags, tag)
			}
		}
	}
	c.Inputs = portsFromList(data["inputs"])
	c.Outputs = portsFromList(data["outputs"])
	return c
}
