package storage

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dpshade/pocket-capsules/internal/models"
)

const (
	// CapsulesDir holds one markdown file per library capsule
	CapsulesDir = "capsules"
	// StateDir holds the cache and saved searches
	StateDir = ".pocket-capsules"

	capsuleExt   = ".md"
	codeLanguage = "tsx"
)

// Storage handles all file system operations for library capsules
type Storage struct {
	rootPath string
	cache    *MetadataCache
	logger   *zap.Logger
}

// NewStorage creates a storage rooted at rootPath (~/.pocket-capsules when empty)
func NewStorage(rootPath string, logger *zap.Logger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rootPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		rootPath = filepath.Join(homeDir, ".pocket-capsules")
	}

	cache := NewMetadataCache(rootPath)
	if err := cache.Load(); err != nil {
		// the cache only saves parsing time
		logger.Warn("failed to load metadata cache", zap.Error(err))
	}

	return &Storage{
		rootPath: rootPath,
		cache:    cache,
		logger:   logger,
	}, nil
}

// InitLibrary creates the directory structure for a capsule library
func (s *Storage) InitLibrary() error {
	dirs := []string{
		s.rootPath,
		filepath.Join(s.rootPath, CapsulesDir),
		filepath.Join(s.rootPath, StateDir),
		filepath.Join(s.rootPath, StateDir, "cache"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// BaseDir returns the library root
func (s *Storage) BaseDir() string {
	return s.rootPath
}

// CapsulePath returns the library-relative file path for id
func CapsulePath(id string) string {
	return filepath.Join(CapsulesDir, id+capsuleExt)
}

// Exists reports whether a capsule file for id is present
func (s *Storage) Exists(id string) bool {
	_, err := os.Stat(filepath.Join(s.rootPath, CapsulePath(id)))
	return err == nil
}

// LoadCapsule loads a capsule from a markdown file relative to the library root
func (s *Storage) LoadCapsule(path string) (*models.Capsule, error) {
	content, err := os.ReadFile(filepath.Join(s.rootPath, path))
	if err != nil {
		return nil, fmt.Errorf("failed to read capsule file: %w", err)
	}

	capsule, err := parseCapsuleFile(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse capsule %s: %w", path, err)
	}

	capsule.FilePath = path
	return capsule, nil
}

// SaveCapsule writes the capsule to its file, deriving the path from the id
// when the capsule has none yet.
func (s *Storage) SaveCapsule(capsule *models.Capsule) error {
	if err := checkID(capsule.ID); err != nil {
		return err
	}
	if capsule.FilePath == "" {
		capsule.FilePath = CapsulePath(capsule.ID)
	}

	fullPath := filepath.Join(s.rootPath, capsule.FilePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	content, err := serializeCapsule(capsule)
	if err != nil {
		return fmt.Errorf("failed to serialize capsule: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write capsule file: %w", err)
	}

	return nil
}

// DeleteCapsule removes the capsule's file
func (s *Storage) DeleteCapsule(capsule *models.Capsule) error {
	path := capsule.FilePath
	if path == "" {
		path = CapsulePath(capsule.ID)
	}
	fullPath := filepath.Join(s.rootPath, path)

	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("capsule file does not exist: %s", fullPath)
	}

	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete capsule file: %w", err)
	}

	return nil
}

// ListCapsules returns every capsule in the library in file-name order.
// Unchanged files are served from the metadata cache; unreadable files are
// logged and skipped.
func (s *Storage) ListCapsules() ([]*models.Capsule, error) {
	dir := filepath.Join(s.rootPath, CapsulesDir)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.Capsule{}, nil
	}

	var capsules []*models.Capsule
	existing := make(map[string]bool)
	modified := false

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, capsuleExt) {
			return nil
		}

		relPath, _ := filepath.Rel(s.rootPath, path)
		existing[relPath] = true

		if cached, ok := s.cache.Get(relPath, info); ok {
			capsules = append(capsules, cached.ToCapsule())
			return nil
		}

		capsule, err := s.LoadCapsule(relPath)
		if err != nil {
			s.logger.Warn("skipping unreadable capsule", zap.String("path", relPath), zap.Error(err))
			return nil
		}

		s.cache.Set(relPath, info, capsule)
		modified = true
		capsules = append(capsules, capsule)
		return nil
	})

	if s.cache.Cleanup(existing) {
		modified = true
	}
	if modified {
		if err := s.cache.Save(); err != nil {
			s.logger.Warn("failed to save metadata cache", zap.Error(err))
		}
	}

	return capsules, err
}

func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("capsule id is required")
	}
	if id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("capsule id %q cannot be used as a file name", id)
	}
	return nil
}

// parseCapsuleFile reads YAML frontmatter followed by a fenced code block.
// Without a fence the whole body is taken as code.
func parseCapsuleFile(content []byte) (*models.Capsule, error) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	if !scanner.Scan() || strings.TrimRight(scanner.Text(), "\r") != "---" {
		return nil, fmt.Errorf("missing frontmatter delimiter")
	}

	var frontmatter []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		// only an unindented delimiter closes the block; an indented "---"
		// belongs to a block scalar such as the documentation
		if strings.TrimRight(line, "\r") == "---" {
			closed = true
			break
		}
		frontmatter = append(frontmatter, line)
	}
	if !closed {
		return nil, fmt.Errorf("unterminated frontmatter")
	}

	var capsule models.Capsule
	if err := yaml.Unmarshal([]byte(strings.Join(frontmatter, "\n")), &capsule); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	var body []string
	for scanner.Scan() {
		body = append(body, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	capsule.Code = extractCode(body)
	return &capsule, nil
}

func extractCode(lines []string) string {
	start := -1
	fence := ""
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			start = i
			fence = trimmed[:len(trimmed)-len(strings.TrimLeft(trimmed, "`"))]
			break
		}
	}
	if start < 0 {
		return strings.TrimSpace(strings.Join(lines, "\n"))
	}

	var code []string
	for _, line := range lines[start+1:] {
		if strings.TrimSpace(line) == fence {
			break
		}
		code = append(code, line)
	}
	return strings.Join(code, "\n")
}

func serializeCapsule(capsule *models.Capsule) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("---\n")
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(capsule); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	buf.WriteString("---\n")

	if capsule.Code != "" {
		fence := models.CodeFence(capsule.Code)
		buf.WriteString("\n")
		buf.WriteString(fence + codeLanguage + "\n")
		buf.WriteString(strings.TrimRight(capsule.Code, "\n"))
		buf.WriteString("\n" + fence + "\n")
	}

	return buf.Bytes(), nil
}
