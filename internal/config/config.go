package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	// FileName is the config file looked up inside the library directory
	FileName = "capsules.toml"

	DefaultPort         = 8080
	DefaultLogLevel     = "info"
	DefaultExportPath   = "capsules.json"
	DefaultMetadataPath = "capsules-metadata.json"
)

// Config holds user-tunable settings. Precedence, lowest first: defaults,
// capsules.toml, environment, command-line flags.
type Config struct {
	LibraryDir     string `toml:"library_dir"`
	Port           int    `toml:"port"`
	LogLevel       string `toml:"log_level"`
	IncludeBuiltin bool   `toml:"include_builtin"`
	ExportPath     string `toml:"export_path"`
	MetadataPath   string `toml:"metadata_path"`

	// Path the config was loaded from, empty when defaults are in use
	Source string `toml:"-"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LibraryDir:     DefaultLibraryDir(),
		Port:           DefaultPort,
		LogLevel:       DefaultLogLevel,
		IncludeBuiltin: true,
		ExportPath:     DefaultExportPath,
		MetadataPath:   DefaultMetadataPath,
	}
}

// DefaultLibraryDir returns ~/.pocket-capsules, or ./.pocket-capsules when
// the home directory cannot be determined.
func DefaultLibraryDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pocket-capsules"
	}
	return filepath.Join(home, ".pocket-capsules")
}

// Load builds the effective configuration. A .env file in the working
// directory is loaded first when present. An explicit path that does not
// exist is an error; a missing capsules.toml in the library is not.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if dir := os.Getenv("CAPSULES_DIR"); dir != "" {
		cfg.LibraryDir = dir
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv("CAPSULES_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = filepath.Join(cfg.LibraryDir, FileName)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML '%s': %w", path, err)
		}
		cfg.Source = path
	case os.IsNotExist(err) && !explicit:
		// defaults only
	default:
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	// CAPSULES_DIR wins over the file as well
	if dir := os.Getenv("CAPSULES_DIR"); dir != "" {
		c.LibraryDir = dir
	}
	if port := os.Getenv("CAPSULES_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid CAPSULES_PORT %q: %w", port, err)
		}
		c.Port = p
	}
	if level := os.Getenv("CAPSULES_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if out := os.Getenv("CAPSULES_EXPORT_PATH"); out != "" {
		c.ExportPath = out
	}
	return nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.LibraryDir == "" {
		return fmt.Errorf("library_dir must not be empty")
	}
	return nil
}

// Save writes the configuration as TOML
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
