// Package config implements the store's on-disk TOML configuration file.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/blobshard/blobshard/internal/digest"
	"github.com/blobshard/blobshard/internal/storeerr"
)

// defaultMaxPerDir is the per-directory blob threshold used when a Config
// is created via NewConfig rather than loaded from an existing file.
const defaultMaxPerDir = 254

// Config represents a blob store's configuration.
type Config struct {
	Root      string `toml:"root"`
	Algorithm string `toml:"algorithm"`
	MaxPerDir int    `toml:"max_per_dir"`
	LogDir    string `toml:"log_dir"`
}

// NewConfig creates a new Config rooted at root using algorithm, with the
// default MaxPerDir and a log directory nested under root.
func NewConfig(root, algorithm string) *Config {
	return &Config{
		Root:      root,
		Algorithm: algorithm,
		MaxPerDir: defaultMaxPerDir,
		LogDir:    filepath.Join(root, "log"),
	}
}

// Validate checks that cfg describes a store blobstore.Open can actually
// open: a registered digest algorithm, a usable MaxPerDir, and a non-empty
// Root. It does not touch disk — whether Root and LogDir can be created is
// found out only when the store or logger try to create them.
func (cfg *Config) Validate() error {
	if _, err := digest.ByName(cfg.Algorithm); err != nil {
		return err
	}
	if cfg.MaxPerDir < 1 {
		return storeerr.New(storeerr.InvalidArgument, "config.Validate",
			fmt.Errorf("max_per_dir must be >= 1, got %d", cfg.MaxPerDir))
	}
	if cfg.Root == "" {
		return storeerr.New(storeerr.InvalidArgument, "config.Validate",
			fmt.Errorf("root must not be empty"))
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader and validates it.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at path with the provided Config. It
// refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
