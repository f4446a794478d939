package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	RunsDir string `toml:"runs_dir"`
	LogDir  string `toml:"log_dir"`
}

// Profiles points at the YAML run profiles.
type Profiles struct {
	Pipeline string `toml:"pipeline"`
	Search   string `toml:"search"`
	Metrics  string `toml:"metrics"`
}

// Run contains trial engine behaviour.
type Run struct {
	// Mode is one of "absolute", "early" or "both". Early stopping across
	// references is allowed for "early" and "both".
	Mode     string `toml:"mode"`
	Workers  int    `toml:"workers"`
	FailFast bool   `toml:"fail_fast"`
	UseCache bool   `toml:"use_cache"`
}

// Minio contains S3-compatible object storage settings for the stage cache.
type Minio struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Cache contains configuration for the content-addressable stage cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Backend string `toml:"backend"` // "dir" or "minio"
	Dir     string `toml:"dir"`
	MaxMiB  int    `toml:"max_mib"` // 0 keeps every entry
	Minio   Minio  `toml:"minio"`
}

// Store contains configuration for the SQLite run ledger.
type Store struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Sigilum.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Profiles Profiles `toml:"profiles"`
	Run      Run      `toml:"run"`
	Cache    Cache    `toml:"cache"`
	Store    Store    `toml:"store"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sigilum/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sigilum.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.RunsDir, c.Paths.LogDir}
	if c.Cache.Enabled && c.Cache.Backend == CacheBackendDir {
		dirs = append(dirs, c.Cache.Dir)
	}
	if c.Store.Enabled {
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CacheMaxBytes returns the cache budget in bytes, or 0 when unbounded.
func (c *Config) CacheMaxBytes() int64 {
	if c.Cache.MaxMiB <= 0 {
		return 0
	}
	return int64(c.Cache.MaxMiB) * 1024 * 1024
}

// AllowsEarlyStop reports whether the configured run mode permits early stopping.
func (c *Config) AllowsEarlyStop() bool {
	return c.Run.Mode == ModeEarly || c.Run.Mode == ModeBoth
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "sigilum", "stages")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/sigilum/stages"
	}
	return filepath.Join(home, ".cache", "sigilum", "stages")
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
