package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeProfiles(); err != nil {
		return err
	}
	c.normalizeRun()
	if err := c.normalizeCache(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RunsDir) == "" {
		c.Paths.RunsDir = defaultRunsDir
	}
	if c.Paths.RunsDir, err = expandPath(c.Paths.RunsDir); err != nil {
		return fmt.Errorf("paths.runs_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeProfiles() error {
	var err error
	if c.Profiles.Pipeline, err = expandPath(strings.TrimSpace(c.Profiles.Pipeline)); err != nil {
		return fmt.Errorf("profiles.pipeline: %w", err)
	}
	if c.Profiles.Search, err = expandPath(strings.TrimSpace(c.Profiles.Search)); err != nil {
		return fmt.Errorf("profiles.search: %w", err)
	}
	if c.Profiles.Metrics, err = expandPath(strings.TrimSpace(c.Profiles.Metrics)); err != nil {
		return fmt.Errorf("profiles.metrics: %w", err)
	}
	return nil
}

func (c *Config) normalizeRun() {
	c.Run.Mode = strings.ToLower(strings.TrimSpace(c.Run.Mode))
	if c.Run.Mode == "" {
		c.Run.Mode = ModeBoth
	}
	if c.Run.Workers <= 0 {
		c.Run.Workers = 1
	}
}

func (c *Config) normalizeCache() error {
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheBackendDir
	}
	if strings.TrimSpace(c.Cache.Dir) == "" {
		c.Cache.Dir = defaultCacheDir()
	}
	var err error
	if c.Cache.Dir, err = expandPath(c.Cache.Dir); err != nil {
		return fmt.Errorf("cache.dir: %w", err)
	}

	m := &c.Cache.Minio
	m.Endpoint = strings.TrimSpace(m.Endpoint)
	m.AccessKey = strings.TrimSpace(m.AccessKey)
	if m.AccessKey == "" {
		if value, ok := os.LookupEnv("SIGILUM_MINIO_ACCESS_KEY"); ok {
			m.AccessKey = strings.TrimSpace(value)
		}
	}
	m.SecretKey = strings.TrimSpace(m.SecretKey)
	if m.SecretKey == "" {
		if value, ok := os.LookupEnv("SIGILUM_MINIO_SECRET_KEY"); ok {
			m.SecretKey = strings.TrimSpace(value)
		}
	}
	m.Bucket = strings.TrimSpace(m.Bucket)
	if m.Bucket == "" {
		m.Bucket = defaultMinioBucket
	}
	m.Prefix = strings.Trim(strings.TrimSpace(m.Prefix), "/")
	return nil
}

func (c *Config) normalizeStore() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = defaultStorePath
	}
	var err error
	if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
