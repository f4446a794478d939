package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRun(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateRun() error {
	switch c.Run.Mode {
	case ModeAbsolute, ModeEarly, ModeBoth:
	default:
		return fmt.Errorf("run.mode must be one of absolute, early, both (got %q)", c.Run.Mode)
	}
	if c.Run.Workers < 1 {
		return errors.New("run.workers must be at least 1")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxMiB < 0 {
		return errors.New("cache.max_mib must be zero (unbounded) or positive")
	}
	if !c.Cache.Enabled {
		return nil
	}
	switch c.Cache.Backend {
	case CacheBackendDir:
		if c.Cache.Dir == "" {
			return errors.New("cache.dir must be set when cache.backend is dir")
		}
	case CacheBackendMinio:
		m := c.Cache.Minio
		if m.Endpoint == "" {
			return errors.New("cache.minio.endpoint must be set when cache.backend is minio")
		}
		if m.AccessKey == "" || m.SecretKey == "" {
			return errors.New("cache.minio access_key and secret_key must be set (or SIGILUM_MINIO_ACCESS_KEY / SIGILUM_MINIO_SECRET_KEY)")
		}
		if m.Bucket == "" {
			return errors.New("cache.minio.bucket must be set")
		}
	default:
		return fmt.Errorf("cache.backend must be dir or minio (got %q)", c.Cache.Backend)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error (got %q)", c.Logging.Level)
	}
	return nil
}
