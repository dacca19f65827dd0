// Package config loads embedkit.toml plus an optional .env overlay, per
// SPEC_FULL.md §10.3. Grounded on the teacher's internal/config package:
// getConfigPath/isProjectRoot's directory-walk-up discovery (here renamed
// to embedkit.toml) and environment.go's godotenv.Read overlay (here
// driven by an EMBEDKIT_ prefix instead of named per-environment files).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// PoolConfig mirrors pool.Config's toggles, per spec.md §6's Pool
// configuration keys.
type PoolConfig struct {
	MaxConnections       int    `toml:"max_connections"`
	MinConnections       int    `toml:"min_connections"`
	AcquireTimeoutMs     int    `toml:"acquire_timeout_ms"`
	IdleTimeoutMs        int    `toml:"idle_timeout_ms"`
	ReapIntervalMs       int    `toml:"reap_interval_ms"`
	MaxConnectionAgeMs   int    `toml:"max_connection_age_ms"`
	EnableResultCache    bool   `toml:"enable_result_cache"`
	MaxCacheEntries      int    `toml:"max_cache_entries"`
	EnableStatementCache bool   `toml:"enable_statement_cache"`
	EnableHealthChecks   bool   `toml:"enable_health_checks"`
	EnableLogging        bool   `toml:"enable_logging"`
}

// BackupConfig mirrors spec.md §6's Backup configuration keys.
type BackupConfig struct {
	Compress    bool   `toml:"compress"`
	IncludeData bool   `toml:"include_data"`
	Format      string `toml:"format"`
}

// RestoreConfig mirrors spec.md §6's Restore configuration keys.
type RestoreConfig struct {
	DropExisting bool `toml:"drop_existing"`
}

// MergeConfig mirrors spec.md §6's Merge configuration keys. The
// `onConflict` hook is necessarily code, not config, and is left to
// callers of lifecycle.Merge.
type MergeConfig struct {
	ConflictResolution string   `toml:"conflict_resolution"`
	TablesFilter       []string `toml:"tables_filter"`
}

// ManagerConfig mirrors spec.md §6's Manager configuration keys.
type ManagerConfig struct {
	DatabasePath      string            `toml:"database_path"`
	Type              string            `toml:"type"`
	UsePool           bool              `toml:"use_pool"`
	ConnectionOptions map[string]string `toml:"connection_options"`
}

// Config is the parsed embedkit.toml document plus its file location.
type Config struct {
	Manager        ManagerConfig `toml:"manager"`
	Pool           PoolConfig    `toml:"pool"`
	Backup         BackupConfig  `toml:"backup"`
	Restore        RestoreConfig `toml:"restore"`
	Merge          MergeConfig   `toml:"merge"`
	ConfigFilePath string        `toml:"-"`
}

// AcquireTimeout returns AcquireTimeoutMs as a time.Duration.
func (c PoolConfig) AcquireTimeout() time.Duration { return time.Duration(c.AcquireTimeoutMs) * time.Millisecond }

// IdleTimeout returns IdleTimeoutMs as a time.Duration.
func (c PoolConfig) IdleTimeout() time.Duration { return time.Duration(c.IdleTimeoutMs) * time.Millisecond }

// ReapInterval returns ReapIntervalMs as a time.Duration.
func (c PoolConfig) ReapInterval() time.Duration { return time.Duration(c.ReapIntervalMs) * time.Millisecond }

// MaxConnectionAge returns MaxConnectionAgeMs as a time.Duration.
func (c PoolConfig) MaxConnectionAge() time.Duration {
	return time.Duration(c.MaxConnectionAgeMs) * time.Millisecond
}

const configFileName = "embedkit.toml"

// Load finds and parses embedkit.toml by walking up from the working
// directory to the nearest project boundary (a `.git` or `go.mod`), then
// overlays any EMBEDKIT_* variables from a sibling `.env` file.
func Load() (*Config, error) {
	path, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ConfigFilePath = path

	if err := overlayDotenv(&cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func findConfigPath() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, configFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		if isProjectRoot(dir) {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("%s not found above the current directory", configFileName)
}

func isProjectRoot(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		return true
	}
	return false
}

// overlayDotenv loads a ".env" file next to embedkit.toml (if present) and
// applies any EMBEDKIT_* variables on top of the parsed config, per
// SPEC_FULL.md §10.3.
func overlayDotenv(cfg *Config, dir string) error {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err != nil {
		return nil
	}
	values, err := godotenv.Read(envPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", envPath, err)
	}

	if v, ok := values["EMBEDKIT_DATABASE_PATH"]; ok && v != "" {
		cfg.Manager.DatabasePath = v
	}
	if v, ok := values["EMBEDKIT_USE_POOL"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Manager.UsePool = b
		}
	}
	if v, ok := values["EMBEDKIT_POOL_MAX_CONNECTIONS"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.MaxConnections = n
		}
	}
	if v, ok := values["EMBEDKIT_POOL_MIN_CONNECTIONS"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.MinConnections = n
		}
	}
	if v, ok := values["EMBEDKIT_BACKUP_COMPRESS"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Backup.Compress = b
		}
	}
	if v, ok := values["EMBEDKIT_MERGE_CONFLICT_RESOLUTION"]; ok && v != "" {
		cfg.Merge.ConflictResolution = v
	}
	if v, ok := values["EMBEDKIT_MERGE_TABLES_FILTER"]; ok && v != "" {
		cfg.Merge.TablesFilter = strings.Split(v, ",")
	}
	return nil
}
