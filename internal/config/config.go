package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type TokensConfig struct {
	Backend    string        `yaml:"backend"` // file or sqlite
	File       string        `yaml:"file"`
	SQLitePath string        `yaml:"sqlite_path"`
	CacheSize  int           `yaml:"cache_size"` // 0 disables the cache
	CacheTTL   time.Duration `yaml:"cache_ttl"`  // how long a revoked token may keep working
}

type StorageConfig struct {
	Backend       string `yaml:"backend"` // fs or s3
	S3Bucket      string `yaml:"s3_bucket"`
	S3Prefix      string `yaml:"s3_prefix"`
	S3Region      string `yaml:"s3_region"`
	S3PartSize    int64  `yaml:"s3_part_size"`
	S3Concurrency int    `yaml:"s3_concurrency"`
}

type UploaderConfig struct {
	Port            int           `yaml:"port"`
	FilePath        string        `yaml:"file_path"`
	StaticDir       string        `yaml:"static_dir"`
	ChunkSize       int           `yaml:"chunk_size"`
	MaxUploadBytes  uint64        `yaml:"max_upload_bytes"` // 0 disables the limit
	MinFreeBytes    uint64        `yaml:"min_free_bytes"`
	LogLevel        string        `yaml:"log_level"`
	Tokens          TokensConfig  `yaml:"tokens"`
	Storage         StorageConfig `yaml:"storage"`
	ManifestDir     string        `yaml:"manifest_dir"` // empty disables manifests
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	WSIdleTimeout   time.Duration `yaml:"ws_idle_timeout"`
}

func Default() UploaderConfig {
	return UploaderConfig{
		Port:      3000,
		FilePath:  "uploads",
		ChunkSize: 64 * 1024,
		LogLevel:  "info",
		Tokens: TokensConfig{
			Backend:   "file",
			File:      "tokens.txt",
			CacheSize: 1024,
			CacheTTL:  30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:       "fs",
			S3PartSize:    8 * 1024 * 1024,
			S3Concurrency: 4,
		},
		ShutdownTimeout: 10 * time.Second,
		WSIdleTimeout:   time.Minute,
	}
}

var Config UploaderConfig = Default()

// Load reads defaults, then the YAML file at path (if non-empty), then the
// environment, and validates the result.
func Load(path string) (UploaderConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *UploaderConfig) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("FILE_PATH"); v != "" {
		cfg.FilePath = v
	}
	if v := os.Getenv("UPLOADER_TOKEN_FILE"); v != "" {
		cfg.Tokens.File = v
	}
	if v := os.Getenv("UPLOADER_STORAGE"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("UPLOADER_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("UPLOADER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

func (c UploaderConfig) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize))
	}
	switch c.Tokens.Backend {
	case "file":
		if c.Tokens.File == "" {
			errs = append(errs, errors.New("tokens.file is required for the file backend"))
		}
	case "sqlite":
		if c.Tokens.SQLitePath == "" {
			errs = append(errs, errors.New("tokens.sqlite_path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tokens.backend %q", c.Tokens.Backend))
	}
	if c.Tokens.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("tokens.cache_size must not be negative, got %d", c.Tokens.CacheSize))
	}
	if c.Tokens.CacheSize > 0 && c.Tokens.CacheTTL <= 0 {
		errs = append(errs, errors.New("tokens.cache_ttl must be positive when the token cache is enabled"))
	}
	switch c.Storage.Backend {
	case "fs":
		if c.FilePath == "" {
			errs = append(errs, errors.New("file_path is required for the fs backend"))
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("storage.s3_bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown_timeout must not be negative"))
	}
	return errors.Join(errs...)
}
