// Package config handles loading and parsing of BlobDock configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for BlobDock.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig holds remote object store settings.
type StoreConfig struct {
	// Bucket is the bucket all objects live in.
	Bucket string `yaml:"bucket"`
	// Region is the bucket's region.
	Region string `yaml:"region"`
	// Endpoint is an optional custom endpoint URL for S3-compatible stores
	// (MinIO, R2, LocalStack). Empty means the AWS default.
	Endpoint string `yaml:"endpoint"`
	// ForcePathStyle enables path-style addressing, required by most
	// S3-compatible stores.
	ForcePathStyle bool `yaml:"force_path_style"`
	// AccessKeyID and SecretAccessKey are optional static credentials.
	// When empty, the standard AWS credential chain is used.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	// Public marks the bucket as publicly readable: uploads carry a
	// public-read ACL and URL issuance returns stable public URLs instead
	// of presigned ones.
	Public bool `yaml:"public"`
	// ChecksumAlgorithm is the default digest algorithm for uploads and
	// verification. One of CRC32, CRC32C, MD5, SHA1, SHA256, CRC64NVME.
	ChecksumAlgorithm string `yaml:"checksum_algorithm"`
	// MultipartThreshold is the payload size in bytes at or above which
	// uploads switch to the multipart strategy.
	MultipartThreshold int64 `yaml:"multipart_threshold"`
	// Upload holds options merged into every upload and upload session.
	Upload UploadConfig `yaml:"upload"`
}

// UploadConfig holds backend options applied to every put and upload session.
type UploadConfig struct {
	// StorageClass is the backend storage class (e.g., "STANDARD",
	// "STANDARD_IA"). Empty means the backend default.
	StorageClass string `yaml:"storage_class"`
	// CacheControl sets the Cache-Control header stored with each object.
	CacheControl string `yaml:"cache_control"`
	// ServerSideEncryption selects backend-managed encryption (e.g.,
	// "AES256", "aws:kms"). Empty disables the header.
	ServerSideEncryption string `yaml:"server_side_encryption"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: text, json.
	Format string `yaml:"format"`
}

// Load reads a YAML configuration file from the given path and returns
// a parsed Config. It applies sensible defaults for unset values.
// If the primary path fails, it falls back to blobdock.example.yaml
// in the same directory or parent directory.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		// Try fallback paths
		fallbackPaths := []string{
			filepath.Join(filepath.Dir(path), "blobdock.example.yaml"),
			filepath.Join(filepath.Dir(path), "..", "blobdock.example.yaml"),
		}
		var fallbackErr error
		for _, fp := range fallbackPaths {
			data, fallbackErr = os.ReadFile(fp)
			if fallbackErr == nil {
				break
			}
		}
		if fallbackErr != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults for empty fields that YAML didn't set
	applyDefaults(cfg)

	if cfg.Store.Bucket == "" {
		return nil, fmt.Errorf("store.bucket is required")
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Region:             "us-east-1",
			ChecksumAlgorithm:  "MD5",
			MultipartThreshold: 100 * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Store.Region == "" {
		cfg.Store.Region = "us-east-1"
	}
	if cfg.Store.ChecksumAlgorithm == "" {
		cfg.Store.ChecksumAlgorithm = "MD5"
	}
	if cfg.Store.MultipartThreshold == 0 {
		cfg.Store.MultipartThreshold = 100 * 1024 * 1024
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
