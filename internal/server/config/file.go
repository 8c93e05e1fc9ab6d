package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/docingest/internal/flagx"
	"github.com/dmitrijs2005/docingest/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration, readable as JSON or
// YAML. Durations accept "30s" or integer nanoseconds.
type FileConfig struct {
	HTTPAddr           string         `json:"http_addr" yaml:"http_addr"`
	DatabaseDSN        string         `json:"database_dsn" yaml:"database_dsn"`
	StoreBackend       string         `json:"store_backend" yaml:"store_backend"`
	Environment        string         `json:"environment" yaml:"environment"`
	StagingRoot        string         `json:"staging_root" yaml:"staging_root"`
	LogLevel           string         `json:"log_level" yaml:"log_level"`
	MaxFileSize        int64          `json:"max_file_size" yaml:"max_file_size"`
	DeniedMediaTypes   []string       `json:"denied_media_types" yaml:"denied_media_types"`
	EmbeddingProvider  string         `json:"embedding_provider" yaml:"embedding_provider"`
	EmbeddingBaseURL   string         `json:"embedding_base_url" yaml:"embedding_base_url"`
	EmbeddingModel     string         `json:"embedding_model" yaml:"embedding_model"`
	EmbeddingAPIKeyEnv string         `json:"embedding_api_key_env" yaml:"embedding_api_key_env"`
	EmbeddingTimeout   timex.Duration `json:"embedding_timeout" yaml:"embedding_timeout"`
	S3RootUser         string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket           string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region           string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	SearchCacheSize    int            `json:"search_cache_size" yaml:"search_cache_size"`
	SearchCacheTTL     timex.Duration `json:"search_cache_ttl" yaml:"search_cache_ttl"`
	ShutdownTimeout    timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// parseFile overlays values from the file named by -c/-config (or
// $DOCINGEST_CONFIG). Files ending in .yaml or .yml are read as YAML,
// anything else as JSON. Keys absent from the file keep their current value.
func parseFile(config *Config) error {
	path := flagx.ConfigFileFlag()

	// nothing to load
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fc.apply(config)
	return nil
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.HTTPAddr, fc.HTTPAddr)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.StoreBackend, fc.StoreBackend)
	setString(&c.Environment, fc.Environment)
	setString(&c.StagingRoot, fc.StagingRoot)
	setString(&c.LogLevel, fc.LogLevel)
	if fc.MaxFileSize > 0 {
		c.MaxFileSize = fc.MaxFileSize
	}
	if fc.DeniedMediaTypes != nil {
		c.DeniedMediaTypes = fc.DeniedMediaTypes
	}
	setString(&c.EmbeddingProvider, fc.EmbeddingProvider)
	setString(&c.EmbeddingBaseURL, fc.EmbeddingBaseURL)
	setString(&c.EmbeddingModel, fc.EmbeddingModel)
	setString(&c.EmbeddingAPIKeyEnv, fc.EmbeddingAPIKeyEnv)
	if fc.EmbeddingTimeout.Duration > 0 {
		c.EmbeddingTimeout = fc.EmbeddingTimeout.Duration
	}
	setString(&c.S3RootUser, fc.S3RootUser)
	setString(&c.S3RootPassword, fc.S3RootPassword)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3BaseEndpoint, fc.S3BaseEndpoint)
	if fc.SearchCacheSize != 0 {
		c.SearchCacheSize = fc.SearchCacheSize
	}
	if fc.SearchCacheTTL.Duration > 0 {
		c.SearchCacheTTL = fc.SearchCacheTTL.Duration
	}
	if fc.ShutdownTimeout.Duration > 0 {
		c.ShutdownTimeout = fc.ShutdownTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
