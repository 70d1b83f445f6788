// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package config loads the codegraph configuration file.
//
// Configuration lives in codegraph.yaml, searched from the working
// directory up to the filesystem root, or wherever CODEGRAPH_CONFIG
// points. Environment variables override file values so credentials
// never have to be written to disk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

const (
	// ConfigFileName is the file searched for when no path is given.
	ConfigFileName = "codegraph.yaml"

	configVersion = "1"
)

// Config is the full codegraph.yaml shape.
type Config struct {
	Version   string          `yaml:"version"`
	Graph     GraphConfig     `yaml:"graph"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Metadata  MetadataConfig  `yaml:"metadata"`
}

// GraphConfig holds graph store connection settings.
type GraphConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
	PoolSize int    `yaml:"pool_size,omitempty"`
}

// VectorConfig holds vector store connection settings.
type VectorConfig struct {
	BaseURL string `yaml:"base_url"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // mock, ollama, openai
	BaseURL  string `yaml:"base_url,omitempty"`
	Model    string `yaml:"model,omitempty"`
}

// IndexingConfig controls which files are indexed and how they are cut
// into chunks.
type IndexingConfig struct {
	IncludeExtensions []string `yaml:"include_extensions"`
	ExcludePatterns   []string `yaml:"exclude_patterns"`
	MaxFileSize       int64    `yaml:"max_file_size"` // bytes
	Workers           int      `yaml:"workers,omitempty"`
	ChunkLines        int      `yaml:"chunk_lines,omitempty"`
	ChunkOverlap      int      `yaml:"chunk_overlap,omitempty"`
}

// MetadataConfig locates the repository metadata file.
type MetadataConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Version: configVersion,
		Graph: GraphConfig{
			URI:      "neo4j://localhost:7687",
			Username: "neo4j",
		},
		Vector: VectorConfig{
			BaseURL: "http://localhost:8000",
		},
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "nomic-embed-text",
		},
		Indexing: IndexingConfig{
			IncludeExtensions: []string{"ts", "tsx", "js", "jsx", "mts", "cts", "mjs", "cjs", "cs", "md"},
			ExcludePatterns: []string{
				".git/**", "node_modules/**", "vendor/**",
				"dist/**", "build/**", "coverage/**",
			},
			MaxFileSize:  1 << 20,
			Workers:      4,
			ChunkLines:   120,
			ChunkOverlap: 20,
		},
		Metadata: MetadataConfig{
			Path: filepath.Join(home, ".codegraph", "repositories.json"),
		},
	}
}

// Load reads the configuration from path, or discovers it when path is
// empty. A missing file yields the defaults; a malformed file is an
// error. Environment overrides apply last.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CODEGRAPH_CONFIG")
	}
	if path == "" {
		path = findConfigFile()
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, cgerrors.Wrap(cgerrors.CodeFileOperation,
				fmt.Sprintf("read config %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, cgerrors.Wrap(cgerrors.CodeValidation,
				fmt.Sprintf("parse config %s", path), err)
		}
		if cfg.Version != configVersion {
			return nil, cgerrors.Newf(cgerrors.CodeValidation,
				"unsupported config version %q, want %q", cfg.Version, configVersion)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML, creating the directory if
// needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return cgerrors.Wrap(cgerrors.CodeFileOperation, "encode config", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cgerrors.Wrap(cgerrors.CodeFileOperation, "create config directory", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return cgerrors.Wrap(cgerrors.CodeFileOperation, "write config", err)
	}
	return nil
}

// findConfigFile walks from the working directory to the root looking
// for codegraph.yaml. Returns "" when none exists.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// applyEnvOverrides lets the environment win over the file. Supported:
// NEO4J_URI, NEO4J_USERNAME, NEO4J_PASSWORD, NEO4J_DATABASE,
// CHROMA_URL, CODEGRAPH_EMBED_PROVIDER, OLLAMA_BASE_URL,
// OLLAMA_EMBED_MODEL, CODEGRAPH_METADATA_PATH, CODEGRAPH_WORKERS.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NEO4J_URI"); v != "" {
		c.Graph.URI = v
	}
	if v := os.Getenv("NEO4J_USERNAME"); v != "" {
		c.Graph.Username = v
	}
	if v := os.Getenv("NEO4J_PASSWORD"); v != "" {
		c.Graph.Password = v
	}
	if v := os.Getenv("NEO4J_DATABASE"); v != "" {
		c.Graph.Database = v
	}
	if v := os.Getenv("CHROMA_URL"); v != "" {
		c.Vector.BaseURL = v
	}
	if v := os.Getenv("CODEGRAPH_EMBED_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("CODEGRAPH_METADATA_PATH"); v != "" {
		c.Metadata.Path = v
	}
	if v := os.Getenv("CODEGRAPH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.Workers = n
		}
	}
}
