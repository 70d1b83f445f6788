// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CODEGRAPH_CONFIG", "NEO4J_URI", "NEO4J_USERNAME", "NEO4J_PASSWORD",
		"NEO4J_DATABASE", "CHROMA_URL", "CODEGRAPH_EMBED_PROVIDER",
		"OLLAMA_BASE_URL", "OLLAMA_EMBED_MODEL", "CODEGRAPH_METADATA_PATH",
		"CODEGRAPH_WORKERS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	clearEnv(t)
	t.Setenv("CODEGRAPH_CONFIG", filepath.Join(t.TempDir(), "nonexistent", ConfigFileName))

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, cgerrors.HasCode(err, cgerrors.CodeFileOperation))
}

func TestLoadExplicitFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1"
graph:
  uri: neo4j://graph.internal:7687
  username: indexer
vector:
  base_url: http://chroma.internal:8000
indexing:
  include_extensions: [ts, tsx]
  chunk_lines: 80
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "neo4j://graph.internal:7687", cfg.Graph.URI)
	assert.Equal(t, "indexer", cfg.Graph.Username)
	assert.Equal(t, "http://chroma.internal:8000", cfg.Vector.BaseURL)
	assert.Equal(t, []string{"ts", "tsx"}, cfg.Indexing.IncludeExtensions)
	assert.Equal(t, 80, cfg.Indexing.ChunkLines)
	// Sections absent from the file keep their defaults.
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
}

func TestLoadRejectsBadVersion(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("version: \"9\"\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, cgerrors.HasCode(err, cgerrors.CodeValidation))
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("graph: [unbalanced"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, cgerrors.HasCode(err, cgerrors.CodeValidation))
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEO4J_URI", "neo4j://override:7687")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("CHROMA_URL", "http://override:8000")
	t.Setenv("CODEGRAPH_EMBED_PROVIDER", "mock")
	t.Setenv("CODEGRAPH_WORKERS", "8")

	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\ngraph:\n  uri: neo4j://file:7687\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "neo4j://override:7687", cfg.Graph.URI)
	assert.Equal(t, "secret", cfg.Graph.Password)
	assert.Equal(t, "http://override:8000", cfg.Vector.BaseURL)
	assert.Equal(t, "mock", cfg.Embedding.Provider)
	assert.Equal(t, 8, cfg.Indexing.Workers)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)

	cfg := Default()
	cfg.Graph.URI = "neo4j://saved:7687"
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "neo4j://saved:7687", loaded.Graph.URI)
	assert.Equal(t, cfg.Indexing.IncludeExtensions, loaded.Indexing.IncludeExtensions)
}
