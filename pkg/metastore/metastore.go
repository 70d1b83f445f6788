// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package metastore persists repository metadata in a schema-versioned
// JSON file.
//
// Writes go through a temp-file-plus-rename protocol so a crash never
// leaves a torn file. There is no cross-process lock; concurrent
// writers are last-one-wins by design.
package metastore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// SchemaVersion is the only metadata file version this build reads.
const SchemaVersion = "1.0"

// Repository statuses.
const (
	StatusReady    = "ready"
	StatusIndexing = "indexing"
	StatusError    = "error"
)

// UpdateRecord is one entry in a repository's update history, newest
// first.
type UpdateRecord struct {
	Timestamp            string `json:"timestamp"`
	PreviousCommit       string `json:"previousCommit"`
	NewCommit            string `json:"newCommit"`
	FilesAdded           int    `json:"filesAdded"`
	FilesModified        int    `json:"filesModified"`
	FilesDeleted         int    `json:"filesDeleted"`
	ChunksUpserted       int    `json:"chunksUpserted"`
	ChunksDeleted        int    `json:"chunksDeleted"`
	DurationMs           int64  `json:"durationMs"`
	ErrorCount           int    `json:"errorCount"`
	Status               string `json:"status"`
	NodesCreated         int    `json:"nodesCreated,omitempty"`
	RelationshipsCreated int    `json:"relationshipsCreated,omitempty"`
}

// RepositoryInfo is everything recorded about one indexed repository.
type RepositoryInfo struct {
	Name              string   `json:"name"`
	URL               string   `json:"url"`
	LocalPath         string   `json:"localPath"`
	CollectionName    string   `json:"collectionName"`
	FileCount         int      `json:"fileCount"`
	ChunkCount        int      `json:"chunkCount"`
	LastIndexedAt     string   `json:"lastIndexedAt"`
	IndexDurationMs   int64    `json:"indexDurationMs"`
	Status            string   `json:"status"`
	ErrorMessage      string   `json:"errorMessage,omitempty"`
	Branch            string   `json:"branch"`
	IncludeExtensions []string `json:"includeExtensions"`
	ExcludePatterns   []string `json:"excludePatterns"`

	EmbeddingProvider   string `json:"embeddingProvider,omitempty"`
	EmbeddingModel      string `json:"embeddingModel,omitempty"`
	EmbeddingDimensions int    `json:"embeddingDimensions,omitempty"`

	LastIndexedCommitSha    string         `json:"lastIndexedCommitSha,omitempty"`
	LastIncrementalUpdateAt string         `json:"lastIncrementalUpdateAt,omitempty"`
	IncrementalUpdateCount  int            `json:"incrementalUpdateCount,omitempty"`
	UpdateInProgress        bool           `json:"updateInProgress,omitempty"`
	UpdateStartedAt         string         `json:"updateStartedAt,omitempty"`
	UpdateHistory           []UpdateRecord `json:"updateHistory,omitempty"`
}

func (info *RepositoryInfo) validate() error {
	if info.Name == "" {
		return cgerrors.New(cgerrors.CodeValidation, "repository name must not be empty")
	}
	switch info.Status {
	case StatusReady, StatusIndexing, StatusError:
	default:
		return cgerrors.Newf(cgerrors.CodeValidation, "unknown repository status %q", info.Status)
	}
	if info.FileCount < 0 || info.ChunkCount < 0 {
		return cgerrors.New(cgerrors.CodeValidation, "repository counts must not be negative")
	}
	return nil
}

// metadataFile is the on-disk shape.
type metadataFile struct {
	Version      string                    `json:"version"`
	Repositories map[string]RepositoryInfo `json:"repositories"`
}

// Store is the process-wide metadata singleton. All access serializes
// through its mutex; all writes land atomically.
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a store over the metadata file at path. The file is
// created empty on first read if absent.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// load reads and validates the file. Missing file means empty store,
// and the empty file is created so later writes land in a known place.
func (s *Store) load() (*metadataFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		meta := &metadataFile{Version: SchemaVersion, Repositories: map[string]RepositoryInfo{}}
		if err := s.write(meta); err != nil {
			return nil, err
		}
		return meta, nil
	}
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.CodeFileOperation, "read repository metadata", err)
	}

	var meta metadataFile
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, cgerrors.Wrap(cgerrors.CodeInvalidMetadata, "parse repository metadata", err)
	}
	if meta.Version != SchemaVersion {
		return nil, cgerrors.Newf(cgerrors.CodeInvalidMetadata,
			"unsupported metadata version %q, want %q", meta.Version, SchemaVersion)
	}
	if meta.Repositories == nil {
		meta.Repositories = map[string]RepositoryInfo{}
	}
	return &meta, nil
}

// write serializes and renames into place. The temp file is removed on
// any failure.
func (s *Store) write(meta *metadataFile) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return cgerrors.Wrap(cgerrors.CodeFileOperation, "encode repository metadata", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return cgerrors.Wrap(cgerrors.CodeFileOperation, "create metadata directory", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return cgerrors.Wrap(cgerrors.CodeFileOperation, "write repository metadata", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return cgerrors.Wrap(cgerrors.CodeFileOperation, "replace repository metadata", err)
	}
	return nil
}

// ListRepositories returns every repository, sorted by name.
func (s *Store) ListRepositories() ([]RepositoryInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.load()
	if err != nil {
		return nil, err
	}
	infos := make([]RepositoryInfo, 0, len(meta.Repositories))
	for _, info := range meta.Repositories {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// GetRepository returns the named repository or nil when unknown.
func (s *Store) GetRepository(name string) (*RepositoryInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.load()
	if err != nil {
		return nil, err
	}
	info, ok := meta.Repositories[name]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// UpdateRepository validates and persists one repository's info,
// creating or replacing its entry.
func (s *Store) UpdateRepository(info RepositoryInfo) error {
	if err := info.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.load()
	if err != nil {
		return err
	}
	meta.Repositories[info.Name] = info
	if err := s.write(meta); err != nil {
		return cgerrors.Wrap(cgerrors.CodeRepositoryMetadata,
			fmt.Sprintf("persist repository %q", info.Name), err)
	}
	return nil
}

// RemoveRepository deletes a repository entry. Removing an unknown name
// is a no-op.
func (s *Store) RemoveRepository(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := meta.Repositories[name]; !ok {
		return nil
	}
	delete(meta.Repositories, name)
	if err := s.write(meta); err != nil {
		return cgerrors.Wrap(cgerrors.CodeRepositoryMetadata,
			fmt.Sprintf("remove repository %q", name), err)
	}
	s.logger.Info("metastore.repository.removed", "name", name)
	return nil
}

// collectionNamePattern is what a sanitized name must satisfy.
var nonCollectionChars = regexp.MustCompile(`[^a-z0-9_]+`)
var underscoreRuns = regexp.MustCompile(`_+`)

// maxCollectionNameLen matches the backing store's 63-character limit.
const maxCollectionNameLen = 63

// SanitizeCollectionName maps a free-form repository name onto a valid
// backing-store collection name. Truncated names keep an 8-hex hash of
// the original so distinct long names stay distinct.
func SanitizeCollectionName(repository string) string {
	name := strings.ToLower(repository)
	name = nonCollectionChars.ReplaceAllString(name, "_")
	name = underscoreRuns.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		sum := sha256.Sum256([]byte(repository))
		name = hex.EncodeToString(sum[:])[:8]
	}
	name = "repo_" + name

	if len(name) <= maxCollectionNameLen {
		return name
	}

	sum := sha256.Sum256([]byte(repository))
	suffix := "_" + hex.EncodeToString(sum[:])[:8]
	return name[:maxCollectionNameLen-len(suffix)] + suffix
}
