// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package metastore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repositories.json")
	return NewStore(path, nil), path
}

func readyInfo(name string) RepositoryInfo {
	return RepositoryInfo{
		Name:              name,
		URL:               "https://example.com/" + name + ".git",
		LocalPath:         "/srv/repos/" + name,
		CollectionName:    SanitizeCollectionName(name),
		FileCount:         10,
		ChunkCount:        40,
		LastIndexedAt:     "2026-08-24T10:00:00Z",
		Status:            StatusReady,
		Branch:            "main",
		IncludeExtensions: []string{".ts", ".js"},
	}
}

func TestMissingFileTreatedAsEmptyAndCreated(t *testing.T) {
	store, path := newTestStore(t)

	infos, err := store.ListRepositories()
	require.NoError(t, err)
	assert.Empty(t, infos)

	// The empty file now exists with the current schema version.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, SchemaVersion, meta["version"])
}

func TestUpdateGetRemoveRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.UpdateRepository(readyInfo("acme")))
	require.NoError(t, store.UpdateRepository(readyInfo("beta")))

	got, err := store.GetRepository("acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acme", got.Name)
	assert.Equal(t, 10, got.FileCount)

	missing, err := store.GetRepository("ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	infos, err := store.ListRepositories()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "acme", infos[0].Name)
	assert.Equal(t, "beta", infos[1].Name)

	require.NoError(t, store.RemoveRepository("acme"))
	// Removing again is a no-op.
	require.NoError(t, store.RemoveRepository("acme"))

	infos, err = store.ListRepositories()
	require.NoError(t, err)
	require.Len(t, infos, 1)
}

func TestUpdateValidatesInfo(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.UpdateRepository(RepositoryInfo{Status: StatusReady})
	assert.Equal(t, cgerrors.CodeValidation, cgerrors.CodeOf(err))

	bad := readyInfo("acme")
	bad.Status = "resting"
	err = store.UpdateRepository(bad)
	assert.Equal(t, cgerrors.CodeValidation, cgerrors.CodeOf(err))

	negative := readyInfo("acme")
	negative.ChunkCount = -1
	err = store.UpdateRepository(negative)
	assert.Equal(t, cgerrors.CodeValidation, cgerrors.CodeOf(err))
}

func TestUnknownVersionFailsLoud(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2.0","repositories":{}}`), 0o644))

	_, err := store.ListRepositories()
	require.Error(t, err)
	assert.Equal(t, cgerrors.CodeInvalidMetadata, cgerrors.CodeOf(err))
}

func TestCorruptFileFailsWithFormatError(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"version": "1.0", "repos`), 0o644))

	_, err := store.GetRepository("acme")
	require.Error(t, err)
	assert.Equal(t, cgerrors.CodeInvalidMetadata, cgerrors.CodeOf(err))
}

func TestWriteIsAtomicNoTempLeftBehind(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, store.UpdateRepository(readyInfo("acme")))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	// The written file parses back cleanly.
	got, err := store.GetRepository("acme")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestUpdateHistoryPersists(t *testing.T) {
	store, _ := newTestStore(t)

	info := readyInfo("acme")
	info.LastIndexedCommitSha = "abc123"
	info.UpdateHistory = []UpdateRecord{{
		Timestamp:      "2026-08-24T10:00:00Z",
		PreviousCommit: "def456",
		NewCommit:      "abc123",
		FilesAdded:     2,
		Status:         "success",
	}}
	require.NoError(t, store.UpdateRepository(info))

	got, err := store.GetRepository("acme")
	require.NoError(t, err)
	require.Len(t, got.UpdateHistory, 1)
	assert.Equal(t, "abc123", got.UpdateHistory[0].NewCommit)
	assert.Equal(t, "abc123", got.LastIndexedCommitSha)
}

func TestSanitizeCollectionName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "acme", "repo_acme"},
		{"uppercase", "MyRepo", "repo_myrepo"},
		{"special chars", "my repo!v2", "repo_my_repo_v2"},
		{"collapses runs", "a---b___c", "repo_a_b_c"},
		{"strips edges", "--weird--", "repo_weird"},
		{"dots and slashes", "org/sub.repo", "repo_org_sub_repo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeCollectionName(tt.in))
		})
	}
}

func TestSanitizeCollectionNameShape(t *testing.T) {
	valid := regexp.MustCompile(`^repo_[a-z0-9_]+$`)
	inputs := []string{"acme", "My Repo", "x", "123", "ünïcödé", strings.Repeat("long-name-", 20)}
	for _, in := range inputs {
		got := SanitizeCollectionName(in)
		assert.Regexp(t, valid, got, in)
		assert.LessOrEqual(t, len(got), 63, in)
	}
}

func TestSanitizeCollectionNameTruncationKeepsUniqueness(t *testing.T) {
	a := SanitizeCollectionName(strings.Repeat("alpha-", 20) + "one")
	b := SanitizeCollectionName(strings.Repeat("alpha-", 20) + "two")
	assert.Len(t, a, 63)
	assert.Len(t, b, 63)
	assert.NotEqual(t, a, b)
}
