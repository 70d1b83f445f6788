// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package vectorstore

import "fmt"

// ChunkMetadata is the fixed metadata attached to every chunk document.
// Field names are snake_case to match what the store persists.
type ChunkMetadata struct {
	FilePath       string `json:"file_path"`
	Repository     string `json:"repository"`
	ChunkIndex     int    `json:"chunk_index"`
	TotalChunks    int    `json:"total_chunks"`
	ChunkStartLine int    `json:"chunk_start_line"`
	ChunkEndLine   int    `json:"chunk_end_line"`
	FileExtension  string `json:"file_extension"`
	FileSizeBytes  int64  `json:"file_size_bytes"`
	ContentHash    string `json:"content_hash"`
	IndexedAt      string `json:"indexed_at"`
	FileModifiedAt string `json:"file_modified_at"`
}

// ToMap flattens the metadata for storage.
func (m ChunkMetadata) ToMap() map[string]any {
	return map[string]any{
		"file_path":        m.FilePath,
		"repository":       m.Repository,
		"chunk_index":      m.ChunkIndex,
		"total_chunks":     m.TotalChunks,
		"chunk_start_line": m.ChunkStartLine,
		"chunk_end_line":   m.ChunkEndLine,
		"file_extension":   m.FileExtension,
		"file_size_bytes":  m.FileSizeBytes,
		"content_hash":     m.ContentHash,
		"indexed_at":       m.IndexedAt,
		"file_modified_at": m.FileModifiedAt,
	}
}

// DocumentID builds the canonical chunk document id.
func DocumentID(repository, filePath string, chunkIndex int) string {
	return fmt.Sprintf("%s:%s:%d", repository, filePath, chunkIndex)
}
