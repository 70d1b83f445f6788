// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package chunk splits file content into overlapping line spans for
// embedding and builds the vector-store documents for them.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
	"time"

	"github.com/kraklabs/codegraph/pkg/vectorstore"
)

// Options sizes the chunker.
type Options struct {
	// MaxLines per chunk (default 120).
	MaxLines int

	// OverlapLines carried from the previous chunk (default 20).
	OverlapLines int
}

func (o Options) withDefaults() Options {
	if o.MaxLines <= 0 {
		o.MaxLines = 120
	}
	if o.OverlapLines < 0 || o.OverlapLines >= o.MaxLines {
		o.OverlapLines = 20
		if o.OverlapLines >= o.MaxLines {
			o.OverlapLines = o.MaxLines / 4
		}
	}
	return o
}

// Chunk is one contiguous line span. Lines are 1-based and inclusive.
type Chunk struct {
	Index     int
	Content   string
	StartLine int
	EndLine   int
}

// Split cuts content into overlapping line spans. Empty content yields
// no chunks.
func Split(content string, opts Options) []Chunk {
	opts = opts.withDefaults()
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	step := opts.MaxLines - opts.OverlapLines

	var chunks []Chunk
	for start := 0; start < len(lines); start += step {
		end := start + opts.MaxLines
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Content:   strings.Join(lines[start:end], "\n"),
			StartLine: start + 1,
			EndLine:   end,
		})
		if end == len(lines) {
			break
		}
	}
	return chunks
}

// Hash returns the hex SHA-256 of content, used to detect unchanged
// files across updates.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// FileMeta describes the file the chunks came from.
type FileMeta struct {
	Repository string
	Path       string
	SizeBytes  int64
	ModifiedAt time.Time
}

// BuildDocuments pairs chunks with their embeddings into vector-store
// documents carrying the full chunk metadata schema. Embeddings must be
// index-aligned with chunks.
func BuildDocuments(meta FileMeta, content string, chunks []Chunk, embeddings [][]float32) []vectorstore.Document {
	contentHash := Hash(content)
	indexedAt := time.Now().UTC().Format(time.RFC3339)
	modifiedAt := ""
	if !meta.ModifiedAt.IsZero() {
		modifiedAt = meta.ModifiedAt.UTC().Format(time.RFC3339)
	}

	docs := make([]vectorstore.Document, 0, len(chunks))
	for i, ch := range chunks {
		var embedding []float32
		if i < len(embeddings) {
			embedding = embeddings[i]
		}
		docs = append(docs, vectorstore.Document{
			ID:        vectorstore.DocumentID(meta.Repository, meta.Path, ch.Index),
			Content:   ch.Content,
			Embedding: embedding,
			Metadata: vectorstore.ChunkMetadata{
				FilePath:       meta.Path,
				Repository:     meta.Repository,
				ChunkIndex:     ch.Index,
				TotalChunks:    len(chunks),
				ChunkStartLine: ch.StartLine,
				ChunkEndLine:   ch.EndLine,
				FileExtension:  strings.TrimPrefix(path.Ext(meta.Path), "."),
				FileSizeBytes:  meta.SizeBytes,
				ContentHash:    contentHash,
				IndexedAt:      indexedAt,
				FileModifiedAt: modifiedAt,
			}.ToMap(),
		})
	}
	return docs
}
