// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package chunk

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedLines(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = "line " + string(rune('0'+i%10))
	}
	return strings.Join(lines, "\n")
}

func TestSplitSingleChunk(t *testing.T) {
	content := "a\nb\nc"
	chunks := Split(content, Options{MaxLines: 120, OverlapLines: 20})

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, content, chunks[0].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
}

func TestSplitOverlap(t *testing.T) {
	chunks := Split(numberedLines(25), Options{MaxLines: 10, OverlapLines: 2})

	// Step is 8 lines: spans 1-10, 9-18, 17-25.
	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 10, chunks[0].EndLine)
	assert.Equal(t, 9, chunks[1].StartLine)
	assert.Equal(t, 18, chunks[1].EndLine)
	assert.Equal(t, 17, chunks[2].StartLine)
	assert.Equal(t, 25, chunks[2].EndLine)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
	}

	// Adjacent chunks share the overlap lines verbatim.
	tail := strings.Split(chunks[0].Content, "\n")
	head := strings.Split(chunks[1].Content, "\n")
	assert.Equal(t, tail[len(tail)-2:], head[:2])
}

func TestSplitEmptyContent(t *testing.T) {
	assert.Nil(t, Split("", Options{}))
	assert.Nil(t, Split("   \n\t\n", Options{}))
}

func TestSplitDefaults(t *testing.T) {
	chunks := Split(numberedLines(120), Options{})
	require.Len(t, chunks, 1)
	assert.Equal(t, 120, chunks[0].EndLine)

	chunks = Split(numberedLines(121), Options{})
	require.Len(t, chunks, 2)
	assert.Equal(t, 101, chunks[1].StartLine)
	assert.Equal(t, 121, chunks[1].EndLine)
}

func TestHashStable(t *testing.T) {
	assert.Equal(t, Hash("const x = 1"), Hash("const x = 1"))
	assert.NotEqual(t, Hash("const x = 1"), Hash("const x = 2"))
	assert.Len(t, Hash("anything"), 64)
}

func TestBuildDocuments(t *testing.T) {
	content := numberedLines(25)
	chunks := Split(content, Options{MaxLines: 10, OverlapLines: 2})
	require.Len(t, chunks, 3)

	embeddings := [][]float32{{0.1}, {0.2}, {0.3}}
	meta := FileMeta{
		Repository: "acme",
		Path:       "src/app.ts",
		SizeBytes:  int64(len(content)),
		ModifiedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	docs := BuildDocuments(meta, content, chunks, embeddings)
	require.Len(t, docs, 3)

	assert.Equal(t, "acme:src/app.ts:0", docs[0].ID)
	assert.Equal(t, "acme:src/app.ts:2", docs[2].ID)
	assert.Equal(t, embeddings[1], docs[1].Embedding)
	assert.Equal(t, chunks[1].Content, docs[1].Content)

	md := docs[1].Metadata
	assert.Equal(t, "src/app.ts", md["file_path"])
	assert.Equal(t, "acme", md["repository"])
	assert.Equal(t, 1, md["chunk_index"])
	assert.Equal(t, 3, md["total_chunks"])
	assert.Equal(t, 9, md["chunk_start_line"])
	assert.Equal(t, 18, md["chunk_end_line"])
	assert.Equal(t, "ts", md["file_extension"])
	assert.Equal(t, Hash(content), md["content_hash"])
	assert.Equal(t, "2026-03-01T12:00:00Z", md["file_modified_at"])
	assert.NotEmpty(t, md["indexed_at"])
}
