package chunker

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()

	c, err := New(Config{ChunkSize: size, ChunkOverlap: overlap, Encoding: DefaultEncoding})
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := New(DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, DefaultChunkSize, c.ChunkSize())
		assert.Equal(t, DefaultChunkOverlap, c.ChunkOverlap())
	})

	t.Run("empty encoding uses default", func(t *testing.T) {
		_, err := New(Config{ChunkSize: 100, ChunkOverlap: 10})
		require.NoError(t, err)
	})

	t.Run("zero chunk size", func(t *testing.T) {
		_, err := New(Config{ChunkSize: 0, ChunkOverlap: 0})
		assert.Error(t, err)
	})

	t.Run("negative overlap", func(t *testing.T) {
		_, err := New(Config{ChunkSize: 100, ChunkOverlap: -1})
		assert.Error(t, err)
	})

	t.Run("overlap not smaller than size", func(t *testing.T) {
		_, err := New(Config{ChunkSize: 100, ChunkOverlap: 100})
		assert.Error(t, err)
	})

	t.Run("unknown encoding", func(t *testing.T) {
		_, err := New(Config{ChunkSize: 100, ChunkOverlap: 10, Encoding: "no-such-encoding"})
		assert.Error(t, err)
	})
}

func TestCountTokens(t *testing.T) {
	c := newTestChunker(t, 100, 10)

	assert.Equal(t, 0, c.CountTokens(""))
	assert.Positive(t, c.CountTokens("hello world"))
	assert.Greater(t,
		c.CountTokens("a much longer sentence with many more words in it"),
		c.CountTokens("hello world"))
}

func TestChunk_EmptyInput(t *testing.T) {
	c := newTestChunker(t, 100, 10)
	ctx := context.Background()

	chunks, err := c.Chunk(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = c.Chunk(ctx, "   \n\t  \n")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_ShortInput(t *testing.T) {
	c := newTestChunker(t, 1024, 256)

	chunks, err := c.Chunk(context.Background(), "The board declared a dividend. Payment follows in March.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "The board declared a dividend.")
	assert.Contains(t, chunks[0], "Payment follows in March.")
}

// sharedOverlap returns the longest suffix of a that is also a prefix of b.
func sharedOverlap(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(a, b[:n]) {
			return b[:n]
		}
	}
	return ""
}

func TestChunk_SizeAndOverlap(t *testing.T) {
	c := newTestChunker(t, 256, 32)
	ctx := context.Background()

	var sb strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "Sentence number %d ends here. ", i)
	}
	text := sb.String()
	require.GreaterOrEqual(t, c.CountTokens(text), 1000)

	chunks, err := c.Chunk(ctx, text)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 4)

	// Boundary refinement re-encodes a decoded prefix, so chunk sizes can
	// drift a few tokens past the budget but never by 20%.
	for i, chunk := range chunks {
		assert.LessOrEqual(t, c.CountTokens(chunk), 307, "chunk %d exceeds budget", i)
	}

	// Consecutive chunks share the configured overlap, give or take
	// boundary drift.
	for i := 0; i+1 < len(chunks); i++ {
		shared := sharedOverlap(chunks[i], chunks[i+1])
		tokens := c.CountTokens(shared)
		assert.GreaterOrEqual(t, tokens, 20, "chunks %d/%d overlap too little", i, i+1)
		assert.LessOrEqual(t, tokens, 45, "chunks %d/%d overlap too much", i, i+1)
	}

	// Document order survives chunking.
	assert.Contains(t, chunks[0], "Sentence number 0 ends here.")
	assert.Contains(t, chunks[len(chunks)-1], "Sentence number 199 ends here.")
}

func TestChunk_CJKText(t *testing.T) {
	c := newTestChunker(t, 64, 8)
	ctx := context.Background()

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&sb, "第%d号议案已经审议通过。", i)
	}

	chunks, err := c.Chunk(ctx, sb.String())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	joined := strings.Join(chunks, "\n")
	for i := 0; i < 40; i++ {
		assert.Contains(t, joined, fmt.Sprintf("第%d号", i))
	}
	assert.Contains(t, chunks[0], "第0号")
	assert.Contains(t, chunks[len(chunks)-1], "通过。")
}

func TestChunk_TokenRoundTrip(t *testing.T) {
	c := newTestChunker(t, 1024, 256)

	// Decode(Encode(x)) must reproduce x exactly for the alphabets the
	// boundary refinement decodes and re-encodes.
	for _, text := range []string{
		"股东大会🚀通过。\n 决议👍生效！\n\nResults 🎉 announced.",
		"🚀👍🎉😀",
		"第1号🚀提案　✅通过",
		"tabs\tand\nnewlines  kept",
	} {
		tokens := c.enc.Encode(text, nil, nil)
		assert.Equal(t, text, c.enc.Decode(tokens))
	}

	// Under the token budget the preprocessed text comes back as one chunk.
	chunks, err := c.Chunk(context.Background(), "股东大会🚀通过。  \t\n决议👍生效！\n\n  Results 🎉 announced.  ")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "股东大会🚀通过。\n 决议👍生效！\n\nResults 🎉 announced.", chunks[0])
}

func TestChunk_EmojiDenseText(t *testing.T) {
	c := newTestChunker(t, 32, 4)

	text := strings.Repeat("提案🚀通过。结果👍公布！", 30)
	chunks, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 4)

	// Emoji are multi-token in cl100k_base, so a window edge can land inside
	// one; the token budget and the document ends must hold regardless.
	for i, chunk := range chunks {
		assert.LessOrEqual(t, c.CountTokens(chunk), 38, "chunk %d exceeds budget", i)
	}
	assert.Contains(t, chunks[0], "提案🚀通过")
	assert.Contains(t, chunks[len(chunks)-1], "公布")
}

func TestChunk_ContextCanceled(t *testing.T) {
	c := newTestChunker(t, 16, 4)

	var sb strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&sb, "Sentence number %d ends here. ", i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Chunk(ctx, sb.String())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "a   b\t c", "a b c"},
		{"unwraps soft line breaks", "line one\nline two", "line one line two"},
		{"keeps paragraph breaks", "para one\n\npara two", "para one\n\npara two"},
		{"normalizes messy paragraph breaks", "para one\n \t\n\npara two", "para one\n\npara two"},
		{"marks cjk sentence ends", "一句话。第二句", "一句话。\n第二句"},
		{"marks latin sentence ends", "End here. Next one", "End here.\nNext one"},
		{"no break inside abbreviations", "v1.2 release", "v1.2 release"},
		{"paragraph keeps terminator", "标题。\n\n正文", "标题。\n\n正文"},
		{"trims edges", "  hello  ", "hello"},
		{"empty", "   \n \n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, preprocess(tt.in))
		})
	}
}

func TestBestSplitPoint(t *testing.T) {
	t.Run("no boundary cuts at window end", func(t *testing.T) {
		r := []rune(strings.Repeat("a", 400))
		assert.Equal(t, 400, bestSplitPoint(r))
	})

	t.Run("cuts after nearby sentence end", func(t *testing.T) {
		r := []rune(strings.Repeat("甲", 390) + "。" + strings.Repeat("乙", 9))
		assert.Equal(t, 391, bestSplitPoint(r))
	})

	t.Run("latin terminator needs following space", func(t *testing.T) {
		r := []rune(strings.Repeat("a", 359) + ". " + strings.Repeat("b", 39))
		assert.Equal(t, 360, bestSplitPoint(r))
	})

	t.Run("near weak boundary beats far strong one", func(t *testing.T) {
		r := []rune(strings.Repeat("a", 310) + ". " + strings.Repeat("b", 83) + "," + strings.Repeat("c", 4))
		require.Len(t, r, 400)
		assert.Equal(t, 396, bestSplitPoint(r))
	})

	t.Run("tiny input", func(t *testing.T) {
		r := []rune("ab")
		assert.Equal(t, 2, bestSplitPoint(r))
	})
}
