// Package chunker divides text into token-bounded chunks for embedding and search.
//
// Chunks are measured in BPE tokens (tiktoken), overlap so context survives
// the cut, and end on sentence boundaries where one can be found near the
// window end.
//
// # Basic Usage
//
//	c, err := chunker.New(chunker.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	chunks, err := c.Chunk(ctx, documentText)
//	for i, text := range chunks {
//	    fmt.Printf("chunk %d: %d tokens\n", i, c.CountTokens(text))
//	}
//
// # Chunking Strategy
//
// Text is preprocessed before tokenization:
//   - Blank-line runs become one paragraph break
//   - Within a paragraph, whitespace runs collapse to a single space
//   - Sentence terminators (。！？； and .!?;) gain a trailing newline
//
// The preprocessed text is encoded once and walked with a sliding token
// window. Each window end is refined toward the best nearby boundary:
//
//   - Sentence terminator: score 10
//   - Paragraph break: score 8
//   - Line break: score 5
//   - Comma: score 2
//
// Scores decay linearly with distance from the window end, so a weak
// boundary right at the end beats a strong one far back. The refinement
// window is min(100, len/4) characters.
//
// # Overlap
//
// The window advances by (chunkSize - overlap) tokens, so consecutive
// chunks share roughly ChunkOverlap tokens. Advancement is always at least
// one token, which guarantees termination on any input.
//
// # Sizing
//
// Defaults are 1024 tokens per chunk with 256 tokens of overlap, a workable
// middle ground for 1024-dimension embedding models. Both knobs are
// explicit constructor parameters; nothing in this package is global.
package chunker
