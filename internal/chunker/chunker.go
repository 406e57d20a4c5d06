package chunker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultChunkSize is the maximum token count per chunk
	DefaultChunkSize = 1024

	// DefaultChunkOverlap is the token count shared between consecutive chunks
	DefaultChunkOverlap = 256

	// DefaultEncoding is the tiktoken BPE encoding used for token counting
	DefaultEncoding = "cl100k_base"
)

// Config holds the chunking parameters. All values are explicit; callers
// start from DefaultConfig and override what they need.
type Config struct {
	ChunkSize    int    // maximum tokens per chunk
	ChunkOverlap int    // tokens shared between consecutive chunks
	Encoding     string // tiktoken encoding name
}

// DefaultConfig returns the standard chunking parameters.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		Encoding:     DefaultEncoding,
	}
}

// Chunker splits text into token-bounded, overlapping chunks aligned to
// sentence boundaries where possible.
type Chunker struct {
	chunkSize int
	overlap   int
	enc       *tiktoken.Tiktoken
}

// New creates a Chunker for the given configuration. Loading the BPE
// encoding may fetch its vocabulary on first use.
func New(cfg Config) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if cfg.ChunkOverlap < 0 {
		return nil, errors.New("chunk overlap cannot be negative")
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	encoding := cfg.Encoding
	if encoding == "" {
		encoding = DefaultEncoding
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %q: %w", encoding, err)
	}

	return &Chunker{
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.ChunkOverlap,
		enc:       enc,
	}, nil
}

// ChunkSize returns the configured maximum tokens per chunk.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// ChunkOverlap returns the configured overlap in tokens.
func (c *Chunker) ChunkOverlap() int { return c.overlap }

// CountTokens returns the exact token count of text under the configured
// encoding.
func (c *Chunker) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Preprocessing patterns. Paragraph breaks survive as blank lines; within
// a paragraph whitespace collapses to single spaces and sentence
// terminators get a trailing newline so boundary refinement has real
// boundaries to find, for CJK text in particular.
var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	cjkSentenceEnd = regexp.MustCompile(`([。！？；])`)
	latSentenceEnd = regexp.MustCompile(`([.!?;]) `)
)

func preprocess(text string) string {
	paras := paragraphBreak.Split(text, -1)
	out := make([]string, 0, len(paras))
	for _, p := range paras {
		p = whitespaceRun.ReplaceAllString(p, " ")
		p = strings.TrimSpace(p)
		p = cjkSentenceEnd.ReplaceAllString(p, "$1\n")
		p = latSentenceEnd.ReplaceAllString(p, "$1\n")
		p = strings.TrimRight(p, "\n")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}

// boundaryRule scores a split candidate. Rules are checked in order and the
// first match wins, so the paragraph rule must precede the bare newline rule.
type boundaryRule struct {
	score float64
	match func(r []rune, i int) bool
}

var boundaryRules = []boundaryRule{
	// CJK sentence terminators
	{score: 10, match: func(r []rune, i int) bool {
		return r[i] == '。' || r[i] == '！' || r[i] == '？' || r[i] == '；'
	}},
	// Latin sentence terminators followed by a space
	{score: 10, match: func(r []rune, i int) bool {
		if i+1 >= len(r) {
			return false
		}
		return (r[i] == '.' || r[i] == '!' || r[i] == '?' || r[i] == ';') && r[i+1] == ' '
	}},
	// Paragraph break
	{score: 8, match: func(r []rune, i int) bool {
		return r[i] == '\n' && i+1 < len(r) && r[i+1] == '\n'
	}},
	// Line break
	{score: 5, match: func(r []rune, i int) bool {
		return r[i] == '\n'
	}},
	// Comma, weak boundary
	{score: 2, match: func(r []rune, i int) bool {
		return r[i] == ',' || r[i] == '，'
	}},
}

// bestSplitPoint returns the rune index to cut the window at, preferring
// positions just after a sentence boundary near the window end. Returns
// len(r) when no boundary beats the plain window end.
func bestSplitPoint(r []rune) int {
	target := len(r)
	window := min(100, len(r)/4)
	if window <= 0 {
		return target
	}

	best := target
	bestScore := 0.0
	for i := max(0, target-window); i < target; i++ {
		var score float64
		for _, rule := range boundaryRules {
			if rule.match(r, i) {
				score = rule.score
				break
			}
		}
		if score == 0 {
			continue
		}

		// Decay by distance from the target so a weak boundary right at the
		// end can beat a strong one far back. Ties go to the later candidate.
		final := score * (1 - float64(target-i)/float64(window))
		if final > 0 && final >= bestScore {
			bestScore = final
			best = i + 1 // cut after the boundary character
		}
	}

	return best
}

// Chunk splits text into token-bounded chunks with overlap. Chunks are
// returned in document order, whitespace-trimmed, with empties dropped.
// Empty or whitespace-only input yields no chunks.
func (c *Chunker) Chunk(ctx context.Context, text string) ([]string, error) {
	text = preprocess(text)
	if text == "" {
		return nil, nil
	}

	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= c.chunkSize {
		return []string{text}, nil
	}

	var chunks []string
	start := 0
	for start < len(tokens) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+c.chunkSize, len(tokens))

		// Refine the boundary unless this is the final window. The refined
		// prefix is re-encoded so the next window starts on a token edge.
		if end < len(tokens) {
			window := []rune(c.enc.Decode(tokens[start:end]))
			if cut := bestSplitPoint(window); cut < len(window) {
				end = start + len(c.enc.Encode(string(window[:cut]), nil, nil))
			}
		}

		if chunk := strings.TrimSpace(c.enc.Decode(tokens[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(tokens) {
			break
		}
		start += max(1, (end-start)-c.overlap)
	}

	return chunks, nil
}
