package query

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Processor derives the search forms of a raw query: keywords for boosting,
// an FTS5 MATCH expression for lexical search, an enriched natural-language
// form for embedding, and synonym variants for expansion. A Processor is
// immutable and safe for concurrent use.
type Processor struct {
	stopWords      map[string]struct{}
	importantTerms map[string]struct{}
	synonyms       map[string][]string
	hints          []SemanticHint
}

// New creates a Processor from the given tables. Stop words and important
// terms are matched case-insensitively; synonym keys are lowercased.
func New(t Tables) *Processor {
	p := &Processor{
		stopWords:      make(map[string]struct{}, len(t.StopWords)),
		importantTerms: make(map[string]struct{}, len(t.ImportantTerms)),
		synonyms:       make(map[string][]string, len(t.Synonyms)),
		hints:          t.Hints,
	}
	for _, w := range t.StopWords {
		p.stopWords[strings.ToLower(w)] = struct{}{}
	}
	for _, w := range t.ImportantTerms {
		p.importantTerms[strings.ToLower(w)] = struct{}{}
	}
	for k, v := range t.Synonyms {
		p.synonyms[strings.ToLower(k)] = v
	}
	return p
}

var (
	spaceRun = regexp.MustCompile(`\s+`)
	// Everything outside CJK ideographs, ASCII word characters, and
	// whitespace is noise for both search paths.
	nonIndexable = regexp.MustCompile(`[^\x{4e00}-\x{9fff}\w\s]`)
	digitRun     = regexp.MustCompile(`[0-9]+`)
	cjkWord      = regexp.MustCompile(`[\x{4e00}-\x{9fff}]{2,}`)
	cjkRun       = regexp.MustCompile(`[\x{4e00}-\x{9fff}]+`)
)

// Clean normalizes a query: special characters are dropped, whitespace runs
// collapse to a single space. Case is preserved.
func (p *Processor) Clean(query string) string {
	query = spaceRun.ReplaceAllString(strings.TrimSpace(query), " ")
	query = nonIndexable.ReplaceAllString(query, " ")
	return strings.TrimSpace(spaceRun.ReplaceAllString(query, " "))
}

// Keywords extracts the meaningful terms of a query in first-occurrence
// order: digit runs (codes, dates), multi-character CJK words, every maximal
// CJK run (which picks up isolated single characters), and
// whitespace-separated words that survive the stop-word filter. Important
// terms bypass both the stop-word and minimum-length checks.
func (p *Processor) Keywords(query string) []string {
	cleaned := p.Clean(query)
	if cleaned == "" {
		return nil
	}

	var keywords []string
	keywords = append(keywords, digitRun.FindAllString(cleaned, -1)...)
	keywords = append(keywords, cjkWord.FindAllString(cleaned, -1)...)
	keywords = append(keywords, cjkRun.FindAllString(cleaned, -1)...)

	for _, word := range strings.Fields(cleaned) {
		lower := strings.ToLower(word)
		if _, important := p.importantTerms[lower]; !important {
			if _, stop := p.stopWords[lower]; stop {
				continue
			}
			if utf8.RuneCountInString(word) < 2 {
				continue
			}
		}
		keywords = append(keywords, word)
	}

	return dedupe(keywords)
}

// LexicalForm builds the FTS5 MATCH expression for a query. Keywords are
// OR-joined for recall; with more than one keyword the joined phrase is
// added for precision, and CJK keywords contribute their individual
// characters for partial matching. A query with no keywords falls back to
// the quoted cleaned text so MATCH still has a term; an empty query yields
// an empty expression.
func (p *Processor) LexicalForm(query string) string {
	keywords := p.Keywords(query)
	if len(keywords) == 0 {
		cleaned := p.Clean(query)
		if cleaned == "" {
			return ""
		}
		return quoteFTS5(cleaned)
	}

	var terms []string
	for _, kw := range keywords {
		terms = append(terms, ftsTerm(kw))
	}
	if len(keywords) > 1 {
		terms = append(terms, quoteFTS5(strings.Join(keywords, " ")))
	}
	for _, kw := range keywords {
		if !isCJK(kw) {
			continue
		}
		for _, ch := range kw {
			terms = append(terms, string(ch))
		}
	}

	return strings.Join(dedupe(terms), " OR ")
}

// FallbackForm builds the plain OR-of-quoted-keywords expression used when
// the store rejects the primary lexical form as an FTS5 syntax error.
func (p *Processor) FallbackForm(query string) string {
	keywords := p.Keywords(query)
	if len(keywords) == 0 {
		return ""
	}
	terms := make([]string, len(keywords))
	for i, kw := range keywords {
		terms[i] = quoteFTS5(kw)
	}
	return strings.Join(terms, " OR ")
}

// SemanticForm returns the query text prepared for embedding: cleaned, with
// a contextual hint appended when the query touches a known topic. The
// first matching hint wins.
func (p *Processor) SemanticForm(query string) string {
	cleaned := p.Clean(query)
	lower := strings.ToLower(cleaned)
	for _, h := range p.hints {
		for _, trigger := range h.Triggers {
			if strings.Contains(lower, trigger) {
				return cleaned + " " + h.Context
			}
		}
	}
	return cleaned
}

// Expand returns the query plus synonym variants, original first, deduped.
// Variants are full-query rewrites with one keyword replaced.
func (p *Processor) Expand(query string) []string {
	variants := []string{query}
	seen := map[string]struct{}{query: {}}

	for _, kw := range p.Keywords(query) {
		syns, ok := p.synonyms[strings.ToLower(kw)]
		if !ok {
			continue
		}
		for _, syn := range syns {
			v := strings.ReplaceAll(query, kw, syn)
			if v == query {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			variants = append(variants, v)
		}
	}

	return variants
}

// isCJK reports whether s is non-empty and entirely CJK ideographs.
func isCJK(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 0x4e00 || r > 0x9fff {
			return false
		}
	}
	return true
}

func dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
