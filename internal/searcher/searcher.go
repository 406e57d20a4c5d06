package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/gorag/internal/embedder"
	"github.com/dshills/gorag/internal/query"
	"github.com/dshills/gorag/internal/storage"
	"github.com/dshills/gorag/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid SearchMode = "hybrid" // Vector + BM25 with RRF
	SearchModeVector SearchMode = "vector" // Vector similarity only
	SearchModeText   SearchMode = "text"   // BM25 text search only
)

// Candidate pool sizing. Vector and text searches over-fetch so the
// boost pass has literal matches to promote; hybrid uses a tighter
// vector pool because RRF only cares about ranks near the top.
const (
	VectorPoolMultiplier   = 10
	VectorPoolCap          = 100
	TextPoolMultiplier     = 5
	TextPoolCap            = 50
	HybridVectorMultiplier = 3
)

// Keyword boosts counteract purely semantic ranking errors: a chunk that
// literally contains a query term outranks a semantically-near chunk that
// doesn't.
const (
	keywordMatchBoost = 0.3 // per keyword present in content (case-insensitive)
	numericMatchBoost = 0.5 // extra for pure-digit keywords (codes, dates)
	cjkCharBoost      = 0.2 // single CJK character keyword present
	textMatchBoost    = 0.2 // per keyword, text search path
)

// DefaultRRFK is the Reciprocal Rank Fusion constant
const DefaultRRFK = 60.0

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query       string
	Limit       int
	Mode        SearchMode
	UseCache    bool // Whether to use query cache
	CacheTTL    time.Duration
	RRFConstant float64 // k value for Reciprocal Rank Fusion (default 60)
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []types.SearchResult
	TotalResults  int
	SearchMode    SearchMode
	Duration      time.Duration
	CacheHit      bool
	VectorResults int
	TextResults   int
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher coordinates retrieval across the vector and full-text indexes
// and fuses their rankings.
type Searcher struct {
	store     *storage.Store
	embedder  embedder.Embedder
	processor *query.Processor
	logger    *slog.Logger
	cache     *lru.Cache[[32]byte, *cacheEntry]
	cacheMu   sync.RWMutex
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store *storage.Store, emb embedder.Embedder, proc *query.Processor, logger *slog.Logger) *Searcher {
	// Create LRU cache with 1000 entry limit
	// Cache will automatically evict least recently used entries
	cache, err := lru.New[[32]byte, *cacheEntry](1000)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Searcher{
		store:     store,
		embedder:  emb,
		processor: proc,
		logger:    logger.With("component", "searcher"),
		cache:     cache,
	}
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if s.embedder == nil {
		return nil, fmt.Errorf("embedder not initialized")
	}

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	// Check cache if enabled
	if req.UseCache {
		cached, err := s.checkCache(req)
		if err == nil && cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	var response *SearchResponse
	var err error

	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, req)
	case SearchModeText:
		response, err = s.textSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}

	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(startTime)
	response.SearchMode = req.Mode

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}

	return response, nil
}

// poolSize expands a caller limit into the candidate pool to over-fetch
func poolSize(limit, multiplier, cap int) int {
	pool := limit * multiplier
	if pool > cap {
		return cap
	}
	return pool
}

// scoredChunk pairs a hydrated chunk with its boosted score
type scoredChunk struct {
	chunk *types.Chunk
	score float64
}

// vectorSearch ranks by semantic similarity, then promotes literal
// keyword matches before truncating to the requested limit.
func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	semantic := s.processor.SemanticForm(req.Query)
	embedding, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: semantic})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	pool := poolSize(req.Limit, VectorPoolMultiplier, VectorPoolCap)
	vectorResults, err := s.store.SearchVector(ctx, embedding.Vector, pool)
	if err != nil {
		return nil, err
	}

	keywords := s.processor.Keywords(req.Query)
	scored := make([]scoredChunk, 0, len(vectorResults))
	for _, vr := range vectorResults {
		chunk, err := s.store.GetChunk(ctx, vr.ChunkID)
		if err != nil {
			continue // Skip chunks that can't be loaded
		}
		scored = append(scored, scoredChunk{
			chunk: chunk,
			score: vr.Similarity + vectorBoost(chunk.Content, keywords),
		})
	}
	sortScored(scored)

	results := buildResults(scored, req.Limit, types.SourceVector)
	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(vectorResults),
	}, nil
}

// textSearch performs only BM25 text search
func (s *Searcher) textSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	pool := poolSize(req.Limit, TextPoolMultiplier, TextPoolCap)
	textResults, err := s.runTextQuery(ctx, req.Query, pool)
	if err != nil {
		return nil, err
	}

	keywords := s.processor.Keywords(req.Query)
	scored := make([]scoredChunk, 0, len(textResults))
	for _, tr := range textResults {
		chunk, err := s.store.GetChunk(ctx, tr.ChunkID)
		if err != nil {
			continue
		}
		scored = append(scored, scoredChunk{
			chunk: chunk,
			score: tr.Score + textBoost(chunk.Content, keywords),
		})
	}
	sortScored(scored)

	results := buildResults(scored, req.Limit, types.SourceText)
	return &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		TextResults:  len(textResults),
	}, nil
}

// runTextQuery tries the precise lexical form first. When FTS5 rejects it
// as unparseable the query is rebuilt as a plain OR of quoted keywords and
// retried once; a query with nothing indexable returns no results.
func (s *Searcher) runTextQuery(ctx context.Context, rawQuery string, pool int) ([]storage.TextResult, error) {
	match := s.processor.LexicalForm(rawQuery)
	if match == "" {
		return nil, nil
	}

	results, err := s.store.SearchText(ctx, match, pool)
	if err == nil {
		return results, nil
	}
	if !errors.Is(err, storage.ErrInvalidMatch) {
		return nil, err
	}

	fallback := s.processor.FallbackForm(rawQuery)
	if fallback == "" {
		return nil, nil
	}
	s.logger.Debug("lexical form rejected, retrying with keyword fallback",
		"match", match, "fallback", fallback)
	return s.store.SearchText(ctx, fallback, pool)
}

// searchResult holds results from concurrent search operations
type searchResult struct {
	vectorResults []storage.VectorResult
	textResults   []storage.TextResult
	err           error
}

// runVectorSearch executes the vector arm of hybrid search in a goroutine
func (s *Searcher) runVectorSearch(ctx context.Context, req SearchRequest, resultChan chan<- searchResult) {
	var res searchResult
	semantic := s.processor.SemanticForm(req.Query)
	embedding, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: semantic})
	if err != nil {
		res.err = fmt.Errorf("failed to generate query embedding: %w", err)
	} else {
		res.vectorResults, res.err = s.store.SearchVector(ctx, embedding.Vector, req.Limit*HybridVectorMultiplier)
	}
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// runTextSearch executes the text arm of hybrid search in a goroutine.
// Synonym variants of the query contribute additional candidates after
// the original's results; on duplicate chunks the original's rank wins.
func (s *Searcher) runTextSearch(ctx context.Context, req SearchRequest, resultChan chan<- searchResult) {
	var res searchResult
	pool := poolSize(req.Limit, TextPoolMultiplier, TextPoolCap)

	seen := make(map[int64]struct{})
	for i, variant := range s.processor.Expand(req.Query) {
		results, err := s.runTextQuery(ctx, variant, pool)
		if err != nil {
			if i == 0 {
				res.err = err
				break
			}
			s.logger.Debug("synonym variant search failed", "variant", variant, "error", err)
			continue
		}
		for _, r := range results {
			if _, dup := seen[r.ChunkID]; dup {
				continue
			}
			seen[r.ChunkID] = struct{}{}
			res.textResults = append(res.textResults, r)
		}
	}

	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// hybridSearch combines vector and BM25 search using Reciprocal Rank Fusion
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vectorChan := make(chan searchResult, 1)
	textChan := make(chan searchResult, 1)

	go s.runVectorSearch(ctx, req, vectorChan)
	go s.runTextSearch(ctx, req, textChan)

	// Wait for both searches
	var vectorRes, textRes searchResult
	var vectorDone, textDone bool
	for !vectorDone || !textDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case textRes = <-textChan:
			textDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Check for errors (allow one arm to fail)
	if vectorRes.err != nil && textRes.err != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, text=%v", vectorRes.err, textRes.err)
	}
	if vectorRes.err != nil {
		s.logger.Warn("vector arm failed, fusing text results only", "error", vectorRes.err)
	}
	if textRes.err != nil {
		s.logger.Warn("text arm failed, fusing vector results only", "error", textRes.err)
	}

	ranked := applyRRF(vectorRes.vectorResults, textRes.textResults, req.RRFConstant)
	results, err := s.fetchResults(ctx, ranked, req.Limit)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(vectorRes.vectorResults),
		TextResults:   len(textRes.textResults),
	}, nil
}

// rankedResult represents a chunk with its fused score and rank
type rankedResult struct {
	chunkID int64
	score   float64
	rank    int
}

// applyRRF fuses the two rankings: RRF(d) = Σ 1/(k + rank(d)), ranks
// starting at 1 per list, a list that misses the chunk contributing 0.
// Candidates are the union of the two pools. The sort is stable, so tied
// scores keep vector-then-text insertion order.
func applyRRF(vectorResults []storage.VectorResult, textResults []storage.TextResult, k float64) []rankedResult {
	if k == 0 {
		k = DefaultRRFK
	}

	scores := make(map[int64]float64, len(vectorResults)+len(textResults))
	order := make([]int64, 0, len(vectorResults)+len(textResults))

	for rank, vr := range vectorResults {
		if _, ok := scores[vr.ChunkID]; !ok {
			order = append(order, vr.ChunkID)
		}
		scores[vr.ChunkID] += 1.0 / (k + float64(rank+1))
	}
	for rank, tr := range textResults {
		if _, ok := scores[tr.ChunkID]; !ok {
			order = append(order, tr.ChunkID)
		}
		scores[tr.ChunkID] += 1.0 / (k + float64(rank+1))
	}

	results := make([]rankedResult, 0, len(order))
	for _, id := range order {
		results = append(results, rankedResult{chunkID: id, score: scores[id]})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	for i := range results {
		results[i].rank = i + 1
	}

	return results
}

// fetchResults hydrates the top ranked chunks from the store
func (s *Searcher) fetchResults(ctx context.Context, ranked []rankedResult, limit int) ([]types.SearchResult, error) {
	if limit > len(ranked) {
		limit = len(ranked)
	}

	results := make([]types.SearchResult, 0, limit)
	for i := 0; i < limit; i++ {
		rr := ranked[i]
		chunk, err := s.store.GetChunk(ctx, rr.chunkID)
		if err != nil {
			continue // Skip chunks that can't be loaded
		}
		results = append(results, types.SearchResult{
			ChunkID: rr.chunkID,
			Rank:    len(results) + 1,
			Score:   rr.score,
			Source:  types.SourceHybrid,
			Chunk:   chunk,
		})
	}

	return results, nil
}

// buildResults turns boosted candidates into ranked search results
func buildResults(scored []scoredChunk, limit int, source types.SearchSource) []types.SearchResult {
	if limit > len(scored) {
		limit = len(scored)
	}
	results := make([]types.SearchResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = types.SearchResult{
			ChunkID: scored[i].chunk.ID,
			Rank:    i + 1,
			Score:   scored[i].score,
			Source:  source,
			Chunk:   scored[i].chunk,
		}
	}
	return results
}

// sortScored orders candidates by boosted score descending. The sort is
// stable: ties keep the index's own ordering.
func sortScored(scored []scoredChunk) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
}

// vectorBoost rewards literal keyword overlap on top of semantic
// similarity. Pure-digit keywords (stock codes, dates) get an extra
// boost; a single-character CJK keyword earns reduced credit.
func vectorBoost(content string, keywords []string) float64 {
	contentLower := strings.ToLower(content)
	var boost float64
	for _, kw := range keywords {
		if isSingleCJK(kw) {
			if strings.Contains(content, kw) {
				boost += cjkCharBoost
			}
			continue
		}
		if strings.Contains(contentLower, strings.ToLower(kw)) {
			boost += keywordMatchBoost
			if isNumeric(kw) {
				boost += numericMatchBoost
			}
		}
	}
	return boost
}

// textBoost rewards keyword overlap for the text path
func textBoost(content string, keywords []string) float64 {
	contentLower := strings.ToLower(content)
	var boost float64
	for _, kw := range keywords {
		if strings.Contains(contentLower, strings.ToLower(kw)) {
			boost += textMatchBoost
		}
	}
	return boost
}

// isNumeric reports whether s is non-empty and entirely ASCII digits
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isSingleCJK reports whether s is exactly one CJK ideograph
func isSingleCJK(s string) bool {
	runes := []rune(s)
	return len(runes) == 1 && runes[0] >= 0x4e00 && runes[0] <= 0x9fff
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if req.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}

	if req.Limit <= 0 {
		req.Limit = 10 // Default limit
	}

	if req.Limit > 100 {
		req.Limit = 100 // Max limit
	}

	if req.Mode == "" {
		req.Mode = SearchModeHybrid // Default mode
	}

	if req.RRFConstant == 0 {
		req.RRFConstant = DefaultRRFK
	}

	if req.CacheTTL == 0 {
		req.CacheTTL = 1 * time.Hour // Default TTL
	}

	return nil
}

// checkCache looks up cached search results
func (s *Searcher) checkCache(req SearchRequest) (*SearchResponse, error) {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)

	if !found {
		s.cacheMu.RUnlock()
		return nil, fmt.Errorf("cache miss")
	}

	// Check expiry while holding the read lock to avoid a race with Add
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		// Remove expired entry - need write lock
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil, fmt.Errorf("cache expired")
	}

	// Entry is valid - return a deep copy while still holding read lock
	// to ensure entry isn't modified during copy
	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()

	return response, nil
}

// storeInCache saves search results to cache
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	hash := computeQueryHash(req)

	// Deep copy so later mutations by the caller can't poison the cache
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(hash, entry)
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := &SearchResponse{
		TotalResults:  src.TotalResults,
		SearchMode:    src.SearchMode,
		Duration:      src.Duration,
		CacheHit:      src.CacheHit,
		VectorResults: src.VectorResults,
		TextResults:   src.TextResults,
		Results:       make([]types.SearchResult, len(src.Results)),
	}

	for i, result := range src.Results {
		dst.Results[i] = result
		dst.Results[i].Chunk = copyChunk(result.Chunk)
	}

	return dst
}

// copyChunk deep-copies a chunk including its metadata maps
func copyChunk(src *types.Chunk) *types.Chunk {
	if src == nil {
		return nil
	}
	dst := *src
	if src.Metadata != nil {
		dst.Metadata = make(map[string]interface{}, len(src.Metadata))
		for k, v := range src.Metadata {
			dst.Metadata[k] = v
		}
	}
	if src.DocumentMetadata != nil {
		dst.DocumentMetadata = make(map[string]interface{}, len(src.DocumentMetadata))
		for k, v := range src.DocumentMetadata {
			dst.DocumentMetadata[k] = v
		}
	}
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	// Build deterministic string representation
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	fmt.Fprintf(&data, "%d|%g", req.Limit, req.RRFConstant)

	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached response. Called after any write so
// stale rankings never outlive the data they were computed from.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}
