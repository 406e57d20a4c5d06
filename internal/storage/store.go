package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dshills/gorag/internal/embedder"
	"github.com/dshills/gorag/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist.
	// Aliased so callers can match either the package or the shared
	// taxonomy sentinel.
	ErrNotFound = types.ErrNotFound
	// ErrInvalidMatch is returned when FTS5 rejects a MATCH expression.
	// Callers may rebuild a simpler expression and retry; the store never
	// retries on its own.
	ErrInvalidMatch = errors.New("invalid match expression")
)

// Store persists documents and chunks in SQLite and keeps the derived
// search artifacts (embedding vectors, FTS index entries) in lockstep
// with the chunk rows. Every write is a single transaction: after a
// failure none of the three artifacts have changed.
type Store struct {
	db       *sql.DB
	embedder embedder.Embedder
	logger   *slog.Logger

	// writeMu serializes logical write units. Embedding calls happen
	// before the lock is taken so a slow provider doesn't block readers
	// of other write paths.
	writeMu sync.Mutex
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Open opens (creating if necessary) the store at dbPath and applies any
// pending migrations. The embedder is used to derive a vector for every
// chunk written through the store.
func Open(ctx context.Context, dbPath string, emb embedder.Embedder, logger *slog.Logger) (*Store, error) {
	if emb == nil {
		return nil, errors.New("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "storage")

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Debug("store opened",
		"path", dbPath,
		"build_mode", BuildMode,
		"embedding_provider", emb.Provider(),
		"embedding_dimension", emb.Dimension())

	return &Store{db: db, embedder: emb, logger: logger}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *Store) querier() querier {
	return s.db
}

// withTx runs fn inside a transaction, rolling back on any error. Each
// public write operation is exactly one such unit of work.
func (s *Store) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeUnavailable(fmt.Errorf("failed to begin transaction: %w", err))
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeUnavailable(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// storeUnavailable tags connection-level failures with
// types.ErrStoreUnavailable so callers can tell an unreachable database
// from an ordinary miss. The store never retries these internally.
func storeUnavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return err
}

// Document operations

// createDocumentWithQuerier is the internal implementation that uses a querier
func (s *Store) createDocumentWithQuerier(ctx context.Context, q querier, doc *types.Document) error {
	metadata, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (uri, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query, doc.URI, metadata, now, now)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	doc.ID = id
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

// CreateDocument registers a new document that chunks can be attached to.
func (s *Store) CreateDocument(ctx context.Context, uri string, metadata map[string]interface{}) (*types.Document, error) {
	doc := &types.Document{URI: uri, Metadata: cloneMetadata(metadata)}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.createDocumentWithQuerier(ctx, s.querier(), doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// getDocumentWithQuerier is the internal implementation that uses a querier
func (s *Store) getDocumentWithQuerier(ctx context.Context, q querier, id int64) (*types.Document, error) {
	query := `
		SELECT id, uri, metadata, created_at, updated_at
		FROM documents
		WHERE id = ?
	`
	var doc types.Document
	var metadata string
	err := q.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.URI, &metadata, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if doc.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*types.Document, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), id)
}

// listDocumentsWithQuerier is the internal implementation that uses a querier
func (s *Store) listDocumentsWithQuerier(ctx context.Context, q querier) ([]*types.Document, error) {
	query := `
		SELECT id, uri, metadata, created_at, updated_at
		FROM documents
		ORDER BY id
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*types.Document, 0)
	for rows.Next() {
		var doc types.Document
		var metadata string
		if err := rows.Scan(&doc.ID, &doc.URI, &metadata, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		if doc.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// ListDocuments returns all documents ordered by ID.
func (s *Store) ListDocuments(ctx context.Context) ([]*types.Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier())
}

// DeleteDocument removes a document and, via cascade, all of its chunks,
// their embeddings, and their FTS entries.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.withTx(ctx, func(q querier) error {
		result, err := q.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Chunk operations

const chunkColumns = `
	c.id, c.document_id, c.content, c.metadata, c.created_at, c.updated_at,
	d.uri, d.metadata
`

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanChunk reads one joined chunks/documents row
func scanChunk(sc rowScanner) (*types.Chunk, error) {
	var chunk types.Chunk
	var chunkMeta, docMeta string
	err := sc.Scan(
		&chunk.ID, &chunk.DocumentID, &chunk.Content, &chunkMeta,
		&chunk.CreatedAt, &chunk.UpdatedAt,
		&chunk.DocumentURI, &docMeta,
	)
	if err != nil {
		return nil, err
	}
	if chunk.Metadata, err = unmarshalMetadata(chunkMeta); err != nil {
		return nil, err
	}
	if chunk.DocumentMetadata, err = unmarshalMetadata(docMeta); err != nil {
		return nil, err
	}
	chunk.ComputeContentHash()
	return &chunk, nil
}

// createChunkWithQuerier is the internal implementation that uses a querier
func (s *Store) createChunkWithQuerier(ctx context.Context, q querier, chunk *types.Chunk) error {
	metadata, err := marshalMetadata(chunk.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO chunks (document_id, content, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query, chunk.DocumentID, chunk.Content, metadata, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("document %d: %w", chunk.DocumentID, ErrNotFound)
		}
		return fmt.Errorf("failed to create chunk: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	chunk.ID = id
	chunk.CreatedAt = now
	chunk.UpdatedAt = now
	return nil
}

// upsertEmbeddingWithQuerier stores the vector for a chunk, replacing any
// previous one.
func (s *Store) upsertEmbeddingWithQuerier(ctx context.Context, q querier, chunkID int64, emb *embedder.Embedding) error {
	query := `
		INSERT INTO chunk_embeddings (chunk_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			created_at = excluded.created_at
	`
	_, err := q.ExecContext(ctx, query,
		chunkID, serializeVector(emb.Vector), emb.Dimension, emb.Provider, emb.Model, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// embedContent derives the vector for one chunk body. Embedding failures
// abort the write before any row is touched; a wrong-width vector is
// fatal and never reshaped.
func (s *Store) embedContent(ctx context.Context, content string) (*embedder.Embedding, error) {
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: content})
	if err != nil {
		if errors.Is(err, types.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingFailed, err)
	}
	if want := s.embedder.Dimension(); len(emb.Vector) != want {
		return nil, fmt.Errorf("%w: got %d dimensions, store expects %d",
			types.ErrDimensionMismatch, len(emb.Vector), want)
	}
	return emb, nil
}

// CreateChunk embeds content and inserts the chunk row together with its
// embedding in one transaction. The FTS entry follows via trigger, so
// after success all three artifacts exist; after failure none do.
func (s *Store) CreateChunk(ctx context.Context, documentID int64, content string, metadata map[string]interface{}) (*types.Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, types.ErrEmptyContent
	}

	emb, err := s.embedContent(ctx, content)
	if err != nil {
		return nil, err
	}

	chunk := &types.Chunk{
		DocumentID: documentID,
		Content:    content,
		Metadata:   cloneMetadata(metadata),
	}
	chunk.ComputeContentHash()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = s.withTx(ctx, func(q querier) error {
		if err := s.createChunkWithQuerier(ctx, q, chunk); err != nil {
			return err
		}
		return s.upsertEmbeddingWithQuerier(ctx, q, chunk.ID, emb)
	})
	if err != nil {
		return nil, err
	}

	if err := s.hydrateDocumentFields(ctx, chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}

// CreateChunksForDocument embeds every text up front, then inserts all
// chunk rows and embeddings in a single transaction. Chunk order within
// the document is recorded in metadata. Any embedding failure aborts the
// whole unit before a transaction is opened.
func (s *Store) CreateChunksForDocument(ctx context.Context, documentID int64, texts []string, baseMeta map[string]interface{}) ([]*types.Chunk, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batch, err := s.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		if errors.Is(err, types.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingFailed, err)
	}
	if len(batch.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			types.ErrEmbeddingFailed, len(batch.Embeddings), len(texts))
	}
	want := s.embedder.Dimension()
	for i, emb := range batch.Embeddings {
		if len(emb.Vector) != want {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, store expects %d",
				types.ErrDimensionMismatch, i, len(emb.Vector), want)
		}
	}

	chunks := make([]*types.Chunk, len(texts))
	for i, text := range texts {
		chunk := &types.Chunk{
			DocumentID: documentID,
			Content:    text,
			Metadata:   cloneMetadata(baseMeta),
		}
		chunk.SetOrder(i)
		chunk.ComputeContentHash()
		chunks[i] = chunk
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = s.withTx(ctx, func(q querier) error {
		for i, chunk := range chunks {
			if err := s.createChunkWithQuerier(ctx, q, chunk); err != nil {
				return err
			}
			if err := s.upsertEmbeddingWithQuerier(ctx, q, chunk.ID, batch.Embeddings[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, chunk := range chunks {
		if err := s.hydrateDocumentFields(ctx, chunk); err != nil {
			return nil, err
		}
	}
	return chunks, nil
}

// hydrateDocumentFields fills the document URI and metadata carried on a
// chunk for callers that already hold the rest of the row.
func (s *Store) hydrateDocumentFields(ctx context.Context, chunk *types.Chunk) error {
	doc, err := s.GetDocument(ctx, chunk.DocumentID)
	if err != nil {
		return err
	}
	chunk.DocumentURI = doc.URI
	chunk.DocumentMetadata = doc.Metadata
	return nil
}

// getChunkWithQuerier is the internal implementation that uses a querier
func (s *Store) getChunkWithQuerier(ctx context.Context, q querier, id int64) (*types.Chunk, error) {
	query := `
		SELECT ` + chunkColumns + `
		FROM chunks c
		INNER JOIN documents d ON c.document_id = d.id
		WHERE c.id = ?
	`
	chunk, err := scanChunk(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

// GetChunk retrieves a chunk by ID, including its document's URI and
// metadata.
func (s *Store) GetChunk(ctx context.Context, id int64) (*types.Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), id)
}

// listChunksWithQuerier is the internal implementation that uses a querier
func (s *Store) listChunksWithQuerier(ctx context.Context, q querier, where, suffix string, args ...interface{}) ([]*types.Chunk, error) {
	query := `
		SELECT ` + chunkColumns + `
		FROM chunks c
		INNER JOIN documents d ON c.document_id = d.id
	` + where + `
		ORDER BY c.document_id, json_extract(c.metadata, '$.order'), c.id
	` + suffix
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*types.Chunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// ListChunks returns chunks ordered by document, then by the order recorded
// in chunk metadata, with ID as the tie-break. A limit of zero or less
// returns every chunk; offset skips that many rows.
func (s *Store) ListChunks(ctx context.Context, limit, offset int) ([]*types.Chunk, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}
	if offset < 0 {
		offset = 0
	}
	return s.listChunksWithQuerier(ctx, s.querier(), "", "LIMIT ? OFFSET ?", limit, offset)
}

// GetChunksByDocument returns a document's chunks in order.
func (s *Store) GetChunksByDocument(ctx context.Context, documentID int64) ([]*types.Chunk, error) {
	return s.listChunksWithQuerier(ctx, s.querier(), "WHERE c.document_id = ?", "", documentID)
}

// UpdateChunk re-embeds the new content and updates the chunk row and its
// embedding in one transaction. The FTS entry follows via trigger.
func (s *Store) UpdateChunk(ctx context.Context, id int64, content string, metadata map[string]interface{}) (*types.Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, types.ErrEmptyContent
	}

	emb, err := s.embedContent(ctx, content)
	if err != nil {
		return nil, err
	}

	meta, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var updated *types.Chunk
	err = s.withTx(ctx, func(q querier) error {
		query := `
			UPDATE chunks
			SET content = ?, metadata = ?, updated_at = ?
			WHERE id = ?
		`
		result, err := q.ExecContext(ctx, query, content, meta, time.Now(), id)
		if err != nil {
			return fmt.Errorf("failed to update chunk: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		if err := s.upsertEmbeddingWithQuerier(ctx, q, id, emb); err != nil {
			return err
		}
		updated, err = s.getChunkWithQuerier(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteChunk removes a chunk; its embedding and FTS entry follow via
// cascade and trigger.
func (s *Store) DeleteChunk(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.withTx(ctx, func(q querier) error {
		result, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete chunk: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteAllChunks removes every chunk in the store.
func (s *Store) DeleteAllChunks(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		return nil
	})
}

// DeleteChunksByDocument removes all chunks belonging to a document while
// keeping the document row itself.
func (s *Store) DeleteChunksByDocument(ctx context.Context, documentID int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		return nil
	})
}

// Stats

// StoreStats summarizes what the store currently holds.
type StoreStats struct {
	Documents  int
	Chunks     int
	Embeddings int
	SizeMB     float64
}

// Stats reports document, chunk, and embedding counts plus the database
// size on disk.
func (s *Store) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&stats.Documents); err != nil {
		return nil, storeUnavailable(err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.Chunks); err != nil {
		return nil, storeUnavailable(err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunk_embeddings").Scan(&stats.Embeddings); err != nil {
		return nil, storeUnavailable(err)
	}

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return stats, nil
}

// Metadata helpers

func marshalMetadata(m map[string]interface{}) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(s string) (map[string]interface{}, error) {
	if s == "" {
		return map[string]interface{}{}, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}

func cloneMetadata(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
