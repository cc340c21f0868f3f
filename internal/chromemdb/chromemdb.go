package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"legal-rag/internal/config"
	"legal-rag/internal/embedding"
	"legal-rag/internal/helper"
	"legal-rag/internal/models"
)

// Store keeps embedded chunks in a chromem-go collection. Persistent stores
// write one file per document under dbPath, so every added chunk is durable
// and visible to searches as soon as its own write completes.
type Store struct {
	db *chromem.DB
	// mu guards collection, which Reset replaces.
	mu            sync.RWMutex
	collection    *chromem.Collection
	embedder      embeddings.Embedder
	name          string
	dbPath        string
	compress      bool
	encryptionKey string
}

// NewStore opens (or creates) the configured collection.
func NewStore(cfg *config.StoreConfig, embedder embeddings.Embedder) (*Store, error) {
	var db *chromem.DB
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		if err := helper.CreateFolder(cfg.Path); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open database: %w", models.ErrStoreUnavailable, err)
		}
	}

	s := &Store{
		db:            db,
		embedder:      embedder,
		name:          cfg.Collection,
		dbPath:        cfg.Path,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
	}
	if err := s.openCollection(); err != nil {
		return nil, err
	}
	log.Debug().Str("collection", s.name).Int("documents", s.Count()).Msg("Opened vector store")
	return s, nil
}

func (s *Store) openCollection() error {
	c, err := s.db.GetOrCreateCollection(s.name, nil, embedding.EmbeddingFunc(s.embedder))
	if err != nil {
		return fmt.Errorf("%w: failed to create/get collection: %w", models.ErrStoreUnavailable, err)
	}
	s.collection = c
	return nil
}

// Add embeds the chunks in one provider call and stores them. Chunks without
// an ID get a fresh one, so adding the same ID-less chunks twice stores them
// twice; chunks with an ID replace any previous entry under that ID.
func (s *Store) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: failed to embed chunks: %w", models.ErrProvider, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks", models.ErrProvider, len(vectors), len(chunks))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		id := c.ID
		if id == "" {
			if id, err = helper.GenerateUUID(); err != nil {
				return err
			}
		}
		docs[i] = chromem.Document{
			ID:        id,
			Content:   c.Text,
			Metadata:  chunkMetadata(c),
			Embedding: vectors[i],
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: failed to add documents: %w", models.ErrStoreUnavailable, err)
	}
	return nil
}

// Search returns at most k chunks ordered by descending cosine similarity.
// An empty collection answers without calling the embedding provider.
func (s *Store) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := min(k, s.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %w", models.ErrProvider, err)
	}

	results, err := s.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryEmbedding,
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query by similarity: %w", models.ErrStoreUnavailable, err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, models.SearchResult{
			Chunk:      toChunk(r.ID, r.Content, r.Metadata),
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count()
}

// Export writes the collection to filePath, gzip compressed and AES encrypted
// when configured to.
func (s *Store) Export(_ context.Context, filePath string) error {
	log.Debug().
		Str("collection", s.name).
		Str("file", filePath).
		Bool("compress", s.compress).
		Bool("encrypted", s.encryptionKey != "").
		Msg("Exporting collection")

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.db.ExportToFile(filePath, s.compress, s.encryptionKey, s.name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Reset drops the collection and starts a new empty one under the same name.
// It waits for in-flight adds and searches to finish.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("%w: failed to drop collection: %w", models.ErrStoreUnavailable, err)
	}
	return s.openCollection()
}

func chunkMetadata(c models.Chunk) map[string]string {
	meta := map[string]string{
		models.MetaSource: c.Source,
		models.MetaIndex:  strconv.Itoa(c.Index),
	}
	if c.SourcePage > 0 {
		meta[models.MetaPage] = strconv.Itoa(c.SourcePage)
	}
	return meta
}

func toChunk(id, content string, meta map[string]string) models.Chunk {
	c := models.Chunk{
		ID:     id,
		Text:   content,
		Source: meta[models.MetaSource],
	}
	// missing or malformed numbers leave the zero value, i.e. unknown
	c.SourcePage, _ = strconv.Atoi(meta[models.MetaPage])
	c.Index, _ = strconv.Atoi(meta[models.MetaIndex])
	return c
}
