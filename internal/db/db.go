package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"legal-rag/internal/config"
	"legal-rag/internal/helper"
	"legal-rag/internal/models"
)

type Document struct {
	bun.BaseModel  `bun:"table:documents,alias:d"`
	ID             string          `bun:"id,pk"`
	Collection     string          `bun:"collection,pk"`
	Content        string          `bun:"content,notnull"`
	Embedding      pgvector.Vector `bun:"embedding,notnull,type:vector"`
	SourceFilename string          `bun:"source_filename"`
	PageNumber     int             `bun:"page_number"`
	ChunkIndex     int             `bun:"chunk_index"`
	Distance       float64         `bun:"distance,scanonly"`
}

// Store is the Postgres/pgvector backend. Rows are scoped by collection name
// and ranked by cosine distance.
type Store struct {
	db         *bun.DB
	embedder   embeddings.Embedder
	collection string
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(dsn string) *sql.DB {
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return err
	}
	_, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx)
	return err
}

// NewStore connects, checks the server is reachable and creates the schema.
func NewStore(ctx context.Context, cfg *config.StoreConfig, embedder embeddings.Embedder) (*Store, error) {
	db := NewDB(ConnectDB(cfg.DSN), cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to connect to database: %w", models.ErrStoreUnavailable, err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize database: %w", models.ErrStoreUnavailable, err)
	}
	log.Debug().Str("collection", cfg.Collection).Msg("Opened postgres vector store")
	return &Store{db: db, embedder: embedder, collection: cfg.Collection}, nil
}

// Add embeds the chunks and inserts them in one transaction. Chunks with an
// ID replace the row stored under it.
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

	docs := make([]Document, len(chunks))
	for i, c := range chunks {
		if docs[i], err = s.toDocument(c, vectors[i]); err != nil {
			return err
		}
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&docs).
			On("CONFLICT (id, collection) DO UPDATE").
			Set("content = EXCLUDED.content").
			Set("embedding = EXCLUDED.embedding").
			Set("source_filename = EXCLUDED.source_filename").
			Set("page_number = EXCLUDED.page_number").
			Set("chunk_index = EXCLUDED.chunk_index").
			Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: failed to store documents: %w", models.ErrStoreUnavailable, err)
	}
	return nil
}

// Search returns at most k chunks ordered by ascending cosine distance.
func (s *Store) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %w", models.ErrProvider, err)
	}
	vec := pgvector.NewVector(queryEmbedding)

	var docs []Document
	err = s.db.NewSelect().
		Model(&docs).
		Column("id", "collection", "content", "source_filename", "page_number", "chunk_index").
		ColumnExpr("embedding <=> ? AS distance", vec).
		Where("collection = ?", s.collection).
		OrderExpr("embedding <=> ?", vec).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query by similarity: %w", models.ErrStoreUnavailable, err)
	}

	results := make([]models.SearchResult, len(docs))
	for i, d := range docs {
		results[i] = toResult(d)
	}
	return results, nil
}

func (s *Store) Count() int {
	n, err := s.db.NewSelect().Model((*Document)(nil)).Where("collection = ?", s.collection).Count(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("Error counting documents")
		return 0
	}
	return n
}

func (s *Store) Export(context.Context, string) error {
	return fmt.Errorf("export is not supported by the postgres backend, use pg_dump")
}

// Reset deletes every row of the collection.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.NewDelete().Model((*Document)(nil)).Where("collection = ?", s.collection).Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to clear collection: %w", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) toDocument(c models.Chunk, vector []float32) (Document, error) {
	id := c.ID
	if id == "" {
		var err error
		if id, err = helper.GenerateUUID(); err != nil {
			return Document{}, err
		}
	}
	return Document{
		ID:             id,
		Collection:     s.collection,
		Content:        c.Text,
		Embedding:      pgvector.NewVector(vector),
		SourceFilename: c.Source,
		PageNumber:     c.SourcePage,
		ChunkIndex:     c.Index,
	}, nil
}

func toResult(d Document) models.SearchResult {
	return models.SearchResult{
		Chunk: models.Chunk{
			ID:         d.ID,
			Text:       d.Content,
			SourcePage: d.PageNumber,
			Source:     d.SourceFilename,
			Index:      d.ChunkIndex,
		},
		Similarity: float32(1 - d.Distance),
	}
}
