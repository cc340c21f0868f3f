package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"legal-rag/internal/chromemdb"
	"legal-rag/internal/config"
	"legal-rag/internal/db"
	"legal-rag/internal/embedding"
	"legal-rag/internal/ingest"
	"legal-rag/internal/llmservice"
	"legal-rag/internal/models"
	"legal-rag/internal/parser"
	"legal-rag/internal/rag"
)

const defaultConfigFilePath = "./configs/config.yaml"

var configFilePath string

var rootCmd = &cobra.Command{
	Use:   "legal-rag",
	Short: "Question answering over French legal PDFs",
	Long: `legal-rag indexes PDF documents into a vector store and answers
questions about them with an OpenAI compatible model, using only the
retrieved passages as context.`,
	SilenceUsage: true,
}

// store is what the commands need from either vector store backend.
type store interface {
	Add(ctx context.Context, chunks []models.Chunk) error
	Search(ctx context.Context, query string, k int) ([]models.SearchResult, error)
	Count() int
	Export(ctx context.Context, filePath string) error
	Reset(ctx context.Context) error
}

// app holds the wired components for one command run.
type app struct {
	cfg    *config.Config
	store  store
	rag    *rag.RAG
	ingest *ingest.Service
	close  func()
}

func main() {
	// A missing .env is fine, the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Error loading .env file:", err)
	}

	setupLogger(config.LogConfig{Level: "info", Pretty: true})

	rootCmd.PersistentFlags().StringVar(&configFilePath, "config", defaultConfigFilePath, "path to the YAML config file")
	rootCmd.AddCommand(serveCmd(), ingestCmd(), askCmd(), exportCmd(), resetCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Caller().Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configFilePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configFilePath).Msg("Error loading config")
	}
	setupLogger(cfg.Log)
	log.Debug().Str("path", configFilePath).Str("backend", cfg.Store.Backend).Msg("Loaded config")
	return cfg
}

// newApp wires config, embedder, store, model and services. Any failure
// here is fatal.
func newApp(ctx context.Context) *app {
	cfg := loadConfig()

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	a := &app{cfg: cfg, close: func() {}}
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pg, err := db.NewStore(ctx, &cfg.Store, embedder)
		if err != nil {
			log.Fatal().Err(err).Msg("Error connecting to database")
		}
		a.store = pg
		a.close = func() {
			if err := pg.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing database")
			}
		}
	default:
		chromemStore, err := chromemdb.NewStore(&cfg.Store, embedder)
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating vector database")
		}
		a.store = chromemStore
	}

	llm, err := llmservice.NewLLM(&cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing llm")
	}
	a.rag = rag.NewRAG(a.store, llm, cfg)

	chunker, err := parser.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating chunker")
	}
	a.ingest, err = ingest.NewService(cfg.UploadDir, chunker, a.store)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating upload folder")
	}
	return a
}
