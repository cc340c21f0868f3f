package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"legal-rag/internal/helper"
	"legal-rag/internal/models"
	"legal-rag/internal/parser"
)

// Indexer is the write side of the vector store.
type Indexer interface {
	Add(ctx context.Context, chunks []models.Chunk) error
}

type Result struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Pages    int    `json:"pages"`
	Chunks   int    `json:"chunks"`
}

// Service turns uploaded PDFs into stored chunks. Uploads are kept in
// uploadDir indefinitely.
type Service struct {
	uploadDir string
	chunker   *parser.Chunker
	index     Indexer
	loadPDF   func(path string) ([]models.Page, error)
}

func NewService(uploadDir string, chunker *parser.Chunker, index Indexer) (*Service, error) {
	if err := helper.CreateFolder(uploadDir); err != nil {
		return nil, err
	}
	return &Service{
		uploadDir: uploadDir,
		chunker:   chunker,
		index:     index,
		loadPDF:   parser.LoadPDF,
	}, nil
}

// ValidateFilename rejects every file that is not a PDF.
func ValidateFilename(filename string) error {
	if !parser.IsPDF(filename) {
		return &models.ValidationError{Message: models.PDFOnlyMessage}
	}
	return nil
}

// IngestUpload validates, stages the raw upload and indexes it. Nothing is
// written when validation fails.
func (s *Service) IngestUpload(ctx context.Context, filename string, r io.Reader) (*Result, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}
	name := filepath.Base(filepath.Clean("/" + filename))
	path := filepath.Join(s.uploadDir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}
	return s.IngestFile(ctx, path)
}

// IngestFile loads, chunks and stores a PDF already on disk.
func (s *Service) IngestFile(ctx context.Context, path string) (*Result, error) {
	pages, chunks, err := s.Prepare(path)
	if err != nil {
		return nil, err
	}
	if err := s.index.Add(ctx, chunks); err != nil {
		return nil, err
	}
	return &Result{
		Filename: filepath.Base(path),
		Path:     path,
		Pages:    len(pages),
		Chunks:   len(chunks),
	}, nil
}

// Prepare loads and chunks a PDF without storing anything.
func (s *Service) Prepare(path string) ([]models.Page, []models.Chunk, error) {
	if err := ValidateFilename(path); err != nil {
		return nil, nil, err
	}
	pages, err := s.loadPDF(path)
	if err != nil {
		return nil, nil, &models.ValidationError{Message: fmt.Sprintf("Impossible de lire le PDF %s : %v", filepath.Base(path), err)}
	}
	chunks, err := s.chunker.Split(filepath.Base(path), pages)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split document: %w", err)
	}
	log.Info().Str("file", filepath.Base(path)).Int("pages", len(pages)).Msgf("Number of documents split: %d", len(chunks))
	return pages, chunks, nil
}
