package ingest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"legal-rag/internal/chromemdb"
	"legal-rag/internal/config"
	"legal-rag/internal/models"
	"legal-rag/internal/parser"
	"legal-rag/internal/testutil"
)

// mockIndexer implements Indexer for testing
type mockIndexer struct {
	chunks []models.Chunk
	calls  int
	err    error
}

func (m *mockIndexer) Add(ctx context.Context, chunks []models.Chunk) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func newTestService(t *testing.T, index Indexer) (*Service, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	chunker, err := parser.NewChunker(models.DefaultChunkSize, models.DefaultChunkOverlap)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}
	s, err := NewService(dir, chunker, index)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return s, dir
}

func threePagePDF() []byte {
	return testutil.BuildPDF(
		"Article premier. Le present bail porte sur un local commercial.",
		"Le contrat prend effet le 1er janvier.",
		"Fait en deux exemplaires originaux.",
	)
}

func TestIngestUpload_RejectsNonPDF(t *testing.T) {
	index := &mockIndexer{}
	s, dir := newTestService(t, index)

	for _, name := range []string{"notes.txt", "contrat.docx", "pdf", "contrat.pdf.exe"} {
		_, err := s.IngestUpload(context.Background(), name, strings.NewReader("data"))
		if !errors.Is(err, models.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
		if err == nil || err.Error() != models.PDFOnlyMessage {
			t.Errorf("%s: expected French message, got %v", name, err)
		}
	}
	if index.calls != 0 {
		t.Errorf("store reached %d times for rejected uploads", index.calls)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("rejected uploads were staged: %v", entries)
	}
}

func TestIngestUpload_StagesAndIndexes(t *testing.T) {
	index := &mockIndexer{}
	s, dir := newTestService(t, index)

	res, err := s.IngestUpload(context.Background(), "bail.pdf", bytes.NewReader(threePagePDF()))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Filename != "bail.pdf" || res.Pages != 3 || res.Chunks != 3 {
		t.Errorf("unexpected result: %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "bail.pdf")); err != nil {
		t.Errorf("raw upload not kept: %v", err)
	}
	if len(index.chunks) != 3 {
		t.Fatalf("expected 3 chunks indexed, got %d", len(index.chunks))
	}
	page2 := index.chunks[1]
	if page2.SourcePage != 2 || !strings.Contains(page2.Text, "1er janvier") || page2.Source != "bail.pdf" {
		t.Errorf("unexpected page 2 chunk: %+v", page2)
	}
}

func TestIngestUpload_StripsDirectories(t *testing.T) {
	s, dir := newTestService(t, &mockIndexer{})

	res, err := s.IngestUpload(context.Background(), "../../evil.pdf", bytes.NewReader(threePagePDF()))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Path != filepath.Join(dir, "evil.pdf") {
		t.Fatalf("upload escaped the staging dir: %s", res.Path)
	}
}

func TestIngestUpload_CorruptPDF(t *testing.T) {
	index := &mockIndexer{}
	s, _ := newTestService(t, index)

	_, err := s.IngestUpload(context.Background(), "broken.pdf", strings.NewReader("not really a pdf"))
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if index.calls != 0 {
		t.Error("store should not be reached for unreadable files")
	}
}

func TestIngestFile_StoreError(t *testing.T) {
	index := &mockIndexer{err: models.ErrStoreUnavailable}
	s, dir := newTestService(t, index)

	path := filepath.Join(dir, "bail.pdf")
	if err := os.WriteFile(path, threePagePDF(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.IngestFile(context.Background(), path); !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestPrepare_DoesNotStore(t *testing.T) {
	index := &mockIndexer{}
	s, dir := newTestService(t, index)

	path := filepath.Join(dir, "bail.pdf")
	if err := os.WriteFile(path, threePagePDF(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	pages, chunks, err := s.Prepare(path)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(pages) != 3 || len(chunks) != 3 {
		t.Fatalf("unexpected pages=%d chunks=%d", len(pages), len(chunks))
	}
	if index.calls != 0 {
		t.Error("prepare must not store")
	}
}

func TestIngestUpload_IntoChromem(t *testing.T) {
	ctx := context.Background()
	store, err := chromemdb.NewStore(&config.StoreConfig{
		Path:       filepath.Join(t.TempDir(), "chromemdb"),
		Collection: models.DefaultCollectionName,
	}, testutil.NewHashEmbedder())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	s, _ := newTestService(t, store)

	if _, err := s.IngestUpload(ctx, "bail.pdf", bytes.NewReader(threePagePDF())); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if store.Count() != 3 {
		t.Fatalf("expected 3 stored chunks, got %d", store.Count())
	}
	results, err := store.Search(ctx, "Quand le contrat prend-il effet ?", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 || results[0].Chunk.SourcePage != 2 {
		t.Fatalf("expected page 2 first, got %+v", results)
	}
}
