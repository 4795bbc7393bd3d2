package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"querybot-go/internal/config"
	"querybot-go/internal/model"
	"querybot-go/pkg/ocr"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	pages []string
	err   error
	calls []string
}

func (f *fakeExtractor) ExtractPages(_ context.Context, path string) ([]string, error) {
	f.calls = append(f.calls, path)
	return f.pages, f.err
}

type fakeNormalizer struct {
	out string
	err error
}

func (f fakeNormalizer) Normalize(context.Context, string) (string, error) {
	return f.out, f.err
}

var testRetrieval = config.RetrievalConfig{ChunkSize: 40, ChunkOverlap: 10}

func stage(t *testing.T, r *IngestResult, s Stage) StageReport {
	t.Helper()
	for _, rep := range r.Stages {
		if rep.Stage == s {
			return rep
		}
	}
	t.Fatalf("stage %s not reported", s)
	return StageReport{}
}

func TestIngestChunksPerPage(t *testing.T) {
	primary := &fakeExtractor{pages: []string{
		"The leave policy grants twenty days of paid leave per year.",
		"",
		"Remote work requires manager approval.",
	}}
	in := NewIngestor(nil, primary, nil, testRetrieval)

	res, err := in.Ingest(context.Background(), "/tmp/policy.pdf", "policy.pdf")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status())
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, StatusSkipped, stage(t, res, StageOCR).Status)

	require.NotEmpty(t, res.Chunks)
	pagesSeen := map[int]bool{}
	for _, c := range res.Chunks {
		assert.Equal(t, "policy.pdf", c.SourceID)
		assert.NotEmpty(t, c.ID)
		assert.LessOrEqual(t, len([]rune(c.Text)), 40)
		pagesSeen[c.PageNumber] = true
	}
	assert.True(t, pagesSeen[1])
	assert.False(t, pagesSeen[2])
	assert.True(t, pagesSeen[3])
}

func TestIngestFallsBackWhenPrimaryFindsNoText(t *testing.T) {
	primary := &fakeExtractor{pages: []string{"  ", ""}}
	fallback := &fakeExtractor{pages: []string{"scanned text recovered by tika"}}
	in := NewIngestor(nil, primary, fallback, testRetrieval)

	res, err := in.Ingest(context.Background(), "/tmp/scan.pdf", "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, stage(t, res, StageExtract).Status)
	assert.Equal(t, StatusDegraded, res.Status())
	assert.Len(t, fallback.calls, 1)
	assert.Equal(t, "scanned text recovered by tika", res.Chunks[0].Text)
}

func TestIngestFallsBackWhenPrimaryFails(t *testing.T) {
	primary := &fakeExtractor{err: errors.New("malformed xref table")}
	fallback := &fakeExtractor{pages: []string{"recovered"}}
	in := NewIngestor(nil, primary, fallback, testRetrieval)

	res, err := in.Ingest(context.Background(), "/tmp/broken.pdf", "broken.pdf")
	require.NoError(t, err)
	rep := stage(t, res, StageExtract)
	assert.Equal(t, StatusDegraded, rep.Status)
	assert.Contains(t, rep.Detail, "malformed xref table")
}

func TestIngestEmptyDocument(t *testing.T) {
	in := NewIngestor(nil, &fakeExtractor{pages: []string{""}}, &fakeExtractor{err: errors.New("tika down")}, testRetrieval)

	res, err := in.Ingest(context.Background(), "/tmp/blank.pdf", "blank.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrEmptyDocument)

	var ingErr *model.IngestionError
	require.True(t, errors.As(err, &ingErr))
	assert.Equal(t, "blank.pdf", ingErr.SourceID)
	assert.Equal(t, "extract", ingErr.Stage)

	assert.Empty(t, res.Chunks)
	assert.Equal(t, StatusFailed, res.Status())
	assert.Contains(t, stage(t, res, StageExtract).Detail, "tika down")
}

func TestIngestOCRDegradesToOriginal(t *testing.T) {
	primary := &fakeExtractor{pages: []string{"text layer"}}
	in := NewIngestor(fakeNormalizer{err: errors.New("ocrmypdf: not found")}, primary, nil, testRetrieval)

	res, err := in.Ingest(context.Background(), "/tmp/a.pdf", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, stage(t, res, StageOCR).Status)
	assert.Equal(t, []string{"/tmp/a.pdf"}, primary.calls)
}

func TestIngestUsesOCROutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "a.ocr.pdf")
	require.NoError(t, os.WriteFile(out, []byte("%PDF"), 0o600))
	primary := &fakeExtractor{pages: []string{"ocr text"}}
	in := NewIngestor(fakeNormalizer{out: out}, primary, nil, testRetrieval)

	res, err := in.Ingest(context.Background(), filepath.Join(dir, "a.pdf"), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, stage(t, res, StageOCR).Status)
	assert.Equal(t, []string{out}, primary.calls)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestIngestOCRSkipped(t *testing.T) {
	in := NewIngestor(fakeNormalizer{err: ocr.ErrSkipped}, &fakeExtractor{pages: []string{"notes"}}, nil, testRetrieval)
	res, err := in.Ingest(context.Background(), "/tmp/notes.txt", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, stage(t, res, StageOCR).Status)
}

func TestStructuredExtractorReadsPlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faq.md")
	require.NoError(t, os.WriteFile(path, []byte("# FAQ\nAnswers."), 0o600))

	pages, err := StructuredExtractor{}.ExtractPages(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.True(t, strings.HasPrefix(pages[0], "# FAQ"))
}
