package pdftext

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPagesRejectsNonPDF(t *testing.T) {
	_, err := ExtractPages("notes.docx")
	assert.ErrorIs(t, err, ErrNotPDF)
}

func TestExtractPagesReportsCorruptFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o644))

	pages, err := ExtractPages(path)
	assert.Error(t, err)
	assert.Nil(t, pages)
}
