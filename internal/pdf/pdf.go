// Package pdf counts, splits and reads the text of specification PDFs.
package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/tsawler/tabula"

	"github.com/jackzampolin/speclog/internal/chunk"
)

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF %s: %w", path, err)
	}
	defer f.Close()

	n, err := api.PageCount(f, newConfig())
	if err != nil {
		return 0, fmt.Errorf("failed to get page count for %s: %w", path, err)
	}
	return n, nil
}

// ChunkFileName returns the file name used for d's page range of src, e.g.
// "spec_chunk_01_pages_1-200.pdf".
func ChunkFileName(src string, d chunk.Descriptor) string {
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return fmt.Sprintf("%s_chunk_%02d_pages_%d-%d.pdf", stem, d.ID, d.StartPage, d.EndPage)
}

// Splitter writes page ranges of a source PDF to separate files.
type Splitter struct {
	outDir string
	logger *slog.Logger
}

// NewSplitter creates a splitter writing into outDir.
func NewSplitter(outDir string, logger *slog.Logger) *Splitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Splitter{outDir: outDir, logger: logger.With("component", "splitter")}
}

// Split writes d's pages of src to a new file and returns its path.
func (s *Splitter) Split(ctx context.Context, src string, d chunk.Descriptor) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if d.StartPage < 1 || d.EndPage < d.StartPage {
		return "", fmt.Errorf("invalid page range %d-%d for chunk %d", d.StartPage, d.EndPage, d.ID)
	}
	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create chunk directory: %w", err)
	}

	out := filepath.Join(s.outDir, ChunkFileName(src, d))
	pages := []string{fmt.Sprintf("%d-%d", d.StartPage, d.EndPage)}
	if err := api.TrimFile(src, out, pages, newConfig()); err != nil {
		return "", fmt.Errorf("failed to split pages %d-%d: %w", d.StartPage, d.EndPage, err)
	}

	s.logger.Debug("wrote chunk file",
		"chunk_id", d.ID,
		"pages", pages[0],
		"file", filepath.Base(out))
	return out, nil
}

// TextExtractor pulls plain text from chunk PDFs.
type TextExtractor struct {
	excludeHeadersFooters bool
	logger                *slog.Logger
}

// NewTextExtractor creates a text extractor. When excludeHeadersFooters is
// set, repeated page headers and footers are dropped.
func NewTextExtractor(excludeHeadersFooters bool, logger *slog.Logger) *TextExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextExtractor{
		excludeHeadersFooters: excludeHeadersFooters,
		logger:                logger.With("component", "text"),
	}
}

// ExtractText returns the text of the PDF at path.
func (t *TextExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := tabula.Open(path)
	if t.excludeHeadersFooters {
		ext = ext.ExcludeHeadersAndFooters()
	}
	text, warnings, err := ext.Text()
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", filepath.Base(path), err)
	}
	if len(warnings) > 0 {
		t.logger.Debug("text extraction warnings",
			"file", filepath.Base(path),
			"count", len(warnings))
	}
	return text, nil
}
