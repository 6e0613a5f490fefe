package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// SplitResult owns the temporary directory holding a document's chunks.
type SplitResult struct {
	Dir    string
	Chunks []models.Chunk
}

// Cleanup removes every chunk file. Safe to call more than once.
func (r *SplitResult) Cleanup() error {
	if r == nil || r.Dir == "" {
		return nil
	}
	err := os.RemoveAll(r.Dir)
	r.Dir = ""
	return err
}

// PDFSplitter splits oversized PDFs into chunks that each fit under a byte threshold.
type PDFSplitter struct {
	conf *model.Configuration
}

func NewPDFSplitter() *PDFSplitter {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return &PDFSplitter{conf: cfg}
}

// PageCount loads the PDF at path and returns its number of pages.
func (s *PDFSplitter) PageCount(path string) (int, error) {
	if err := api.ValidateFile(path, s.conf); err != nil {
		return 0, models.DocumentFormatError(fmt.Sprintf("failed to load %s", filepath.Base(path)), err)
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, models.DocumentFormatError(fmt.Sprintf("failed to count pages of %s", filepath.Base(path)), err)
	}
	if err := requirePages(path, n); err != nil {
		return 0, err
	}
	return n, nil
}

// requirePages rejects documents without a single page.
func requirePages(path string, n int) error {
	if n <= 0 {
		return models.DocumentFormatError(filepath.Base(path), models.ErrEmptyDocument)
	}
	return nil
}

// Split cuts doc into ordered chunks covering every page exactly once. Pages
// are accumulated greedily until the next one would push the chunk over
// threshold. A page that alone exceeds threshold becomes its own chunk.
//
// The chunks live in a fresh temp dir; the caller must call Cleanup on the
// result, which is also done here on failure.
func (s *PDFSplitter) Split(ctx context.Context, doc *models.Document, threshold int64) (res *SplitResult, err error) {
	logCtx := slog.With("document", filepath.Base(doc.Path), "threshold", threshold)

	pageCount, err := s.PageCount(doc.Path)
	if err != nil {
		return nil, err
	}
	doc.PageCount = pageCount

	tempDir, err := os.MkdirTemp("", "ocrflow-chunks-*")
	if err != nil {
		return nil, models.FilesystemError("failed to create temp dir", err)
	}
	res = &SplitResult{Dir: tempDir}
	defer func() {
		if err != nil {
			_ = res.Cleanup()
			res = nil
		}
	}()
	logCtx.Debug("Created temp directory.", "path", tempDir)

	pageSizes, err := s.measurePages(doc.Path, filepath.Join(tempDir, "pages"), pageCount)
	if err != nil {
		return nil, err
	}

	offset := 0
	for start := 1; start <= pageCount; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start
		acc := pageSizes[start]
		for end < pageCount && acc+pageSizes[end+1] <= threshold {
			end++
			acc += pageSizes[end]
		}

		chunkPath := filepath.Join(tempDir, fmt.Sprintf("chunk_%04d.pdf", len(res.Chunks)))
		size, err := s.writeRange(doc.Path, chunkPath, start, end)
		if err != nil {
			return nil, err
		}
		// Per-page sizes are only an estimate; shared resources can make a
		// materialized range larger than the sum suggests.
		for size > threshold && end > start {
			end--
			if size, err = s.writeRange(doc.Path, chunkPath, start, end); err != nil {
				return nil, err
			}
		}
		if size > threshold {
			logCtx.Warn("Single page exceeds chunk threshold; emitting it as its own chunk.", "page", start, "size", size)
		}

		// Count pages from the written chunk rather than trusting the range.
		pc, err := api.PageCountFile(chunkPath)
		if err != nil {
			return nil, models.DocumentFormatError(fmt.Sprintf("failed to reload chunk %d", len(res.Chunks)), err)
		}

		res.Chunks = append(res.Chunks, models.Chunk{
			Index:     len(res.Chunks),
			Offset:    offset,
			PageCount: pc,
			Path:      chunkPath,
			Size:      size,
		})
		logCtx.Info("Chunk written.", "chunk", len(res.Chunks)-1, "pages", fmt.Sprintf("%d-%d", start, end), "offset", offset, "size", size)

		offset += pc
		start = end + 1
	}

	if err := os.RemoveAll(filepath.Join(tempDir, "pages")); err != nil {
		logCtx.Warn("Failed to remove per-page split files.", "error", err)
	}
	return res, nil
}

// measurePages splits the source into single-page files and returns their
// sizes indexed by 1-based page number.
func (s *PDFSplitter) measurePages(src, dir string, pageCount int) ([]int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, models.FilesystemError("failed to create page split dir", err)
	}
	if err := api.SplitFile(src, dir, 1, s.conf); err != nil {
		return nil, models.DocumentFormatError("failed to split PDF into pages", err)
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	sizes := make([]int64, pageCount+1)
	for i := 1; i <= pageCount; i++ {
		info, err := os.Stat(filepath.Join(dir, fmt.Sprintf("%s_%d.pdf", base, i)))
		if err != nil {
			return nil, models.FilesystemError(fmt.Sprintf("missing split file for page %d", i), err)
		}
		sizes[i] = info.Size()
	}
	return sizes, nil
}

// writeRange writes pages start..end (1-based, inclusive) of src to dst and returns its size.
func (s *PDFSplitter) writeRange(src, dst string, start, end int) (int64, error) {
	selection := fmt.Sprintf("%d-%d", start, end)
	if start == end {
		selection = fmt.Sprintf("%d", start)
	}
	if err := api.TrimFile(src, dst, []string{selection}, s.conf); err != nil {
		return 0, models.DocumentFormatError(fmt.Sprintf("failed to extract pages %s", selection), err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		return 0, models.FilesystemError(fmt.Sprintf("failed to stat chunk %s", dst), err)
	}
	return info.Size(), nil
}
