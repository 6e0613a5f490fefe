//go:build ocr

package providers

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
)

// Tesseract renders each page with MuPDF and recognizes it with a local
// Tesseract engine. It requires Tesseract and its language data to be installed.
type Tesseract struct {
	mu       sync.Mutex
	client   *gosseract.Client
	language string
	dpi      float64
}

// NewTesseract creates the local provider. The client should be closed when no longer needed.
func NewTesseract(_ context.Context, opts Options) (Provider, error) {
	client := gosseract.NewClient()
	lang := opts.Language
	if lang == "" {
		lang = "eng"
	}
	// Multiple languages may be given as "eng+fra".
	if err := client.SetLanguage(strings.Split(lang, "+")...); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to set tesseract language %q: %w", lang, err)
	}
	dpi := opts.DPI
	if dpi <= 0 {
		dpi = 300
	}
	return &Tesseract{client: client, language: lang, dpi: dpi}, nil
}

func (p *Tesseract) ID() string   { return TesseractID }
func (p *Tesseract) Name() string { return "Tesseract (local)" }

func (p *Tesseract) ProcessFile(ctx context.Context, path string) (*models.OcrResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, err := fitz.New(path)
	if err != nil {
		return nil, models.DocumentFormatError(fmt.Sprintf("failed to open %s", filepath.Base(path)), err)
	}
	defer doc.Close()
	ReportStep(ctx, StepAccessReference)

	ReportStep(ctx, StepRecognitionRequested)
	result := &models.OcrResult{Pages: make([]models.OcrPage, 0, doc.NumPage())}
	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(n, p.dpi)
		if err != nil {
			return nil, models.DocumentFormatError(fmt.Sprintf("failed to render page %d", n+1), err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", n+1, err)
		}
		if err := p.client.SetImageFromBytes(buf.Bytes()); err != nil {
			return nil, models.RemoteServiceError(fmt.Sprintf("tesseract rejected page %d", n+1), err)
		}
		text, err := p.client.Text()
		if err != nil {
			return nil, models.RemoteServiceError(fmt.Sprintf("tesseract failed on page %d", n+1), err)
		}
		result.Pages = append(result.Pages, models.OcrPage{Index: n, Markdown: strings.TrimSpace(text)})
	}
	slog.Debug("Tesseract recognition complete.", "file", filepath.Base(path), "pages", len(result.Pages))
	return result, nil
}

// Close releases the Tesseract engine.
func (p *Tesseract) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
