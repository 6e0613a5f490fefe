package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	api.DisableConfigDir()
	os.Exit(m.Run())
}

// writeNoisePNG writes a size x size PNG of random pixels, which does not
// compress, so every page of a generated PDF has a predictable weight.
func writeNoisePNG(t *testing.T, path string, size int, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// writeTestPDF builds a PDF with one noise image per page and returns its path.
func writeTestPDF(t *testing.T, dir, name string, pages int) string {
	t.Helper()
	imgDir := t.TempDir()
	images := make([]string, 0, pages)
	for i := 0; i < pages; i++ {
		p := filepath.Join(imgDir, fmt.Sprintf("page_%03d.png", i))
		writeNoisePNG(t, p, 64, int64(i+1))
		images = append(images, p)
	}
	out := filepath.Join(dir, name)
	require.NoError(t, api.ImportImagesFile(images, out, pdfcpu.DefaultImportConfig(), nil))
	return out
}

// fakeProvider returns one page per page of the submitted PDF. Each page's
// Markdown names the call and local page so tests can trace where it came from.
type fakeProvider struct {
	mu         sync.Mutex
	calls      []string
	failOn     int // 1-based call number that fails; 0 never fails
	imagesOn   bool
	extraPages int // pages returned beyond the submitted PDF's page count
}

func (f *fakeProvider) ID() string   { return "fake" }
func (f *fakeProvider) Name() string { return "Fake OCR" }

func (f *fakeProvider) ProcessFile(ctx context.Context, path string) (*models.OcrResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	call := len(f.calls)
	f.mu.Unlock()

	if f.failOn == call {
		return nil, errors.New("service unavailable")
	}

	n, err := api.PageCountFile(path)
	if err != nil {
		return nil, err
	}
	res := &models.OcrResult{}
	for i := 0; i < n+f.extraPages; i++ {
		page := models.OcrPage{Index: i, Markdown: fmt.Sprintf("call %d local page %d", call, i)}
		if f.imagesOn {
			page.Markdown += "\n\n![img-1](img-1)"
			page.Images = []models.OcrImage{{ID: "img-1", Base64: "aGVsbG8="}}
		}
		res.Pages = append(res.Pages, page)
	}
	return res, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeProvider) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// writeEmptyPDF writes a structurally valid PDF whose page tree has no pages.
func writeEmptyPDF(t *testing.T, dir, name string) string {
	t.Helper()
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [] /Count 0 >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	out := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(out, buf.Bytes(), 0o644))
	return out
}
