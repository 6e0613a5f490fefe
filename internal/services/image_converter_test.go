package services

import (
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImageFile(t *testing.T) {
	for _, p := range []string{"a.jpg", "b.JPEG", "c.png", "d.bmp", "e.tif", "f.TIFF", "g.webp"} {
		assert.True(t, IsImageFile(p), p)
	}
	for _, p := range []string{"a.pdf", "b.txt", "noext"} {
		assert.False(t, IsImageFile(p), p)
	}
}

func TestConvertImageToPDF(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.png")
	writeNoisePNG(t, src, 32, 7)

	dst := filepath.Join(dir, "converted.pdf")
	require.NoError(t, ConvertImageToPDF(src, dst))

	n, err := api.PageCountFile(dst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIsSupportedFile(t *testing.T) {
	for _, p := range []string{"a.pdf", "b.PDF", "c.jpg", "d.webp"} {
		assert.True(t, IsSupportedFile(p), p)
	}
	for _, p := range []string{"a.txt", "b.docx", "noext"} {
		assert.False(t, IsSupportedFile(p), p)
	}
}
