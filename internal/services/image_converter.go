package services

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// SupportedExtensions lists every input extension the pipeline accepts.
func SupportedExtensions() []string {
	return []string{".pdf", ".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp"}
}

// IsSupportedFile reports whether path has one of SupportedExtensions.
func IsSupportedFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions() {
		if e == ext {
			return true
		}
	}
	return false
}

// IsImageFile reports whether path is a raster image by its extension.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// ConvertImageToPDF wraps a raster image into a single-page PDF at dst.
// JPEG, PNG and TIFF are embedded as-is; BMP and WebP are re-encoded as PNG first.
func ConvertImageToPDF(src, dst string) error {
	input := src
	switch strings.ToLower(filepath.Ext(src)) {
	case ".bmp", ".webp":
		pngPath := strings.TrimSuffix(dst, filepath.Ext(dst)) + ".png"
		if err := reencodeAsPNG(src, pngPath); err != nil {
			return err
		}
		defer os.Remove(pngPath)
		input = pngPath
	}

	if err := api.ImportImagesFile([]string{input}, dst, pdfcpu.DefaultImportConfig(), nil); err != nil {
		return models.DocumentFormatError(fmt.Sprintf("failed to convert %s to PDF", filepath.Base(src)), err)
	}
	return nil
}

func reencodeAsPNG(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return models.FilesystemError(fmt.Sprintf("failed to open %s", src), err)
	}
	defer in.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(src)) {
	case ".bmp":
		img, err = bmp.Decode(in)
	default:
		img, err = webp.Decode(in)
	}
	if err != nil {
		return models.DocumentFormatError(fmt.Sprintf("failed to decode %s", filepath.Base(src)), err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return models.FilesystemError(fmt.Sprintf("failed to create %s", dst), err)
	}
	defer out.Close()
	if err := png.Encode(out, img); err != nil {
		return models.FilesystemError(fmt.Sprintf("failed to write %s", dst), err)
	}
	return nil
}
