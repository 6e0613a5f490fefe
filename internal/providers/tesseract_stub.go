//go:build !ocr

package providers

import "context"

// NewTesseract reports that local OCR was not compiled in.
// To enable it, rebuild with: go build -tags ocr
func NewTesseract(_ context.Context, _ Options) (Provider, error) {
	return nil, ErrTesseractNotEnabled
}
