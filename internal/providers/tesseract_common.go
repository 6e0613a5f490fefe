package providers

import "errors"

const TesseractID = "tesseract"

// ErrTesseractNotEnabled is returned when the binary was built without the "ocr" tag.
var ErrTesseractNotEnabled = errors.New("tesseract support not enabled; rebuild with -tags ocr")
