package services

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

const (
	imagesDirName = "images"
	partialPrefix = "part_"
	partialSuffix = ".md"
)

// ImageFileName names an extracted image so it stays unique across chunks
// even when providers reuse identifiers per page.
func ImageFileName(offset, localPage int, imageID string) string {
	return fmt.Sprintf("%d_%d_%s.png", offset, localPage, imageID)
}

// PartialFileName is the per-chunk Markdown file for a chunk starting at offset.
func PartialFileName(offset int) string {
	return fmt.Sprintf("%s%d%s", partialPrefix, offset, partialSuffix)
}

// Normalize renders one chunk's pages as Markdown with global page headings,
// writing every image that carries a payload into outDir/images and pointing
// its placeholder at the written file. Images without a payload are skipped
// and their placeholders left as-is.
func Normalize(outDir string, offset int, pages []models.OcrPage) (string, error) {
	imagesDir := filepath.Join(outDir, imagesDirName)
	sections := make([]string, 0, len(pages))

	for i, page := range pages {
		md := page.Markdown
		for _, img := range page.Images {
			if img.Base64 == "" {
				continue
			}
			if !validImageID(img.ID) {
				return "", models.DocumentFormatError(fmt.Sprintf("image on page %d has an unusable id %q", offset+i+1, img.ID), nil)
			}
			data, err := base64.StdEncoding.DecodeString(img.Base64)
			if err != nil {
				return "", models.DocumentFormatError(fmt.Sprintf("image %s on page %d has an invalid payload", img.ID, offset+i+1), err)
			}
			if err := os.MkdirAll(imagesDir, 0o755); err != nil {
				return "", models.FilesystemError("failed to create images directory", err)
			}
			name := ImageFileName(offset, i, img.ID)
			if err := os.WriteFile(filepath.Join(imagesDir, name), data, 0o644); err != nil {
				return "", models.FilesystemError(fmt.Sprintf("failed to write image %s", name), err)
			}

			target := fmt.Sprintf("![%s](%s/%s)", img.ID, imagesDirName, name)
			md = strings.ReplaceAll(md, fmt.Sprintf("![%s](%s)", img.ID, img.ID), target)
			md = strings.ReplaceAll(md, fmt.Sprintf("![%s](/%s)", img.ID, img.ID), target)
		}
		sections = append(sections, fmt.Sprintf("## Page %d\n\n%s", offset+i+1, md))
	}
	return strings.Join(sections, "\n\n"), nil
}

// validImageID reports whether id can be used as part of a file name inside
// the images directory.
func validImageID(id string) bool {
	return id != "" && id != "." && !strings.Contains(id, "..") && !strings.ContainsAny(id, `/\`)
}

// WritePartial persists a chunk's normalized Markdown and returns its path.
func WritePartial(outDir string, offset int, markdown string) (string, error) {
	path := filepath.Join(outDir, PartialFileName(offset))
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		return "", models.FilesystemError(fmt.Sprintf("failed to write %s", filepath.Base(path)), err)
	}
	return path, nil
}
