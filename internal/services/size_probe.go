package services

import (
	"fmt"
	"os"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

// DefaultChunkThreshold keeps requests under typical remote request-size limits.
const DefaultChunkThreshold int64 = 45 * 1024 * 1024

// NeedsChunking reports whether a document of size bytes must be split.
func NeedsChunking(size, threshold int64) bool {
	return size > threshold
}

// ProbeFile returns the size of the file at path and whether it must be split.
func ProbeFile(path string, threshold int64) (int64, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false, models.FilesystemError(fmt.Sprintf("failed to stat %s", path), err)
	}
	return info.Size(), NeedsChunking(info.Size(), threshold), nil
}
