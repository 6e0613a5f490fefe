package models

import "time"

// Document is one queued input file. PageCount is only known once the
// file has been loaded as a PDF.
type Document struct {
	Path      string
	Size      int64
	PageCount int
}

// Chunk is a contiguous page range of a Document materialized as its own PDF.
// Offset is the sum of the page counts of all prior chunks of the same Document.
type Chunk struct {
	Index     int
	Offset    int
	PageCount int
	Path      string
	Size      int64
}

// OcrImage is an embedded image reported by a provider. The ID is only
// unique within its page. An empty Base64 means the payload was not returned.
type OcrImage struct {
	ID     string
	Base64 string
}

// OcrPage is the recognition output for one page. Index is local to the chunk.
type OcrPage struct {
	Index    int
	Markdown string
	Images   []OcrImage
}

// OcrResult is the ordered page sequence returned by a provider.
type OcrResult struct {
	Pages []OcrPage
}

// JobRecord tracks the processing state of a Document in Firestore.
type JobRecord struct {
	FileHash         string    `firestore:"fileHash,omitempty"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	Provider         string    `firestore:"provider,omitempty"`
	Status           string    `firestore:"status,omitempty"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty"`
	ChunkCount       int       `firestore:"chunkCount,omitempty"`
	OutputDir        string    `firestore:"outputDir,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
	UpdatedAt        time.Time `firestore:"updatedAt,omitempty"`
}

// Document processing states.
const (
	StatusQueued       = "QUEUED"
	StatusConverting   = "CONVERTING"
	StatusSizeChecking = "SIZE_CHECKING"
	StatusSingleShot   = "SINGLE_SHOT"
	StatusChunking     = "CHUNKING"
	StatusProcessing   = "PROCESSING"
	StatusMerging      = "MERGING"
	StatusDone         = "DONE"
	StatusFailed       = "FAILED"
)
