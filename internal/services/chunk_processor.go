package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/providers"
)

// Per-chunk progress checkpoints.
const (
	progressSubmitted            = 0.1
	progressAccessReference      = 0.3
	progressRecognitionRequested = 0.5
	progressRecognized           = 0.8
	progressPersisted            = 1.0
)

// ChunkProcessor drives one chunk through a provider and persists its normalized output.
type ChunkProcessor struct {
	provider providers.Provider
	outDir   string
	emit     Emitter
}

func NewChunkProcessor(provider providers.Provider, outDir string, emit Emitter) *ChunkProcessor {
	return &ChunkProcessor{provider: provider, outDir: outDir, emit: emit}
}

// ProcessChunk recognizes the chunk, normalizes the pages using the chunk's
// page offset and returns the path of the written partial result.
func (c *ChunkProcessor) ProcessChunk(ctx context.Context, chunk models.Chunk) (string, error) {
	logCtx := slog.With("provider", c.provider.ID(), "chunk", chunk.Index, "offset", chunk.Offset, "file", filepath.Base(chunk.Path))
	progress := &chunkProgress{emit: c.emit}

	progress.set(progressSubmitted)
	stepCtx := providers.WithStepObserver(ctx, func(step providers.Step) {
		logCtx.Debug("Provider checkpoint.", "step", step.String())
		switch step {
		case providers.StepAccessReference:
			progress.set(progressAccessReference)
		case providers.StepRecognitionRequested:
			progress.set(progressRecognitionRequested)
		}
	})

	result, err := c.provider.ProcessFile(stepCtx, chunk.Path)
	if err != nil {
		logCtx.Error("Recognition failed.", "error", err)
		if models.KindOf(err) == "" {
			err = models.RemoteServiceError(fmt.Sprintf("%s recognition failed for chunk %d", c.provider.Name(), chunk.Index+1), err)
		}
		return "", err
	}
	// Headings are numbered from the chunk offset, so a provider that drops or
	// invents pages would corrupt the numbering of every later chunk.
	if chunk.PageCount > 0 && len(result.Pages) != chunk.PageCount {
		logCtx.Error("Provider returned a different number of pages.", "want", chunk.PageCount, "got", len(result.Pages))
		return "", models.RemoteServiceError(fmt.Sprintf("%s returned %d pages for chunk %d, which has %d", c.provider.Name(), len(result.Pages), chunk.Index+1, chunk.PageCount), nil)
	}
	progress.set(progressRecognized)

	markdown, err := Normalize(c.outDir, chunk.Offset, result.Pages)
	if err != nil {
		return "", err
	}
	partial, err := WritePartial(c.outDir, chunk.Offset, markdown)
	if err != nil {
		return "", err
	}
	progress.set(progressPersisted)

	logCtx.Info("Chunk processed.", "pages", len(result.Pages), "partial", filepath.Base(partial))
	return partial, nil
}
