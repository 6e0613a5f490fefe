package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/providers"
)

const (
	defaultEventBuffer = 100

	// SuccessMessage accompanies the finished event.
	SuccessMessage = "All files processed successfully!"
)

// StatusTracker records per-document state transitions.
type StatusTracker interface {
	Begin(ctx context.Context, path string) (string, error)
	Transition(ctx context.Context, jobID, status string, fields map[string]any) error
}

type nopTracker struct{}

func (nopTracker) Begin(context.Context, string) (string, error) { return "", nil }
func (nopTracker) Transition(context.Context, string, string, map[string]any) error {
	return nil
}

// PipelineConfig holds the settings of one pipeline.
type PipelineConfig struct {
	OutputDir      string
	DirPrefix      string
	ChunkThreshold int64
	EventBuffer    int
}

// Pipeline processes a queue of documents one at a time, stopping at the first failure.
type Pipeline struct {
	config   PipelineConfig
	provider providers.Provider
	splitter *PDFSplitter
	tracker  StatusTracker
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTracker records state transitions through t.
func WithTracker(t StatusTracker) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracker = t
		}
	}
}

func NewPipeline(config PipelineConfig, provider providers.Provider, opts ...Option) *Pipeline {
	if config.ChunkThreshold <= 0 {
		config.ChunkThreshold = DefaultChunkThreshold
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = defaultEventBuffer
	}
	p := &Pipeline{
		config:   config,
		provider: provider,
		splitter: NewPDFSplitter(),
		tracker:  nopTracker{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes paths on a single background goroutine and streams progress
// on the returned channel. The stream ends with exactly one finished or
// failed event, after which the channel is closed. Callers must drain the
// channel until it is closed; once ctx is done only the terminal event is sent.
func (p *Pipeline) Run(ctx context.Context, paths []string) <-chan Event {
	events := make(chan Event, p.config.EventBuffer)

	go func() {
		defer close(events)
		emit := Emitter(func(e Event) {
			e.Timestamp = time.Now()
			if e.Terminal() {
				events <- e
				return
			}
			if ctx.Err() != nil {
				return
			}
			select {
			case events <- e:
			case <-ctx.Done():
			}
		})
		fail := func(err error) {
			emit(Event{Type: EventFailed, Message: fmt.Sprintf("Error: %v", err), Err: err})
		}

		queue := dedupe(paths)
		if err := p.checkOutputDirs(queue); err != nil {
			fail(err)
			return
		}

		outputs := make([]string, 0, len(queue))
		for i, path := range queue {
			emit.overall(float64(i) / float64(len(queue)))
			emit.status(fmt.Sprintf("Processing %s...", filepath.Base(path)))

			out, err := p.ProcessDocument(ctx, path, emit)
			if err != nil {
				fail(err)
				return
			}
			outputs = append(outputs, out)
			emit.chunk(1.0)
		}

		emit.overall(1.0)
		emit(Event{Type: EventFinished, Message: SuccessMessage, Outputs: outputs})
	}()

	return events
}

// ProcessDocument turns one input file into its output directory and returns
// the directory path. Temporary files are removed on every exit path.
func (p *Pipeline) ProcessDocument(ctx context.Context, path string, emit Emitter) (string, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	logCtx := slog.With("document", filepath.Base(path), "provider", p.provider.ID())
	logCtx.Info("Processing document.")

	jobID, err := p.tracker.Begin(ctx, path)
	if err != nil {
		logCtx.Error("Failed to create job record", "error", err)
		return "", models.RemoteServiceError("failed to create job record", err)
	}
	if jobID != "" {
		logCtx = logCtx.With("jobId", jobID)
	}

	workDir, err := os.MkdirTemp("", "ocrflow-doc-*")
	if err != nil {
		return "", p.handleError(ctx, logCtx, jobID, models.FilesystemError("failed to create temp dir", err))
	}
	defer os.RemoveAll(workDir)

	if !IsSupportedFile(path) {
		return "", p.handleError(ctx, logCtx, jobID, models.DocumentFormatError(fmt.Sprintf("unsupported file type %q (supported: %s)", filepath.Ext(path), strings.Join(SupportedExtensions(), ", ")), nil))
	}
	actualPath := path
	if IsImageFile(path) {
		p.transition(ctx, logCtx, jobID, models.StatusConverting, nil)
		emit.status("Converting image to PDF...")
		actualPath = filepath.Join(workDir, "converted.pdf")
		if err := ConvertImageToPDF(path, actualPath); err != nil {
			return "", p.handleError(ctx, logCtx, jobID, err)
		}
	}

	outDir := p.OutputDir(path)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", p.handleError(ctx, logCtx, jobID, models.FilesystemError(fmt.Sprintf("failed to create output directory %s", outDir), err))
	}
	if err := clearResults(outDir); err != nil {
		return "", p.handleError(ctx, logCtx, jobID, err)
	}

	p.transition(ctx, logCtx, jobID, models.StatusSizeChecking, nil)
	size, chunked, err := ProbeFile(actualPath, p.config.ChunkThreshold)
	if err != nil {
		return "", p.handleError(ctx, logCtx, jobID, err)
	}
	doc := &models.Document{Path: actualPath, Size: size}
	processor := NewChunkProcessor(p.provider, outDir, emit)

	if !chunked {
		p.transition(ctx, logCtx, jobID, models.StatusSingleShot, nil)
		doc.PageCount, err = p.splitter.PageCount(actualPath)
		if err != nil {
			return "", p.handleError(ctx, logCtx, jobID, err)
		}
		chunk := models.Chunk{Index: 0, Offset: 0, PageCount: doc.PageCount, Path: actualPath, Size: size}
		if _, err := processor.ProcessChunk(ctx, chunk); err != nil {
			return "", p.handleError(ctx, logCtx, jobID, err)
		}
		p.transition(ctx, logCtx, jobID, models.StatusDone, map[string]any{"outputDir": outDir, "chunkCount": 1, "pageCount": doc.PageCount})
		logCtx.Info("Document processed in a single request.", "outputDir", outDir)
		return outDir, nil
	}

	p.transition(ctx, logCtx, jobID, models.StatusChunking, nil)
	emit.status("Splitting large PDF...")
	split, err := p.splitter.Split(ctx, doc, p.config.ChunkThreshold)
	if err != nil {
		return "", p.handleError(ctx, logCtx, jobID, err)
	}
	defer func() {
		if err := split.Cleanup(); err != nil {
			logCtx.Warn("Failed to remove chunk files.", "error", err)
		}
	}()

	p.transition(ctx, logCtx, jobID, models.StatusProcessing, map[string]any{"pageCount": doc.PageCount, "chunkCount": len(split.Chunks)})
	partials := make([]string, 0, len(split.Chunks))
	for i, chunk := range split.Chunks {
		emit.status(fmt.Sprintf("Processing chunk %d/%d...", i+1, len(split.Chunks)))
		emit.chunk(0)
		partial, err := processor.ProcessChunk(ctx, chunk)
		if err != nil {
			return "", p.handleError(ctx, logCtx, jobID, err)
		}
		partials = append(partials, partial)
	}

	p.transition(ctx, logCtx, jobID, models.StatusMerging, nil)
	if _, err := Merge(outDir, partials); err != nil {
		return "", p.handleError(ctx, logCtx, jobID, err)
	}

	p.transition(ctx, logCtx, jobID, models.StatusDone, map[string]any{"outputDir": outDir})
	logCtx.Info("Document processed.", "chunks", len(split.Chunks), "pages", doc.PageCount, "outputDir", outDir)
	return outDir, nil
}

// OutputDir is the directory the results for path are written to.
func (p *Pipeline) OutputDir(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(p.config.OutputDir, p.config.DirPrefix+stem)
}

// checkOutputDirs fails when two queued documents would write to the same directory.
func (p *Pipeline) checkOutputDirs(queue []string) error {
	claimed := make(map[string]string, len(queue))
	for _, path := range queue {
		dir := p.OutputDir(path)
		if prev, ok := claimed[dir]; ok {
			return models.FilesystemError(fmt.Sprintf("%s and %s would both write to %s", prev, path, dir), nil)
		}
		claimed[dir] = path
	}
	return nil
}

// clearResults removes results left in outDir by an earlier run so they
// cannot be mistaken for this run's output.
func clearResults(outDir string) error {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return models.FilesystemError(fmt.Sprintf("failed to list %s", outDir), err)
	}
	for _, e := range entries {
		name := e.Name()
		stale := name == CompleteFileName || name == imagesDirName || partialPattern.MatchString(name)
		if !stale {
			continue
		}
		if err := os.RemoveAll(filepath.Join(outDir, name)); err != nil {
			return models.FilesystemError(fmt.Sprintf("failed to remove stale result %s", name), err)
		}
	}
	return nil
}

func (p *Pipeline) transition(ctx context.Context, logCtx *slog.Logger, jobID, status string, fields map[string]any) {
	logCtx.Debug("Document state changed.", "status", status)
	if err := p.tracker.Transition(ctx, jobID, status, fields); err != nil {
		logCtx.Warn("Failed to record status.", "status", status, "error", err)
	}
}

// handleError logs the failure, marks the job FAILED and returns err unchanged.
func (p *Pipeline) handleError(ctx context.Context, logCtx *slog.Logger, jobID string, err error) error {
	logCtx.Error("Document processing failed.", "kind", models.KindOf(err), "error", err)
	if terr := p.tracker.Transition(context.WithoutCancel(ctx), jobID, models.StatusFailed, map[string]any{"errorDetails": err.Error()}); terr != nil {
		logCtx.Error("CRITICAL: Failed to update job status to FAILED after a processing error.", "updateError", terr)
	}
	return err
}

// dedupe drops repeated paths, keeping the first occurrence.
func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		key := filepath.Clean(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
