package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/ocrflow/internal/config"
	"github.com/Lllllllleong/ocrflow/internal/gcp"
	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/providers"
)

// OCRFunction runs the pipeline for documents dropped into a bucket and
// publishes the results to the output bucket.
type OCRFunction struct {
	storageClient    *storage.Client
	firestoreClient  *firestore.Client
	executionsClient *executions.Client
	provider         providers.Provider
	config           *config.Config
}

// NewOCRFunction creates every client the function needs. Called once per instance.
func NewOCRFunction(ctx context.Context) (*OCRFunction, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	if cfg.GCP.ProjectID == "" {
		return nil, models.ConfigurationError("PROJECT_ID environment variable must be set", nil)
	}
	if cfg.GCP.OutputBucket == "" {
		return nil, models.ConfigurationError("OUTPUT_BUCKET environment variable must be set", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := providers.DefaultRegistry().Resolve(ctx, cfg.Provider, cfg.ProviderOptions())
	if err != nil {
		return nil, err
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.GCP.ProjectID)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	f := &OCRFunction{
		storageClient:   storageClient,
		firestoreClient: firestoreClient,
		provider:        provider,
		config:          cfg,
	}
	if cfg.GCP.WorkflowID != "" {
		f.executionsClient, err = executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
	}
	slog.Info("OCR function initialized.", "provider", provider.ID(), "outputBucket", cfg.GCP.OutputBucket, "workflow", cfg.GCP.WorkflowID)
	return f, nil
}

// Process handles one uploaded object and returns the published result. A nil
// result with a nil error means the object was skipped.
func (f *OCRFunction) Process(ctx context.Context, e models.GCSEvent) (*models.OCRCompletedPayload, error) {
	logCtx := slog.With("bucket", e.Bucket, "object", e.Name)
	name := path.Base(e.Name)
	if !IsSupportedFile(name) {
		logCtx.Info("Ignoring object with unsupported extension.")
		return nil, nil
	}

	tempDir, err := os.MkdirTemp("", "ocr-function-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, name)
	if err := gcp.DownloadObject(ctx, f.storageClient, e.Bucket, e.Name, sourcePath); err != nil {
		return nil, models.RemoteServiceError("failed to download source object", err)
	}

	fileHash, err := gcp.CalculateFileHash(sourcePath)
	if err != nil {
		return nil, models.FilesystemError("failed to calculate file hash", err)
	}
	tracker := gcp.NewFirestoreTracker(f.firestoreClient, f.config.GCP.Collection, f.provider.ID())
	if jobID, err := tracker.FindCompleted(ctx, fileHash); err != nil {
		return nil, models.RemoteServiceError("failed to check for duplicates", err)
	} else if jobID != "" {
		logCtx.Info("Duplicate file detected. Skipping.", "fileHash", fileHash, "jobId", jobID)
		return nil, nil
	}

	jobs := &jobCapture{StatusTracker: tracker}
	pipeline := NewPipeline(PipelineConfig{
		OutputDir:      filepath.Join(tempDir, "out"),
		DirPrefix:      f.config.DirPrefix,
		ChunkThreshold: f.config.ChunkThresholdBytes(),
	}, f.provider, WithTracker(jobs))

	outDir, err := pipeline.ProcessDocument(ctx, sourcePath, func(ev Event) {
		if ev.Type == EventStatus {
			logCtx.Info(ev.Message)
		}
	})
	if err != nil {
		return nil, err
	}

	prefix := path.Join(fileHash, filepath.Base(outDir))
	objects, err := gcp.UploadDir(ctx, f.storageClient.Bucket(f.config.GCP.OutputBucket), outDir, prefix)
	if err != nil {
		return nil, f.fail(ctx, tracker, jobs.id, models.RemoteServiceError("failed to publish results", err))
	}
	logCtx.Info("Results published.", "jobId", jobs.id, "objects", len(objects), "prefix", prefix)

	payload := &models.OCRCompletedPayload{
		JobID:      jobs.id,
		SourceURI:  fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name),
		OutputURI:  fmt.Sprintf("gs://%s/%s", f.config.GCP.OutputBucket, prefix),
		ResultFile: path.Join(prefix, resultFileName(outDir)),
		Objects:    objects,
	}
	if f.executionsClient == nil {
		return payload, nil
	}
	execName, err := gcp.TriggerWorkflow(ctx, f.executionsClient, f.config.GCP.ProjectID, f.config.GCP.WorkflowLocation, f.config.GCP.WorkflowID, payload)
	if err != nil {
		return nil, f.fail(ctx, tracker, jobs.id, models.RemoteServiceError("failed to trigger workflow", err))
	}
	logCtx.Info("Hand-off to workflow complete.", "jobId", jobs.id, "execution", execName)
	return payload, nil
}

func (f *OCRFunction) fail(ctx context.Context, tracker StatusTracker, jobID string, err error) error {
	slog.Error("Failed after processing.", "jobId", jobID, "error", err)
	if terr := tracker.Transition(context.WithoutCancel(ctx), jobID, models.StatusFailed, map[string]any{"errorDetails": err.Error()}); terr != nil {
		slog.Error("CRITICAL: Failed to update job status to FAILED.", "jobId", jobID, "updateError", terr)
	}
	return err
}

// resultFileName is complete.md for chunked documents and the single partial otherwise.
func resultFileName(outDir string) string {
	if _, err := os.Stat(filepath.Join(outDir, CompleteFileName)); err == nil {
		return CompleteFileName
	}
	return PartialFileName(0)
}

// jobCapture remembers the job ID handed out by the wrapped tracker.
type jobCapture struct {
	StatusTracker
	id string
}

func (j *jobCapture) Begin(ctx context.Context, path string) (string, error) {
	id, err := j.StatusTracker.Begin(ctx, path)
	j.id = id
	return id, err
}
