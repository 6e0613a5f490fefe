package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/ocrflow/internal/gcp"
	"github.com/Lllllllleong/ocrflow/internal/models"
)

const GeminiID = "gemini"

// Gemini stages each file in GCS and asks a Vertex AI Gemini model to
// transcribe it page by page. It never returns images.
type Gemini struct {
	storageClient *storage.Client
	vertexClient  *gcp.VertexClient
	bucket        string
}

// NewGemini builds the Vertex AI provider. Project, region and staging bucket are required.
func NewGemini(ctx context.Context, opts Options) (Provider, error) {
	if opts.StagingBucket == "" {
		return nil, errors.New("gemini requires a staging bucket (set GEMINI_STAGING_BUCKET)")
	}
	model := opts.Model
	if model == "" {
		model = "gemini-1.5-pro"
	}

	vertexClient, err := gcp.NewVertexClient(ctx, opts.ProjectID, opts.Region, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		_ = vertexClient.Close()
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &Gemini{
		storageClient: storageClient,
		vertexClient:  vertexClient,
		bucket:        opts.StagingBucket,
	}, nil
}

func (p *Gemini) ID() string   { return GeminiID }
func (p *Gemini) Name() string { return "Google Gemini (Vertex AI)" }

// ProcessFile uploads the PDF to the staging bucket and transcribes it from its gs:// URI.
func (p *Gemini) ProcessFile(ctx context.Context, path string) (*models.OcrResult, error) {
	prefix := fmt.Sprintf("ocrflow-staging/%d/", time.Now().UnixNano())
	object := prefix + filepath.Base(path)
	logCtx := slog.With("provider", GeminiID, "gcsObject", object)

	bucket := p.storageClient.Bucket(p.bucket)
	if err := gcp.UploadFile(ctx, bucket, path, object, false); err != nil {
		return nil, models.RemoteServiceError("gemini staging upload failed", err)
	}
	defer func() {
		if err := gcp.DeletePrefix(context.WithoutCancel(ctx), bucket, prefix); err != nil {
			logCtx.Warn("Failed to remove staged file.", "error", err)
		}
	}()
	ReportStep(ctx, StepAccessReference)

	ReportStep(ctx, StepRecognitionRequested)
	filePart := genai.FileData{
		MIMEType: "application/pdf",
		FileURI:  fmt.Sprintf("gs://%s/%s", p.bucket, object),
	}
	resp, err := p.vertexClient.OCRModel.GenerateContent(ctx, filePart, genai.Text(gcp.OCRUserPrompt))
	if err != nil {
		return nil, models.RemoteServiceError("gemini recognition failed", err)
	}

	pages := SplitPages(extractText(resp))
	logCtx.Debug("Recognition complete.", "pages", len(pages))

	result := &models.OcrResult{Pages: make([]models.OcrPage, 0, len(pages))}
	for i, md := range pages {
		result.Pages = append(result.Pages, models.OcrPage{Index: i, Markdown: md})
	}
	return result, nil
}

func (p *Gemini) Close() error {
	var errs []error
	if err := p.vertexClient.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.storageClient.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

// SplitPages cuts a model transcript on the page separator and strips any
// Markdown fence the model wrapped around it.
func SplitPages(transcript string) []string {
	s := strings.TrimSpace(transcript)
	s = strings.TrimPrefix(s, "```markdown")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, gcp.PageSeparator)
	pages := make([]string, len(parts))
	for i, part := range parts {
		pages[i] = strings.TrimSpace(part)
	}
	// A separator after the last page is not another page.
	for len(pages) > 1 && pages[len(pages)-1] == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}
