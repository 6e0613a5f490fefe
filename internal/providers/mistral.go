package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

const (
	MistralID = "mistral"

	defaultMistralBaseURL = "https://api.mistral.ai/v1"
	defaultMistralModel   = "mistral-ocr-latest"
)

type mistralFile struct {
	ID string `json:"id"`
}

type mistralSignedURL struct {
	URL string `json:"url"`
}

type mistralImage struct {
	ID          string  `json:"id"`
	ImageBase64 *string `json:"image_base64"`
}

type mistralPage struct {
	Index    int            `json:"index"`
	Markdown string         `json:"markdown"`
	Images   []mistralImage `json:"images"`
}

type mistralResponse struct {
	Pages []mistralPage `json:"pages"`
}

type mistralDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type mistralOCRRequest struct {
	Model              string          `json:"model"`
	Document           mistralDocument `json:"document"`
	IncludeImageBase64 bool            `json:"include_image_base64"`
}

// Mistral talks to the Mistral OCR API: upload, signed URL, then OCR.
type Mistral struct {
	client  *http.Client
	baseURL string
	model   string
	apiKey  string
}

// NewMistral builds the Mistral provider. An API key is required.
func NewMistral(_ context.Context, opts Options) (Provider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("mistral requires an API key (set MISTRAL_API_KEY)")
	}
	p := &Mistral{
		client:  opts.HTTPClient,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		model:   opts.Model,
		apiKey:  opts.APIKey,
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 10 * time.Minute}
	}
	if p.baseURL == "" {
		p.baseURL = defaultMistralBaseURL
	}
	if p.model == "" {
		p.model = defaultMistralModel
	}
	return p, nil
}

func (p *Mistral) ID() string   { return MistralID }
func (p *Mistral) Name() string { return "Mistral AI" }

// ProcessFile uploads the file, obtains a signed URL for it and runs OCR on that URL.
func (p *Mistral) ProcessFile(ctx context.Context, path string) (*models.OcrResult, error) {
	logCtx := slog.With("provider", MistralID, "file", filepath.Base(path))

	fileID, err := p.upload(ctx, path)
	if err != nil {
		return nil, err
	}
	logCtx.Debug("File uploaded.", "fileId", fileID)
	ReportStep(ctx, StepAccessReference)

	url, err := p.signedURL(ctx, fileID)
	if err != nil {
		return nil, err
	}
	ReportStep(ctx, StepRecognitionRequested)
	resp, err := p.ocr(ctx, url)
	if err != nil {
		return nil, err
	}
	logCtx.Debug("OCR complete.", "pages", len(resp.Pages))

	result := &models.OcrResult{Pages: make([]models.OcrPage, 0, len(resp.Pages))}
	for i, page := range resp.Pages {
		images := make([]models.OcrImage, 0, len(page.Images))
		for _, img := range page.Images {
			var payload string
			if img.ImageBase64 != nil {
				payload = StripDataURI(*img.ImageBase64)
			}
			images = append(images, models.OcrImage{ID: img.ID, Base64: payload})
		}
		// Pages are indexed by position so local indices stay dense even if
		// the service numbers them differently.
		result.Pages = append(result.Pages, models.OcrPage{
			Index:    i,
			Markdown: page.Markdown,
			Images:   images,
		})
	}
	return result, nil
}

func (p *Mistral) upload(ctx context.Context, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", models.FilesystemError(fmt.Sprintf("failed to read %s for upload", path), err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to create multipart file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("failed to write multipart file part: %w", err)
	}
	if err := form.WriteField("purpose", "ocr"); err != nil {
		return "", fmt.Errorf("failed to write multipart purpose field: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/files", &body)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var file mistralFile
	if err := p.do(req, "upload", &file); err != nil {
		return "", err
	}
	if file.ID == "" {
		return "", models.RemoteServiceError("mistral upload failed", errors.New("response carried no file id"))
	}
	return file.ID, nil
}

func (p *Mistral) signedURL(ctx context.Context, fileID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/files/%s/url", p.baseURL, fileID), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build signed URL request: %w", err)
	}
	var signed mistralSignedURL
	if err := p.do(req, "signed URL", &signed); err != nil {
		return "", err
	}
	return signed.URL, nil
}

func (p *Mistral) ocr(ctx context.Context, documentURL string) (*mistralResponse, error) {
	payload, err := json.Marshal(mistralOCRRequest{
		Model:              p.model,
		Document:           mistralDocument{Type: "document_url", DocumentURL: documentURL},
		IncludeImageBase64: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OCR request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/ocr", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp mistralResponse
	if err := p.do(req, "OCR", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends an authenticated request and decodes a JSON response into out.
func (p *Mistral) do(req *http.Request, step string, out any) error {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return models.RemoteServiceError(fmt.Sprintf("mistral %s request failed", step), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.RemoteServiceError(fmt.Sprintf("mistral %s response could not be read", step), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.RemoteServiceError(
			fmt.Sprintf("mistral %s failed with status %d", step, resp.StatusCode),
			errors.New(strings.TrimSpace(string(body))),
		)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return models.RemoteServiceError(fmt.Sprintf("mistral %s response could not be decoded", step), err)
	}
	return nil
}
