package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// PageSeparator delimits pages in the OCR model's response.
const PageSeparator = "<<<PAGE>>>"

// --- OCR Model Prompts ---
const OCRSystemPrompt = "You are a document OCR engine. Your task is to transcribe scanned PDF pages into Markdown. Accuracy, detail, and information preservation are of utmost importance."
const OCRUserPrompt = `You will be provided with a PDF document.

Transcribe every page of the document into Markdown, following these rules:

Pages: Output the pages in document order. Separate consecutive pages with a line containing only ` + PageSeparator + `. Emit exactly one section per page, even when a page is blank.
Text: Transcribe all text content verbatim.
Lists: Keep list structure and numbering.
Tables: Render tables as Markdown tables.
Images: Do not describe images and do not emit image links.
Headers and Footers: Keep them only if they carry document content.

Return ONLY the Markdown. Do not add preambles and do not wrap the output in backtick fences.`

// VertexClient holds the pre-configured OCR model.
type VertexClient struct {
	OCRModel   *genai.GenerativeModel
	baseClient *genai.Client
}

// NewVertexClient creates a new client holding the OCR model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	ocrModel := baseClient.GenerativeModel(modelName)
	ocrModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(OCRSystemPrompt)},
	}
	ocrModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		OCRModel:   ocrModel,
		baseClient: baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
