package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var (
	ocrFunction *services.OCRFunction
	once        sync.Once
	initErr     error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	api.DisableConfigDir()

	// Storage finalize events trigger RecognizeDocument; workflows call HandleRecognize directly.
	functions.CloudEvent("RecognizeDocument", recognizeDocument)
	functions.HTTP("HandleRecognize", handleRecognize)
}

// main is required by the Go Functions Framework.
func main() {}

func initFunction() error {
	once.Do(func() {
		ocrFunction, initErr = services.NewOCRFunction(context.Background())
	})
	return initErr
}

// recognizeDocument is the CloudEvent entry point.
func recognizeDocument(ctx context.Context, e cloudevents.Event) error {
	if err := initFunction(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Errors are logged with context inside Process.
	_, err := ocrFunction.Process(ctx, gcsEvent)
	return err
}

// handleRecognize is the HTTP entry point. It answers with the published
// result, or 204 when the object was skipped.
func handleRecognize(w http.ResponseWriter, r *http.Request) {
	if err := initFunction(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.GCSEvent
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	if req.Bucket == "" || req.Name == "" {
		http.Error(w, "Bad Request: bucket and name are required", http.StatusBadRequest)
		return
	}

	res, err := ocrFunction.Process(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if models.KindOf(err) == models.KindDocumentFormat {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, fmt.Sprintf("processing failed: %v", err), status)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
