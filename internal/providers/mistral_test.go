package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMistralServer(t *testing.T, ocrStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "ocr", r.FormValue("purpose"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "chunk.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-fake", string(body))
		_, _ = w.Write([]byte(`{"id":"file-123"}`))
	})
	mux.HandleFunc("/files/file-123/url", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"url":"https://signed.example/file-123"}`))
	})
	mux.HandleFunc("/ocr", func(w http.ResponseWriter, r *http.Request) {
		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral-ocr-latest", req.Model)
		assert.Equal(t, "document_url", req.Document.Type)
		assert.Equal(t, "https://signed.example/file-123", req.Document.DocumentURL)
		assert.True(t, req.IncludeImageBase64)

		if ocrStatus != http.StatusOK {
			http.Error(w, `{"message":"quota exceeded"}`, ocrStatus)
			return
		}
		_, _ = w.Write([]byte(`{
			"pages": [
				{"index": 0, "markdown": "hello ![img-0.jpeg](img-0.jpeg)", "images": [
					{"id": "img-0.jpeg", "image_base64": "data:image/jpeg;base64,AAEC"},
					{"id": "img-1.jpeg", "image_base64": null}
				]},
				{"index": 1, "markdown": "world", "images": []}
			],
			"model": "mistral-ocr-latest",
			"usage_info": {}
		}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeFakePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-fake"), 0o644))
	return path
}

func TestMistral_ProcessFile(t *testing.T) {
	srv := newMistralServer(t, http.StatusOK)
	p, err := NewMistral(context.Background(), Options{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	var steps []Step
	ctx := WithStepObserver(context.Background(), func(s Step) { steps = append(steps, s) })

	res, err := p.ProcessFile(ctx, writeFakePDF(t))
	require.NoError(t, err)

	require.Len(t, res.Pages, 2)
	assert.Equal(t, 0, res.Pages[0].Index)
	assert.Equal(t, "hello ![img-0.jpeg](img-0.jpeg)", res.Pages[0].Markdown)
	assert.Equal(t, []models.OcrImage{
		{ID: "img-0.jpeg", Base64: "AAEC"},
		{ID: "img-1.jpeg", Base64: ""},
	}, res.Pages[0].Images)
	assert.Equal(t, 1, res.Pages[1].Index)
	assert.Equal(t, []Step{StepAccessReference, StepRecognitionRequested}, steps)
}

func TestMistral_RemoteFailure(t *testing.T) {
	srv := newMistralServer(t, http.StatusTooManyRequests)
	p, err := NewMistral(context.Background(), Options{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.ProcessFile(context.Background(), writeFakePDF(t))
	require.Error(t, err)
	assert.Equal(t, models.KindRemoteService, models.KindOf(err))
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestMistral_AccessReferenceReportedAfterUpload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"file-123"}`))
	})
	mux.HandleFunc("/files/file-123/url", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := NewMistral(context.Background(), Options{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	var steps []Step
	ctx := WithStepObserver(context.Background(), func(s Step) { steps = append(steps, s) })
	_, err = p.ProcessFile(ctx, writeFakePDF(t))
	require.Error(t, err)
	assert.Equal(t, models.KindRemoteService, models.KindOf(err))
	assert.Equal(t, []Step{StepAccessReference}, steps)
}
