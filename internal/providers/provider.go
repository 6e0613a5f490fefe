// Package providers defines the OCR capability the pipeline drives and the
// registry the active backend is resolved from.
package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

// Provider performs recognition on a single PDF and returns its pages in order.
// Implementations translate every remote failure into a single descriptive error.
type Provider interface {
	ID() string
	Name() string
	ProcessFile(ctx context.Context, path string) (*models.OcrResult, error)
}

// Step is a provider-internal checkpoint surfaced for progress reporting.
type Step int

const (
	// StepAccessReference means the document was submitted and the provider
	// holds a reference it can request recognition with.
	StepAccessReference Step = iota + 1
	// StepRecognitionRequested means the recognition call has been issued.
	StepRecognitionRequested
)

func (s Step) String() string {
	switch s {
	case StepAccessReference:
		return "access_reference"
	case StepRecognitionRequested:
		return "recognition_requested"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// StepObserver receives provider checkpoints.
type StepObserver func(Step)

type observerKey struct{}

// WithStepObserver returns a context whose provider checkpoints are delivered to fn.
func WithStepObserver(ctx context.Context, fn StepObserver) context.Context {
	return context.WithValue(ctx, observerKey{}, fn)
}

// ReportStep notifies the observer installed on ctx, if any.
func ReportStep(ctx context.Context, step Step) {
	if fn, ok := ctx.Value(observerKey{}).(StepObserver); ok && fn != nil {
		fn(step)
	}
}

// StripDataURI drops a "data:...;base64," prefix, i.e. everything up to and
// including the first comma.
func StripDataURI(payload string) string {
	if i := strings.IndexByte(payload, ','); i >= 0 {
		return payload[i+1:]
	}
	return payload
}

// Options carries everything a factory may need. Each provider reads only its own fields.
type Options struct {
	APIKey        string
	BaseURL       string
	Model         string
	Language      string
	DPI           float64
	ProjectID     string
	Region        string
	StagingBucket string
	HTTPClient    *http.Client
}

// Factory builds a provider from options.
type Factory func(ctx context.Context, opts Options) (Provider, error)

// Info describes a registered provider.
type Info struct {
	ID   string
	Name string
}

type registration struct {
	info    Info
	factory Factory
}

// Registry maps short configuration identifiers to provider factories.
type Registry struct {
	entries map[string]registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// DefaultRegistry returns a registry with every built-in provider.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(MistralID, "Mistral AI", NewMistral)
	r.Register(GeminiID, "Google Gemini (Vertex AI)", NewGemini)
	r.Register(TesseractID, "Tesseract (local)", NewTesseract)
	return r
}

// Register adds or replaces a provider under id.
func (r *Registry) Register(id, name string, f Factory) {
	id = strings.ToLower(strings.TrimSpace(id))
	r.entries[id] = registration{info: Info{ID: id, Name: name}, factory: f}
}

// Resolve builds the provider registered under id. An unknown id is a configuration error.
func (r *Registry) Resolve(ctx context.Context, id string, opts Options) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	reg, ok := r.entries[key]
	if !ok {
		return nil, models.ConfigurationError(fmt.Sprintf("unknown OCR provider %q (available: %s)", id, strings.Join(r.ids(), ", ")), nil)
	}
	p, err := reg.factory(ctx, opts)
	if err != nil {
		return nil, models.ConfigurationError(fmt.Sprintf("failed to initialize provider %q", key), err)
	}
	return p, nil
}

// Available lists registered providers sorted by id.
func (r *Registry) Available() []Info {
	infos := make([]Info, 0, len(r.entries))
	for _, id := range r.ids() {
		infos = append(infos, r.entries[id].info)
	}
	return infos
}

func (r *Registry) ids() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close releases provider resources when the provider holds any.
func Close(p Provider) error {
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
