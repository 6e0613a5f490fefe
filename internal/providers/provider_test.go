package providers

import (
	"context"
	"testing"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{ id string }

func (s stubProvider) ID() string   { return s.id }
func (s stubProvider) Name() string { return "stub" }
func (s stubProvider) ProcessFile(context.Context, string) (*models.OcrResult, error) {
	return &models.OcrResult{}, nil
}

func TestStripDataURI(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"data:image/png;base64,iVBORw0KGgo=", "iVBORw0KGgo="},
		{"iVBORw0KGgo=", "iVBORw0KGgo="},
		{"a,b,c", "b,c"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripDataURI(tt.in), "input %q", tt.in)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	r.Register("Stub", "Stub provider", func(context.Context, Options) (Provider, error) {
		return stubProvider{id: "stub"}, nil
	})

	p, err := r.Resolve(context.Background(), " STUB ", Options{})
	require.NoError(t, err)
	assert.Equal(t, "stub", p.ID())

	_, err = r.Resolve(context.Background(), "nope", Options{})
	require.Error(t, err)
	assert.Equal(t, models.KindConfiguration, models.KindOf(err))
	assert.Contains(t, err.Error(), "stub")
}

func TestDefaultRegistry(t *testing.T) {
	infos := DefaultRegistry().Available()
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, info.ID)
	}
	assert.Equal(t, []string{GeminiID, MistralID, TesseractID}, ids)
}

func TestDefaultRegistry_MistralNeedsKey(t *testing.T) {
	_, err := DefaultRegistry().Resolve(context.Background(), MistralID, Options{})
	require.Error(t, err)
	assert.Equal(t, models.KindConfiguration, models.KindOf(err))
}

func TestReportStep(t *testing.T) {
	var got []Step
	ctx := WithStepObserver(context.Background(), func(s Step) { got = append(got, s) })

	ReportStep(ctx, StepAccessReference)
	ReportStep(ctx, StepRecognitionRequested)
	ReportStep(context.Background(), StepAccessReference) // no observer, no panic

	assert.Equal(t, []Step{StepAccessReference, StepRecognitionRequested}, got)
}

func TestSplitPages(t *testing.T) {
	transcript := "```markdown\n# Title\n\nfirst\n<<<PAGE>>>\nsecond\n<<<PAGE>>>\n\n```"
	assert.Equal(t, []string{"# Title\n\nfirst", "second"}, SplitPages(transcript))
	assert.Equal(t, []string{"a", "", "b"}, SplitPages("a\n<<<PAGE>>>\n<<<PAGE>>>\nb"), "blank pages inside the document are kept")
	assert.Equal(t, []string{"a", "b"}, SplitPages("a\n<<<PAGE>>>\nb\n<<<PAGE>>>"))
	assert.Nil(t, SplitPages("  "))
}
