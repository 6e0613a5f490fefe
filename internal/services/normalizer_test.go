package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_PageHeadingsUseOffset(t *testing.T) {
	out := t.TempDir()
	pages := []models.OcrPage{
		{Index: 0, Markdown: "first"},
		{Index: 1, Markdown: "second"},
	}

	md, err := Normalize(out, 75, pages)
	require.NoError(t, err)
	assert.Equal(t, "## Page 76\n\nfirst\n\n## Page 77\n\nsecond", md)

	_, err = os.Stat(filepath.Join(out, imagesDirName))
	assert.True(t, os.IsNotExist(err), "no images, no images directory")
}

func TestNormalize_BothPlaceholderSpellings(t *testing.T) {
	out := t.TempDir()
	pages := []models.OcrPage{{
		Index:    0,
		Markdown: "a ![img-0.jpeg](img-0.jpeg) b ![img-0.jpeg](/img-0.jpeg)",
		Images:   []models.OcrImage{{ID: "img-0.jpeg", Base64: "aGVsbG8="}},
	}}

	md, err := Normalize(out, 15, pages)
	require.NoError(t, err)

	want := "![img-0.jpeg](images/15_0_img-0.jpeg.png)"
	assert.Equal(t, "## Page 16\n\na "+want+" b "+want, md)

	data, err := os.ReadFile(filepath.Join(out, "images", "15_0_img-0.jpeg.png"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestNormalize_ImageWithoutPayload(t *testing.T) {
	out := t.TempDir()
	pages := []models.OcrPage{{
		Index:    0,
		Markdown: "![img-2](img-2)",
		Images:   []models.OcrImage{{ID: "img-2"}},
	}}

	md, err := Normalize(out, 0, pages)
	require.NoError(t, err)
	assert.Equal(t, "## Page 1\n\n![img-2](img-2)", md)

	_, err = os.Stat(filepath.Join(out, imagesDirName))
	assert.True(t, os.IsNotExist(err))
}

func TestNormalize_ImageNamesUniqueAcrossChunks(t *testing.T) {
	out := t.TempDir()
	page := models.OcrPage{
		Index:    0,
		Markdown: "![img-1](img-1)",
		Images:   []models.OcrImage{{ID: "img-1", Base64: "aGVsbG8="}},
	}

	first, err := Normalize(out, 0, []models.OcrPage{page})
	require.NoError(t, err)
	second, err := Normalize(out, 15, []models.OcrPage{page})
	require.NoError(t, err)

	assert.Contains(t, first, "images/0_0_img-1.png")
	assert.Contains(t, second, "images/15_0_img-1.png")

	entries, err := os.ReadDir(filepath.Join(out, imagesDirName))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"0_0_img-1.png", "15_0_img-1.png"}, names)
}

func TestNormalize_InvalidPayload(t *testing.T) {
	pages := []models.OcrPage{{
		Index:  0,
		Images: []models.OcrImage{{ID: "x", Base64: "not base64!!"}},
	}}
	_, err := Normalize(t.TempDir(), 0, pages)
	require.Error(t, err)
	assert.Equal(t, models.KindDocumentFormat, models.KindOf(err))
}

func TestWritePartial(t *testing.T) {
	out := t.TempDir()
	path, err := WritePartial(out, 40, "## Page 41\n\nx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "part_40.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "## Page 41\n\nx", string(data))
}

func TestNormalize_RejectsUnsafeImageIDs(t *testing.T) {
	for _, id := range []string{"x/../../../escaped", "../up", `a\b`, "/abs", ".."} {
		t.Run(id, func(t *testing.T) {
			parent := t.TempDir()
			out := filepath.Join(parent, "doc")
			require.NoError(t, os.Mkdir(out, 0o755))
			pages := []models.OcrPage{{
				Index:    0,
				Markdown: "![x](x)",
				Images:   []models.OcrImage{{ID: id, Base64: "aGVsbG8="}},
			}}

			_, err := Normalize(out, 0, pages)
			require.Error(t, err)
			assert.Equal(t, models.KindDocumentFormat, models.KindOf(err))

			entries, err := os.ReadDir(parent)
			require.NoError(t, err)
			require.Len(t, entries, 1, "nothing written next to the output directory")
			_, err = os.Stat(filepath.Join(out, imagesDirName))
			assert.True(t, os.IsNotExist(err))
		})
	}
}
