package services

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CompleteFileName is written only for documents that were split into several chunks.
const CompleteFileName = "complete.md"

var (
	partialPattern = regexp.MustCompile(`^part_(\d+)\.md$`)
	pageHeading    = regexp.MustCompile(`^Page (\d+)$`)
)

// partialOffset extracts the page offset encoded in a partial file name.
func partialOffset(path string) (int, error) {
	m := partialPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, fmt.Errorf("%s is not a partial result file", filepath.Base(path))
	}
	return strconv.Atoi(m[1])
}

// SortPartials orders partial files by the offset in their names. The order
// never depends on the order the files were produced in.
func SortPartials(partials []string) ([]string, error) {
	type keyed struct {
		path   string
		offset int
	}
	items := make([]keyed, 0, len(partials))
	for _, p := range partials {
		off, err := partialOffset(p)
		if err != nil {
			return nil, err
		}
		items = append(items, keyed{path: p, offset: off})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].offset < items[j].offset })

	sorted := make([]string, len(items))
	for i, it := range items {
		sorted[i] = it.path
	}
	return sorted, nil
}

// CollectPartials finds every partial result in outDir.
func CollectPartials(outDir string) ([]string, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, models.FilesystemError(fmt.Sprintf("failed to list %s", outDir), err)
	}
	var partials []string
	for _, e := range entries {
		if !e.IsDir() && partialPattern.MatchString(e.Name()) {
			partials = append(partials, filepath.Join(outDir, e.Name()))
		}
	}
	return SortPartials(partials)
}

// Merge concatenates the partial results in offset order, separated by a
// blank line, into outDir/complete.md and returns its path. A missing partial
// fails the merge rather than producing an incomplete document.
func Merge(outDir string, partials []string) (string, error) {
	logCtx := slog.With("outputDir", outDir)

	sorted, err := SortPartials(partials)
	if err != nil {
		return "", models.FilesystemError("failed to order partial results", err)
	}
	logCtx.Info("Found and sorted files for aggregation.", "fileCount", len(sorted))

	contents := make([]string, 0, len(sorted))
	for _, p := range sorted {
		data, err := os.ReadFile(p)
		if err != nil {
			logCtx.Error("Failed to read partial result", "file", p, "error", err)
			return "", models.FilesystemError(fmt.Sprintf("failed to read %s", filepath.Base(p)), err)
		}
		contents = append(contents, string(data))
	}

	completePath := filepath.Join(outDir, CompleteFileName)
	if err := os.WriteFile(completePath, []byte(strings.Join(contents, "\n\n")), 0o644); err != nil {
		return "", models.FilesystemError(fmt.Sprintf("failed to write %s", CompleteFileName), err)
	}
	logCtx.Info("Aggregation complete.", "file", completePath)
	return completePath, nil
}

// PageNumbers returns the numbers of every top-level "## Page N" heading in order.
func PageNumbers(markdown []byte) []int {
	doc := goldmark.New().Parser().Parse(text.NewReader(markdown))

	var numbers []int
	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		h, ok := child.(*ast.Heading)
		if !ok || h.Level != 2 {
			continue
		}
		m := pageHeading.FindSubmatch(h.Text(markdown))
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(string(m[1])); err == nil {
			numbers = append(numbers, n)
		}
	}
	return numbers
}

// VerifyPageSequence checks that the page headings run 1..N without gaps or repeats
// and returns N.
func VerifyPageSequence(markdown []byte) (int, error) {
	numbers := PageNumbers(markdown)
	for i, n := range numbers {
		if n != i+1 {
			return 0, fmt.Errorf("page heading %d found where page %d was expected", n, i+1)
		}
	}
	return len(numbers), nil
}
