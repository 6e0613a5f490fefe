// Package ui renders pipeline progress on the terminal.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

const barMax = 1000

// ProgressBar shows overall queue progress with the current status and chunk
// progress in its description.
type ProgressBar struct {
	bar    *progressbar.ProgressBar
	w      io.Writer
	status string
	chunk  float64
}

func NewProgressBar(w io.Writer) *ProgressBar {
	bar := progressbar.NewOptions(
		barMax,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &ProgressBar{bar: bar, w: w}
}

// SetOverall moves the bar to fraction of the whole queue.
func (p *ProgressBar) SetOverall(fraction float64) {
	_ = p.bar.Set(int(clamp(fraction) * barMax))
}

// SetChunk records the current chunk's progress.
func (p *ProgressBar) SetChunk(fraction float64) {
	p.chunk = clamp(fraction)
	p.describe()
}

// SetStatus replaces the status text.
func (p *ProgressBar) SetStatus(msg string) {
	p.status = msg
	p.describe()
}

func (p *ProgressBar) Finish() {
	_ = p.bar.Finish()
}

// Clear removes the bar from the line so other output can follow.
func (p *ProgressBar) Clear() {
	_ = p.bar.Clear()
	fmt.Fprintln(p.w)
}

func (p *ProgressBar) describe() {
	p.bar.Describe(fmt.Sprintf("%s [chunk %3.0f%%]", p.status, p.chunk*100))
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Success displays a success message.
func Success(format string, args ...any) {
	fmt.Fprintf(os.Stdout, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error displays an error message to stderr.
func Error(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func Info(format string, args ...any) {
	fmt.Fprintf(os.Stdout, "ℹ %s\n", fmt.Sprintf(format, args...))
}
