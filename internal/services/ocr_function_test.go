package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultFileName(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "part_0.md", resultFileName(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, CompleteFileName), nil, 0o644))
	assert.Equal(t, CompleteFileName, resultFileName(dir))
}

func TestJobCapture(t *testing.T) {
	inner := &recordingTracker{}
	jobs := &jobCapture{StatusTracker: inner}

	id, err := jobs.Begin(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.Equal(t, "job-1", jobs.id)

	require.NoError(t, jobs.Transition(context.Background(), id, "DONE", nil))
	assert.Equal(t, []string{"QUEUED", "DONE"}, inner.states)
}
