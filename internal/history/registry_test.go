package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper-desk/internal/domain"
)

// TestResultFileDirectoryIsDeterministic verifies paths derive from the id only.
func TestResultFileDirectoryIsDeterministic(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)

	assert.Equal(t, filepath.Join(store.Paths().ResultsDir, "abc"), registry.ResultFileDirectory("abc"))
	assert.Equal(t, registry.ResultFileDirectory("abc"), registry.ResultFileDirectory("abc"))
	assert.Equal(t, filepath.Join(store.Paths().ResultsDir, "abc", "files", "result"), registry.OutputBase("abc"))
}

// TestRegisterExistingResultsPartialSuccess verifies missing files are skipped.
func TestRegisterExistingResultsPartialSuccess(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)
	rec, err := store.CreateJob("a.wav", "/a.wav", "base", nil)
	require.NoError(t, err)

	srt := store.ResultPath(rec.ID, "srt")
	require.NoError(t, os.WriteFile(srt, []byte(strings.Repeat("x", 120)), 0o644))

	updated, err := registry.RegisterExistingResults(rec.ID, []ResultFile{
		{Path: srt, Format: "srt"},
		{Path: filepath.Join(t.TempDir(), "gone.txt"), Format: "txt"},
	})
	require.NoError(t, err)
	require.Len(t, updated.Results, 1)
	assert.Equal(t, "srt", updated.Results[0].Format)
	assert.Equal(t, int64(120), updated.Results[0].FileSize)
	assert.Equal(t, srt, updated.Results[0].FilePath)

	loaded, err := store.LoadJob(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Results, loaded.Results)
	assert.Equal(t, domain.JobStatusRunning, loaded.Status)
}

// TestRegisterExistingResultsTwiceAppends verifies a second registration of the
// same file adds an entry and leaves the first one as it was.
func TestRegisterExistingResultsTwiceAppends(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)
	rec, err := store.CreateJob("a.wav", "/a.wav", "base", nil)
	require.NoError(t, err)

	srt := store.ResultPath(rec.ID, "srt")
	require.NoError(t, os.WriteFile(srt, []byte("abc"), 0o644))
	_, err = registry.RegisterExistingResults(rec.ID, []ResultFile{{Path: srt, Format: "srt"}})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(srt, []byte("abcdef"), 0o644))
	got, err := registry.RegisterExistingResults(rec.ID, []ResultFile{{Path: srt, Format: "srt"}})
	require.NoError(t, err)

	require.Len(t, got.Results, 2)
	assert.Equal(t, int64(3), got.Results[0].FileSize)
	assert.Equal(t, int64(6), got.Results[1].FileSize)

	loaded, err := store.LoadJob(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Results, loaded.Results)
}

// TestRegisterExistingResultsNothingExists verifies the NotFound failure.
func TestRegisterExistingResultsNothingExists(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)
	rec, err := store.CreateJob("a.wav", "/a.wav", "base", nil)
	require.NoError(t, err)

	_, err = registry.RegisterExistingResults(rec.ID, []ResultFile{{Path: "/definitely/missing.srt", Format: "srt"}})
	require.ErrorIs(t, err, domain.ErrNotFound)

	loaded, err := store.LoadJob(rec.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Results)
}

// TestRegisterExistingResultsCopiesExternalFiles verifies outputs are moved under the job.
func TestRegisterExistingResultsCopiesExternalFiles(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)
	rec, err := store.CreateJob("a.wav", "/a.wav", "base", nil)
	require.NoError(t, err)

	external := filepath.Join(t.TempDir(), "transcript.vtt")
	require.NoError(t, os.WriteFile(external, []byte("WEBVTT\n"), 0o644))

	updated, err := registry.RegisterExistingResults(rec.ID, []ResultFile{{Path: external, Format: ".VTT"}})
	require.NoError(t, err)
	require.Len(t, updated.Results, 1)

	target := store.ResultPath(rec.ID, "vtt")
	assert.Equal(t, target, updated.Results[0].FilePath)
	assert.Equal(t, "vtt", updated.Results[0].Format)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "WEBVTT\n", string(data))
}

// TestRegisterExistingResultsUnknownJob verifies lookup failures propagate.
func TestRegisterExistingResultsUnknownJob(t *testing.T) {
	registry := NewRegistry(newTestStore(t))

	_, err := registry.RegisterExistingResults("missing", []ResultFile{{Path: "/x", Format: "txt"}})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// TestCollectFindsKnownFormats verifies output discovery order and filtering.
func TestCollectFindsKnownFormats(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)
	rec, err := store.CreateJob("a.wav", "/a.wav", "base", nil)
	require.NoError(t, err)

	for _, name := range []string{"result.vtt", "result.txt", "result.srt", "result.tmp", "other.srt"} {
		require.NoError(t, os.WriteFile(filepath.Join(store.FilesDir(rec.ID), name), []byte("x"), 0o644))
	}

	files, err := registry.Collect(rec.ID)
	require.NoError(t, err)

	formats := make([]string, 0, len(files))
	for _, f := range files {
		formats = append(formats, f.Format)
		assert.FileExists(t, f.Path)
	}
	assert.Equal(t, []string{"txt", "srt", "vtt"}, formats)
}

// TestCollectMissingDirectory verifies an absent files dir yields nothing.
func TestCollectMissingDirectory(t *testing.T) {
	registry := NewRegistry(newTestStore(t))

	files, err := registry.Collect("never-created")
	require.NoError(t, err)
	assert.Empty(t, files)
}
