package history

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWriteFileAtomicReplacesContent verifies the rename leaves only the target.
func TestWriteFileAtomicReplacesContent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "result.srt")

	require.NoError(t, WriteFileAtomic(target, strings.NewReader("first")))
	require.NoError(t, WriteFileAtomic(target, strings.NewReader("second")))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "result.srt", entries[0].Name())
}

// TestConcurrentUpdatesAreNotLost verifies edits racing a result registration
// all reach the stored record.
func TestConcurrentUpdatesAreNotLost(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)
	rec, err := store.CreateJob("a.wav", "/a.wav", "base", nil)
	require.NoError(t, err)

	const rounds = 20
	sources := make([]string, rounds)
	for i := range sources {
		sources[i] = filepath.Join(t.TempDir(), fmt.Sprintf("out-%d.srt", i))
		require.NoError(t, os.WriteFile(sources[i], []byte("x"), 0o644))
	}

	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := registry.RegisterExistingResults(rec.ID, []ResultFile{{Path: sources[i], Format: "srt"}})
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := store.UpdateTags(rec.ID, []string{fmt.Sprintf("t%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	notes := "reviewed"
	_, err = store.UpdateNotes(rec.ID, &notes)
	require.NoError(t, err)

	loaded, err := store.LoadJob(rec.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Results, rounds)
	assert.Len(t, loaded.Tags, 1)
	require.NotNil(t, loaded.Notes)
	assert.Equal(t, "reviewed", *loaded.Notes)
}
