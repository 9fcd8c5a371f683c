package atomicio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteReadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	require.NoError(t, WriteJSON(path, payload{Name: "alpha", Count: 3}))

	var got payload
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, payload{Name: "alpha", Count: 3}, got)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, WriteJSON(path, payload{Name: "beta"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestWriteReplacesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, WriteJSON(path, payload{Name: "first"}))
	require.NoError(t, WriteJSON(path, payload{Name: "second"}))

	var got payload
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, "second", got.Name)
}

func TestReadMissingFile(t *testing.T) {
	var got payload
	err := ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &got)
	assert.True(t, os.IsNotExist(err))
}

func TestReadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbled.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	var got payload
	err := ReadJSON(path, &got)
	require.Error(t, err)
	assert.False(t, os.IsNotExist(err))
}
