package atomicio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	in := map[string]record{"a": {Name: "a", Value: 1.5}}
	require.NoError(t, WriteJSONAtomic(path, in))

	var out map[string]record
	ok, err := ReadJSON(path, &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, in, out)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	require.NoError(t, WriteJSONAtomic(path, []int{1, 2, 3}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "store.json", entries[0].Name())
}

func TestReadJSONMissingFile(t *testing.T) {
	var out map[string]record
	ok, err := ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &out)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, out)
}

func TestReadJSONCorruptTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	var out map[string]record
	ok, err := ReadJSON(path, &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommitWritesAllFiles(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "active.json")
	completed := filepath.Join(dir, "completed.json")

	err := Commit([]Write{
		{Path: active, Payload: map[string]string{"0xabc": "tracking"}},
		{Path: completed, Payload: map[string]string{"0xdef": "done"}},
	})
	require.NoError(t, err)

	var a, c map[string]string
	ok, err := ReadJSON(active, &a)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = ReadJSON(completed, &c)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tracking", a["0xabc"])
	assert.Equal(t, "done", c["0xdef"])
}

func TestCommitMarshalFailureTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")

	err := Commit([]Write{
		{Path: good, Payload: map[string]string{"k": "v"}},
		{Path: filepath.Join(dir, "bad.json"), Payload: make(chan int)}, // unmarshalable
	})
	require.Error(t, err)

	_, statErr := os.Stat(good)
	assert.True(t, os.IsNotExist(statErr), "first file must not exist after aborted commit")
}

func TestOverwritePreservesAtomicity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	require.NoError(t, WriteJSONAtomic(path, record{Name: "old", Value: 1}))
	require.NoError(t, WriteJSONAtomic(path, record{Name: "new", Value: 2}))

	var out record
	ok, err := ReadJSON(path, &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "new", out.Name)
}
