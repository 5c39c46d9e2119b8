package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocStoreCreatesDocumentWithDefaults(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDocStore(dir)
	require.NoError(t, err)

	doc, err := store.Open("ai", map[string]interface{}{
		"chat_model":  "gpt-4o-mini",
		"temperature": 0.1,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", doc.GetString("chat_model", ""))
	assert.Equal(t, 0.1, doc.GetFloat("temperature", 0))

	// The merged document was written out on first access.
	_, err = os.Stat(filepath.Join(dir, "ai.json"))
	assert.NoError(t, err)
}

func TestDocStorePersistedValuesWinOverDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ai.json"),
		[]byte(`{"chat_model":"gpt-4"}`), 0o644))

	store, err := NewDocStore(dir)
	require.NoError(t, err)

	doc, err := store.Open("ai", map[string]interface{}{
		"chat_model":  "gpt-4o-mini",
		"temperature": 0.1,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4", doc.GetString("chat_model", ""), "persisted value kept")
	assert.Equal(t, 0.1, doc.GetFloat("temperature", 0), "missing key got the default")
}

func TestDocumentSetSavesSynchronously(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDocStore(dir)
	require.NoError(t, err)

	doc, err := store.Open("music", nil)
	require.NoError(t, err)
	require.NoError(t, doc.SetMapEntry("names", "12345", "alice_fm"))

	// Reopen from disk through a fresh store.
	store2, err := NewDocStore(dir)
	require.NoError(t, err)
	doc2, err := store2.Open("music", nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"12345": "alice_fm"}, doc2.StringMap("names"))
}

func TestDocStoreReturnsSameDocument(t *testing.T) {
	store, err := NewDocStore(t.TempDir())
	require.NoError(t, err)

	a, err := store.Open("music", nil)
	require.NoError(t, err)
	b, err := store.Open("music", nil)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestDocumentStringMapSkipsNonStrings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "music.json"),
		[]byte(`{"names":{"1":"alice","2":42}}`), 0o644))

	store, err := NewDocStore(dir)
	require.NoError(t, err)
	doc, err := store.Open("music", nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"1": "alice"}, doc.StringMap("names"))
}

func TestDocStoreCorruptDocumentFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "music.json"), []byte("{nope"), 0o644))

	store, err := NewDocStore(dir)
	require.NoError(t, err)
	_, err = store.Open("music", nil)
	assert.Error(t, err)
}
