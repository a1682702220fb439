package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveJSONAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "result.json")

	in := map[string]any{"start_url": "https://bank.example/", "forms": []string{"a"}}
	require.NoError(t, SaveJSONAtomic(path, in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "https://bank.example/", out["start_url"])

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "result.json", entries[0].Name())
}

func TestSaveJSONAtomicOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, SaveJSONAtomic(path, map[string]int{"v": 1}))
	require.NoError(t, SaveJSONAtomic(path, map[string]int{"v": 2}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]int
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 2, out["v"])
}

func TestSaveCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fields", "form_fields.csv")
	header := []string{"field_name", "type", "options"}
	rows := [][]string{
		{"first_name", "text", "N/A"},
		{"loan_purpose", "select", "Car purchase; Home improvement"},
	}
	require.NoError(t, SaveCSV(path, header, rows))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "field_name,type,options\n" +
		"first_name,text,N/A\n" +
		"loan_purpose,select,Car purchase; Home improvement\n"
	assert.Equal(t, want, string(raw))
}

func TestSanitizeFilename(t *testing.T) {
	got := SanitizeFilename("https://bank.example/apply?product=loan&step=1")
	assert.Equal(t, "https_bank.example_apply_product_loan_step_1", got)
	assert.NotContains(t, got, "/")
	assert.NotContains(t, got, "?")
}
