package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTermsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "terms.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadTerms(t *testing.T) {
	path := writeTermsFile(t, `# Seed terms for the study rooms
khùng

  Ngu  
# duplicates collapse after normalization
KHÙNG
điên
`)

	terms, err := loadTerms(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"khùng", "ngu", "điên"}, terms)
}

func TestLoadTerms_EmptyFile(t *testing.T) {
	terms, err := loadTerms(writeTermsFile(t, ""))
	require.NoError(t, err)
	assert.Empty(t, terms)
}

func TestLoadTerms_OnlyComments(t *testing.T) {
	terms, err := loadTerms(writeTermsFile(t, "# one\n\n# two\n"))
	require.NoError(t, err)
	assert.Empty(t, terms)
}

func TestLoadTerms_MissingFile(t *testing.T) {
	_, err := loadTerms(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestLoadTerms_Logging(t *testing.T) {
	var buf bytes.Buffer
	original := log.Logger
	t.Cleanup(func() { log.Logger = original })
	log.Logger = zerolog.New(&buf)

	path := writeTermsFile(t, "khùng\nngu\n")
	terms, err := loadTerms(path)
	require.NoError(t, err)

	log.Info().Int("count", len(terms)).Str("file", path).Msg("Loaded seed terms from file")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Loaded seed terms from file", entry["message"])
	assert.EqualValues(t, 2, entry["count"])
	assert.Equal(t, path, entry["file"])
}
