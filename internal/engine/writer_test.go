package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"query5/internal/models"
)

func TestFormatRow(t *testing.T) {
	assert.Equal(t, "INDIA|90.00", FormatRow(models.NationRevenue{Nation: "INDIA", Revenue: 90}))
	assert.Equal(t, "CHINA|0.01", FormatRow(models.NationRevenue{Nation: "CHINA", Revenue: 0.005000001}))
	assert.Equal(t, "JAPAN|1000000000000000000000.00", FormatRow(models.NationRevenue{Nation: "JAPAN", Revenue: 1e21}))
}

func TestWriteResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.txt")
	res := &models.Result{Rows: []models.NationRevenue{
		{Nation: "INDIA", Revenue: 140},
		{Nation: "JAPAN", Revenue: 189.999999},
	}}

	require.NoError(t, WriteResult(path, res))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "INDIA|140.00\nJAPAN|190.00\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")
}

func TestWriteResultEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.txt")
	require.NoError(t, WriteResult(path, &models.Result{}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestWriteResultBadDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "result.txt")
	assert.Error(t, WriteResult(path, &models.Result{}))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
