package utils

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("RTLML_TEST_VALUE", "")
	assert.Equal(t, "fallback", GetEnv("RTLML_TEST_VALUE", "fallback"))

	t.Setenv("RTLML_TEST_VALUE", "  set  ")
	assert.Equal(t, "set", GetEnv("RTLML_TEST_VALUE", "fallback"))
}

func TestCreateFolderIsIdempotent(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, CreateFolder(dir))
	require.NoError(t, CreateFolder(dir))
	assert.DirExists(t, dir)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestNewRecordIDIsUnique(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, NewRecordID(), NewRecordID())
	assert.NotZero(t, GenerateUniqueID()|GenerateUniqueID())
}
