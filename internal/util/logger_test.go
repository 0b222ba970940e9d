package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_WritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop-sync.log")

	require.NoError(t, InitLogger("production", LogFileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}))
	t.Cleanup(func() { logger = nil })

	GetLogger().Info("file sink ready")
	SyncLogger()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"file sink ready"`)
}
