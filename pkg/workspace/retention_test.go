package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupRemovesWorkspace(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "logs"), 0o755))

	require.NoError(t, Cleanup(root))
	_, err := os.Stat(root)
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshotKeepsLogsAndTranscriptOnly(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "logs"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "code"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "transcript.txt"), []byte("transcript"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "prompt.txt"), []byte("prompt"), 0o644))

	require.NoError(t, Snapshot(root))

	_, err := os.Stat(filepath.Join(root, "logs"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "transcript.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "code"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "prompt.txt"))
	assert.True(t, os.IsNotExist(err))
}
