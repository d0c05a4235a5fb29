package daemon

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRotateJournalIfNeededLeavesSmallFileAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "echsj_1000.ics")
	require.NoError(t, os.WriteFile(path, []byte("small"), 0o600))

	require.NoError(t, rotateJournalIfNeeded(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "small", string(data))
	_, err = os.Stat(path + ".1.gz")
	require.True(t, os.IsNotExist(err))
}

func TestRotateJournalIfNeededCompressesOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "echsj_1000.ics")
	big := bytes.Repeat([]byte("x"), journalRotateSize+1)
	require.NoError(t, os.WriteFile(path, big, 0o600))

	require.NoError(t, rotateJournalIfNeeded(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Zero(t, info.Size())

	gz, err := os.Open(path + ".1.gz")
	require.NoError(t, err)
	defer gz.Close()
	r, err := gzip.NewReader(gz)
	require.NoError(t, err)
	restored, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, big, restored)
}
