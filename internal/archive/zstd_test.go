package archive_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GenSpectrum/evobench-sub000/internal/archive"
)

func TestCompressFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "evobench.log")

	const content = "timing span start\nkv foo=bar\nspan end\n"

	require.NoError(t, os.WriteFile(srcPath, []byte(content), 0o600))

	dstPath, err := archive.CompressFile(srcPath)
	require.NoError(t, err)
	assert.Equal(t, srcPath+archive.CompressedSuffix, dstPath)

	_, statErr := os.Stat(srcPath)
	assert.True(t, os.IsNotExist(statErr), "original file must be removed after compression")

	r, err := archive.OpenTransparent(srcPath)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestOpenTransparentPrefersUncompressed(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "bench_output.log")

	require.NoError(t, os.WriteFile(srcPath, []byte("plain"), 0o600))

	r, err := archive.OpenTransparent(srcPath)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "plain", string(data))
}

func TestOpenTransparentMissingBothReturnsError(t *testing.T) {
	dir := t.TempDir()

	_, err := archive.OpenTransparent(filepath.Join(dir, "absent.log"))
	assert.Error(t, err)
}
