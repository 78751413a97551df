package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileContent(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "2024", "5", "1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte("quarterly report"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "l.bin"), []byte{'c', 'a', 'f', 0xe9}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.bin"), []byte{0xff, 0xfe}, 0o644))

	c := NewFileContent(root)
	ctx := context.Background()

	text, err := c.Text(ctx, ContentData{URL: "store://2024/5/1/a.bin", Mimetype: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, "quarterly report", text)

	text, err = c.Text(ctx, ContentData{URL: "store://2024/5/1/l.bin", Mimetype: "text/plain", Encoding: "ISO-8859-1"})
	require.NoError(t, err)
	assert.Equal(t, "café", text)

	_, err = c.Text(ctx, ContentData{URL: "store://2024/5/1/a.bin", Mimetype: "application/pdf"})
	assert.ErrorIs(t, err, ErrNoTransformer)

	_, err = c.Text(ctx, ContentData{URL: "store://2024/5/1/bad.bin", Mimetype: "text/plain"})
	assert.ErrorIs(t, err, ErrTransformFailed)

	_, err = c.Text(ctx, ContentData{URL: "store://2024/5/1/missing.bin", Mimetype: "text/plain"})
	assert.ErrorIs(t, err, ErrTransformFailed)

	_, err = c.Text(ctx, ContentData{URL: "store://../../etc/passwd", Mimetype: "text/plain"})
	assert.ErrorIs(t, err, ErrTransformFailed)
}
