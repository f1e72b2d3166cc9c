package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWalkCanonicalOrdering(t *testing.T) {
	root := t.TempDir()
	write(t, root, "b.txt", "bbb")
	write(t, root, "a.txt", "aaa")
	write(t, root, "sub/c.txt", "ccc")

	s := New(zap.NewNop())
	entries, err := s.Walk(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "a.txt", entries[0].RelativePath)
	assert.Equal(t, "b.txt", entries[1].RelativePath)
	assert.Equal(t, "sub/c.txt", entries[2].RelativePath)
}

func TestWalkContentHash(t *testing.T) {
	root := t.TempDir()
	write(t, root, "file.txt", "hello world")

	s := New(zap.NewNop())
	entries, err := s.Walk(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	want := sha256.Sum256([]byte("hello world"))
	assert.Equal(t, hex.EncodeToString(want[:]), entries[0].ContentHash)
	assert.EqualValues(t, len("hello world"), entries[0].Size)
}

func TestWalkSkipsSymlinkOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	write(t, outside, "secret.txt", "nope")

	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "link.txt")))
	write(t, root, "kept.txt", "yes")

	s := New(zap.NewNop())
	entries, err := s.Walk(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept.txt", entries[0].RelativePath)
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}
