package workspace

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListReturnsRegularFilesWithSlashPaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "pages"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<p>hi</p>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "pages", "about.html"), []byte("about"), 0644))

	entries, err := List(root)
	require.NoError(t, err)

	assert.Equal(t, []FileManifestEntry{
		{Path: "index.html", Size: 9},
		{Path: "src/pages/about.html", Size: 5},
	}, entries)
}

func TestListMissingRootReturnsIOError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	_, err := List(missing)
	require.Error(t, err)

	var ioError *IOError
	require.True(t, errors.As(err, &ioError))
	assert.Equal(t, missing, ioError.Path)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestWriteCreatesParentsAndOverwrites(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, Write(root, "a/b/c.txt", "first"))
	require.NoError(t, Write(root, "a/b/c.txt", "second"))

	got, err := Read(root, "a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestReadMissingFile(t *testing.T) {
	root := t.TempDir()

	_, err := Read(root, "missing.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestResolveRejectsEscapes(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{name: "parent traversal", path: "../outside.txt"},
		{name: "nested traversal", path: "a/../../outside.txt"},
		{name: "absolute outside", path: filepath.Join(os.TempDir(), "elsewhere.txt")},
		{name: "root itself", path: "."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(root, tc.path, true)
			assert.ErrorIs(t, err, ErrPathEscape)
		})
	}
}

func TestResolveRejectsSymlinkOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := Resolve(root, "link/new.txt", true)
	assert.ErrorIs(t, err, ErrPathEscape)

	err = Write(root, "link/new.txt", "x")
	assert.ErrorIs(t, err, ErrPathEscape)
	_, statErr := os.Stat(filepath.Join(outside, "new.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRelOfResolvedPath(t *testing.T) {
	root := t.TempDir()
	canonical, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	for _, p := range []string{"pages/a.html", "./pages/x/../a.html", filepath.Join(canonical, "pages", "a.html")} {
		full, err := Resolve(root, p, true)
		require.NoError(t, err, p)
		rel, err := Rel(root, full)
		require.NoError(t, err, p)
		assert.Equal(t, "pages/a.html", rel, p)
	}
}

func TestResolveEmptyPath(t *testing.T) {
	_, err := Resolve(t.TempDir(), "  ", true)
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestLockerSerializesSameRoot(t *testing.T) {
	locker := NewLocker()
	root := t.TempDir()

	unlock := locker.Lock(root)
	acquired := make(chan struct{})
	go func() {
		release := locker.Lock(root)
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	default:
	}

	unlock()
	<-acquired

	// A different root never blocks.
	other := locker.Lock(t.TempDir())
	other()
}
