// Package workspace provides recursive listing and raw read/write access to
// the files under a project root.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FileManifestEntry describes one regular file under a project root.
type FileManifestEntry struct {
	Path string `json:"path"` // relative to root, forward slashes
	Size int64  `json:"size"`
}

// IOError reports a filesystem failure together with the path that caused it.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func ioErr(op, path string, err error) error {
	var existing *IOError
	if errors.As(err, &existing) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// List walks root recursively and returns one entry per regular file.
// Directories, symlinks and other special files are not listed.
func List(root string) ([]FileManifestEntry, error) {
	return list(root, nil)
}

func list(root string, skip func(rel string, isDir bool) bool) ([]FileManifestEntry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, ioErr("list", root, err)
	}
	if !info.IsDir() {
		return nil, ioErr("list", root, fmt.Errorf("not a directory"))
	}

	var entries []FileManifestEntry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return ioErr("list", path, walkErr)
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return ioErr("list", path, err)
		}
		rel = filepath.ToSlash(rel)

		if skip != nil && skip(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return ioErr("stat", path, err)
		}
		entries = append(entries, FileManifestEntry{Path: rel, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Read returns the content of root/rel.
func Read(root, rel string) (string, error) {
	full, err := Resolve(root, rel, false)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", ioErr("read", rel, err)
	}
	return string(data), nil
}

// Write creates every missing parent directory of root/rel and then
// overwrites the file with text.
func Write(root, rel, text string) error {
	full, err := Resolve(root, rel, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return ioErr("mkdir", rel, err)
	}
	if err := os.WriteFile(full, []byte(text), 0644); err != nil {
		return ioErr("write", rel, err)
	}
	return nil
}
