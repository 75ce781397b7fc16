package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StateDir holds per-workspace state (config, documents, staging). It is
// never listed in the file manifest.
const StateDir = ".sitebuilder"

var (
	// ErrPathEscape is returned when a path resolves outside the workspace root.
	ErrPathEscape = errors.New("path escapes workspace root")
	// ErrEmptyPath is returned for a blank relative path.
	ErrEmptyPath = errors.New("path is required")
)

// Resolve maps rel onto root and returns the canonical absolute path.
// Symlinks are resolved on the nearest existing ancestor so a link that
// points outside root is caught even when the target file does not exist yet.
func Resolve(root, rel string, forWrite bool) (string, error) {
	trimmed := strings.TrimSpace(rel)
	if trimmed == "" {
		return "", ErrEmptyPath
	}

	canonicalRoot, err := canonicalRoot(root)
	if err != nil {
		return "", err
	}

	cleaned := filepath.Clean(filepath.FromSlash(trimmed))
	if !filepath.IsAbs(cleaned) {
		cleaned = filepath.Join(canonicalRoot, cleaned)
	}

	resolved, err := canonicalizePath(cleaned, forWrite)
	if err != nil {
		return "", ioErr("resolve", rel, err)
	}
	if !isWithinWorkspace(resolved, canonicalRoot) || resolved == canonicalRoot {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	return resolved, nil
}

// Rel returns full, as returned by Resolve, relative to root with forward
// slashes.
func Rel(root, full string) (string, error) {
	canonicalRoot, err := canonicalRoot(root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(canonicalRoot, full)
	if err != nil {
		return "", ioErr("resolve", full, err)
	}
	return filepath.ToSlash(rel), nil
}

func canonicalRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", ioErr("resolve", root, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", ioErr("resolve", root, err)
	}
	return resolved, nil
}

func canonicalizePath(absPath string, forWrite bool) (string, error) {
	if !forWrite {
		return filepath.EvalSymlinks(absPath)
	}

	// The file may not exist yet: resolve the nearest existing ancestor and
	// re-append the missing suffix.
	relativeSuffix := ""
	probe := absPath
	for {
		info, err := os.Lstat(probe)
		if err == nil {
			if probe == absPath && info.Mode().IsRegular() {
				return filepath.EvalSymlinks(absPath)
			}
			resolvedParent, err := filepath.EvalSymlinks(probe)
			if err != nil {
				return "", err
			}
			if relativeSuffix == "" {
				return resolvedParent, nil
			}
			return filepath.Join(resolvedParent, relativeSuffix), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		if relativeSuffix == "" {
			relativeSuffix = filepath.Base(probe)
		} else {
			relativeSuffix = filepath.Join(filepath.Base(probe), relativeSuffix)
		}
		probe = parent
	}

	return absPath, nil
}

func isWithinWorkspace(path, workspaceRoot string) bool {
	rel, err := filepath.Rel(workspaceRoot, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != ".."
}
