package pathutil

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Canonical resolves a path against an anchor directory and collapses it into
// a comparable form: absolute, `.` and `..` removed, forward slashes.
// The anchor must itself be absolute; a relative path is joined onto it.
func Canonical(anchor, path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(anchor, path)
	}
	path = filepath.Clean(path)
	return filepath.ToSlash(path)
}

// NormalizeForLookup creates a canonical, case-normalized path suitable for
// use as a map key or in comparisons. Symlinks are resolved when the path
// exists; on case-insensitive OSes (macOS, Windows) the result is lowercased.
func NormalizeForLookup(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	canonicalPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// If symlink evaluation fails (e.g., path doesn't exist yet),
		// fall back to the absolute path.
		canonicalPath = absPath
	}

	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		return strings.ToLower(canonicalPath), nil
	}

	return canonicalPath, nil
}
