package platform

import (
	"os"
	"path/filepath"
	"strings"
)

// IsDevRun reports whether the process runs via `go run` or `go test`,
// whose binaries are built in temporary directories.
func IsDevRun() bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}

	if strings.HasPrefix(strings.ToLower(exe), strings.ToLower(os.TempDir())) {
		return true
	}
	return strings.HasSuffix(exe, ".test") || strings.HasSuffix(exe, ".test.exe")
}

// ResolvePath returns the storage path to use. With sandbox set, paths
// outside the system temp directory are re-rooted under
// $TMPDIR/notesync-dev so development runs never touch real data.
func ResolvePath(userPath string, sandbox bool) string {
	if userPath == "" {
		userPath = "."
	}
	if !sandbox {
		return userPath
	}

	clean := filepath.Clean(userPath)
	abs, err := filepath.Abs(clean)
	if err == nil {
		rel, err := filepath.Rel(os.TempDir(), abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return clean
		}
	}

	name := filepath.Base(clean)
	if name == "." || name == string(filepath.Separator) {
		name = "default"
	}
	return filepath.Join(os.TempDir(), "notesync-dev", name)
}
