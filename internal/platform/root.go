package platform

import (
	"errors"
	"os"
	"path/filepath"
)

// ConfigFile is the name of the project configuration file.
const ConfigFile = "notesync.yaml"

// ErrRootNotFound is returned by FindRoot when no indicator was found.
var ErrRootNotFound = errors.New("root not found")

// FindRoot walks upwards from startDir looking for a project root.
// Indicators are a notesync.yaml file or a .git directory.
// Returns the absolute path of the first directory holding one.
func FindRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if hasFile(dir, ConfigFile) || hasFile(dir, ".git") {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", ErrRootNotFound
}

// FindConfig returns the path of the notesync.yaml governing startDir,
// or "" when the project root has none.
func FindConfig(startDir string) (string, error) {
	root, err := FindRoot(startDir)
	if errors.Is(err, ErrRootNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !hasFile(root, ConfigFile) {
		return "", nil
	}
	return filepath.Join(root, ConfigFile), nil
}

func hasFile(dir, name string) bool {
	path := filepath.Join(dir, name)
	_, err := os.Stat(path)
	return err == nil
}
