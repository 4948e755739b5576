package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindRoot(t *testing.T) {
	// base/
	//   repo/ (notesync.yaml)
	//     subdir/
	//       nested/
	//   gitonly/ (.git)
	//     sub/
	baseDir := t.TempDir()
	repoDir := filepath.Join(baseDir, "repo")
	subDir := filepath.Join(repoDir, "subdir")
	nestedDir := filepath.Join(subDir, "nested")
	gitDir := filepath.Join(baseDir, "gitonly")
	gitSub := filepath.Join(gitDir, "sub")

	require.NoError(t, os.MkdirAll(nestedDir, 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, ".git"), 0755))
	require.NoError(t, os.MkdirAll(gitSub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, ConfigFile), []byte("adapter: memory\n"), 0644))

	tests := []struct {
		name       string
		startPath  string
		wantRoot   string
		wantConfig string
	}{
		{"Start at Root", repoDir, repoDir, filepath.Join(repoDir, ConfigFile)},
		{"Start in Subdir", subDir, repoDir, filepath.Join(repoDir, ConfigFile)},
		{"Start Nested Deeply", nestedDir, repoDir, filepath.Join(repoDir, ConfigFile)},
		{"Git Root Without Config", gitSub, gitDir, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := FindRoot(tt.startPath)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRoot, root)

			cfg, err := FindConfig(tt.startPath)
			require.NoError(t, err)
			assert.Equal(t, tt.wantConfig, cfg)
		})
	}
}
