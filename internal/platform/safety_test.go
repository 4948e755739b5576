package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDevRun(t *testing.T) {
	assert.True(t, IsDevRun(), "test binaries count as dev runs")
}

func TestResolvePath(t *testing.T) {
	tmp := t.TempDir()

	// Relative paths resolve against the working directory, which must sit
	// outside the temp directory for them to be sandboxed.
	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Chdir(filepath.VolumeName(wd) + string(filepath.Separator))
	sandbox := filepath.Join(os.TempDir(), "notesync-dev")

	tests := []struct {
		name    string
		path    string
		sandbox bool
		want    string
	}{
		{"No Sandbox", "./notes", false, "./notes"},
		{"Empty Path", "", false, "."},
		{"Relative Path Is Sandboxed", "./notes", true, filepath.Join(sandbox, "notes")},
		{"Current Dir Is Sandboxed", ".", true, filepath.Join(sandbox, "default")},
		{"Temp Path Is Kept", filepath.Join(tmp, "notes"), true, filepath.Join(tmp, "notes")},
		{"Relative Temp Path Is Kept", mustRel(t, tmp), true, mustRel(t, tmp)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePath(tt.path, tt.sandbox))
		})
	}
}

func mustRel(t *testing.T, target string) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	rel, err := filepath.Rel(wd, target)
	require.NoError(t, err)
	return rel
}
