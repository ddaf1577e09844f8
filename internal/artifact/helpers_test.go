package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haatos/runkeeper/internal/build"
)

type testExecutor struct {
	workspace string
}

func (e testExecutor) ID() string        { return "test" }
func (e testExecutor) Workspace() string { return e.workspace }
func (e testExecutor) Interrupt()        {}

func writeWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	ws := t.TempDir()
	for name, content := range files {
		p := filepath.Join(ws, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return ws
}

func completedRecord(t *testing.T, m *build.Manager, j *build.Job, workspace string) *build.Record {
	t.Helper()
	r := j.NewRecord()
	require.NoError(t, m.Start(r, testExecutor{workspace: workspace}))
	require.NoError(t, m.Complete(t.Context(), r, build.ResultSuccess))
	return r
}
