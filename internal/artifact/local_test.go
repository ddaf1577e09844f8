package artifact

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haatos/runkeeper/internal/build"
)

func TestLocalStore_Archive(t *testing.T) {
	t.Run("success - artifacts readable through the root", func(t *testing.T) {
		// arrange
		ws := writeWorkspace(t, map[string]string{
			"out/app.jar":     "jar",
			"out/lib/dep.jar": "dep",
		})
		s := NewLocalStore(filepath.Join(t.TempDir(), "artifacts", "stuff", "1"))

		// act
		err := s.Archive(context.Background(), ws, []string{"out/app.jar", "out/lib/dep.jar"})

		// assert
		require.NoError(t, err)
		entries, err := s.Root().List(context.Background(), "out")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "out/app.jar", entries[0].Name)
		assert.Equal(t, int64(3), entries[0].Size)
		assert.True(t, entries[1].Dir)

		rc, err := s.Root().Open(context.Background(), "out/lib/dep.jar")
		require.NoError(t, err)
		defer rc.Close()
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "dep", string(b))
	})
	t.Run("failure - partial archive keeps the previous artifacts", func(t *testing.T) {
		// arrange
		ws := writeWorkspace(t, map[string]string{"app.jar": "v1"})
		dir := filepath.Join(t.TempDir(), "1")
		s := NewLocalStore(dir)
		require.NoError(t, s.Archive(context.Background(), ws, []string{"app.jar"}))
		require.NoError(t, os.WriteFile(filepath.Join(ws, "app.jar"), []byte("v2"), 0o644))

		// act
		err := s.Archive(context.Background(), ws, []string{"app.jar", "missing.jar"})

		// assert
		assert.Error(t, err)
		b, err := os.ReadFile(filepath.Join(dir, "app.jar"))
		require.NoError(t, err)
		assert.Equal(t, "v1", string(b))
		matches, _ := filepath.Glob(dir + ".tmp-*")
		assert.Empty(t, matches)
	})
	t.Run("failure - names escaping the root are rejected", func(t *testing.T) {
		// arrange
		s := NewLocalStore(t.TempDir())

		// act
		_, err := s.Root().Open(context.Background(), "../secret")

		// assert
		assert.ErrorIs(t, err, ErrInvalidName)
	})
	t.Run("success - empty root lists nothing", func(t *testing.T) {
		// arrange
		s := NewLocalStore(filepath.Join(t.TempDir(), "never"))

		// act
		entries, err := s.Root().List(context.Background(), "")

		// assert
		assert.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestLocalStore_Delete(t *testing.T) {
	t.Run("success - first delete removes, second reports nothing", func(t *testing.T) {
		// arrange
		ws := writeWorkspace(t, map[string]string{"app.jar": "jar"})
		dir := filepath.Join(t.TempDir(), "1")
		s := NewLocalStore(dir)
		require.NoError(t, s.Archive(context.Background(), ws, []string{"app.jar"}))

		// act
		first, err1 := s.Delete(context.Background())
		second, err2 := s.Delete(context.Background())

		// assert
		assert.NoError(t, err1)
		assert.NoError(t, err2)
		assert.True(t, first)
		assert.False(t, second)
		_, err := os.Stat(dir)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestLocalFactory(t *testing.T) {
	t.Run("success - records bound under the data directory", func(t *testing.T) {
		// arrange
		data := t.TempDir()
		factory := NewLocalFactory(data)
		m := build.NewManager(build.NewStoreRegistry(factory), nil, nil)
		ws := writeWorkspace(t, map[string]string{"app.jar": "jar"})
		j := build.NewJob("stuff", build.JobOptions{Artifacts: []string{"*.jar"}})

		// act
		r := completedRecord(t, m, j, ws)

		// assert
		require.NotNil(t, r.ArtifactStore())
		assert.Equal(t, "local:"+filepath.Join(data, "artifacts", "stuff", "1"), build.DescribeStore(r.ArtifactStore()))
		_, err := os.Stat(filepath.Join(data, "artifacts", "stuff", "1", "app.jar"))
		assert.NoError(t, err)
	})
	t.Run("success - accepts only local storage hints", func(t *testing.T) {
		// arrange
		factory := NewLocalFactory(t.TempDir())

		// act
		local := factory.Accepts(build.NewJob("a", build.JobOptions{}).NewRecord())
		remote := factory.Accepts(build.NewJob("b", build.JobOptions{Storage: StorageSFTP}).NewRecord())

		// assert
		assert.True(t, local)
		assert.False(t, remote)
	})
}
