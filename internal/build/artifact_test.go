package build

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRegistry_StoreFor(t *testing.T) {
	t.Run("success - first accepting factory wins", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))
		fallback := &fakeFactory{}
		refusing := &fakeFactory{accepts: func(*Record) bool { return false }}
		first := &fakeFactory{}
		second := &fakeFactory{}
		registry := NewStoreRegistry(fallback)
		registry.Register(refusing)
		registry.Register(first)
		registry.Register(second)

		// act
		s, err := registry.StoreFor(r)

		// assert
		require.NoError(t, err)
		require.Len(t, first.stores, 1)
		assert.Same(t, first.stores[0], s)
		assert.Empty(t, second.stores)
		assert.Empty(t, refusing.stores)
		assert.Empty(t, fallback.stores)
	})
	t.Run("success - fallback binds when nothing accepts", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))
		fallback := &fakeFactory{}
		registry := NewStoreRegistry(fallback)
		registry.Register(&fakeFactory{accepts: func(*Record) bool { return false }})

		// act
		_, err := registry.StoreFor(r)

		// assert
		assert.NoError(t, err)
		assert.Len(t, fallback.stores, 1)
	})
	t.Run("failure - no factory and no fallback", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))
		registry := NewStoreRegistry(nil)

		// act
		_, err := registry.StoreFor(r)

		// assert
		assert.ErrorIs(t, err, ErrNoStoreFactory)
	})
	t.Run("success - duplicate registration is ignored", func(t *testing.T) {
		// arrange
		registry := NewStoreRegistry(nil)
		f := &fakeFactory{}

		// act
		registry.Register(f)
		registry.Register(f)

		// assert
		assert.Len(t, registry.Factories(), 1)
	})
}

func TestDescribeStore(t *testing.T) {
	t.Run("success - stringer and nil", func(t *testing.T) {
		assert.Equal(t, "fake", DescribeStore(&fakeStore{}))
		assert.Equal(t, "", DescribeStore(nil))
	})
}

func TestMatchArtifacts(t *testing.T) {
	t.Run("success - patterns are matched and de-duplicated", func(t *testing.T) {
		// arrange
		ws := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(ws, "out", "lib"), 0o755))
		for _, name := range []string{"out/app.jar", "out/lib/dep.jar", "out/notes.txt", "README"} {
			require.NoError(t, os.WriteFile(filepath.Join(ws, name), []byte(name), 0o644))
		}

		// act
		paths, err := MatchArtifacts(ws, []string{"**/*.jar", "out/app.jar"})

		// assert
		assert.NoError(t, err)
		assert.Equal(t, []string{"out/app.jar", "out/lib/dep.jar"}, paths)
	})
	t.Run("failure - invalid pattern", func(t *testing.T) {
		// arrange
		ws := t.TempDir()

		// act
		_, err := MatchArtifacts(ws, []string{"[a-"})

		// assert
		assert.Error(t, err)
	})
}
