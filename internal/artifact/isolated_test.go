package artifact

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haatos/runkeeper/internal/build"
)

// hangingStore blocks in Root until released.
type hangingStore struct {
	release chan struct{}
}

func (s *hangingStore) Archive(ctx context.Context, workspace string, paths []string) error {
	return nil
}

func (s *hangingStore) Root() build.VirtualRoot {
	<-s.release
	return NewLocalStore("").Root()
}

func (s *hangingStore) Delete(ctx context.Context) (bool, error) {
	return true, nil
}

func TestIsolatedRoot(t *testing.T) {
	t.Run("failure - hung backend times out", func(t *testing.T) {
		// arrange
		store := &hangingStore{release: make(chan struct{})}
		defer close(store.release)
		r := build.NewJob("stuff", build.JobOptions{}).NewRecord()
		require.NoError(t, r.BindArtifactStore(store))
		root := NewIsolatedRoot(r, 20*time.Millisecond)

		// act
		start := time.Now()
		_, err := root.List(context.Background(), "")

		// assert
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, build.ErrStoreFailure)
		assert.Less(t, time.Since(start), time.Second)
	})
	t.Run("failure - caller cancellation", func(t *testing.T) {
		// arrange
		store := &hangingStore{release: make(chan struct{})}
		defer close(store.release)
		r := build.NewJob("stuff", build.JobOptions{}).NewRecord()
		require.NoError(t, r.BindArtifactStore(store))
		root := NewIsolatedRoot(r, 0)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// act
		_, err := root.Stat(ctx, "app.jar")

		// assert
		assert.ErrorIs(t, err, context.Canceled)
	})
	t.Run("failure - record without a store", func(t *testing.T) {
		// arrange
		r := build.NewJob("stuff", build.JobOptions{}).NewRecord()
		root := NewIsolatedRoot(r, time.Second)

		// act
		_, err := root.List(context.Background(), "")

		// assert
		assert.ErrorIs(t, err, ErrNoArtifacts)
	})
	t.Run("success - healthy backend passes through", func(t *testing.T) {
		// arrange
		ws := writeWorkspace(t, map[string]string{"app.jar": "jar"})
		s := NewLocalStore(t.TempDir())
		require.NoError(t, s.Archive(context.Background(), ws, []string{"app.jar"}))
		r := build.NewJob("stuff", build.JobOptions{}).NewRecord()
		require.NoError(t, r.BindArtifactStore(s))
		root := NewIsolatedRoot(r, time.Second)

		// act
		rc, err := root.Open(context.Background(), "app.jar")

		// assert
		require.NoError(t, err)
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		assert.Equal(t, "jar", string(b))
	})
}
