package artifact

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haatos/runkeeper/internal/build"
)

func newInMemSFTPClient(t *testing.T) *sftp.Client {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go server.Serve()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client
}

func TestSFTPStore(t *testing.T) {
	t.Run("success - archive, read back and delete", func(t *testing.T) {
		// arrange
		client := newInMemSFTPClient(t)
		s := NewSFTPStore(client, "/artifacts/stuff/1")
		ws := writeWorkspace(t, map[string]string{
			"app.jar":     "jar",
			"lib/dep.jar": "dep",
		})

		// act
		err := s.Archive(context.Background(), ws, []string{"app.jar", "lib/dep.jar"})

		// assert
		require.NoError(t, err)
		entries, err := s.Root().List(context.Background(), "")
		require.NoError(t, err)
		names := make([]string, 0)
		for _, e := range entries {
			names = append(names, e.Name)
		}
		assert.ElementsMatch(t, []string{"app.jar", "lib"}, names)

		rc, err := s.Root().Open(context.Background(), "lib/dep.jar")
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, "dep", string(b))

		first, err := s.Delete(context.Background())
		require.NoError(t, err)
		second, err := s.Delete(context.Background())
		require.NoError(t, err)
		assert.True(t, first)
		assert.False(t, second)
	})
	t.Run("failure - interrupted re-archive leaves the previous archive whole", func(t *testing.T) {
		// arrange
		client := newInMemSFTPClient(t)
		s := NewSFTPStore(client, "/artifacts/stuff/1")
		v1 := writeWorkspace(t, map[string]string{"app.jar": "v1", "lib.jar": "lib-v1"})
		require.NoError(t, s.Archive(context.Background(), v1, []string{"app.jar", "lib.jar"}))
		v2 := writeWorkspace(t, map[string]string{"app.jar": "v2"})

		// act
		err := s.Archive(context.Background(), v2, []string{"app.jar", "lib.jar"})

		// assert
		require.Error(t, err)
		for name, want := range map[string]string{"app.jar": "v1", "lib.jar": "lib-v1"} {
			rc, err := s.Root().Open(context.Background(), name)
			require.NoError(t, err)
			b, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			assert.Equal(t, want, string(b))
		}
		siblings, err := client.ReadDir("/artifacts/stuff")
		require.NoError(t, err)
		require.Len(t, siblings, 1)
		assert.Equal(t, "1", siblings[0].Name())
	})
	t.Run("success - re-archive replaces the whole set", func(t *testing.T) {
		// arrange
		client := newInMemSFTPClient(t)
		s := NewSFTPStore(client, "/artifacts/stuff/1")
		require.NoError(t, s.Archive(context.Background(),
			writeWorkspace(t, map[string]string{"old.jar": "old"}), []string{"old.jar"}))

		// act
		err := s.Archive(context.Background(),
			writeWorkspace(t, map[string]string{"new.jar": "new"}), []string{"new.jar"})

		// assert
		require.NoError(t, err)
		entries, err := s.Root().List(context.Background(), "")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "new.jar", entries[0].Name)
		siblings, err := client.ReadDir("/artifacts/stuff")
		require.NoError(t, err)
		assert.Len(t, siblings, 1)
	})
	t.Run("success - factory accepts sftp storage hint", func(t *testing.T) {
		// arrange
		client := newInMemSFTPClient(t)
		factory := NewSFTPFactory(client, "/remote")
		j := build.NewJob("stuff", build.JobOptions{Storage: StorageSFTP})
		r := j.NewRecord()

		// act
		accepted := factory.Accepts(r)
		s, err := factory.Create(r)

		// assert
		require.NoError(t, err)
		assert.True(t, accepted)
		assert.Equal(t, "sftp:/remote/stuff/1", build.DescribeStore(s))
		assert.False(t, factory.Accepts(build.NewJob("other", build.JobOptions{}).NewRecord()))
	})
}
