package artifact

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteZip(t *testing.T) {
	t.Run("success - nested files are zipped with relative names", func(t *testing.T) {
		// arrange
		ws := writeWorkspace(t, map[string]string{
			"app.jar":     "jar",
			"lib/dep.jar": "dep",
		})
		s := NewLocalStore(t.TempDir())
		require.NoError(t, s.Archive(context.Background(), ws, []string{"app.jar", "lib/dep.jar"}))
		var buf bytes.Buffer

		// act
		err := WriteZip(context.Background(), &buf, s.Root())

		// assert
		require.NoError(t, err)
		zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		require.NoError(t, err)
		contents := make(map[string]string)
		for _, f := range zr.File {
			rc, err := f.Open()
			require.NoError(t, err)
			b, _ := io.ReadAll(rc)
			rc.Close()
			contents[f.Name] = string(b)
		}
		assert.Equal(t, map[string]string{"app.jar": "jar", "lib/dep.jar": "dep"}, contents)
	})
}
