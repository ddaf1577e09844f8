package artifact

import (
	"archive/zip"
	"context"
	"io"

	"github.com/haatos/runkeeper/internal/build"
)

// WriteZip streams every file below root into a zip archive written to w.
func WriteZip(ctx context.Context, w io.Writer, root build.VirtualRoot) error {
	zw := zip.NewWriter(w)
	if err := zipDir(ctx, zw, root, ""); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func zipDir(ctx context.Context, zw *zip.Writer, root build.VirtualRoot, dir string) error {
	entries, err := root.List(ctx, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.Dir {
			if err := zipDir(ctx, zw, root, e.Name); err != nil {
				return err
			}
			continue
		}
		if err := copyToZip(ctx, zw, root, e); err != nil {
			return err
		}
	}
	return nil
}

func copyToZip(ctx context.Context, zw *zip.Writer, root build.VirtualRoot, e build.Entry) error {
	// open file to archive
	f, err := root.Open(ctx, e.Name)
	if err != nil {
		return err
	}
	defer f.Close()

	// open file in archive
	zf, err := zw.CreateHeader(&zip.FileHeader{
		Name:     e.Name,
		Method:   zip.Deflate,
		Modified: e.ModTime,
	})
	if err != nil {
		return err
	}

	// copy file to archive
	_, err = io.Copy(zf, f)
	return err
}
