package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/haatos/runkeeper/internal/build"
)

var ErrInvalidName = errors.New("invalid artifact name")

// cleanName validates a slash separated name relative to a root. The root
// itself is "".
func cleanName(name string) (string, error) {
	if name == "" || name == "." {
		return ".", nil
	}
	if !fs.ValidPath(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

func joinName(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return path.Join(dir, name)
}

func entryFromInfo(name string, info fs.FileInfo) build.Entry {
	e := build.Entry{
		Name:    name,
		Dir:     info.IsDir(),
		ModTime: info.ModTime().UTC(),
	}
	if !e.Dir {
		e.Size = info.Size()
	}
	return e
}
