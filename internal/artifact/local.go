package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/haatos/runkeeper/internal/build"
)

const StorageLocal = "local"

// LocalFactory binds records to directories under <dataDir>/artifacts.
type LocalFactory struct {
	dataDir string
}

func NewLocalFactory(dataDir string) *LocalFactory {
	return &LocalFactory{dataDir: dataDir}
}

func (f *LocalFactory) Accepts(r *build.Record) bool {
	s := r.Job().Storage()
	return s == "" || s == StorageLocal
}

func (f *LocalFactory) Create(r *build.Record) (build.ArtifactStore, error) {
	return NewLocalStore(f.Dir(r.Job().Name(), r.Number())), nil
}

// Dir is the directory holding the artifacts of job run number n.
func (f *LocalFactory) Dir(job string, n int64) string {
	return filepath.Join(f.dataDir, "artifacts", job, strconv.FormatInt(n, 10))
}

type LocalStore struct {
	dir string
	mu  sync.Mutex
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) String() string {
	return StorageLocal + ":" + s.dir
}

// Archive copies paths into a temporary sibling directory and swaps it in
// only once every file has been copied.
func (s *LocalStore) Archive(ctx context.Context, workspace string, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.dir), 0o755); err != nil {
		return err
	}
	tmp := s.dir + ".tmp-" + uuid.NewString()
	defer os.RemoveAll(tmp)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyFile(filepath.Join(workspace, filepath.FromSlash(p)), filepath.Join(tmp, filepath.FromSlash(p))); err != nil {
			return fmt.Errorf("err copying artifact %s: %w", p, err)
		}
	}

	old := ""
	if _, err := os.Stat(s.dir); err == nil {
		old = s.dir + ".old-" + uuid.NewString()
		if err := os.Rename(s.dir, old); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp, s.dir); err != nil {
		if old != "" {
			_ = os.Rename(old, s.dir)
		}
		return err
	}
	if old != "" {
		return os.RemoveAll(old)
	}
	return nil
}

func (s *LocalStore) Root() build.VirtualRoot {
	return localRoot{dir: s.dir}
}

func (s *LocalStore) Delete(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.dir); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return false, err
	}
	return true, nil
}

type localRoot struct {
	dir string
}

func (lr localRoot) path(name string) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(lr.dir, filepath.FromSlash(name)), nil
}

func (lr localRoot) List(ctx context.Context, dir string) ([]build.Entry, error) {
	p, err := lr.path(dir)
	if err != nil {
		return nil, err
	}
	des, err := os.ReadDir(p)
	if errors.Is(err, fs.ErrNotExist) && (dir == "" || dir == ".") {
		return []build.Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	entries := make([]build.Entry, 0, len(des))
	for _, de := range des {
		info, err := de.Info()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entryFromInfo(joinName(dir, de.Name()), info))
	}
	return entries, nil
}

func (lr localRoot) Stat(ctx context.Context, name string) (build.Entry, error) {
	p, err := lr.path(name)
	if err != nil {
		return build.Entry{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return build.Entry{}, err
	}
	return entryFromInfo(name, info), nil
}

func (lr localRoot) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	p, err := lr.path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
