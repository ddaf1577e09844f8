package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/haatos/runkeeper/internal/build"
)

const StorageSFTP = "sftp"

type SFTPConfig struct {
	Addr       string
	Username   string
	PrivateKey []byte
	Root       string
	Timeout    time.Duration
}

// DialSFTP opens an ssh connection and starts an sftp session on it. Closing
// the returned client does not close the ssh connection.
func DialSFTP(cfg SFTPConfig) (*sftp.Client, *ssh.Client, error) {
	signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("err parsing private key: %w", err)
	}
	cc := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.Timeout,
	}
	conn, err := ssh.Dial("tcp", cfg.Addr, cc)
	if err != nil {
		return nil, nil, fmt.Errorf("err dialing %s: %w", cfg.Addr, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("err starting sftp session: %w", err)
	}
	return client, conn, nil
}

// SFTPFactory binds records of jobs with storage "sftp" to directories
// under root on a remote host.
type SFTPFactory struct {
	client *sftp.Client
	root   string
}

func NewSFTPFactory(client *sftp.Client, root string) *SFTPFactory {
	return &SFTPFactory{client: client, root: root}
}

func (f *SFTPFactory) Accepts(r *build.Record) bool {
	return r.Job().Storage() == StorageSFTP
}

func (f *SFTPFactory) Create(r *build.Record) (build.ArtifactStore, error) {
	dir := path.Join(f.root, r.Job().Name(), strconv.FormatInt(r.Number(), 10))
	return NewSFTPStore(f.client, dir), nil
}

type SFTPStore struct {
	client *sftp.Client
	dir    string
	mu     sync.Mutex
}

func NewSFTPStore(client *sftp.Client, dir string) *SFTPStore {
	return &SFTPStore{client: client, dir: dir}
}

func (s *SFTPStore) String() string {
	return StorageSFTP + ":" + s.dir
}

// Archive uploads every file into a sibling directory and renames it into
// place once all uploads succeeded. Readers see either the previous archive
// or the new one, never a mix.
func (s *SFTPStore) Archive(ctx context.Context, workspace string, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	part := s.dir + ".part-" + uuid.NewString()
	if err := s.client.MkdirAll(part); err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			s.discard(part)
		}
	}()

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.upload(filepath.Join(workspace, filepath.FromSlash(p)), path.Join(part, p)); err != nil {
			return fmt.Errorf("err uploading artifact %s: %w", p, err)
		}
	}

	old := ""
	if _, err := s.client.Stat(s.dir); err == nil {
		old = s.dir + ".old-" + uuid.NewString()
		if err := s.client.Rename(s.dir, old); err != nil {
			return fmt.Errorf("err moving previous archive aside: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := s.client.Rename(part, s.dir); err != nil {
		if old != "" {
			_ = s.client.Rename(old, s.dir)
		}
		return fmt.Errorf("err renaming archive into place: %w", err)
	}
	committed = true
	if old != "" {
		s.discard(old)
	}
	return nil
}

// discard removes a staging or superseded directory; failures only leave
// garbage next to the archive.
func (s *SFTPStore) discard(dir string) {
	if err := s.removeAll(context.Background(), dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).WithField("dir", dir).Warn("err removing sftp directory")
	}
}

func (s *SFTPStore) upload(localPath, remotePath string) error {
	in, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := s.client.MkdirAll(path.Dir(remotePath)); err != nil {
		return err
	}
	out, err := s.client.Create(remotePath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (s *SFTPStore) Root() build.VirtualRoot {
	return sftpRoot{client: s.client, dir: s.dir}
}

func (s *SFTPStore) Delete(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.client.Stat(s.dir); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := s.removeAll(ctx, s.dir); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SFTPStore) removeAll(ctx context.Context, dir string) error {
	infos, err := s.client.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := path.Join(dir, info.Name())
		if info.IsDir() {
			if err := s.removeAll(ctx, p); err != nil {
				return err
			}
			continue
		}
		if err := s.client.Remove(p); err != nil {
			return err
		}
	}
	return s.client.RemoveDirectory(dir)
}

type sftpRoot struct {
	client *sftp.Client
	dir    string
}

func (sr sftpRoot) path(name string) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return path.Join(sr.dir, name), nil
}

func (sr sftpRoot) List(ctx context.Context, dir string) ([]build.Entry, error) {
	p, err := sr.path(dir)
	if err != nil {
		return nil, err
	}
	infos, err := sr.client.ReadDir(p)
	if errors.Is(err, fs.ErrNotExist) && (dir == "" || dir == ".") {
		return []build.Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	entries := make([]build.Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, entryFromInfo(joinName(dir, info.Name()), info))
	}
	return entries, nil
}

func (sr sftpRoot) Stat(ctx context.Context, name string) (build.Entry, error) {
	p, err := sr.path(name)
	if err != nil {
		return build.Entry{}, err
	}
	info, err := sr.client.Stat(p)
	if err != nil {
		return build.Entry{}, err
	}
	return entryFromInfo(name, info), nil
}

func (sr sftpRoot) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	p, err := sr.path(name)
	if err != nil {
		return nil, err
	}
	return sr.client.Open(p)
}
