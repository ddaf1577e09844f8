package build

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

type fakeExecutor struct {
	id          string
	workspace   string
	interrupted atomic.Int32
}

func (e *fakeExecutor) ID() string        { return e.id }
func (e *fakeExecutor) Workspace() string { return e.workspace }
func (e *fakeExecutor) Interrupt()        { e.interrupted.Add(1) }

type fakeStore struct {
	mu         sync.Mutex
	archived   []string
	archiveErr error
	deleteErr  error
	deleted    atomic.Bool
	deletes    atomic.Int32
}

func (s *fakeStore) Archive(ctx context.Context, workspace string, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.archiveErr != nil {
		return s.archiveErr
	}
	s.archived = append(s.archived, paths...)
	return nil
}

func (s *fakeStore) Root() VirtualRoot { return emptyRoot{} }

func (s *fakeStore) Delete(ctx context.Context) (bool, error) {
	s.deletes.Add(1)
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	return !s.deleted.Swap(true), nil
}

func (s *fakeStore) String() string { return "fake" }

type emptyRoot struct{}

func (emptyRoot) List(ctx context.Context, dir string) ([]Entry, error) { return nil, nil }
func (emptyRoot) Stat(ctx context.Context, name string) (Entry, error) {
	return Entry{}, errors.New("not found")
}
func (emptyRoot) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return nil, errors.New("not found")
}

type fakeFactory struct {
	accepts func(r *Record) bool
	stores  []*fakeStore
	mu      sync.Mutex
}

func (f *fakeFactory) Accepts(r *Record) bool {
	if f.accepts == nil {
		return true
	}
	return f.accepts(r)
}

func (f *fakeFactory) Create(r *Record) (ArtifactStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeStore{}
	f.stores = append(f.stores, s)
	return s, nil
}

// fakeDeps maps producers to consumers; only consumers whose job keeps
// dependencies are reported, like the real dependency graph.
type fakeDeps map[*Record][]*Record

func (d fakeDeps) ProtectingConsumersOf(r *Record) []*Record {
	consumers := make([]*Record, 0)
	for _, c := range d[r] {
		if c.Job().KeepDependencies() {
			consumers = append(consumers, c)
		}
	}
	return consumers
}

func completedRecord(j *Job) *Record {
	r := j.NewRecord()
	if err := r.Start(&fakeExecutor{id: "x"}); err != nil {
		panic(err)
	}
	if _, err := r.complete(ResultSuccess); err != nil {
		panic(err)
	}
	r.finish()
	return r
}

// blockingStore holds Archive until release is closed.
type blockingStore struct {
	fakeStore
	started chan struct{}
	release chan struct{}
}

func newBlockingStore() *blockingStore {
	return &blockingStore{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingStore) Archive(ctx context.Context, workspace string, paths []string) error {
	close(s.started)
	<-s.release
	return s.fakeStore.Archive(ctx, workspace, paths)
}

func (s *blockingStore) String() string { return "blocking" }

// eventLog records lifecycle notifications in the order they arrive.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) OnSaved(r *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "saved")
	return nil
}

func (l *eventLog) OnDeleted(r *Record, storage string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "deleted:"+storage)
	return nil
}

func (l *eventLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}
