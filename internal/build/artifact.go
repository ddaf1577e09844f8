package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"sync"
	"time"
)

// ArtifactStore persists and retrieves the artifacts of a single record.
type ArtifactStore interface {
	// Archive records the given workspace-relative paths. A failed attempt
	// must leave previously archived artifacts intact.
	Archive(ctx context.Context, workspace string, paths []string) error
	// Root gives access to the archived artifacts. Calls on the root may block.
	Root() VirtualRoot
	// Delete removes the artifacts and reports whether anything was deleted.
	Delete(ctx context.Context) (bool, error)
}

// VirtualRoot is a directory-like view over archived artifacts. Names are
// slash separated and relative to the root; "" or "." is the root itself.
type VirtualRoot interface {
	List(ctx context.Context, dir string) ([]Entry, error)
	Stat(ctx context.Context, name string) (Entry, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

type Entry struct {
	Name    string    `json:"name"`
	Dir     bool      `json:"dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

type StoreFactory interface {
	Accepts(r *Record) bool
	Create(r *Record) (ArtifactStore, error)
}

var ErrNoStoreFactory = errors.New("no artifact store factory accepts the record")

// StoreRegistry selects the store for a record from an ordered list of
// factories. The first accepting factory wins; the fallback binds otherwise.
type StoreRegistry struct {
	mu        sync.RWMutex
	factories []StoreFactory
	fallback  StoreFactory
}

func NewStoreRegistry(fallback StoreFactory) *StoreRegistry {
	return &StoreRegistry{fallback: fallback}
}

// Register appends f. Registering the same instance twice is ignored.
func (sr *StoreRegistry) Register(f StoreFactory) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if containsInstance(sr.factories, f) {
		return
	}
	sr.factories = append(sr.factories, f)
}

func (sr *StoreRegistry) Unregister(f StoreFactory) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.factories = slices.DeleteFunc(sr.factories, func(e StoreFactory) bool {
		return sameInstance(e, f)
	})
}

func (sr *StoreRegistry) Factories() []StoreFactory {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return slices.Clone(sr.factories)
}

// StoreFor creates a store for r from the first factory that accepts it.
func (sr *StoreRegistry) StoreFor(r *Record) (ArtifactStore, error) {
	for _, f := range sr.Factories() {
		if f.Accepts(r) {
			return f.Create(r)
		}
	}
	if sr.fallback == nil {
		return nil, ErrNoStoreFactory
	}
	return sr.fallback.Create(r)
}

// DescribeStore returns the descriptor passed to deletion listeners.
func DescribeStore(s ArtifactStore) string {
	if s == nil {
		return ""
	}
	if d, ok := s.(fmt.Stringer); ok {
		return d.String()
	}
	return fmt.Sprintf("%T", s)
}

func containsInstance[T any](list []T, v T) bool {
	return slices.ContainsFunc(list, func(e T) bool {
		return sameInstance(e, v)
	})
}

func sameInstance(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}
