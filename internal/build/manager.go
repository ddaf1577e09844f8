package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Manager drives record lifecycle operations that have side effects beyond
// the record itself: archival, store deletion and notifications.
type Manager struct {
	stores         *StoreRegistry
	bus            *Bus
	guard          *Guard
	badges         *BadgeSet
	archiveTimeout time.Duration
}

type ManagerOption func(*Manager)

// WithArchiveTimeout bounds each archival attempt. Zero means no bound.
func WithArchiveTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.archiveTimeout = d
	}
}

func WithBadgeRegistry(registry *BadgeRegistry) ManagerOption {
	return func(m *Manager) {
		m.badges = NewBadgeSet(m.guard, registry)
	}
}

func NewManager(stores *StoreRegistry, bus *Bus, guard *Guard, opts ...ManagerOption) *Manager {
	if bus == nil {
		bus = NewBus()
	}
	if guard == nil {
		guard = NewGuard(nil)
	}
	m := &Manager{
		stores: stores,
		bus:    bus,
		guard:  guard,
	}
	m.badges = NewBadgeSet(guard, nil)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Bus() *Bus {
	return m.bus
}

func (m *Manager) Guard() *Guard {
	return m.guard
}

func (m *Manager) Stores() *StoreRegistry {
	return m.stores
}

func (m *Manager) Badges(r *Record) []Badge {
	return m.badges.For(r)
}

func (m *Manager) BadgeRegistry() *BadgeRegistry {
	return m.badges.Registry()
}

// Start claims r for the executor behind h and announces it.
func (m *Manager) Start(r *Record, h ExecutorHandle) error {
	if err := r.Start(h); err != nil {
		return err
	}
	m.bus.FireSaved(r)
	return nil
}

// Complete moves r to Completed, archives its artifacts when the job declares
// any, and fires a saved notification. An archive failure is returned as a
// StoreFailure but never changes the completed status. Until Complete returns
// r cannot be deleted and WaitForCompletion keeps blocking.
func (m *Manager) Complete(ctx context.Context, r *Record, result Result) error {
	h, err := r.complete(result)
	if err != nil {
		return err
	}
	defer r.finish()

	var archiveErr error
	if patterns := r.Job().Artifacts(); len(patterns) > 0 && h != nil && h.Workspace() != "" {
		archiveErr = m.archive(ctx, r, h.Workspace(), patterns)
		if archiveErr != nil {
			log.WithError(archiveErr).WithField("record", r.String()).Error("err archiving artifacts")
		}
	}

	m.bus.FireSaved(r)
	return archiveErr
}

func (m *Manager) archive(ctx context.Context, r *Record, workspace string, patterns []string) error {
	paths, err := MatchArtifacts(workspace, patterns)
	if err != nil {
		return &StoreFailure{Op: "archive", Record: r.String(), Err: err}
	}
	if len(paths) == 0 {
		log.WithField("record", r.String()).Warn("no artifacts matched")
		return nil
	}

	s, err := m.bindStore(r)
	if err != nil {
		return err
	}

	if m.archiveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.archiveTimeout)
		defer cancel()
	}
	if err := s.Archive(ctx, workspace, paths); err != nil {
		return &StoreFailure{Op: "archive", Record: r.String(), Err: err}
	}
	return nil
}

// bindStore returns r's store, binding one from the registry on first use.
func (m *Manager) bindStore(r *Record) (ArtifactStore, error) {
	if s := r.ArtifactStore(); s != nil {
		return s, nil
	}
	if m.stores == nil {
		return nil, &StoreFailure{Op: "bind", Record: r.String(), Err: ErrNoStoreFactory}
	}
	s, err := m.stores.StoreFor(r)
	if err != nil {
		return nil, &StoreFailure{Op: "bind", Record: r.String(), Err: err}
	}
	if err := r.bindStore(s); err != nil {
		if errors.Is(err, ErrStoreBound) {
			return r.ArtifactStore(), nil
		}
		return nil, err
	}
	return s, nil
}

func (m *Manager) Interrupt(r *Record) error {
	return r.Interrupt()
}

func (m *Manager) MarkKeep(r *Record) (bool, error) {
	changed, err := r.MarkKeep()
	if err != nil {
		return false, err
	}
	if changed {
		m.bus.FireSaved(r)
	}
	return changed, nil
}

func (m *Manager) Unkeep(r *Record) (bool, error) {
	changed, err := r.Unkeep()
	if err != nil {
		return false, err
	}
	if changed {
		m.bus.FireSaved(r)
	}
	return changed, nil
}

func (m *Manager) CanDelete(r *Record) Decision {
	return m.guard.CanDelete(r)
}

// Delete destroys r. The guard check and the deleting mark are taken under
// the record lock; store I/O happens outside it.
func (m *Manager) Delete(ctx context.Context, r *Record) error {
	r.mu.Lock()
	switch {
	case r.deleted:
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", r, ErrRecordDeleted)
	case r.deleting:
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", r, ErrDeleteInProgress)
	case r.status == StatusNotStarted:
		r.mu.Unlock()
		return illegalState("delete", r, r.status)
	}
	if d := m.guard.evaluate(r, r.status, r.finalizing); !d.Allowed {
		r.mu.Unlock()
		return &DeletionDeniedError{Record: r.String(), Reason: d.Reason}
	}
	r.deleting = true
	s := r.store
	r.mu.Unlock()

	if s != nil {
		if _, err := s.Delete(ctx); err != nil {
			r.mu.Lock()
			r.deleting = false
			r.mu.Unlock()
			return &StoreFailure{Op: "delete", Record: r.String(), Err: err}
		}
	}

	r.mu.Lock()
	r.deleting = false
	r.deleted = true
	r.mu.Unlock()
	r.Job().remove(r)

	m.bus.FireDeleted(r, DescribeStore(s))
	return nil
}
