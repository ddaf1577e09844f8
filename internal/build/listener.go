package build

import (
	"fmt"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Listener observes record lifecycle events. Returned errors are logged and
// never reach the caller that triggered the event.
type Listener interface {
	OnSaved(r *Record) error
	OnDeleted(r *Record, storage string) error
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Saved   func(r *Record) error
	Deleted func(r *Record, storage string) error
}

func (lf *ListenerFuncs) OnSaved(r *Record) error {
	if lf.Saved == nil {
		return nil
	}
	return lf.Saved(r)
}

func (lf *ListenerFuncs) OnDeleted(r *Record, storage string) error {
	if lf.Deleted == nil {
		return nil
	}
	return lf.Deleted(r, storage)
}

// Bus dispatches lifecycle events synchronously in registration order.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Register(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if containsInstance(b.listeners, l) {
		return
	}
	b.listeners = append(b.listeners, l)
}

func (b *Bus) Unregister(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = slices.DeleteFunc(b.listeners, func(e Listener) bool {
		return sameInstance(e, l)
	})
}

func (b *Bus) Listeners() []Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.listeners)
}

func (b *Bus) FireSaved(r *Record) {
	for _, l := range b.Listeners() {
		dispatch(l, "saved", r, func() error { return l.OnSaved(r) })
	}
}

func (b *Bus) FireDeleted(r *Record, storage string) {
	for _, l := range b.Listeners() {
		dispatch(l, "deleted", r, func() error { return l.OnDeleted(r, storage) })
	}
}

func dispatch(l Listener, event string, r *Record, call func() error) {
	defer func() {
		if p := recover(); p != nil {
			log.WithFields(log.Fields{
				"listener": fmt.Sprintf("%T", l),
				"event":    event,
				"record":   r.String(),
			}).Errorf("listener panicked: %v", p)
		}
	}()
	if err := call(); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"listener": fmt.Sprintf("%T", l),
			"event":    event,
			"record":   r.String(),
		}).Error("err notifying listener")
	}
}
