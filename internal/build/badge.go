package build

import (
	"fmt"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"
)

const KeptBadgeIcon = "lock"

// Badge is a transient annotation rendered next to a record. A badge without
// an icon is invisible: it is reported by the API but never rendered.
type Badge struct {
	Icon    string `json:"icon"`
	Tooltip string `json:"tooltip"`
	Link    string `json:"link,omitempty"`
}

func (b Badge) Visible() bool {
	return b.Icon != ""
}

// BadgeProvider contributes badges for a record. Providers return an empty
// slice for records they do not apply to.
type BadgeProvider interface {
	BadgesFor(r *Record) []Badge
}

type BadgeProviderFunc func(r *Record) []Badge

func (f BadgeProviderFunc) BadgesFor(r *Record) []Badge {
	return f(r)
}

type BadgeRegistry struct {
	mu        sync.RWMutex
	providers []BadgeProvider
}

func NewBadgeRegistry() *BadgeRegistry {
	return &BadgeRegistry{}
}

// Register appends p. Registering the same instance twice is ignored.
func (br *BadgeRegistry) Register(p BadgeProvider) {
	br.mu.Lock()
	defer br.mu.Unlock()
	if containsInstance(br.providers, p) {
		return
	}
	br.providers = append(br.providers, p)
}

func (br *BadgeRegistry) Unregister(p BadgeProvider) {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.providers = slices.DeleteFunc(br.providers, func(e BadgeProvider) bool {
		return sameInstance(e, p)
	})
}

func (br *BadgeRegistry) Providers() []BadgeProvider {
	br.mu.RLock()
	defer br.mu.RUnlock()
	return slices.Clone(br.providers)
}

// BadgeSet computes badges on every read; nothing is cached or persisted.
type BadgeSet struct {
	guard    *Guard
	registry *BadgeRegistry
}

func NewBadgeSet(guard *Guard, registry *BadgeRegistry) *BadgeSet {
	if registry == nil {
		registry = NewBadgeRegistry()
	}
	return &BadgeSet{guard: guard, registry: registry}
}

func (bs *BadgeSet) Registry() *BadgeRegistry {
	return bs.registry
}

// For returns the kept badge, when applicable, followed by provider badges
// in registration order.
func (bs *BadgeSet) For(r *Record) []Badge {
	badges := make([]Badge, 0)
	if why := bs.whyKeep(r); why != "" {
		badges = append(badges, Badge{Icon: KeptBadgeIcon, Tooltip: why})
	}
	for _, p := range bs.registry.Providers() {
		badges = append(badges, provide(p, r)...)
	}
	return badges
}

func (bs *BadgeSet) whyKeep(r *Record) string {
	if bs.guard == nil {
		if r.Keep() {
			return ReasonMarkedKeep
		}
		return ""
	}
	return bs.guard.WhyKeep(r)
}

func provide(p BadgeProvider, r *Record) (badges []Badge) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithFields(log.Fields{
				"provider": fmt.Sprintf("%T", p),
				"record":   r.String(),
			}).Errorf("badge provider panicked: %v", rec)
			badges = nil
		}
	}()
	return p.BadgesFor(r)
}
