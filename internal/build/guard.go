package build

import "fmt"

const (
	ReasonStillRunning = "still running"
	ReasonArchiving    = "still archiving its artifacts"
	ReasonMarkedKeep   = "marked keep"
)

// DependencySource answers which downstream records protect r: records that
// consumed an artifact of r and whose job keeps its dependencies.
type DependencySource interface {
	ProtectingConsumersOf(r *Record) []*Record
}

type Decision struct {
	Allowed bool
	// Reason is plain text and may embed untrusted display names.
	Reason string
	// Protector is the downstream record that keeps r, if any.
	Protector *Record
}

// Guard decides whether a record may be destroyed.
type Guard struct {
	deps DependencySource
}

// NewGuard returns a guard; a nil source disables dependency protection.
func NewGuard(deps DependencySource) *Guard {
	return &Guard{deps: deps}
}

// CanDelete evaluates the deletion rules in order; the first denial wins.
func (g *Guard) CanDelete(r *Record) Decision {
	status, finalizing := r.state()
	return g.evaluate(r, status, finalizing)
}

func (g *Guard) evaluate(r *Record, status Status, finalizing bool) Decision {
	if status == StatusRunning {
		return Decision{Reason: ReasonStillRunning}
	}
	if finalizing {
		return Decision{Reason: ReasonArchiving}
	}
	if protector := g.protector(r, map[*Record]bool{r: true}); protector != nil {
		return Decision{Reason: keptBecauseOf(protector), Protector: protector}
	}
	return Decision{Allowed: true}
}

// WhyKeep explains why r is retained, or returns "" when it is not.
func (g *Guard) WhyKeep(r *Record) string {
	if r.Keep() {
		return ReasonMarkedKeep
	}
	if protector := g.Protector(r); protector != nil {
		return keptBecauseOf(protector)
	}
	return ""
}

// Protector returns the downstream record protecting r, or nil.
func (g *Guard) Protector(r *Record) *Record {
	return g.protector(r, map[*Record]bool{r: true})
}

// CanToggleKeep is false when r is retained only through a downstream record.
func (g *Guard) CanToggleKeep(r *Record) bool {
	if r.Status() != StatusCompleted {
		return false
	}
	return r.Keep() || g.Protector(r) == nil
}

// protector walks consumers depth first. Protection propagates: a consumer
// that is itself protected protects its producers.
func (g *Guard) protector(r *Record, visited map[*Record]bool) *Record {
	if g.deps == nil {
		return nil
	}
	for _, c := range g.deps.ProtectingConsumersOf(r) {
		if visited[c] || c.Deleted() {
			continue
		}
		visited[c] = true
		if c.Keep() || g.protector(c, visited) != nil {
			return c
		}
	}
	return nil
}

func keptBecauseOf(protector *Record) string {
	return fmt.Sprintf("kept because of %s", protector.FullDisplayName())
}
