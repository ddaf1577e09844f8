// Package depgraph records which builds consumed artifacts of which other
// builds and answers dependency protection queries from those facts.
package depgraph

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/haatos/runkeeper/internal/build"
)

var ErrSelfLink = errors.New("a record cannot consume its own artifacts")

// Link is one usage fact: Consumer copied Artifact from Producer.
// ProducerName and ConsumerName are the full display names when the fact
// was recorded; later renames do not change them.
type Link struct {
	Producer     *build.Record
	Consumer     *build.Record
	ProducerName string
	ConsumerName string
	Artifact     string
}

type edgeKey struct {
	from, to int64
}

// Graph is a directed producer -> consumer graph over live records.
type Graph struct {
	mu      sync.RWMutex
	g       *simple.DirectedGraph
	ids     map[*build.Record]int64
	records map[int64]*build.Record
	links   map[edgeKey][]Link
}

func New() *Graph {
	return &Graph{
		g:       simple.NewDirectedGraph(),
		ids:     make(map[*build.Record]int64),
		records: make(map[int64]*build.Record),
		links:   make(map[edgeKey][]Link),
	}
}

// Link records a usage fact. Recording the same fact twice is a no-op.
// Facts about deleted records are refused with build.ErrRecordDeleted.
func (dg *Graph) Link(l Link) error {
	if l.Producer == nil || l.Consumer == nil {
		return errors.New("link requires a producer and a consumer")
	}
	if l.Producer == l.Consumer {
		return ErrSelfLink
	}
	if err := deletedErr(l); err != nil {
		return err
	}
	if l.ProducerName == "" {
		l.ProducerName = l.Producer.FullDisplayName()
	}
	if l.ConsumerName == "" {
		l.ConsumerName = l.Consumer.FullDisplayName()
	}

	// record locks are never taken while mu is held
	dg.mu.Lock()
	from, to := dg.node(l.Producer), dg.node(l.Consumer)
	key := edgeKey{from: from, to: to}
	if !slices.ContainsFunc(dg.links[key], func(e Link) bool { return e.Artifact == l.Artifact }) {
		if !dg.g.HasEdgeFromTo(from, to) {
			dg.g.SetEdge(dg.g.NewEdge(dg.g.Node(from), dg.g.Node(to)))
		}
		dg.links[key] = append(dg.links[key], l)
	}
	dg.mu.Unlock()

	// a deletion finishing in between has already run Forget
	if err := deletedErr(l); err != nil {
		if l.Producer.Deleted() {
			dg.Forget(l.Producer)
		}
		if l.Consumer.Deleted() {
			dg.Forget(l.Consumer)
		}
		return err
	}
	return nil
}

func deletedErr(l Link) error {
	for _, r := range []*build.Record{l.Producer, l.Consumer} {
		if r.Deleted() {
			return fmt.Errorf("%s: %w", r, build.ErrRecordDeleted)
		}
	}
	return nil
}

func (dg *Graph) node(r *build.Record) int64 {
	if id, ok := dg.ids[r]; ok {
		return id
	}
	n := dg.g.NewNode()
	dg.g.AddNode(n)
	dg.ids[r] = n.ID()
	dg.records[n.ID()] = r
	return n.ID()
}

// Consumers returns the records that directly consumed artifacts of r.
func (dg *Graph) Consumers(r *build.Record) []*build.Record {
	dg.mu.RLock()
	defer dg.mu.RUnlock()
	id, ok := dg.ids[r]
	if !ok {
		return []*build.Record{}
	}
	return dg.collect(dg.g.From(id))
}

// Producers returns the records r consumed artifacts from.
func (dg *Graph) Producers(r *build.Record) []*build.Record {
	dg.mu.RLock()
	defer dg.mu.RUnlock()
	id, ok := dg.ids[r]
	if !ok {
		return []*build.Record{}
	}
	return dg.collect(dg.g.To(id))
}

// ProtectingConsumersOf implements build.DependencySource: direct consumers
// whose job keeps its dependencies.
func (dg *Graph) ProtectingConsumersOf(r *build.Record) []*build.Record {
	consumers := dg.Consumers(r)
	return slices.DeleteFunc(consumers, func(c *build.Record) bool {
		return !c.Job().KeepDependencies()
	})
}

// Downstream returns every record reachable from r, nearest first.
func (dg *Graph) Downstream(r *build.Record) []*build.Record {
	dg.mu.RLock()
	defer dg.mu.RUnlock()
	id, ok := dg.ids[r]
	if !ok {
		return []*build.Record{}
	}

	downstream := make([]*build.Record, 0)
	bf := traverse.BreadthFirst{
		Visit: func(n graph.Node) {
			if n.ID() != id {
				downstream = append(downstream, dg.records[n.ID()])
			}
		},
	}
	bf.Walk(dg.g, dg.g.Node(id), nil)
	return downstream
}

// Links returns the usage facts r takes part in, as producer or consumer.
func (dg *Graph) Links(r *build.Record) []Link {
	dg.mu.RLock()
	defer dg.mu.RUnlock()
	links := make([]Link, 0)
	id, ok := dg.ids[r]
	if !ok {
		return links
	}
	for key, ls := range dg.links {
		if key.from == id || key.to == id {
			links = append(links, ls...)
		}
	}
	slices.SortFunc(links, compareLinks)
	return links
}

// Forget drops r and every link touching it.
func (dg *Graph) Forget(r *build.Record) {
	dg.mu.Lock()
	defer dg.mu.Unlock()
	id, ok := dg.ids[r]
	if !ok {
		return
	}
	for key := range dg.links {
		if key.from == id || key.to == id {
			delete(dg.links, key)
		}
	}
	dg.g.RemoveNode(id)
	delete(dg.ids, r)
	delete(dg.records, id)
}

// OnSaved is a no-op; links are recorded by the steps that consume artifacts.
func (dg *Graph) OnSaved(r *build.Record) error {
	return nil
}

func (dg *Graph) OnDeleted(r *build.Record, storage string) error {
	dg.Forget(r)
	return nil
}

func (dg *Graph) collect(it graph.Nodes) []*build.Record {
	records := make([]*build.Record, 0, it.Len())
	for it.Next() {
		records = append(records, dg.records[it.Node().ID()])
	}
	slices.SortFunc(records, compareRecords)
	return records
}

func compareRecords(a, b *build.Record) int {
	return cmp.Or(
		strings.Compare(a.Job().Name(), b.Job().Name()),
		cmp.Compare(a.Number(), b.Number()),
	)
}

func compareLinks(a, b Link) int {
	return cmp.Or(
		compareRecords(a.Producer, b.Producer),
		compareRecords(a.Consumer, b.Consumer),
		strings.Compare(a.Artifact, b.Artifact),
	)
}
