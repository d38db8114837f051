// Package scales tracks live operational state for a running process as a
// tree of named stats addressable by hierarchical path.
//
// Static stats are declared up front with a collection:
//
//	web, _ := scales.Collection("/web",
//		scales.CounterSpec("errors"),
//		scales.DistributionSpec("latency"))
//	web.Counter("errors").Inc()
//
// Dynamically created objects (one per worker, connection, etc.) register
// child containers under a parent handle:
//
//	worker, _ := pool.NewChild("")
//	worker.NewGauge("state", scales.ConstantValue("idle"))
//
// Child leaves automatically feed any same-named aggregate stat declared on
// an ancestor (see SumSpec and HistogramSpec), so a pool can report a live
// summary over its workers without the workers coordinating.
//
// Exporters walk the tree with Each or Entries; see GraphitePusher,
// StatusHandler, WriteJSON and the Prometheus and go-metrics bridges.
package scales

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// A Node is an element of the stat tree: a *Container or one of the leaf
// stat types (*Counter, *Gauge, *Distribution, *SumAggregate,
// *HistogramAggregate).
type Node interface {
	// Path returns the node's "/"-joined path from the registry root.
	Path() string

	isNode()
}

// A DuplicateNameError is returned when registering a child under a name
// that already exists in the parent container. The tree is left unchanged.
type DuplicateNameError struct {
	Path string // parent container path
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("scales: name %q already registered under %q", e.Name, e.Path)
}

// A NotFoundError is returned when a path does not resolve to a node.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("scales: no stat registered at %q", e.Path)
}

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsDuplicateName reports whether err is a *DuplicateNameError.
func IsDuplicateName(err error) bool {
	_, ok := err.(*DuplicateNameError)
	return ok
}

// splitPath normalizes a path into its non-empty segments. "" and "/"
// address the root.
func splitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// A Registry is the root of a stat tree. Registration under a given parent
// is serialized; independent subtrees do not contend.
//
// Most programs use the process-wide default registry via the package-level
// functions; an explicit Registry exists for tests and embedding.
type Registry struct {
	root *Container

	// Aggregation edges, keyed by the aggregate leaf's path.
	edgeMu sync.Mutex
	edges  map[string][]*edge
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{edges: make(map[string][]*edge)}
	r.root = &Container{registry: r, path: "/", children: make(map[string]Node)}
	return r
}

// Root returns the registry's root container.
func (r *Registry) Root() *Container { return r.root }

// Init returns the container at path, creating intermediate containers as
// needed. It fails with a *DuplicateNameError if a path segment is already
// taken by a leaf stat.
func (r *Registry) Init(path string) (*Container, error) {
	return r.root.descend(splitPath(path))
}

// Collection creates the container at path and registers the given leaf
// specs in it. Registration of each leaf fails with a *DuplicateNameError
// if the name is taken; earlier leaves from the same call remain
// registered.
func (r *Registry) Collection(path string, specs ...Spec) (*Container, error) {
	c, err := r.Init(path)
	if err != nil {
		return nil, err
	}
	for _, spec := range specs {
		if err := spec.register(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Lookup resolves path to a registered node, failing with a
// *NotFoundError.
func (r *Registry) Lookup(path string) (Node, error) {
	var n Node = r.root
	for _, seg := range splitPath(path) {
		c, ok := n.(*Container)
		if !ok {
			return nil, &NotFoundError{Path: path}
		}
		n = c.child(seg)
		if n == nil {
			return nil, &NotFoundError{Path: path}
		}
	}
	return n, nil
}

var defaultRegistry atomic.Pointer[Registry]

func init() {
	defaultRegistry.Store(NewRegistry())
}

// DefaultRegistry returns the process-wide registry used by the
// package-level functions.
func DefaultRegistry() *Registry {
	return defaultRegistry.Load()
}

// Reset replaces the default registry with a fresh one. Handles obtained
// before the reset keep working against the old tree; Reset should only be
// called from tests.
func Reset() {
	defaultRegistry.Store(NewRegistry())
}

// Init returns the container at path in the default registry, creating it
// if needed.
func Init(path string) (*Container, error) {
	return DefaultRegistry().Init(path)
}

// Collection creates a container at path in the default registry and
// registers the given leaf specs in it.
func Collection(path string, specs ...Spec) (*Container, error) {
	return DefaultRegistry().Collection(path, specs...)
}

// Lookup resolves path in the default registry.
func Lookup(path string) (Node, error) {
	return DefaultRegistry().Lookup(path)
}

// Each walks the default registry's subtree at path. See Registry.Each.
func Each(path string, fn func(Entry) bool) error {
	return DefaultRegistry().Each(path, fn)
}

// Entries snapshots the default registry's subtree at path. See
// Registry.Entries.
func Entries(path string) ([]Entry, error) {
	return DefaultRegistry().Entries(path)
}
