package scales

import (
	"sort"
	"strconv"
	"sync"
)

// A Container is a named node in the stat tree holding child stats and
// sub-containers. Child names are unique within a container; the path of a
// registered node never changes.
//
// A Container is also the handle returned by registration calls: leaf
// constructors add children to it, and the typed accessors (Counter, Gauge,
// Distribution, ...) retrieve them.
type Container struct {
	registry *Registry
	parent   *Container
	name     string
	path     string

	mu       sync.Mutex
	children map[string]Node
	nextID   uint64
}

// Path returns the container's "/"-joined absolute path. The root's path
// is "/".
func (c *Container) Path() string { return c.path }

func (c *Container) isNode() {}

// add registers n under name, failing if the name is taken.
func (c *Container) add(name string, n Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.children[name]; ok {
		return &DuplicateNameError{Path: c.path, Name: name}
	}
	c.children[name] = n
	return nil
}

func (c *Container) child(name string) Node {
	c.mu.Lock()
	n := c.children[name]
	c.mu.Unlock()
	return n
}

// childNames returns the current child names in sorted order.
func (c *Container) childNames() []string {
	c.mu.Lock()
	names := make([]string, 0, len(c.children))
	for name := range c.children {
		names = append(names, name)
	}
	c.mu.Unlock()
	sort.Strings(names)
	return names
}

// descend walks (creating as needed) the chain of sub-containers named by
// segs.
func (c *Container) descend(segs []string) (*Container, error) {
	cur := c
	for _, seg := range segs {
		cur.mu.Lock()
		n, ok := cur.children[seg]
		if !ok {
			sub := &Container{
				registry: cur.registry,
				parent:   cur,
				name:     seg,
				path:     joinPath(cur.path, seg),
				children: make(map[string]Node),
			}
			cur.children[seg] = sub
			n = sub
		}
		cur.mu.Unlock()
		sub, ok := n.(*Container)
		if !ok {
			return nil, &DuplicateNameError{Path: cur.path, Name: seg}
		}
		cur = sub
	}
	return cur, nil
}

// NewChild creates a sub-container under c. An empty segment is replaced
// with an auto-incrementing numeric one, which is how per-instance children
// (one per worker goroutine and the like) get distinct paths without
// coordinating.
func (c *Container) NewChild(segment string) (*Container, error) {
	c.mu.Lock()
	if segment == "" {
		c.nextID++
		segment = strconv.FormatUint(c.nextID, 10)
	}
	if _, ok := c.children[segment]; ok {
		c.mu.Unlock()
		return nil, &DuplicateNameError{Path: c.path, Name: segment}
	}
	sub := &Container{
		registry: c.registry,
		parent:   c,
		name:     segment,
		path:     joinPath(c.path, segment),
		children: make(map[string]Node),
	}
	c.children[segment] = sub
	c.mu.Unlock()
	return sub, nil
}

// NewCounter registers a Counter leaf under c.
//
// Leaves bind to aggregates at registration time: if an ancestor container
// holds a SumAggregate with the same name, the new leaf's updates feed it.
// An aggregate declared after the leaf does not capture it.
func (c *Container) NewCounter(name string) (*Counter, error) {
	ctr := &Counter{leafNode: leafNode{name: name, path: joinPath(c.path, name)}}
	if err := c.add(name, ctr); err != nil {
		return nil, err
	}
	c.registry.bindLeaf(c, name, &ctr.edge)
	return ctr, nil
}

// NewGauge registers a Gauge leaf under c reading its value from src.
// Like counters, gauges bind to a same-named ancestor aggregate, except
// that only discrete Set calls propagate (a callable source has no
// observable transitions).
func (c *Container) NewGauge(name string, src ValueSource) (*Gauge, error) {
	g := &Gauge{leafNode: leafNode{name: name, path: joinPath(c.path, name)}}
	if src == nil {
		src = ConstantValue(nil)
	}
	g.src.Store(sourceVal{src})
	if err := c.add(name, g); err != nil {
		return nil, err
	}
	c.registry.bindLeaf(c, name, &g.edge)
	return g, nil
}

// NewDistribution registers a Distribution leaf under c.
func (c *Container) NewDistribution(name string) (*Distribution, error) {
	d := newDistribution(name, joinPath(c.path, name))
	if err := c.add(name, d); err != nil {
		return nil, err
	}
	return d, nil
}

// NewSumAggregate registers a Sum aggregate leaf under c. Same-named
// counter and gauge leaves registered later in the subtree feed it.
func (c *Container) NewSumAggregate(name string) (*SumAggregate, error) {
	s := &SumAggregate{leafNode: leafNode{name: name, path: joinPath(c.path, name)}}
	if err := c.add(name, s); err != nil {
		return nil, err
	}
	return s, nil
}

// NewHistogramAggregate registers a Histogram aggregate leaf under c. It
// maintains a value-to-count mapping over the current values of same-named
// gauge leaves registered later in the subtree.
func (c *Container) NewHistogramAggregate(name string) (*HistogramAggregate, error) {
	h := &HistogramAggregate{
		leafNode: leafNode{name: name, path: joinPath(c.path, name)},
		counts:   make(map[string]int64),
	}
	if err := c.add(name, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Remove unregisters the direct child with the given name and its
// descendants, unwinding any aggregation edges so ancestor summaries no
// longer include the removed leaves. Removing an unknown name fails with a
// *NotFoundError.
func (c *Container) Remove(name string) error {
	c.mu.Lock()
	n, ok := c.children[name]
	if !ok {
		c.mu.Unlock()
		return &NotFoundError{Path: joinPath(c.path, name)}
	}
	delete(c.children, name)
	c.mu.Unlock()

	c.registry.unwind(n)
	return nil
}

// Counter returns the counter leaf registered under name, or nil if there
// is none (or the name refers to another kind of node).
func (c *Container) Counter(name string) *Counter {
	n, _ := c.child(name).(*Counter)
	return n
}

// Gauge returns the gauge leaf registered under name, or nil.
func (c *Container) Gauge(name string) *Gauge {
	n, _ := c.child(name).(*Gauge)
	return n
}

// Distribution returns the distribution leaf registered under name, or nil.
func (c *Container) Distribution(name string) *Distribution {
	n, _ := c.child(name).(*Distribution)
	return n
}

// SumAggregate returns the sum aggregate registered under name, or nil.
func (c *Container) SumAggregate(name string) *SumAggregate {
	n, _ := c.child(name).(*SumAggregate)
	return n
}

// HistogramAggregate returns the histogram aggregate registered under
// name, or nil.
func (c *Container) HistogramAggregate(name string) *HistogramAggregate {
	n, _ := c.child(name).(*HistogramAggregate)
	return n
}

// A Spec declares a leaf stat for Collection.
type Spec struct {
	name     string
	register func(c *Container) error
}

// Name returns the leaf name the spec will register.
func (s Spec) Name() string { return s.name }

// CounterSpec declares a Counter leaf.
func CounterSpec(name string) Spec {
	return Spec{name: name, register: func(c *Container) error {
		_, err := c.NewCounter(name)
		return err
	}}
}

// GaugeSpec declares a Gauge leaf with the given source. A nil source
// reads as nil until Set is called.
func GaugeSpec(name string, src ValueSource) Spec {
	return Spec{name: name, register: func(c *Container) error {
		_, err := c.NewGauge(name, src)
		return err
	}}
}

// DistributionSpec declares a Distribution leaf.
func DistributionSpec(name string) Spec {
	return Spec{name: name, register: func(c *Container) error {
		_, err := c.NewDistribution(name)
		return err
	}}
}

// SumSpec declares a Sum aggregate leaf.
func SumSpec(name string) Spec {
	return Spec{name: name, register: func(c *Container) error {
		_, err := c.NewSumAggregate(name)
		return err
	}}
}

// HistogramSpec declares a Histogram aggregate leaf.
func HistogramSpec(name string) Spec {
	return Spec{name: name, register: func(c *Container) error {
		_, err := c.NewHistogramAggregate(name)
		return err
	}}
}
