package graph

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// ChangeKind identifies the mutation that produced a Change.
type ChangeKind string

// Change kinds.
const (
	NodeAdded    ChangeKind = "node_added"
	NodeMoved    ChangeKind = "node_moved"
	NodeUpdated  ChangeKind = "node_updated"
	NodeDeleted  ChangeKind = "node_deleted"
	Connected    ChangeKind = "connected"
	Disconnected ChangeKind = "disconnected"
	Replaced     ChangeKind = "replaced"
)

// Change describes one successful mutation. Silent no-ops produce no Change.
type Change struct {
	Kind         ChangeKind
	NodeID       string
	ConnectionID string
}

// Graph is the mutable workflow graph edited by the canvas.
//
// Mutations are expected to come from a single writer (the interaction
// path). The internal lock only makes concurrent readers, such as a
// debounced auto-save snapshotting from a timer goroutine, safe.
type Graph struct {
	mu        sync.RWMutex
	catalog   *Catalog
	nodes     map[string]*Node
	order     []string // node insertion order
	conns     []Connection
	newID     func() string
	listeners []func(Change)
}

// Option configures a Graph.
type Option func(*Graph)

// WithCatalog sets the node type catalog. Default: DefaultCatalog().
func WithCatalog(c *Catalog) Option {
	return func(g *Graph) {
		if c != nil {
			g.catalog = c
		}
	}
}

// WithIDGenerator overrides how node and connection ids are minted.
// Default: random UUIDs.
func WithIDGenerator(fn func() string) Option {
	return func(g *Graph) {
		if fn != nil {
			g.newID = fn
		}
	}
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		catalog: DefaultCatalog(),
		nodes:   make(map[string]*Node),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Catalog returns the node type catalog.
func (g *Graph) Catalog() *Catalog {
	return g.catalog
}

// OnChange registers a listener invoked after every successful mutation.
// Listeners run synchronously on the mutating goroutine, after the graph
// lock has been released, so they may read the graph.
func (g *Graph) OnChange(fn func(Change)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

func (g *Graph) notify(c Change) {
	g.mu.RLock()
	listeners := slices.Clone(g.listeners)
	g.mu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// AddNode places a new node of the given type at pos, with the type's
// default ports and configuration. Unknown types fall back to one generic
// input and output. AddNode cannot fail.
func (g *Graph) AddNode(typ string, pos Point) Node {
	def := g.catalog.Lookup(typ)
	n := &Node{
		ID:       g.newID(),
		Type:     typ,
		Position: pos,
		Inputs:   def.Inputs,
		Outputs:  def.Outputs,
		Config:   def.Defaults,
		Enabled:  true,
	}
	if n.Config == nil {
		n.Config = make(map[string]any)
	}

	g.mu.Lock()
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	out := n.Clone()
	g.mu.Unlock()

	g.notify(Change{Kind: NodeAdded, NodeID: n.ID})
	return out
}

// MoveNode translates a node by delta. Unknown ids are ignored.
func (g *Graph) MoveNode(id string, delta Point) bool {
	g.mu.Lock()
	n, ok := g.nodes[id]
	if ok {
		n.Position = n.Position.Add(delta)
	}
	g.mu.Unlock()

	if ok {
		g.notify(Change{Kind: NodeMoved, NodeID: id})
	}
	return ok
}

// SetConfig sets one configuration key on a node. Unknown ids are ignored.
func (g *Graph) SetConfig(id, key string, value any) bool {
	return g.update(id, func(n *Node) {
		if n.Config == nil {
			n.Config = make(map[string]any)
		}
		n.Config[key] = value
	})
}

// SetEnabled toggles whether a node takes part in execution.
func (g *Graph) SetEnabled(id string, enabled bool) bool {
	return g.update(id, func(n *Node) { n.Enabled = enabled })
}

// Resize sets an explicit node size.
func (g *Graph) Resize(id string, size Size) bool {
	return g.update(id, func(n *Node) { n.Size = &size })
}

func (g *Graph) update(id string, fn func(*Node)) bool {
	g.mu.Lock()
	n, ok := g.nodes[id]
	if ok {
		fn(n)
	}
	g.mu.Unlock()

	if ok {
		g.notify(Change{Kind: NodeUpdated, NodeID: id})
	}
	return ok
}

// DeleteNode removes a node and every connection it takes part in.
func (g *Graph) DeleteNode(id string) bool {
	g.mu.Lock()
	if _, ok := g.nodes[id]; !ok {
		g.mu.Unlock()
		return false
	}
	delete(g.nodes, id)
	for i, nid := range g.order {
		if nid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	kept := g.conns[:0]
	for _, c := range g.conns {
		if !c.Touches(id) {
			kept = append(kept, c)
		}
	}
	g.conns = kept
	g.mu.Unlock()

	g.notify(Change{Kind: NodeDeleted, NodeID: id})
	return true
}

// Connect wires srcPort on srcID to dstPort on dstID.
//
// Invalid attempts (self loops, missing nodes or ports, input-to-output,
// duplicates) are silent no-ops: the returned bool is false and the graph
// is unchanged.
func (g *Graph) Connect(srcID, srcPort, dstID, dstPort string) (Connection, bool) {
	g.mu.Lock()
	if err := g.validateLocked(srcID, srcPort, dstID, dstPort); err != nil {
		g.mu.Unlock()
		return Connection{}, false
	}
	c := Connection{
		ID:         g.newID(),
		SourceID:   srcID,
		SourcePort: srcPort,
		TargetID:   dstID,
		TargetPort: dstPort,
	}
	g.conns = append(g.conns, c)
	g.mu.Unlock()

	g.notify(Change{Kind: Connected, ConnectionID: c.ID})
	return c, true
}

// ValidateConnection reports why Connect would ignore the given arguments,
// or nil if it would succeed.
func (g *Graph) ValidateConnection(srcID, srcPort, dstID, dstPort string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.validateLocked(srcID, srcPort, dstID, dstPort)
}

func (g *Graph) validateLocked(srcID, srcPort, dstID, dstPort string) error {
	if srcID == dstID {
		return &ValidationError{Subject: srcID, Err: ErrSelfLoop}
	}
	src, ok := g.nodes[srcID]
	if !ok {
		return &ValidationError{Subject: srcID, Err: ErrUnknownNode}
	}
	dst, ok := g.nodes[dstID]
	if !ok {
		return &ValidationError{Subject: dstID, Err: ErrUnknownNode}
	}
	if !src.HasPort(srcPort, PolarityOutput) {
		return &ValidationError{Subject: fmt.Sprintf("%s.%s (output)", srcID, srcPort), Err: ErrUnknownPort}
	}
	if !dst.HasPort(dstPort, PolarityInput) {
		return &ValidationError{Subject: fmt.Sprintf("%s.%s (input)", dstID, dstPort), Err: ErrUnknownPort}
	}
	for _, c := range g.conns {
		if c.sameEndpoints(srcID, srcPort, dstID, dstPort) {
			return &ValidationError{Subject: c.ID, Err: ErrDuplicate}
		}
	}
	return nil
}

// Disconnect removes a connection by id. Unknown ids are ignored.
func (g *Graph) Disconnect(connectionID string) bool {
	g.mu.Lock()
	idx := -1
	for i, c := range g.conns {
		if c.ID == connectionID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		g.conns = append(g.conns[:idx], g.conns[idx+1:]...)
	}
	g.mu.Unlock()

	if idx < 0 {
		return false
	}
	g.notify(Change{Kind: Disconnected, ConnectionID: connectionID})
	return true
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

// Nodes returns copies of all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id].Clone())
	}
	return out
}

// Connections returns all connections in insertion order.
func (g *Graph) Connections() []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Connection(nil), g.conns...)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
