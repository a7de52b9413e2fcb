package graph

import (
	"errors"
	"fmt"
)

// Snapshot is a detached, deep copy of a graph's nodes and connections.
// Versions, exports and execution runs all work from snapshots so they
// never observe a half-applied gesture.
type Snapshot struct {
	Nodes       []Node       `json:"nodes" yaml:"nodes"`
	Connections []Connection `json:"connections" yaml:"connections"`
}

// Snapshot copies the current graph.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Snapshot{
		Nodes:       make([]Node, 0, len(g.order)),
		Connections: append([]Connection(nil), g.conns...),
	}
	for _, id := range g.order {
		s.Nodes = append(s.Nodes, g.nodes[id].Clone())
	}
	return s
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	c := Snapshot{
		Nodes:       make([]Node, 0, len(s.Nodes)),
		Connections: append([]Connection(nil), s.Connections...),
	}
	for _, n := range s.Nodes {
		c.Nodes = append(c.Nodes, n.Clone())
	}
	return c
}

// Node finds a node in the snapshot by id.
func (s Snapshot) Node(id string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Validate checks every graph invariant. All violations are joined.
func (s Snapshot) Validate() error {
	var errs []error

	nodes := make(map[string]*Node, len(s.Nodes))
	for i := range s.Nodes {
		n := &s.Nodes[i]
		if n.ID == "" {
			errs = append(errs, &ValidationError{Subject: fmt.Sprintf("node #%d", i), Err: ErrEmptyID})
			continue
		}
		if _, dup := nodes[n.ID]; dup {
			errs = append(errs, &ValidationError{Subject: n.ID, Err: ErrDuplicateNodeID})
			continue
		}
		nodes[n.ID] = n
	}

	seenIDs := make(map[string]bool, len(s.Connections))
	seenEnds := make(map[Connection]bool, len(s.Connections))
	for i, c := range s.Connections {
		subject := c.ID
		if subject == "" {
			errs = append(errs, &ValidationError{Subject: fmt.Sprintf("connection #%d", i), Err: ErrEmptyID})
			continue
		}
		if seenIDs[c.ID] {
			errs = append(errs, &ValidationError{Subject: subject, Err: ErrDuplicate})
			continue
		}
		seenIDs[c.ID] = true

		ends := Connection{SourceID: c.SourceID, SourcePort: c.SourcePort, TargetID: c.TargetID, TargetPort: c.TargetPort}
		switch src, dst := nodes[c.SourceID], nodes[c.TargetID]; {
		case c.SourceID == c.TargetID:
			errs = append(errs, &ValidationError{Subject: subject, Err: ErrSelfLoop})
		case src == nil || dst == nil:
			errs = append(errs, &ValidationError{Subject: subject, Err: ErrUnknownNode})
		case !src.HasPort(c.SourcePort, PolarityOutput) || !dst.HasPort(c.TargetPort, PolarityInput):
			errs = append(errs, &ValidationError{Subject: subject, Err: ErrUnknownPort})
		case seenEnds[ends]:
			errs = append(errs, &ValidationError{Subject: subject, Err: ErrDuplicate})
		default:
			seenEnds[ends] = true
		}
	}

	return errors.Join(errs...)
}

// Replace swaps the whole graph for the snapshot's contents. The snapshot
// is validated first; on error the graph is left untouched.
func (g *Graph) Replace(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s = s.Clone()

	g.mu.Lock()
	g.nodes = make(map[string]*Node, len(s.Nodes))
	g.order = make([]string, 0, len(s.Nodes))
	for i := range s.Nodes {
		n := &s.Nodes[i]
		if n.Config == nil {
			n.Config = make(map[string]any)
		}
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}
	g.conns = s.Connections
	g.mu.Unlock()

	g.notify(Change{Kind: Replaced})
	return nil
}
