package model

import (
	"strings"
	"time"
)

// Node is a single entity in the relationship graph.
type Node struct {
	ID   string
	Name string
	Kind EntityKind
}

// Edge is a typed, confidence-scored relation between two nodes.
// Source and Target always reference nodes present in the same graph.
type Edge struct {
	Source     string
	Target     string
	Type       RelationType
	Confidence float64
}

// Graph is an in-memory directed relationship graph, rebuilt on demand.
type Graph struct {
	Nodes   map[string]*Node
	Edges   []*Edge
	BuiltAt time.Time
}

func NewGraph(builtAt time.Time) *Graph {
	return &Graph{
		Nodes:   make(map[string]*Node),
		BuiltAt: builtAt,
	}
}

// NodeID normalizes an entity name into a node identifier.
func NodeID(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AddNode inserts a node, keeping the first kind seen for a name.
func (g *Graph) AddNode(name string, kind EntityKind) *Node {
	id := NodeID(name)
	if n, ok := g.Nodes[id]; ok {
		return n
	}
	n := &Node{ID: id, Name: name, Kind: kind}
	g.Nodes[id] = n
	return n
}

// AddEdge inserts an edge. Both endpoints must already exist in the graph;
// an edge to an absent node is dropped.
func (g *Graph) AddEdge(source, target string, typ RelationType, confidence float64) bool {
	src, ok := g.Nodes[NodeID(source)]
	if !ok {
		return false
	}
	dst, ok := g.Nodes[NodeID(target)]
	if !ok {
		return false
	}
	g.Edges = append(g.Edges, &Edge{
		Source:     src.ID,
		Target:     dst.ID,
		Type:       typ,
		Confidence: confidence,
	})
	return true
}

// Lookup finds a node by name, case-insensitive.
func (g *Graph) Lookup(name string) *Node {
	return g.Nodes[NodeID(name)]
}

// EdgesFrom returns the outgoing edges of a node, optionally filtered by
// relation types.
func (g *Graph) EdgesFrom(nodeID string, types ...RelationType) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.Source != nodeID {
			continue
		}
		if len(types) == 0 {
			out = append(out, e)
			continue
		}
		for _, t := range types {
			if e.Type == t {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Connected reports whether two nodes share an edge in either direction.
func (g *Graph) Connected(a, b string) bool {
	for _, e := range g.Edges {
		if (e.Source == a && e.Target == b) || (e.Source == b && e.Target == a) {
			return true
		}
	}
	return false
}

// Names returns all node display names.
func (g *Graph) Names() []string {
	out := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		out = append(out, n.Name)
	}
	return out
}
