package gridcalc

import (
	"slices"
	"strings"
)

// Edge is a dependency from a referenced cell to a subscriber whose formula
// references it. Values flow From → To.
type Edge struct {
	From string
	To   string
}

// String formats the Edge as "A1 -> B2".
func (e Edge) String() string {
	return e.From + " -> " + e.To
}

// Graph maps each referenced label to the labels subscribed to it. An edge
// exists exactly while the subscriber's formula references the label.
//
// Subscriber lists keep insertion order so traversal is deterministic for a
// fixed edit sequence.
type Graph struct {
	subscribers map[string][]string
}

// NewGraph creates an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{subscribers: make(map[string][]string)}
}

// AddSubscriptions subscribes subscriber to every label in referenced.
// Adding an existing edge is a no-op.
func (g *Graph) AddSubscriptions(subscriber string, referenced []string) {
	for _, ref := range referenced {
		subs := g.subscribers[ref]
		if slices.Contains(subs, subscriber) {
			continue
		}
		g.subscribers[ref] = append(subs, subscriber)
	}
}

// RemoveSubscriptions unsubscribes subscriber from every label in referenced.
// Labels left without subscribers are dropped.
func (g *Graph) RemoveSubscriptions(subscriber string, referenced []string) {
	for _, ref := range referenced {
		subs, ok := g.subscribers[ref]
		if !ok {
			continue
		}
		subs = slices.DeleteFunc(subs, func(s string) bool { return s == subscriber })
		if len(subs) == 0 {
			delete(g.subscribers, ref)
			continue
		}
		g.subscribers[ref] = subs
	}
}

// Subscribers returns a copy of the labels subscribed to label.
func (g *Graph) Subscribers(label string) []string {
	return slices.Clone(g.subscribers[label])
}

// Len returns the number of labels that have at least one subscriber.
func (g *Graph) Len() int {
	return len(g.subscribers)
}

// Edges returns every edge, sorted by From then To.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for from, subs := range g.subscribers {
		for _, to := range subs {
			edges = append(edges, Edge{From: from, To: to})
		}
	}
	slices.SortFunc(edges, func(a, b Edge) int {
		if c := strings.Compare(a.From, b.From); c != 0 {
			return c
		}
		return strings.Compare(a.To, b.To)
	})
	return edges
}

// TransitiveSubscribers walks subscriber chains depth-first from start and
// returns every edge reached, in discovery order. Each edge is followed once,
// so the walk terminates on cyclic data.
func (g *Graph) TransitiveSubscribers(start string) []Edge {
	var edges []Edge
	visited := make(map[Edge]bool)
	var walk func(label string)
	walk = func(label string) {
		for _, sub := range g.subscribers[label] {
			e := Edge{From: label, To: sub}
			if visited[e] {
				continue
			}
			visited[e] = true
			edges = append(edges, e)
			walk(sub)
		}
	}
	walk(start)
	return edges
}
