// Package graph provides a generic directed acyclic graph used to order
// resource nodes by their declared prerequisites.
package graph

import (
	"cmp"
	"fmt"
	"slices"
)

// Vertex is one node of the graph together with the set of vertices it
// depends on.
type Vertex[T cmp.Ordered] struct {
	ID        T
	DependsOn map[T]struct{}
}

// DAG is a directed acyclic graph keyed by vertex ID. Edges point from a
// dependent vertex to its prerequisites; acyclicity is enforced on every
// edge insertion.
type DAG[T cmp.Ordered] struct {
	Vertices map[T]*Vertex[T]
}

// New creates an empty DAG.
func New[T cmp.Ordered]() *DAG[T] {
	return &DAG[T]{Vertices: make(map[T]*Vertex[T])}
}

// AddVertex adds a vertex with no dependencies. Duplicate IDs are rejected.
func (d *DAG[T]) AddVertex(id T) error {
	if _, ok := d.Vertices[id]; ok {
		return fmt.Errorf("vertex %v already exists", id)
	}
	d.Vertices[id] = &Vertex[T]{
		ID:        id,
		DependsOn: make(map[T]struct{}),
	}
	return nil
}

// AddDependency records that from depends on to, i.e. to must be processed
// before from. Both vertices must exist; self references and edges that
// would introduce a cycle are rejected.
func (d *DAG[T]) AddDependency(from, to T) error {
	fromVertex, ok := d.Vertices[from]
	if !ok {
		return fmt.Errorf("vertex %v does not exist", from)
	}
	if _, ok := d.Vertices[to]; !ok {
		return fmt.Errorf("dependency %v of %v does not exist", to, from)
	}
	if from == to {
		return fmt.Errorf("vertex %v cannot depend on itself", from)
	}

	fromVertex.DependsOn[to] = struct{}{}
	if cycle := d.findCycle(); cycle != nil {
		delete(fromVertex.DependsOn, to)
		return &CycleError[T]{Cycle: cycle}
	}
	return nil
}

// Dependencies returns the sorted prerequisite IDs of a vertex.
func (d *DAG[T]) Dependencies(id T) []T {
	v, ok := d.Vertices[id]
	if !ok {
		return nil
	}
	deps := make([]T, 0, len(v.DependsOn))
	for dep := range v.DependsOn {
		deps = append(deps, dep)
	}
	slices.Sort(deps)
	return deps
}

// TopologicalSort returns the vertex IDs in dependency order. Ordering among
// vertices whose prerequisites are equally satisfied is broken by sorting
// the ready set, so the result is deterministic for a given graph.
func (d *DAG[T]) TopologicalSort() ([]T, error) {
	if cycle := d.findCycle(); cycle != nil {
		return nil, &CycleError[T]{Cycle: cycle}
	}

	remaining := make(map[T]int, len(d.Vertices))
	dependents := make(map[T][]T, len(d.Vertices))
	for id, v := range d.Vertices {
		remaining[id] = len(v.DependsOn)
		for dep := range v.DependsOn {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []T
	for id, n := range remaining {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)

	order := make([]T, 0, len(d.Vertices))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var unblocked []T
		for _, dep := range dependents[id] {
			remaining[dep]--
			if remaining[dep] == 0 {
				unblocked = append(unblocked, dep)
			}
		}
		slices.Sort(unblocked)
		ready = mergeSorted(ready, unblocked)
	}

	if len(order) != len(d.Vertices) {
		// Unreachable given the cycle check above; guard anyway.
		return nil, &CycleError[T]{}
	}
	return order, nil
}

// findCycle returns one dependency cycle, or nil if the graph is acyclic.
func (d *DAG[T]) findCycle() []T {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[T]int, len(d.Vertices))
	var stack []T
	var cycle []T

	var visit func(id T) bool
	visit = func(id T) bool {
		color[id] = gray
		stack = append(stack, id)
		deps := d.Dependencies(id)
		for _, dep := range deps {
			switch color[dep] {
			case gray:
				start := slices.Index(stack, dep)
				cycle = append(slices.Clone(stack[start:]), dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	ids := make([]T, 0, len(d.Vertices))
	for id := range d.Vertices {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

func mergeSorted[T cmp.Ordered](a, b []T) []T {
	if len(b) == 0 {
		return a
	}
	out := append(a, b...)
	slices.Sort(out)
	return out
}

// CycleError reports a prerequisite cycle. The graph rules in this system
// produce acyclic graphs by construction; hitting this error means a new
// edge rule is structurally wrong.
type CycleError[T cmp.Ordered] struct {
	Cycle []T
}

func (e *CycleError[T]) Error() string {
	return fmt.Sprintf("dependency cycle detected: %v", e.Cycle)
}
