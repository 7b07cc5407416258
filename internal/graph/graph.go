// Package graph builds the per-plan dependency DAG and computes the
// deterministic critical path over it. Pure functions of a plan snapshot;
// nothing here touches the repository.
package graph

import (
	"sort"

	"congresstwin/internal/planner"
)

// Edge is a typed dependency edge from predecessor to successor.
type Edge struct {
	From string
	To   string
	Type planner.DependencyType
}

// Graph is the adjacency view of one plan's tasks and dependencies together
// with a deterministic topological order (Kahn, ties broken by ascending
// task id). Isolated tasks are included and ordered by id.
type Graph struct {
	Order []string

	tasks map[string]*planner.Task
	succ  map[string][]Edge
	pred  map[string][]Edge
}

// Build constructs the DAG for a snapshot. Edges whose endpoints are not in
// the snapshot are dropped. Returns a *planner.CycleError when the edge set
// contains a directed cycle.
func Build(snap *planner.Snapshot) (*Graph, error) {
	g, excluded, err := build(snap, false)
	if err != nil {
		return nil, err
	}
	_ = excluded
	return g, nil
}

// BuildRepair constructs the DAG like Build but never fails on a cycle:
// offending edges are excluded one at a time until the remainder is acyclic,
// and the excluded edges are returned for diagnostics. Used on the load path
// where a read must not be refused because of bad stored data.
func BuildRepair(snap *planner.Snapshot) (*Graph, []planner.Dependency) {
	g, excluded, _ := build(snap, true)
	return g, excluded
}

func build(snap *planner.Snapshot, repair bool) (*Graph, []planner.Dependency, error) {
	g := &Graph{
		tasks: make(map[string]*planner.Task, len(snap.Tasks)),
		succ:  make(map[string][]Edge),
		pred:  make(map[string][]Edge),
	}
	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		g.tasks[t.ID] = t
	}

	deps := append([]planner.Dependency(nil), snap.Dependencies...)
	var excluded []planner.Dependency
	for {
		g.succ = make(map[string][]Edge, len(g.tasks))
		g.pred = make(map[string][]Edge, len(g.tasks))
		for _, d := range deps {
			if _, ok := g.tasks[d.TaskID]; !ok {
				continue
			}
			if _, ok := g.tasks[d.PredecessorID]; !ok {
				continue
			}
			e := Edge{From: d.PredecessorID, To: d.TaskID, Type: d.Type}
			g.succ[e.From] = append(g.succ[e.From], e)
			g.pred[e.To] = append(g.pred[e.To], e)
		}

		order, residual := kahn(g)
		if len(residual) == 0 {
			g.Order = order
			for id := range g.succ {
				sortEdges(g.succ[id])
			}
			for id := range g.pred {
				sortEdges(g.pred[id])
			}
			return g, excluded, nil
		}
		if !repair {
			return nil, nil, &planner.CycleError{PlanID: snap.Plan.ID, Nodes: residual}
		}
		// Repair: drop the first (deterministically chosen) edge between two
		// residual nodes and retry.
		dropped := false
		sort.Slice(deps, func(i, j int) bool {
			if deps[i].PredecessorID != deps[j].PredecessorID {
				return deps[i].PredecessorID < deps[j].PredecessorID
			}
			return deps[i].TaskID < deps[j].TaskID
		})
		onCycle := make(map[string]bool, len(residual))
		for _, id := range residual {
			onCycle[id] = true
		}
		for i, d := range deps {
			if onCycle[d.TaskID] && onCycle[d.PredecessorID] {
				excluded = append(excluded, d)
				deps = append(deps[:i], deps[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			// No edge between residual nodes; nothing more we can do.
			g.Order = nil
			return g, excluded, nil
		}
	}
}

// kahn returns the topological order and the sorted ids of residual nodes
// (non-empty iff a cycle exists).
func kahn(g *Graph) (order []string, residual []string) {
	inDeg := make(map[string]int, len(g.tasks))
	for id := range g.tasks {
		inDeg[id] = len(g.pred[id])
	}
	var ready []string
	for id, d := range inDeg {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order = make([]string, 0, len(g.tasks))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		var unlocked []string
		for _, e := range g.succ[id] {
			inDeg[e.To]--
			if inDeg[e.To] == 0 {
				unlocked = append(unlocked, e.To)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}
	if len(order) == len(g.tasks) {
		return order, nil
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		seen[id] = true
	}
	for id := range g.tasks {
		if !seen[id] {
			residual = append(residual, id)
		}
	}
	sort.Strings(residual)
	return order, residual
}

func sortEdges(es []Edge) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].From != es[j].From {
			return es[i].From < es[j].From
		}
		return es[i].To < es[j].To
	})
}

// Task returns the snapshot task for id, or nil.
func (g *Graph) Task(id string) *planner.Task { return g.tasks[id] }

// Contains reports whether id is a node of the graph.
func (g *Graph) Contains(id string) bool {
	_, ok := g.tasks[id]
	return ok
}

// Len returns the node count.
func (g *Graph) Len() int { return len(g.tasks) }

// Successors returns the outgoing edges of id, sorted by successor id.
func (g *Graph) Successors(id string) []Edge { return g.succ[id] }

// Predecessors returns the incoming edges of id, sorted by predecessor id.
func (g *Graph) Predecessors(id string) []Edge { return g.pred[id] }

// Downstream returns the transitive successor closure of id (excluding id),
// sorted ascending. Every edge type counts as precedence for closure.
func (g *Graph) Downstream(id string) []string {
	return g.closure(id, g.succ, func(e Edge) string { return e.To })
}

// Upstream returns the transitive predecessor closure of id (excluding id),
// sorted ascending.
func (g *Graph) Upstream(id string) []string {
	return g.closure(id, g.pred, func(e Edge) string { return e.From })
}

func (g *Graph) closure(id string, adj map[string][]Edge, next func(Edge) string) []string {
	visited := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range adj[n] {
			m := next(e)
			if !visited[m] {
				visited[m] = true
				stack = append(stack, m)
			}
		}
	}
	delete(visited, id)
	out := make([]string, 0, len(visited))
	for n := range visited {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// WouldCycle reports whether adding predecessor -> successor would create a
// directed cycle: true iff predecessor is reachable from successor. Used as
// the pre-check for dependency mutations.
func (g *Graph) WouldCycle(predecessorID, successorID string) bool {
	if predecessorID == successorID {
		return true
	}
	for _, id := range g.Downstream(successorID) {
		if id == predecessorID {
			return true
		}
	}
	return false
}
