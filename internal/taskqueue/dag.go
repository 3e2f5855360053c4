package taskqueue

import "github.com/goadesign/agent-kernel/internal/core"

// GetDAGState produces the derived dependency-graph view: per-task depth
// (longest dependency chain length, 0 for roots), dependency and spawned
// edges, a Kahn's-algorithm topological execution order that breaks ties in
// the ready set by priority descending then created_at ascending, and the
// completed/blocked id sets.
func (q *Queue) GetDAGState() core.DAGState {
	q.mu.Lock()
	tasks := make(map[string]*core.Task, len(q.tasks))
	order := append([]string(nil), q.order...)
	for id, t := range q.tasks {
		tasks[id] = t
	}
	q.mu.Unlock()

	nodes := make([]core.DAGNode, 0, len(order))
	var edges []core.DAGEdge
	var completed, blocked []string

	depth := make(map[string]int, len(tasks))
	var computeDepth func(id string, visiting map[string]bool) int
	computeDepth = func(id string, visiting map[string]bool) int {
		if d, ok := depth[id]; ok {
			return d
		}
		t, ok := tasks[id]
		if !ok || len(t.Dependencies) == 0 || visiting[id] {
			depth[id] = 0
			return 0
		}
		visiting[id] = true
		max := 0
		for _, dep := range t.Dependencies {
			if d := computeDepth(dep, visiting) + 1; d > max {
				max = d
			}
		}
		delete(visiting, id)
		depth[id] = max
		return max
	}

	for _, id := range order {
		t := tasks[id]
		d := computeDepth(id, map[string]bool{})
		nodes = append(nodes, core.DAGNode{TaskID: id, Status: t.Status, Depth: d})

		for _, dep := range t.Dependencies {
			edges = append(edges, core.DAGEdge{From: dep, To: id, Type: core.EdgeDependency})
		}
		for _, sub := range t.SubtaskIDs {
			edges = append(edges, core.DAGEdge{From: id, To: sub, Type: core.EdgeSpawned})
		}

		switch t.Status {
		case core.TaskDone:
			completed = append(completed, id)
		case core.TaskBlocked:
			blocked = append(blocked, id)
		}
	}

	return core.DAGState{
		Nodes:          nodes,
		Edges:          edges,
		ExecutionOrder: kahnOrder(tasks, order),
		CompletedIDs:   completed,
		BlockedIDs:     blocked,
	}
}

// kahnOrder computes a topological order over the dependency graph using
// Kahn's algorithm. The ready set (indegree 0) is drained by priority
// descending, then created_at ascending, matching NextTask's tie-break.
func kahnOrder(tasks map[string]*core.Task, order []string) []string {
	indegree := make(map[string]int, len(tasks))
	for _, id := range order {
		indegree[id] = 0
	}
	for _, id := range order {
		t := tasks[id]
		for _, dep := range t.Dependencies {
			if _, ok := tasks[dep]; ok {
				indegree[id]++
			}
		}
	}

	dependents := make(map[string][]string, len(tasks))
	for _, id := range order {
		t := tasks[id]
		for _, dep := range t.Dependencies {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for _, id := range order {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	result := make([]string, 0, len(order))
	for len(ready) > 0 {
		sortReadyByPriority(ready, tasks)
		next := ready[0]
		ready = ready[1:]
		result = append(result, next)

		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	return result
}

func sortReadyByPriority(ready []string, tasks map[string]*core.Task) {
	for i := 1; i < len(ready); i++ {
		for j := i; j > 0; j-- {
			a, b := tasks[ready[j-1]], tasks[ready[j]]
			if a.Priority > b.Priority || (a.Priority == b.Priority && a.CreatedAt.Before(b.CreatedAt)) {
				break
			}
			ready[j-1], ready[j] = ready[j], ready[j-1]
		}
	}
}
