// Package topo is the Topological Sorter (C6, spec.md §4.6): produces a
// load order such that every file's resolved dependencies appear earlier,
// and reports cycles.
package topo

import (
	"sort"
	"strconv"

	"github.com/tourze/php-packer-sub000/internal/model"
	"github.com/tourze/php-packer-sub000/internal/perror"
	"github.com/tourze/php-packer-sub000/internal/reporter"
	"github.com/tourze/php-packer-sub000/internal/store"
)

func isStructural(t model.DependencyType) bool {
	switch t {
	case model.DepExtends, model.DepImplements, model.DepUseTrait:
		return true
	}
	return false
}

// SortFiles implements spec.md §4.6's operation (a): sort over File ids
// rooted at an entry file, returning the ordered File rows such that for
// every resolved edge source -> target, target precedes source.
func SortFiles(s *store.Store, entryID int64, h *reporter.Handler) ([]*model.File, error) {
	files, err := s.AllRequiredFiles(entryID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*model.File, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}

	structEdges := map[int64][]int64{} // source -> [targets], structural only
	allEdges := map[int64][]int64{}    // source -> [targets], every resolved edge
	for id := range byID {
		deps, err := s.DependenciesBySource(id)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if !d.IsResolved || d.TargetFileID == 0 {
				continue
			}
			if _, ok := byID[d.TargetFileID]; !ok {
				continue
			}
			allEdges[id] = append(allEdges[id], d.TargetFileID)
			if isStructural(d.DependencyType) {
				structEdges[id] = append(structEdges[id], d.TargetFileID)
			}
		}
	}

	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if cycle := findCycle(ids, structEdges); cycle != nil {
		names := make([]string, len(cycle))
		for i, id := range cycle {
			names[i] = byID[id].Path
		}
		return nil, &perror.CircularDependency{Cycle: names}
	}

	order, brokenCycles := kahnSort(ids, allEdges)
	for _, pair := range brokenCycles {
		h.HandleWarning(&perror.GeneralPackerError{Message: "reference cycle broken at file id " + idString(pair[0]) + " -> " + idString(pair[1])})
	}

	out := make([]*model.File, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

// SortGraph implements spec.md §4.6's operation (b): sort over an arbitrary
// {node -> [dep-nodes]} string-keyed graph, where edge[n] lists n's
// dependencies (things that must precede n). Cycles are always fatal in
// this variant.
func SortGraph(edges map[string][]string) ([]string, error) {
	nodes := make([]string, 0, len(edges))
	seen := map[string]bool{}
	for n, deps := range edges {
		if !seen[n] {
			seen[n] = true
			nodes = append(nodes, n)
		}
		for _, d := range deps {
			if !seen[d] {
				seen[d] = true
				nodes = append(nodes, d)
			}
		}
	}
	sort.Strings(nodes)

	intByName := map[string]int64{}
	nameByInt := map[int64]string{}
	for i, n := range nodes {
		id := int64(i + 1)
		intByName[n] = id
		nameByInt[id] = n
	}
	intEdges := map[int64][]int64{}
	for n, deps := range edges {
		for _, d := range deps {
			intEdges[intByName[n]] = append(intEdges[intByName[n]], intByName[d])
		}
	}
	ids := make([]int64, 0, len(nodes))
	for i := range nodes {
		ids = append(ids, int64(i+1))
	}

	if cycle := findCycle(ids, intEdges); cycle != nil {
		names := make([]string, len(cycle))
		for i, id := range cycle {
			names[i] = nameByInt[id]
		}
		return nil, &perror.CircularDependency{Cycle: names}
	}

	order, _ := kahnSort(ids, intEdges)
	out := make([]string, len(order))
	for i, id := range order {
		out[i] = nameByInt[id]
	}
	return out, nil
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}

// findCycle runs a DFS over edges (source -> targets meaning "source depends
// on target") looking for a cycle, visiting ids in sorted order for
// determinism. It returns the cycle as a sequence of ids (source ... back to
// source) or nil if acyclic.
func findCycle(ids []int64, edges map[int64][]int64) []int64 {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[int64]int{}
	var stack []int64
	var cycle []int64

	var visit func(id int64) bool
	visit = func(id int64) bool {
		color[id] = gray
		stack = append(stack, id)
		targets := append([]int64(nil), edges[id]...)
		sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
		for _, t := range targets {
			switch color[t] {
			case white:
				if visit(t) {
					return true
				}
			case gray:
				// Found the back edge; extract the cycle from the stack.
				start := 0
				for i, v := range stack {
					if v == t {
						start = i
						break
					}
				}
				cycle = append([]int64(nil), stack[start:]...)
				cycle = append(cycle, t)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// kahnSort produces a linear order where for every edge source -> target,
// target precedes source, using Kahn's algorithm over the reversed graph
// (targets must be emitted before the sources that depend on them). Any
// residual cycle (reference-only, already known non-structural since
// findCycle ran first) is broken deterministically by retaining the node
// with the smallest id, per spec.md §4.6.
func kahnSort(ids []int64, edges map[int64][]int64) (order []int64, broken [][2]int64) {
	// dependents[target] = sources that depend on target; we emit target
	// first, which then frees its dependents.
	indegree := map[int64]int{}
	dependents := map[int64][]int64{}
	for _, id := range ids {
		indegree[id] = 0
	}
	for source, targets := range edges {
		for _, target := range targets {
			indegree[source]++
			dependents[target] = append(dependents[target], source)
		}
	}

	var ready []int64
	for _, id := range ids {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	emitted := map[int64]bool{}
	for len(order) < len(ids) {
		if len(ready) == 0 {
			// A cycle remains among not-yet-emitted nodes; break it by
			// picking the smallest-id remaining node (spec.md §4.6).
			var remaining []int64
			for _, id := range ids {
				if !emitted[id] {
					remaining = append(remaining, id)
				}
			}
			sort.Slice(remaining, func(i, j int) bool { return remaining[i] < remaining[j] })
			pick := remaining[0]
			for _, dep := range edges[pick] {
				if !emitted[dep] {
					broken = append(broken, [2]int64{pick, dep})
				}
			}
			ready = append(ready, pick)
		}

		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		next := ready[0]
		ready = ready[1:]
		if emitted[next] {
			continue
		}
		order = append(order, next)
		emitted[next] = true
		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 && !emitted[dependent] {
				ready = append(ready, dependent)
			}
		}
	}
	return order, broken
}
