package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/cellflow/cellflow/internal/store"
)

// discoverAffected walks dependent edges outward from root and returns
// the affected subgraph as a map from cell id to its dependent ids
// within the subgraph. If root is reachable from any of its dependents
// the write would create a cycle and the walk fails.
func discoverAffected(ctx context.Context, q *store.Queries, rootID string) (map[string][]string, error) {
	graph := map[string][]string{rootID: nil}
	frontier := []string{rootID}

	for len(frontier) > 0 {
		edges, err := q.Dependents(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("load dependents: %w", err)
		}
		var next []string
		for _, id := range frontier {
			dependents := edges[id]
			if dependents == nil {
				dependents = []string{}
			}
			graph[id] = dependents
			for _, dep := range dependents {
				if dep == rootID {
					return nil, &RecalcError{
						Code:    ErrCodeCircularReference,
						Message: "cell is reachable from its own dependents",
						CellID:  rootID,
					}
				}
				if _, seen := graph[dep]; seen {
					continue
				}
				graph[dep] = nil
				next = append(next, dep)
			}
		}
		frontier = next
	}
	return graph, nil
}

// buildStages layers the affected subgraph into evaluation stages.
//
// It repeatedly peels every cell whose remaining dependent list is
// empty, then reverses the peel order so the root comes first and each
// cell appears strictly after all of its dependencies. A pass that
// peels nothing while cells remain means the edges reference cells
// outside the subgraph and the graph cannot be scheduled.
func buildStages(graph map[string][]string, rootID string) ([][]string, error) {
	remaining := make(map[string][]string, len(graph))
	for id, dependents := range graph {
		remaining[id] = append([]string(nil), dependents...)
	}

	var peeled [][]string
	for len(remaining) > 0 {
		var stage []string
		for id, dependents := range remaining {
			if len(dependents) == 0 {
				stage = append(stage, id)
			}
		}
		if len(stage) == 0 {
			return nil, &RecalcError{
				Code:    ErrCodeInconsistentGraph,
				Message: fmt.Sprintf("dependency edges reference cells outside the affected set (%d unschedulable)", len(remaining)),
				CellID:  rootID,
			}
		}
		sort.Strings(stage)
		done := make(map[string]bool, len(stage))
		for _, id := range stage {
			done[id] = true
			delete(remaining, id)
		}
		for id, dependents := range remaining {
			kept := dependents[:0]
			for _, dep := range dependents {
				if !done[dep] {
					kept = append(kept, dep)
				}
			}
			remaining[id] = kept
		}
		peeled = append(peeled, stage)
	}

	for i, j := 0, len(peeled)-1; i < j; i, j = i+1, j-1 {
		peeled[i], peeled[j] = peeled[j], peeled[i]
	}
	if len(peeled) == 0 || len(peeled[0]) != 1 || peeled[0][0] != rootID {
		return nil, &RecalcError{
			Code:    ErrCodeInconsistentGraph,
			Message: "written cell is not the sole first stage",
			CellID:  rootID,
		}
	}
	return peeled, nil
}

// planStages discovers the affected subgraph for root and layers it
// into stages. The first stage is always exactly the root cell.
func planStages(ctx context.Context, q *store.Queries, rootID string) ([][]string, error) {
	graph, err := discoverAffected(ctx, q, rootID)
	if err != nil {
		return nil, err
	}
	return buildStages(graph, rootID)
}
