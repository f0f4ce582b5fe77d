// Package engine implements cell writes and incremental recalculation.
//
// A write to a cell re-evaluates the cell itself, rewrites its dependency
// edges, and then recalculates every transitive dependent in staged order.
// Stages are built by repeatedly peeling cells with no remaining dependents
// from the affected subgraph, so a cell is only evaluated after everything
// it feeds into has been scheduled behind it. Cells within a stage are
// independent of each other and evaluate concurrently.
//
// All storage access during a write happens inside a single transaction;
// a cycle or consistency failure rolls the whole write back.
package engine
