// Package graph implements a typed state-machine engine: named nodes that
// transform a shared state, static and conditional edges, schema-driven
// merge semantics, a step budget, streaming and checkpoint listeners.
package graph

import "errors"

// END is the sentinel node name that terminates graph execution.
const END = "END"

// Edge represents a static transition between two nodes.
type Edge struct {
	From string
	To   string
}

var (
	// ErrEntryPointNotSet is returned by Compile when no entry point was set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when an edge targets an unknown node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when a node has neither a static nor a
	// conditional outgoing edge.
	ErrNoOutgoingEdge = errors.New("no outgoing edge")

	// ErrEmptyBranch is returned when a conditional edge yields an empty
	// next-node name.
	ErrEmptyBranch = errors.New("conditional edge returned empty next node")

	// ErrStepBudgetExceeded is returned when execution exceeds the
	// configured maximum number of node steps.
	ErrStepBudgetExceeded = errors.New("step_budget_exceeded")
)
