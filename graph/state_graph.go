package graph

import (
	"context"
	"fmt"
	"time"
)

// Schema defines the merge semantics applied when a node's output state is
// folded back into the current state. Implementations decide which fields
// accumulate and which are last-writer-wins.
type Schema[S any] interface {
	// Init returns the initial state.
	Init() S

	// Update merges the new state into the current state.
	Update(current, next S) (S, error)
}

// Node is a named state transformer.
type Node[S any] struct {
	Name        string
	Description string
	Function    func(ctx context.Context, state S) (S, error)
}

// Listener observes node transitions during a run. Both streaming and
// checkpointing are implemented as listeners.
type Listener[S any] interface {
	OnNodeStart(ctx context.Context, node string, step int, state S)
	OnNodeEnd(ctx context.Context, node string, step int, state S)
}

// StateGraph represents a state-based graph with compile-time type safety.
// The type parameter S is the state type, typically a struct.
//
// Example usage:
//
//	g := graph.NewStateGraph[MyState]()
//	g.AddNode("increment", "Increment counter", func(ctx context.Context, state MyState) (MyState, error) {
//	    state.Count++
//	    return state, nil
//	})
//	g.SetEntryPoint("increment")
//	g.AddEdge("increment", graph.END)
type StateGraph[S any] struct {
	nodes            map[string]Node[S]
	edges            []Edge
	conditionalEdges map[string]func(ctx context.Context, state S) string
	entryPoint       string
	schema           Schema[S]
	retryPolicy      *RetryPolicy
	maxSteps         int
}

// NewStateGraph creates a new instance of StateGraph.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]Node[S]),
		conditionalEdges: make(map[string]func(ctx context.Context, state S) string),
	}
}

// AddNode adds a new node with the given name, description and function.
func (g *StateGraph[S]) AddNode(name, description string, fn func(ctx context.Context, state S) (S, error)) {
	g.nodes[name] = Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddEdge adds a static edge between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{From: from, To: to})
}

// AddConditionalEdge adds an edge whose target node is determined at runtime.
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the entry point node name.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetSchema sets the state schema controlling merge semantics.
func (g *StateGraph[S]) SetSchema(schema Schema[S]) {
	g.schema = schema
}

// SetRetryPolicy sets the per-node retry policy.
func (g *StateGraph[S]) SetRetryPolicy(policy *RetryPolicy) {
	g.retryPolicy = policy
}

// SetMaxSteps bounds the total number of node executions per run.
// Zero means unbounded.
func (g *StateGraph[S]) SetMaxSteps(n int) {
	g.maxSteps = n
}

// Runnable is a compiled state graph ready for invocation.
type Runnable[S any] struct {
	graph *StateGraph[S]
}

// Compile validates the graph and returns a Runnable.
func (g *StateGraph[S]) Compile() (*Runnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: entry point %q", ErrNodeNotFound, g.entryPoint)
	}
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge source %q", ErrNodeNotFound, e.From)
		}
		if e.To != END {
			if _, ok := g.nodes[e.To]; !ok {
				return nil, fmt.Errorf("%w: edge target %q", ErrNodeNotFound, e.To)
			}
		}
	}
	return &Runnable[S]{graph: g}, nil
}

// Invoke executes the graph sequentially from the entry point until END.
// State mutation is single-threaded: each step merges exactly one node's
// output into the current state. On error the state observed so far is
// returned alongside the error.
func (r *Runnable[S]) Invoke(ctx context.Context, initial S) (S, error) {
	return r.InvokeWithListeners(ctx, initial)
}

// InvokeWithListeners executes the graph, notifying the listeners on every
// node transition.
func (r *Runnable[S]) InvokeWithListeners(ctx context.Context, initial S, listeners ...Listener[S]) (S, error) {
	g := r.graph

	state := initial
	if g.schema != nil {
		var err error
		state, err = g.schema.Update(g.schema.Init(), initial)
		if err != nil {
			return initial, fmt.Errorf("failed to initialize state with schema: %w", err)
		}
	}

	current := g.entryPoint
	step := 0

	for current != END {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		step++
		if g.maxSteps > 0 && step > g.maxSteps {
			return state, ErrStepBudgetExceeded
		}

		node, ok := g.nodes[current]
		if !ok {
			return state, fmt.Errorf("%w: %s", ErrNodeNotFound, current)
		}

		for _, l := range listeners {
			l.OnNodeStart(ctx, current, step, state)
		}

		out, err := r.executeNodeWithRetry(ctx, node, state)
		if err != nil {
			return state, fmt.Errorf("error in node %s: %w", current, err)
		}

		state, err = r.mergeState(state, out)
		if err != nil {
			return state, err
		}

		for _, l := range listeners {
			l.OnNodeEnd(ctx, current, step, state)
		}

		current, err = r.nextNode(ctx, current, state)
		if err != nil {
			return state, err
		}
	}

	return state, nil
}

// executeNodeWithRetry executes a node, retrying per the graph retry policy.
func (r *Runnable[S]) executeNodeWithRetry(ctx context.Context, node Node[S], state S) (S, error) {
	policy := r.graph.retryPolicy

	attempts := 1
	if policy != nil {
		attempts = policy.MaxRetries + 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		out, err := node.Function(ctx, state)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if policy == nil || attempt == attempts-1 || !policy.isRetryable(err) {
			break
		}

		delay := policy.backoffDelay(attempt)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				var zero S
				return zero, ctx.Err()
			}
		}
	}

	var zero S
	return zero, lastErr
}

// mergeState folds a node output into the current state. Without a schema
// the node output replaces the state wholesale.
func (r *Runnable[S]) mergeState(current, next S) (S, error) {
	if r.graph.schema == nil {
		return next, nil
	}
	merged, err := r.graph.schema.Update(current, next)
	if err != nil {
		var zero S
		return zero, fmt.Errorf("schema update failed: %w", err)
	}
	return merged, nil
}

// nextNode resolves the successor of a node: conditional edges take
// precedence over static ones.
func (r *Runnable[S]) nextNode(ctx context.Context, current string, state S) (string, error) {
	if cond, ok := r.graph.conditionalEdges[current]; ok {
		next := cond(ctx, state)
		if next == "" {
			return "", fmt.Errorf("%w: from %s", ErrEmptyBranch, current)
		}
		if next != END {
			if _, ok := r.graph.nodes[next]; !ok {
				return "", fmt.Errorf("%w: %s", ErrNodeNotFound, next)
			}
		}
		return next, nil
	}

	for _, edge := range r.graph.edges {
		if edge.From == current {
			return edge.To, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, current)
}
