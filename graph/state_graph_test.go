package graph

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestState is a simple test state
type TestState struct {
	Count    int      `json:"count"`
	Name     string   `json:"name"`
	Warnings []string `json:"warnings"`
}

func TestStateGraph_BasicFunctionality(t *testing.T) {
	g := NewStateGraph[TestState]()

	g.AddNode("increment", "Increment counter", func(ctx context.Context, state TestState) (TestState, error) {
		state.Count++
		return state, nil
	})

	g.AddNode("check", "Check count", func(ctx context.Context, state TestState) (TestState, error) {
		if state.Name == "" {
			state.Name = "test"
		}
		return state, nil
	})

	g.SetEntryPoint("increment")
	g.AddEdge("increment", "check")
	g.AddEdge("check", END)

	runnable, err := g.Compile()
	if err != nil {
		t.Fatalf("Failed to compile graph: %v", err)
	}

	finalState, err := runnable.Invoke(context.Background(), TestState{Count: 0})
	if err != nil {
		t.Fatalf("Failed to invoke graph: %v", err)
	}

	if finalState.Count != 1 {
		t.Errorf("Expected count to be 1, got %d", finalState.Count)
	}
	if finalState.Name != "test" {
		t.Errorf("Expected name to be 'test', got '%s'", finalState.Name)
	}
}

func TestStateGraph_ConditionalEdges(t *testing.T) {
	g := NewStateGraph[TestState]()

	g.AddNode("process", "Process", func(ctx context.Context, state TestState) (TestState, error) {
		state.Count++
		return state, nil
	})

	g.AddNode("high", "High count", func(ctx context.Context, state TestState) (TestState, error) {
		state.Name = "high"
		return state, nil
	})

	g.AddNode("low", "Low count", func(ctx context.Context, state TestState) (TestState, error) {
		state.Name = "low"
		return state, nil
	})

	g.SetEntryPoint("process")
	g.AddConditionalEdge("process", func(ctx context.Context, state TestState) string {
		if state.Count > 5 {
			return "high"
		}
		return "low"
	})
	g.AddEdge("high", END)
	g.AddEdge("low", END)

	runnable, err := g.Compile()
	if err != nil {
		t.Fatalf("Failed to compile graph: %v", err)
	}

	state, err := runnable.Invoke(context.Background(), TestState{Count: 4})
	if err != nil {
		t.Fatalf("Failed to invoke graph: %v", err)
	}
	if state.Name != "low" {
		t.Errorf("Expected name to be 'low', got '%s'", state.Name)
	}

	state, err = runnable.Invoke(context.Background(), TestState{Count: 5})
	if err != nil {
		t.Fatalf("Failed to invoke graph: %v", err)
	}
	if state.Name != "high" {
		t.Errorf("Expected name to be 'high', got '%s'", state.Name)
	}
}

// appendWarningsSchema keeps Warnings append-only and everything else
// last-writer-wins.
type appendWarningsSchema struct{}

func (appendWarningsSchema) Init() TestState { return TestState{} }

func (appendWarningsSchema) Update(current, next TestState) (TestState, error) {
	merged := next
	if len(next.Warnings) < len(current.Warnings) {
		merged.Warnings = current.Warnings
	}
	return merged, nil
}

func TestStateGraph_SchemaMerge(t *testing.T) {
	g := NewStateGraph[TestState]()
	g.SetSchema(appendWarningsSchema{})

	g.AddNode("warn", "Add warning", func(ctx context.Context, state TestState) (TestState, error) {
		state.Warnings = append(state.Warnings, "first")
		return state, nil
	})

	// Node that forgets to carry warnings forward: schema must preserve them.
	g.AddNode("drop", "Drop warnings", func(ctx context.Context, state TestState) (TestState, error) {
		return TestState{Count: state.Count + 1}, nil
	})

	g.SetEntryPoint("warn")
	g.AddEdge("warn", "drop")
	g.AddEdge("drop", END)

	runnable, err := g.Compile()
	if err != nil {
		t.Fatalf("Failed to compile graph: %v", err)
	}

	state, err := runnable.Invoke(context.Background(), TestState{})
	if err != nil {
		t.Fatalf("Failed to invoke graph: %v", err)
	}
	if len(state.Warnings) != 1 || state.Warnings[0] != "first" {
		t.Errorf("Expected warnings to be preserved, got %v", state.Warnings)
	}
	if state.Count != 1 {
		t.Errorf("Expected count 1, got %d", state.Count)
	}
}

func TestStateGraph_StepBudget(t *testing.T) {
	g := NewStateGraph[TestState]()

	g.AddNode("loop", "Loop forever", func(ctx context.Context, state TestState) (TestState, error) {
		state.Count++
		return state, nil
	})

	g.SetEntryPoint("loop")
	g.AddConditionalEdge("loop", func(ctx context.Context, state TestState) string {
		return "loop"
	})
	g.SetMaxSteps(10)

	runnable, err := g.Compile()
	if err != nil {
		t.Fatalf("Failed to compile graph: %v", err)
	}

	state, err := runnable.Invoke(context.Background(), TestState{})
	if !errors.Is(err, ErrStepBudgetExceeded) {
		t.Fatalf("Expected ErrStepBudgetExceeded, got %v", err)
	}
	if state.Count != 10 {
		t.Errorf("Expected 10 executed steps before budget hit, got %d", state.Count)
	}
}

func TestStateGraph_NodeErrorPreservesState(t *testing.T) {
	g := NewStateGraph[TestState]()

	g.AddNode("ok", "OK", func(ctx context.Context, state TestState) (TestState, error) {
		state.Count = 7
		return state, nil
	})
	g.AddNode("boom", "Fail", func(ctx context.Context, state TestState) (TestState, error) {
		return state, errors.New("boom")
	})

	g.SetEntryPoint("ok")
	g.AddEdge("ok", "boom")
	g.AddEdge("boom", END)

	runnable, err := g.Compile()
	if err != nil {
		t.Fatalf("Failed to compile graph: %v", err)
	}

	state, err := runnable.Invoke(context.Background(), TestState{})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if state.Count != 7 {
		t.Errorf("Expected partial state preserved (Count=7), got %d", state.Count)
	}
}

func TestStateGraph_Compile_MissingEntryPoint(t *testing.T) {
	g := NewStateGraph[TestState]()
	if _, err := g.Compile(); !errors.Is(err, ErrEntryPointNotSet) {
		t.Errorf("Expected ErrEntryPointNotSet, got %v", err)
	}
}

func TestStateGraph_RetryPolicy(t *testing.T) {
	g := NewStateGraph[TestState]()

	attempts := 0
	g.AddNode("flaky", "Fails twice", func(ctx context.Context, state TestState) (TestState, error) {
		attempts++
		if attempts < 3 {
			return state, errors.New("connection refused")
		}
		state.Count = attempts
		return state, nil
	})
	g.SetEntryPoint("flaky")
	g.AddEdge("flaky", END)

	policy := NewRetryPolicy(3, "connection refused")
	policy.BaseDelay = time.Millisecond
	g.SetRetryPolicy(policy)

	runnable, err := g.Compile()
	if err != nil {
		t.Fatalf("Failed to compile graph: %v", err)
	}

	state, err := runnable.Invoke(context.Background(), TestState{})
	if err != nil {
		t.Fatalf("Expected retries to succeed, got %v", err)
	}
	if state.Count != 3 {
		t.Errorf("Expected 3 attempts, got %d", state.Count)
	}
}
