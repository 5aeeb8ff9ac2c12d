package graph

import (
	"context"
	"testing"
)

func TestStream_EmitsEventsPerTransition(t *testing.T) {
	g := NewStateGraph[TestState]()

	g.AddNode("a", "A", func(ctx context.Context, state TestState) (TestState, error) {
		state.Count++
		return state, nil
	})
	g.AddNode("b", "B", func(ctx context.Context, state TestState) (TestState, error) {
		state.Name = "done"
		return state, nil
	})
	g.SetEntryPoint("a")
	g.AddEdge("a", "b")
	g.AddEdge("b", END)

	runnable, err := g.Compile()
	if err != nil {
		t.Fatalf("Failed to compile graph: %v", err)
	}

	sr := runnable.Stream(context.Background(), TestState{})

	var entered, completed, deltas int
	var terminal *Event[TestState]
	for ev := range sr.Events {
		switch ev.Type {
		case EventNodeEntered:
			entered++
		case EventNodeCompleted:
			completed++
		case EventStateDelta:
			deltas++
		case EventTerminal:
			e := ev
			terminal = &e
		}
	}

	if entered != 2 || completed != 2 || deltas != 2 {
		t.Errorf("Expected 2 of each transition event, got entered=%d completed=%d deltas=%d", entered, completed, deltas)
	}
	if terminal == nil {
		t.Fatal("Expected a terminal event")
	}
	if terminal.Err != nil {
		t.Errorf("Unexpected terminal error: %v", terminal.Err)
	}
	if terminal.State.Name != "done" || terminal.State.Count != 1 {
		t.Errorf("Unexpected terminal state: %+v", terminal.State)
	}

	final, err := sr.Wait()
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if final.Name != "done" {
		t.Errorf("Expected final name 'done', got %q", final.Name)
	}
}

func TestStream_TerminalCarriesRunError(t *testing.T) {
	g := NewStateGraph[TestState]()

	g.AddNode("loop", "Loop", func(ctx context.Context, state TestState) (TestState, error) {
		return state, nil
	})
	g.SetEntryPoint("loop")
	g.AddConditionalEdge("loop", func(ctx context.Context, state TestState) string { return "loop" })
	g.SetMaxSteps(3)

	runnable, err := g.Compile()
	if err != nil {
		t.Fatalf("Failed to compile graph: %v", err)
	}

	sr := runnable.Stream(context.Background(), TestState{})
	for range sr.Events {
	}
	if _, err := sr.Wait(); err == nil {
		t.Fatal("Expected budget error from Wait")
	}
}
