package graph

import (
	"context"
	"time"
)

// EventType identifies a streamed graph event.
type EventType string

const (
	// EventNodeEntered is emitted before a node executes.
	EventNodeEntered EventType = "node_entered"
	// EventNodeCompleted is emitted after a node's output was merged.
	EventNodeCompleted EventType = "node_completed"
	// EventStateDelta carries the merged state after a node transition.
	EventStateDelta EventType = "state_delta"
	// EventTerminal is the final event of a run; its Err field carries the
	// run error, if any.
	EventTerminal EventType = "terminal"
)

// Event is a single streamed graph transition.
type Event[S any] struct {
	Type      EventType
	Node      string
	Step      int
	State     S
	Err       error
	Timestamp time.Time
}

// StreamResult exposes the event channel of a streaming run plus the final
// outcome once the run terminates.
type StreamResult[S any] struct {
	Events <-chan Event[S]

	done  chan struct{}
	final S
	err   error
}

// Wait blocks until the run terminates and returns the final state.
func (sr *StreamResult[S]) Wait() (S, error) {
	<-sr.done
	return sr.final, sr.err
}

type streamListener[S any] struct {
	ctx    context.Context
	events chan<- Event[S]
}

func (l *streamListener[S]) emit(ev Event[S]) {
	ev.Timestamp = time.Now()
	select {
	case l.events <- ev:
	case <-l.ctx.Done():
	}
}

func (l *streamListener[S]) OnNodeStart(ctx context.Context, node string, step int, state S) {
	l.emit(Event[S]{Type: EventNodeEntered, Node: node, Step: step, State: state})
}

func (l *streamListener[S]) OnNodeEnd(ctx context.Context, node string, step int, state S) {
	l.emit(Event[S]{Type: EventNodeCompleted, Node: node, Step: step, State: state})
	l.emit(Event[S]{Type: EventStateDelta, Node: node, Step: step, State: state})
}

// Stream executes the graph in a goroutine and emits an event per node
// transition. The event channel is closed after the terminal event.
func (r *Runnable[S]) Stream(ctx context.Context, initial S, listeners ...Listener[S]) *StreamResult[S] {
	events := make(chan Event[S], 64)
	sr := &StreamResult[S]{
		Events: events,
		done:   make(chan struct{}),
	}

	sl := &streamListener[S]{ctx: ctx, events: events}
	all := append([]Listener[S]{sl}, listeners...)

	go func() {
		defer close(events)
		defer close(sr.done)

		final, err := r.InvokeWithListeners(ctx, initial, all...)
		sr.final = final
		sr.err = err
		sl.emit(Event[S]{Type: EventTerminal, State: final, Err: err})
	}()

	return sr
}
