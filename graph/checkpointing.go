package graph

import (
	"context"
	"encoding/json"
	"time"

	"github.com/smallnest/ragflow/log"
)

// Checkpoint is a snapshot of graph state after one node transition.
// State is an opaque JSON serialization of the graph's state type.
type Checkpoint struct {
	RunID     string          `json:"run_id"`
	Step      int             `json:"step"`
	Node      string          `json:"node"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// CheckpointSaver persists checkpoints. Implementations live in the
// checkpoint package (memory, redis, sqlite).
type CheckpointSaver interface {
	Save(ctx context.Context, cp Checkpoint) error
}

// CheckpointListener saves a checkpoint after every node transition,
// enabling resume-on-crash. Save failures are logged, never fatal to the run.
type CheckpointListener[S any] struct {
	saver  CheckpointSaver
	runID  string
	logger log.Logger
}

// NewCheckpointListener creates a listener persisting state under runID.
func NewCheckpointListener[S any](saver CheckpointSaver, runID string) *CheckpointListener[S] {
	return &CheckpointListener[S]{
		saver:  saver,
		runID:  runID,
		logger: log.GetDefaultLogger(),
	}
}

// OnNodeStart implements Listener.
func (l *CheckpointListener[S]) OnNodeStart(ctx context.Context, node string, step int, state S) {}

// OnNodeEnd implements Listener.
func (l *CheckpointListener[S]) OnNodeEnd(ctx context.Context, node string, step int, state S) {
	raw, err := json.Marshal(state)
	if err != nil {
		l.logger.Warn("checkpoint: marshal state after %s failed: %v", node, err)
		return
	}
	cp := Checkpoint{
		RunID:     l.runID,
		Step:      step,
		Node:      node,
		State:     raw,
		CreatedAt: time.Now(),
	}
	if err := l.saver.Save(ctx, cp); err != nil {
		l.logger.Warn("checkpoint: save after %s failed: %v", node, err)
	}
}
