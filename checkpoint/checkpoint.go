// Package checkpoint persists per-turn state snapshots keyed by run id,
// enabling resume-on-crash. Backends: in-memory, Redis and SQLite.
package checkpoint

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/smallnest/ragflow/graph"
)

// ErrNotFound is returned when a requested checkpoint does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists graph checkpoints. Every Store also satisfies
// graph.CheckpointSaver.
type Store interface {
	// Save stores a checkpoint, overwriting any previous one with the
	// same run id and step.
	Save(ctx context.Context, cp graph.Checkpoint) error

	// Latest returns the highest-step checkpoint of a run.
	Latest(ctx context.Context, runID string) (graph.Checkpoint, error)

	// List returns all checkpoints of a run ordered by step.
	List(ctx context.Context, runID string) ([]graph.Checkpoint, error)

	// Delete removes all checkpoints of a run.
	Delete(ctx context.Context, runID string) error
}

// MemoryStore is an in-memory checkpoint store.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]map[int]graph.Checkpoint
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]map[int]graph.Checkpoint),
	}
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, cp graph.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps, ok := s.runs[cp.RunID]
	if !ok {
		steps = make(map[int]graph.Checkpoint)
		s.runs[cp.RunID] = steps
	}
	steps[cp.Step] = cp
	return nil
}

// Latest implements Store.
func (s *MemoryStore) Latest(ctx context.Context, runID string) (graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	steps, ok := s.runs[runID]
	if !ok || len(steps) == 0 {
		return graph.Checkpoint{}, ErrNotFound
	}
	best := -1
	for step := range steps {
		if step > best {
			best = step
		}
	}
	return steps[best], nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, runID string) ([]graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	steps, ok := s.runs[runID]
	if !ok {
		return nil, nil
	}
	out := make([]graph.Checkpoint, 0, len(steps))
	for _, cp := range steps {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}
