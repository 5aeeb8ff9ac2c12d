package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/smallnest/ragflow/model"
)

type planResponse struct {
	Subtasks []struct {
		Query        string   `json:"query"`
		Priority     int      `json:"priority"`
		Dependencies []string `json:"dependencies"`
	} `json:"subtasks"`
}

// plannerNode decomposes the effective query into 1..MaxSubtasks ordered
// subtasks. Redundant subtasks collapse; dependencies may only reference
// earlier subtasks. On planner failure the query becomes a single subtask.
func (r *Runner) plannerNode(ctx context.Context, state TurnState) (TurnState, error) {
	query := state.EffectiveQuery()

	var metaHint string
	if snap, err := r.metadata.get(ctx, r.store); err == nil {
		metaHint = fmt.Sprintf("Available sources: %s\nPage range: %d-%d\nCategories: %s",
			strings.Join(snap.Sources, ", "), snap.Pages.Min, snap.Pages.Max,
			strings.Join(snap.Categories, ", "))
	}

	prompt := fmt.Sprintf(`Decompose the query into at most %d focused sub-questions for document
retrieval. Each subtask has a priority 1-5 (1 highest) and may depend on
earlier subtasks by index ("0", "1", ...). Do not produce redundant
subtasks; an atomic query stays a single subtask.

%s

Query: %s

Respond with JSON:
{"subtasks": [{"query": "...", "priority": 1, "dependencies": []}]}`,
		r.cfg.MaxSubtasks, metaHint, query)

	plan, err := model.GenerateStructured[planResponse](ctx, r.model, prompt, model.Options{Temperature: 0})
	if err != nil || len(plan.Subtasks) == 0 {
		if err != nil {
			r.logger.Warn("planning failed, falling back to a single subtask: %v", err)
			state.Warnings = append(state.Warnings, "planning failed; using the query as a single subtask")
		}
		state.Subtasks = []Subtask{newSubtask(query, 1, nil)}
		state.CurrentSubtaskIdx = 0
		state.RetryCount = 0
		return state, nil
	}

	if len(plan.Subtasks) > r.cfg.MaxSubtasks {
		plan.Subtasks = plan.Subtasks[:r.cfg.MaxSubtasks]
	}

	subtasks := make([]Subtask, 0, len(plan.Subtasks))
	seen := make(map[string]bool)
	ids := make([]string, 0, len(plan.Subtasks))
	for _, raw := range plan.Subtasks {
		q := strings.TrimSpace(raw.Query)
		if q == "" || seen[strings.ToLower(q)] {
			continue // collapse redundant subtasks
		}
		seen[strings.ToLower(q)] = true

		priority := raw.Priority
		if priority < 1 || priority > 5 {
			priority = 3
		}

		// Dependencies may only point at earlier subtasks.
		var deps []string
		for _, d := range raw.Dependencies {
			for j, id := range ids {
				if d == id || d == fmt.Sprintf("%d", j) {
					deps = append(deps, id)
					break
				}
			}
		}

		st := newSubtask(q, priority, deps)
		subtasks = append(subtasks, st)
		ids = append(ids, st.ID)
	}

	if len(subtasks) == 0 {
		subtasks = []Subtask{newSubtask(query, 1, nil)}
	}

	state.Subtasks = subtasks
	state.CurrentSubtaskIdx = 0
	state.RetryCount = 0
	r.logger.Info("planned %d subtasks for turn %s", len(subtasks), state.TurnID)
	return state, nil
}

func newSubtask(query string, priority int, deps []string) Subtask {
	return Subtask{
		ID:           uuid.NewString(),
		Query:        query,
		Priority:     priority,
		Dependencies: deps,
		Status:       SubtaskPending,
	}
}
