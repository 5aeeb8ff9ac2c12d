package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/ragflow/store"
)

func TestTurnSchemaDocumentsAccumulate(t *testing.T) {
	schema := turnSchema{}

	current := TurnState{Documents: []store.Document{{ID: "a"}, {ID: "b"}}}

	// A node output missing documents cannot shrink the accumulated set.
	merged, err := schema.Update(current, TurnState{FinalAnswer: "x"})
	require.NoError(t, err)
	assert.Len(t, merged.Documents, 2)

	// New documents append; duplicates by id are dropped; first-appearance
	// order is preserved.
	merged, err = schema.Update(current, TurnState{
		Documents: []store.Document{{ID: "b"}, {ID: "c"}, {ID: "a"}},
	})
	require.NoError(t, err)
	require.Len(t, merged.Documents, 3)
	assert.Equal(t, "a", merged.Documents[0].ID)
	assert.Equal(t, "b", merged.Documents[1].ID)
	assert.Equal(t, "c", merged.Documents[2].ID)
}

func TestTurnSchemaAppendOnlyLogs(t *testing.T) {
	schema := turnSchema{}

	current := TurnState{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Warnings: []string{"w1", "w2"},
	}

	merged, err := schema.Update(current, TurnState{})
	require.NoError(t, err)
	assert.Len(t, merged.Messages, 1)
	assert.Len(t, merged.Warnings, 2)

	merged, err = schema.Update(current, TurnState{
		Messages: append(current.Messages, Message{Role: "assistant", Content: "hello"}),
		Warnings: append(current.Warnings, "w3"),
	})
	require.NoError(t, err)
	assert.Len(t, merged.Messages, 2)
	assert.Len(t, merged.Warnings, 3)
}

func TestTurnSchemaTerminalStatusSticks(t *testing.T) {
	schema := turnSchema{}

	current := TurnState{WorkflowStatus: StatusCompleted}
	merged, err := schema.Update(current, TurnState{WorkflowStatus: StatusRunning})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, merged.WorkflowStatus)

	current = TurnState{WorkflowStatus: StatusFailed, Error: "boom"}
	merged, err = schema.Update(current, TurnState{WorkflowStatus: StatusRunning})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, merged.WorkflowStatus)
	assert.Equal(t, "boom", merged.Error)
}

func TestTurnSchemaScalarsLastWriterWins(t *testing.T) {
	schema := turnSchema{}

	current := TurnState{FinalAnswer: "old", Confidence: 0.3, Error: "transient"}
	merged, err := schema.Update(current, TurnState{
		WorkflowStatus: StatusRunning,
		FinalAnswer:    "new",
		Confidence:     0.8,
		Error:          "", // a node may clear the error explicitly
	})
	require.NoError(t, err)
	assert.Equal(t, "new", merged.FinalAnswer)
	assert.Equal(t, 0.8, merged.Confidence)
	assert.Empty(t, merged.Error)
}

func TestEffectiveQuery(t *testing.T) {
	s := TurnState{Query: "original"}
	assert.Equal(t, "original", s.EffectiveQuery())

	s.EnhancedQuery = "resolved"
	assert.Equal(t, "resolved", s.EffectiveQuery())
}

func TestActiveSubtaskIdx(t *testing.T) {
	s := TurnState{
		Subtasks: []Subtask{
			{Status: SubtaskCompleted},
			{Status: SubtaskExecuting},
			{Status: SubtaskPending},
		},
		CurrentSubtaskIdx: 2,
	}
	assert.Equal(t, 1, s.activeSubtaskIdx())

	s.Subtasks[1].Status = SubtaskCompleted
	assert.Equal(t, -1, s.activeSubtaskIdx())
}
