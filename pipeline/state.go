package pipeline

import (
	"github.com/smallnest/ragflow/retriever"
	"github.com/smallnest/ragflow/store"
)

// Status is the workflow status of a turn. Completed and failed are
// terminal; no node transitions out of them.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// QueryType is the router's classification of a query.
type QueryType string

const (
	// QueryTypeSimple marks general-knowledge or social queries answered
	// directly without retrieval.
	QueryTypeSimple QueryType = "simple"
	// QueryTypeRAGRequired marks queries answered from the document store.
	QueryTypeRAGRequired QueryType = "rag_required"
	// QueryTypeHistoryRequired marks queries with unresolved references to
	// prior turns; they pass through the context resolver first.
	QueryTypeHistoryRequired QueryType = "history_required"
)

// SubtaskStatus tracks a subtask through its lifecycle.
type SubtaskStatus string

const (
	SubtaskPending   SubtaskStatus = "pending"
	SubtaskExecuting SubtaskStatus = "executing"
	SubtaskCompleted SubtaskStatus = "completed"
	SubtaskFailed    SubtaskStatus = "failed"
)

// Message is one entry of the turn's conversational log.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Subtask is a unit of planned work: one focused sub-question with its
// derived variations, filter and retrieved documents.
type Subtask struct {
	ID           string            `json:"id"`
	Query        string            `json:"query"`
	Priority     int               `json:"priority"` // 1..5
	Dependencies []string          `json:"dependencies,omitempty"`
	Status       SubtaskStatus     `json:"status"`
	Documents    []store.Document  `json:"documents,omitempty"`
	Variations   []retriever.Query `json:"variations,omitempty"`
	Filter       store.Filter      `json:"filter"`
}

// QualityReport is the outcome of a quality gate (hallucination checker or
// answer grader).
type QualityReport struct {
	IsValid     bool               `json:"is_valid"`
	Score       float64            `json:"score"` // ∈ [0,1]
	Reasons     []string           `json:"reasons,omitempty"`
	Suggestions []string           `json:"suggestions,omitempty"`
	NeedsRetry  bool               `json:"needs_retry"`
	Dimensions  map[string]float64 `json:"dimensions,omitempty"`
}

// TurnState is the single evolving record passed between nodes. Nodes
// return a full state; the schema folds it into the current state with the
// reducer semantics in turnSchema.Update.
type TurnState struct {
	TurnID        string    `json:"turn_id"`
	Query         string    `json:"query"`
	EnhancedQuery string    `json:"enhanced_query,omitempty"`
	QueryType     QueryType `json:"query_type,omitempty"`

	Subtasks          []Subtask `json:"subtasks,omitempty"`
	CurrentSubtaskIdx int       `json:"current_subtask_idx"`

	// Documents accumulates across subtasks, deduplicated by id with
	// first-appearance order preserved.
	Documents []store.Document `json:"documents,omitempty"`

	IntermediateAnswer string  `json:"intermediate_answer,omitempty"`
	FinalAnswer        string  `json:"final_answer,omitempty"`
	Confidence         float64 `json:"confidence"`

	HallucinationReport *QualityReport `json:"hallucination_report,omitempty"`
	GradeReport         *QualityReport `json:"grade_report,omitempty"`

	RetryCount     int `json:"retry_count"`
	MaxRetries     int `json:"max_retries"`
	IterationCount int `json:"iteration_count"`

	WorkflowStatus Status   `json:"workflow_status"`
	Error          string   `json:"error,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`

	Messages []Message      `json:"messages,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EffectiveQuery returns the context-resolved query when present, the
// original otherwise. The planner and executor read the query through this.
func (s TurnState) EffectiveQuery() string {
	if s.EnhancedQuery != "" {
		return s.EnhancedQuery
	}
	return s.Query
}

// activeSubtaskIdx returns the index of the subtask currently awaiting
// retrieval (status executing), or -1. The executor advances
// CurrentSubtaskIdx past the subtask it prepared, so the active one sits
// just behind the cursor.
func (s TurnState) activeSubtaskIdx() int {
	for i := s.CurrentSubtaskIdx - 1; i >= 0; i-- {
		if s.Subtasks[i].Status == SubtaskExecuting {
			return i
		}
	}
	return -1
}

// turnSchema implements graph.Schema[TurnState]: documents accumulate with
// dedup, messages and warnings are append-only, terminal statuses stick,
// everything else is last-writer-wins.
type turnSchema struct{}

func (turnSchema) Init() TurnState {
	return TurnState{
		WorkflowStatus: StatusRunning,
		Metadata:       map[string]any{},
	}
}

func (turnSchema) Update(current, next TurnState) (TurnState, error) {
	merged := next

	merged.Documents = mergeDocuments(current.Documents, next.Documents)

	// Append-only guards: a node that dropped entries cannot shrink the log.
	if len(next.Messages) < len(current.Messages) {
		merged.Messages = current.Messages
	}
	if len(next.Warnings) < len(current.Warnings) {
		merged.Warnings = current.Warnings
	}

	if current.WorkflowStatus == StatusCompleted || current.WorkflowStatus == StatusFailed {
		merged.WorkflowStatus = current.WorkflowStatus
		if current.Error != "" {
			merged.Error = current.Error
		}
	}

	if merged.Metadata == nil {
		merged.Metadata = current.Metadata
	}
	return merged, nil
}

// mergeDocuments appends incoming documents whose id is not already
// present, preserving first-appearance order.
func mergeDocuments(current, next []store.Document) []store.Document {
	if len(current) == 0 {
		return dedupDocuments(next)
	}
	seen := make(map[string]bool, len(current))
	out := make([]store.Document, 0, len(current)+len(next))
	for _, doc := range current {
		if !seen[doc.ID] {
			seen[doc.ID] = true
			out = append(out, doc)
		}
	}
	for _, doc := range next {
		if !seen[doc.ID] {
			seen[doc.ID] = true
			out = append(out, doc)
		}
	}
	return out
}

func dedupDocuments(docs []store.Document) []store.Document {
	seen := make(map[string]bool, len(docs))
	out := make([]store.Document, 0, len(docs))
	for _, doc := range docs {
		if !seen[doc.ID] {
			seen[doc.ID] = true
			out = append(out, doc)
		}
	}
	return out
}
