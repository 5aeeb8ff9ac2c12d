// Package pipeline assembles the retrieval-and-orchestration core: a state
// machine that routes, plans, retrieves, synthesizes and validates one
// question-answering turn over a shared TurnState.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/smallnest/ragflow/checkpoint"
	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/log"
	"github.com/smallnest/ragflow/model"
	"github.com/smallnest/ragflow/retriever"
	"github.com/smallnest/ragflow/store"
	"github.com/smallnest/ragflow/tool"
)

// ErrEmptyQuery rejects turns with no query text.
var ErrEmptyQuery = errors.New("query must not be empty")

// Node names of the turn graph.
const (
	nodeRouter          = "router"
	nodeContextResolver = "context_resolver"
	nodeDirectResponder = "direct_responder"
	nodePlanner         = "planner"
	nodeSubtaskExecutor = "subtask_executor"
	nodeRetriever       = "retriever"
	nodeWebFallback     = "web_fallback"
	nodeSynthesizer     = "synthesizer"
	nodeHallucination   = "hallucination_checker"
	nodeAnswerGrader    = "answer_grader"
)

// Runner executes question-answering turns. It owns the compiled graph and
// the collaborator adapters; one Runner serves many concurrent turns.
type Runner struct {
	cfg       Config
	model     model.Client
	store     store.Store
	retriever *retriever.Hybrid
	web       tool.WebSearcher
	fetcher   pageFetcher
	saver     checkpoint.Store
	logger    log.Logger
	metadata  *metadataCache
	runnable  *graph.Runnable[TurnState]
}

// pageFetcher extracts readable text from a web page; tool.PageFetcher is
// the production implementation.
type pageFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWebSearcher enables the web fallback tool.
func WithWebSearcher(w tool.WebSearcher) RunnerOption {
	return func(r *Runner) {
		r.web = w
	}
}

// WithCheckpointStore persists the turn state after every node transition.
func WithCheckpointStore(s checkpoint.Store) RunnerOption {
	return func(r *Runner) {
		r.saver = s
	}
}

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(logger log.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner validates the configuration, wires the retriever and compiles
// the turn graph.
func NewRunner(cfg Config, client model.Client, s store.Store, embedder embeddings.Embedder, opts ...RunnerOption) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	r := &Runner{
		cfg:      cfg,
		model:    client,
		store:    s,
		fetcher:  tool.NewPageFetcher(),
		logger:   log.GetDefaultLogger(),
		metadata: newMetadataCache(cfg.MetadataTTL),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.retriever = retriever.NewHybrid(s, embedder,
		retriever.WithTopK(cfg.TopK),
		retriever.WithRRFK(cfg.RRFK),
		retriever.WithLogger(r.logger),
	)

	runnable, err := r.buildGraph()
	if err != nil {
		return nil, err
	}
	r.runnable = runnable
	return r, nil
}

func (r *Runner) buildGraph() (*graph.Runnable[TurnState], error) {
	g := graph.NewStateGraph[TurnState]()
	g.SetSchema(turnSchema{})
	g.SetMaxSteps(r.cfg.StepBudget())

	g.AddNode(nodeRouter, "classify the query", r.routerNode)
	g.AddNode(nodeContextResolver, "resolve references against history", r.contextResolverNode)
	g.AddNode(nodeDirectResponder, "answer simple queries directly", r.directResponderNode)
	g.AddNode(nodePlanner, "decompose the query into subtasks", r.plannerNode)
	g.AddNode(nodeSubtaskExecutor, "prepare the next subtask", r.subtaskExecutorNode)
	g.AddNode(nodeRetriever, "hybrid dense+lexical retrieval", r.retrieveNode)
	g.AddNode(nodeWebFallback, "supplement sparse retrieval from the web", r.webFallbackNode)
	g.AddNode(nodeSynthesizer, "synthesize a cited answer", r.synthesizerNode)
	g.AddNode(nodeHallucination, "check the answer against the documents", r.hallucinationCheckerNode)
	g.AddNode(nodeAnswerGrader, "grade the answer against the query", r.answerGraderNode)

	if r.cfg.RoutingEnabled {
		g.SetEntryPoint(nodeRouter)
	} else {
		g.SetEntryPoint(nodePlanner)
	}

	g.AddConditionalEdge(nodeRouter, func(ctx context.Context, s TurnState) string {
		switch s.QueryType {
		case QueryTypeSimple:
			return nodeDirectResponder
		case QueryTypeHistoryRequired:
			return nodeContextResolver
		default:
			return nodePlanner
		}
	})
	g.AddEdge(nodeContextResolver, nodePlanner)
	g.AddEdge(nodeDirectResponder, graph.END)
	g.AddEdge(nodePlanner, nodeSubtaskExecutor)
	g.AddConditionalEdge(nodeSubtaskExecutor, r.subtaskAdvance)
	g.AddConditionalEdge(nodeRetriever, r.needsWeb)
	g.AddEdge(nodeWebFallback, nodeSubtaskExecutor)
	g.AddEdge(nodeSynthesizer, nodeHallucination)
	g.AddConditionalEdge(nodeHallucination, r.hallucinationDecision)
	g.AddConditionalEdge(nodeAnswerGrader, r.gradeDecision)

	return g.Compile()
}

// subtaskAdvance routes after the executor: a retrieval error or terminal
// status ends the turn, a prepared subtask goes to the retriever, and an
// exhausted plan moves on to synthesis.
func (r *Runner) subtaskAdvance(ctx context.Context, s TurnState) string {
	if s.Error != "" || s.WorkflowStatus == StatusFailed {
		return graph.END
	}
	if s.activeSubtaskIdx() >= 0 {
		return nodeRetriever
	}
	if s.CurrentSubtaskIdx >= len(s.Subtasks) || s.WorkflowStatus == StatusCompleted {
		return nodeSynthesizer
	}
	// The cursor advanced past a failed subtask; prepare the next one.
	return nodeSubtaskExecutor
}

// needsWeb routes after retrieval: sparse results (or an explicit
// require_web marker) trigger the web fallback when it is enabled.
func (r *Runner) needsWeb(ctx context.Context, s TurnState) string {
	if !r.cfg.WebEnabled || r.web == nil {
		return nodeSubtaskExecutor
	}
	idx := lastPreparedSubtaskIdx(s)
	if idx < 0 {
		return nodeSubtaskExecutor
	}
	requireWeb, _ := s.Metadata["require_web"].(bool)
	if len(s.Subtasks[idx].Documents) < r.cfg.WebFallbackThreshold || requireWeb {
		return nodeWebFallback
	}
	return nodeSubtaskExecutor
}

func (r *Runner) hallucinationDecision(ctx context.Context, s TurnState) string {
	report := s.HallucinationReport
	if report == nil || report.IsValid {
		return nodeAnswerGrader
	}
	if report.NeedsRetry && s.RetryCount < s.MaxRetries {
		return nodeSynthesizer
	}
	return graph.END
}

func (r *Runner) gradeDecision(ctx context.Context, s TurnState) string {
	report := s.GradeReport
	if report == nil || report.IsValid {
		return graph.END
	}
	if report.NeedsRetry && s.RetryCount < s.MaxRetries {
		return nodeSynthesizer
	}
	return graph.END
}

// Result is the user-visible outcome of one turn.
type Result struct {
	TurnID     string         `json:"turn_id"`
	Answer     string         `json:"answer"`
	Confidence float64        `json:"confidence"`
	Status     Status         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	State      TurnState      `json:"-"`
}

// RunOption adjusts a single turn before it starts.
type RunOption func(*TurnState)

// WithTurnMetadata merges entries into the turn's initial metadata. Keys
// like "require_web" steer the web-fallback predicate.
func WithTurnMetadata(metadata map[string]any) RunOption {
	return func(s *TurnState) {
		for k, v := range metadata {
			s.Metadata[k] = v
		}
	}
}

// WithHistory seeds prior conversation messages ahead of the current user
// message, for routing and reference resolution.
func WithHistory(messages []Message) RunOption {
	return func(s *TurnState) {
		s.Messages = append(append([]Message(nil), messages...), s.Messages...)
	}
}

// Run executes one turn synchronously and blocks until a terminal status,
// the step budget or the turn deadline. A failed turn still carries
// whatever answer and warnings were produced.
func (r *Runner) Run(ctx context.Context, query string, opts ...RunOption) (Result, error) {
	initial, err := r.initialState(query, opts...)
	if err != nil {
		return Result{Status: StatusFailed, Error: err.Error()}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.TurnDeadline)
	defer cancel()

	final, runErr := r.runnable.InvokeWithListeners(ctx, initial, r.listeners(initial.TurnID)...)
	return r.finalize(final, runErr), nil
}

// StreamResult exposes a streaming turn's events plus its finalized result.
type StreamResult struct {
	Events <-chan graph.Event[TurnState]

	runner *Runner
	inner  *graph.StreamResult[TurnState]
}

// Wait blocks until the turn terminates and returns the same Result a
// synchronous Run would have produced.
func (sr *StreamResult) Wait() Result {
	final, err := sr.inner.Wait()
	return sr.runner.finalize(final, err)
}

// Stream executes one turn under the same deadline semantics as Run and
// emits an event per node transition.
func (r *Runner) Stream(ctx context.Context, query string, opts ...RunOption) (*StreamResult, error) {
	initial, err := r.initialState(query, opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.TurnDeadline)
	inner := r.runnable.Stream(ctx, initial, r.listeners(initial.TurnID)...)
	go func() {
		inner.Wait()
		cancel()
	}()
	return &StreamResult{Events: inner.Events, runner: r, inner: inner}, nil
}

func (r *Runner) initialState(query string, opts ...RunOption) (TurnState, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return TurnState{}, ErrEmptyQuery
	}
	state := TurnState{
		TurnID:         uuid.NewString(),
		Query:          query,
		MaxRetries:     r.cfg.MaxRetries,
		WorkflowStatus: StatusRunning,
		Messages:       []Message{{Role: "user", Content: query}},
		Metadata:       map[string]any{},
	}
	for _, opt := range opts {
		opt(&state)
	}
	return state, nil
}

func (r *Runner) listeners(turnID string) []graph.Listener[TurnState] {
	if r.saver == nil {
		return nil
	}
	return []graph.Listener[TurnState]{graph.NewCheckpointListener[TurnState](r.saver, turnID)}
}

// finalize maps the terminal state and run error onto the user-visible
// result. A turn is never reported completed unless the graph reached a
// completed status.
func (r *Runner) finalize(state TurnState, runErr error) Result {
	switch {
	case errors.Is(runErr, graph.ErrStepBudgetExceeded):
		state.WorkflowStatus = StatusFailed
		state.Error = graph.ErrStepBudgetExceeded.Error()
	case errors.Is(runErr, context.DeadlineExceeded):
		state.WorkflowStatus = StatusFailed
		state.Error = "turn deadline exceeded"
	case runErr != nil:
		state.WorkflowStatus = StatusFailed
		state.Error = runErr.Error()
	case state.WorkflowStatus == StatusRunning:
		state.WorkflowStatus = StatusFailed
		if state.Error == "" {
			state.Error = "turn ended without a terminal status"
		}
	}

	result := Result{
		TurnID:     state.TurnID,
		Answer:     state.FinalAnswer,
		Confidence: state.Confidence,
		Status:     state.WorkflowStatus,
		Error:      state.Error,
		Warnings:   state.Warnings,
		Metadata:   state.Metadata,
		State:      state,
	}
	if state.WorkflowStatus == StatusFailed {
		r.logger.Warn("turn %s failed: %s", state.TurnID, state.Error)
	}
	return result
}
