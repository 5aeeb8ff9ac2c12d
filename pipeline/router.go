package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/ragflow/model"
)

const maxRouterHistory = 10

type routeDecision struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// routerNode classifies the query as simple, rag_required or
// history_required. Classifier failure defaults to rag_required, the safe
// path through retrieval.
func (r *Runner) routerNode(ctx context.Context, state TurnState) (TurnState, error) {
	prompt := fmt.Sprintf(`Classify the user query into exactly one type.

Types:
- "simple": general-knowledge or social queries answerable without documents
- "history_required": the query contains references ("it", "that one", "the previous") that need prior conversation turns to resolve
- "rag_required": everything else; answering needs the document store

Conversation so far:
%s

Query: %s

Respond with JSON: {"type": "...", "confidence": 0.0, "reasoning": "..."}`,
		formatHistory(state.Messages, maxRouterHistory), state.Query)

	decision, err := model.GenerateStructured[routeDecision](ctx, r.model, prompt, model.Options{Temperature: 0})
	if err != nil {
		r.logger.Warn("router classification failed, defaulting to rag_required: %v", err)
		state.QueryType = QueryTypeRAGRequired
		state.Warnings = append(state.Warnings, "query routing failed; treated as document query")
		return state, nil
	}

	switch QueryType(decision.Type) {
	case QueryTypeSimple, QueryTypeHistoryRequired, QueryTypeRAGRequired:
		state.QueryType = QueryType(decision.Type)
	default:
		state.QueryType = QueryTypeRAGRequired
	}
	r.logger.Debug("routed query as %s (confidence %.2f)", state.QueryType, decision.Confidence)
	return state, nil
}

// contextResolverNode rewrites a history-dependent query into a
// self-contained form stored as enhanced_query.
func (r *Runner) contextResolverNode(ctx context.Context, state TurnState) (TurnState, error) {
	prompt := fmt.Sprintf(`Rewrite the query so it stands alone, substituting every reference
("it", "that", "the one above") with its antecedent from the conversation.
Keep the language of the original query. Return only the rewritten query.

Conversation:
%s

Query: %s`,
		formatHistory(state.Messages, maxRouterHistory), state.Query)

	rewritten, err := r.model.Generate(ctx, prompt, model.Options{Temperature: 0})
	if err != nil {
		r.logger.Warn("context resolution failed, using original query: %v", err)
		state.Warnings = append(state.Warnings, "context resolution failed; using the query as-is")
		return state, nil
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten != "" && rewritten != state.Query {
		state.EnhancedQuery = rewritten
	}
	return state, nil
}

// directResponderNode answers simple queries with one moderate-temperature
// model call and terminates the turn. Time-sensitive queries may pull in a
// few web results when the fallback is enabled.
func (r *Runner) directResponderNode(ctx context.Context, state TurnState) (TurnState, error) {
	var webContext string
	if r.cfg.WebEnabled && r.web != nil && isTimeSensitive(state.Query) {
		docs, err := r.web.Search(ctx, state.Query, 3)
		if err != nil {
			r.logger.Debug("direct responder web search skipped: %v", err)
		}
		for _, doc := range docs {
			webContext += "- " + doc.Content + "\n"
		}
	}

	prompt := fmt.Sprintf("Answer the user briefly and helpfully, in the user's language.\n\nQuery: %s", state.Query)
	if webContext != "" {
		prompt += "\n\nRecent web results:\n" + webContext
	}

	answer, err := r.model.Generate(ctx, prompt, model.Options{Temperature: 0.7})
	if err != nil {
		state.WorkflowStatus = StatusFailed
		state.Error = fmt.Sprintf("direct response failed: %v", err)
		return state, nil
	}

	state.FinalAnswer = strings.TrimSpace(answer)
	state.Confidence = 0.9
	state.WorkflowStatus = StatusCompleted
	state.Messages = append(state.Messages, Message{Role: "assistant", Content: state.FinalAnswer})
	return state, nil
}

// formatHistory renders the last n conversational entries for a prompt.
func formatHistory(messages []Message, n int) string {
	if len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	if len(messages) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteByte('\n')
	}
	return sb.String()
}

var timeSensitiveMarkers = []string{
	"today", "latest", "current", "now", "news", "price",
	"오늘", "현재", "최신", "지금", "뉴스",
}

func isTimeSensitive(query string) bool {
	q := strings.ToLower(query)
	for _, marker := range timeSensitiveMarkers {
		if strings.Contains(q, marker) {
			return true
		}
	}
	return false
}
