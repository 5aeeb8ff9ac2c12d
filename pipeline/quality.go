package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/ragflow/model"
)

type hallucinationResponse struct {
	Score             float64  `json:"score"`
	UnsupportedClaims []string `json:"unsupported_claims"`
}

// hallucinationCheckerNode validates the answer against the documents.
// Score is the fraction of unsupported content (higher = worse); the answer
// is valid when score stays at or below the threshold. Empty documents are
// fatal: there is no ground truth to check against.
func (r *Runner) hallucinationCheckerNode(ctx context.Context, state TurnState) (TurnState, error) {
	if len(state.Documents) == 0 {
		state.HallucinationReport = &QualityReport{
			IsValid:    false,
			Score:      1,
			Reasons:    []string{"no supporting documents"},
			NeedsRetry: false,
		}
		state.WorkflowStatus = StatusFailed
		state.Error = "answer cannot be validated: no supporting documents"
		return state, nil
	}

	prompt := fmt.Sprintf(`Decompose the answer into atomic claims and check each against the
documents. Entity annotations (type, title, details, keywords) count as
ground truth. Score = fraction of claims unsupported by the documents,
0.0 (fully grounded) to 1.0 (fully unsupported).

Answer:
%s

Documents:
%s

Respond with JSON: {"score": 0.0, "unsupported_claims": []}`,
		state.FinalAnswer, formatDocumentsForCheck(state))

	resp, err := model.GenerateStructured[hallucinationResponse](ctx, r.model, prompt, model.Options{Temperature: 0})
	if err != nil {
		// Non-critical gate failure: accept with a warning rather than
		// discarding a synthesized answer.
		r.logger.Warn("hallucination check unavailable: %v", err)
		state.Warnings = append(state.Warnings, "hallucination check unavailable; answer not verified")
		state.HallucinationReport = &QualityReport{IsValid: true, Score: 0,
			Reasons: []string{"checker unavailable"}}
		return state, nil
	}

	score := clamp01(resp.Score)
	valid := score <= r.cfg.ThresholdHallucination
	report := &QualityReport{
		IsValid:    valid,
		Score:      score,
		Reasons:    resp.UnsupportedClaims,
		NeedsRetry: !valid,
	}
	state.HallucinationReport = report

	if !valid && state.RetryCount >= state.MaxRetries {
		state.WorkflowStatus = StatusFailed
		state.Error = fmt.Sprintf("answer failed hallucination check after %d retries (score %.2f)",
			state.RetryCount, score)
	}
	return state, nil
}

var gradeDimensions = []string{"completeness", "relevance", "clarity", "accuracy"}

type gradeResponse struct {
	Completeness float64  `json:"completeness"`
	Relevance    float64  `json:"relevance"`
	Clarity      float64  `json:"clarity"`
	Accuracy     float64  `json:"accuracy"`
	Suggestions  []string `json:"suggestions"`
}

// answerGraderNode scores the answer against the original query on four
// dimensions. The answer passes when the mean reaches the grade threshold
// and every dimension reaches 0.5; suggestions feed the synthesizer's
// improved mode on retry.
func (r *Runner) answerGraderNode(ctx context.Context, state TurnState) (TurnState, error) {
	prompt := fmt.Sprintf(`Grade the answer against the query on four dimensions, each 0.0-1.0:
completeness, relevance, clarity, accuracy. Add concrete suggestions for
any dimension scoring below 0.7.

Query: %s

Answer:
%s

Respond with JSON:
{"completeness": 0.0, "relevance": 0.0, "clarity": 0.0, "accuracy": 0.0, "suggestions": []}`,
		state.Query, state.FinalAnswer)

	resp, err := model.GenerateStructured[gradeResponse](ctx, r.model, prompt, model.Options{Temperature: 0})
	if err != nil {
		r.logger.Warn("answer grading unavailable: %v", err)
		state.Warnings = append(state.Warnings, "answer grading unavailable; answer not graded")
		state.GradeReport = &QualityReport{IsValid: true, Score: 0,
			Reasons: []string{"grader unavailable"}}
		state.WorkflowStatus = StatusCompleted
		state.Messages = append(state.Messages, Message{Role: "assistant", Content: state.FinalAnswer})
		return state, nil
	}

	dims := map[string]float64{
		"completeness": clamp01(resp.Completeness),
		"relevance":    clamp01(resp.Relevance),
		"clarity":      clamp01(resp.Clarity),
		"accuracy":     clamp01(resp.Accuracy),
	}

	var sum float64
	valid := true
	for _, name := range gradeDimensions {
		sum += dims[name]
		if dims[name] < 0.5 {
			valid = false
		}
	}
	overall := sum / float64(len(gradeDimensions))
	if overall < r.cfg.ThresholdGrade {
		valid = false
	}

	report := &QualityReport{
		IsValid:     valid,
		Score:       overall,
		Suggestions: resp.Suggestions,
		NeedsRetry:  !valid,
		Dimensions:  dims,
	}
	state.GradeReport = report

	if valid {
		state.WorkflowStatus = StatusCompleted
		state.Messages = append(state.Messages, Message{Role: "assistant", Content: state.FinalAnswer})
	} else if state.RetryCount >= state.MaxRetries {
		state.WorkflowStatus = StatusFailed
		state.Error = fmt.Sprintf("answer failed grading after %d retries (overall %.2f)",
			state.RetryCount, overall)
	}
	return state, nil
}

func formatDocumentsForCheck(state TurnState) string {
	var sb strings.Builder
	for i, doc := range prepareDocuments(state.Documents) {
		sb.WriteString(formatDocument(i+1, doc, len(state.Documents) > 20))
	}
	return sb.String()
}
