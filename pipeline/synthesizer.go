package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/ragflow/model"
	"github.com/smallnest/ragflow/store"
)

// maxPromptChars is the synthesizer's character budget; beyond it, document
// contents are truncated to truncatedDocChars each and the call retried.
const (
	maxPromptChars    = 24000
	truncatedDocChars = 500
)

// Answer is the synthesizer's structured output.
type Answer struct {
	Text              string   `json:"text"`
	Confidence        float64  `json:"confidence"`
	SourcesUsed       []string `json:"sources_used"`
	KeyPoints         []string `json:"key_points"`
	ReferencesTable   string   `json:"references_table"`
	Warnings          []string `json:"warnings,omitempty"`
	EntityReferences  []string `json:"entity_references,omitempty"`
	HumanFeedbackUsed []string `json:"human_feedback_used,omitempty"`
}

type synthesisMode int

const (
	synthesisInitial synthesisMode = iota
	// synthesisCorrective follows a hallucination rejection: zero
	// temperature, stay strictly within the documents, cite every sentence.
	synthesisCorrective
	// synthesisImproved follows a grading rejection: incorporate the
	// grader's suggestions.
	synthesisImproved
)

// synthesizerNode produces the cited answer from the accumulated documents.
// Retry invocations (corrective or improved) increment retry_count exactly
// once; the initial invocation does not.
func (r *Runner) synthesizerNode(ctx context.Context, state TurnState) (TurnState, error) {
	mode := synthesisInitial
	if state.HallucinationReport != nil && state.HallucinationReport.NeedsRetry {
		mode = synthesisCorrective
	} else if state.GradeReport != nil && state.GradeReport.NeedsRetry {
		mode = synthesisImproved
	}

	prompt := r.buildSynthesisPrompt(state, mode, false)
	if len(prompt) > maxPromptChars {
		prompt = r.buildSynthesisPrompt(state, mode, true)
	}

	opts := model.Options{Temperature: 0.2}
	if mode == synthesisCorrective {
		opts.Temperature = 0
	}

	answer, err := model.GenerateStructured[Answer](ctx, r.model, prompt, opts)
	if err != nil {
		// One more attempt with truncated documents before failing.
		answer, err = model.GenerateStructured[Answer](ctx, r.model,
			r.buildSynthesisPrompt(state, mode, true), opts)
	}
	if err != nil {
		state.WorkflowStatus = StatusFailed
		state.Error = fmt.Sprintf("synthesis failed: %v", err)
		return state, nil
	}

	state.IntermediateAnswer = answer.Text
	state.FinalAnswer = answer.Text
	state.Confidence = clamp01(answer.Confidence)
	state.Warnings = append(state.Warnings, answer.Warnings...)
	if state.Metadata == nil {
		state.Metadata = map[string]any{}
	}
	state.Metadata["answer"] = answer

	if mode != synthesisInitial {
		state.RetryCount++
	}
	return state, nil
}

func (r *Runner) buildSynthesisPrompt(state TurnState, mode synthesisMode, truncate bool) string {
	var sb strings.Builder

	sb.WriteString(`Answer the query using ONLY the documents below. Cite supporting
documents inline as [1], [2], ... matching the document numbering. Answer
in the query's language. Include a markdown references table mapping each
citation to its source and page. When citing a document that carries an
entity annotation, name the entity's type explicitly in the prose.
`)
	switch mode {
	case synthesisCorrective:
		sb.WriteString(`
The previous answer contained claims not supported by the documents.
Regenerate it staying strictly within the documents and cite every
sentence. Omit anything you cannot support.
`)
		if state.HallucinationReport != nil && len(state.HallucinationReport.Reasons) > 0 {
			sb.WriteString("Unsupported claims:\n- " +
				strings.Join(state.HallucinationReport.Reasons, "\n- ") + "\n")
		}
	case synthesisImproved:
		sb.WriteString("\nImprove the previous answer following these suggestions:\n")
		if state.GradeReport != nil {
			sb.WriteString("- " + strings.Join(state.GradeReport.Suggestions, "\n- ") + "\n")
		}
		sb.WriteString("\nPrevious answer:\n" + state.IntermediateAnswer + "\n")
	}

	sb.WriteString("\nQuery: " + state.EffectiveQuery() + "\n\nDocuments:\n")
	for i, doc := range prepareDocuments(state.Documents) {
		sb.WriteString(formatDocument(i+1, doc, truncate))
	}

	sb.WriteString(`
Respond with JSON:
{"text": "...", "confidence": 0.0, "sources_used": ["1"], "key_points": [],
 "references_table": "| # | source | page |\n|---|---|---|", "warnings": [],
 "entity_references": [], "human_feedback_used": []}`)
	return sb.String()
}

// prepareDocuments orders documents for synthesis: human-verified content
// first, then entity-annotated documents, then the rest. Order within each
// group is first occurrence.
func prepareDocuments(docs []store.Document) []store.Document {
	var verified, entities, rest []store.Document
	for _, doc := range docs {
		switch {
		case doc.Metadata.HumanFeedback != "":
			verified = append(verified, doc)
		case doc.Metadata.Entity != nil:
			entities = append(entities, doc)
		default:
			rest = append(rest, doc)
		}
	}
	out := make([]store.Document, 0, len(docs))
	out = append(out, verified...)
	out = append(out, entities...)
	out = append(out, rest...)
	return out
}

func formatDocument(n int, doc store.Document, truncate bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] source=%s page=%d category=%s\n",
		n, doc.Metadata.Source, doc.Metadata.Page, doc.Metadata.Category)

	if doc.Metadata.HumanFeedback != "" {
		sb.WriteString("Human Verified: " + doc.Metadata.HumanFeedback + "\n")
	}
	if e := doc.Metadata.Entity; e != nil {
		fmt.Fprintf(&sb, "Entity (%s): %s", e.Type, e.Title)
		if e.Details != "" {
			sb.WriteString(" — " + e.Details)
		}
		if len(e.Keywords) > 0 {
			sb.WriteString(" [" + strings.Join(e.Keywords, ", ") + "]")
		}
		sb.WriteByte('\n')
	}

	content := doc.Content
	if truncate {
		if runes := []rune(content); len(runes) > truncatedDocChars {
			content = string(runes[:truncatedDocChars])
		}
	}
	sb.WriteString(content + "\n\n")
	return sb.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
