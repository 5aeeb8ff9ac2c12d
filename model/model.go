// Package model defines the contract with an LLM provider: free-form text
// generation and schema-constrained structured output. The core treats the
// provider as an opaque text-in / structure-out service.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrStructuredOutput is returned when the model's structured output cannot
// be parsed after a retry.
var ErrStructuredOutput = errors.New("model returned unparseable structured output")

// Options tune a single generation call. The deadline rides on the context.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Client is the two-operation model contract.
type Client interface {
	// Generate returns free-form text for the prompt.
	Generate(ctx context.Context, prompt string, opts Options) (string, error)

	// GenerateJSON returns a single JSON object for the prompt. The
	// prompt is expected to describe the desired schema.
	GenerateJSON(ctx context.Context, prompt string, opts Options) (json.RawMessage, error)
}

// GenerateStructured binds GenerateJSON output to a concrete record type.
// Unparseable output is retried once, then surfaced as ErrStructuredOutput.
func GenerateStructured[T any](ctx context.Context, c Client, prompt string, opts Options) (T, error) {
	var out T
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		raw, err := c.GenerateJSON(ctx, prompt, opts)
		if err != nil {
			lastErr = err
			continue
		}
		if err := json.Unmarshal(normalizeJSON(raw), &out); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrStructuredOutput, err)
			continue
		}
		return out, nil
	}

	var zero T
	return zero, lastErr
}

// normalizeJSON strips markdown code fences some models wrap around JSON.
func normalizeJSON(raw json.RawMessage) json.RawMessage {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	return json.RawMessage(s)
}
