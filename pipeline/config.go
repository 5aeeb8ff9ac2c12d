package pipeline

import (
	"fmt"
	"time"
)

// Config enumerates the turn-level options. Zero values are replaced by the
// defaults below; Validate rejects out-of-range settings before a turn runs.
type Config struct {
	// MaxSubtasks caps the planner's decomposition (default 5).
	MaxSubtasks int
	// MaxRetries caps synthesis retries across both quality gates (default 3).
	MaxRetries int
	// TopK is the final per-subtask result count (default 10).
	TopK int
	// RRFK is the RRF constant (default 60).
	RRFK int
	// SemanticWeight and KeywordWeight are informational; ranking uses pure
	// RRF (defaults 0.5 each).
	SemanticWeight float64
	KeywordWeight  float64
	// WebFallbackThreshold is the per-subtask document-count floor below
	// which the web fallback is considered (default 3).
	WebFallbackThreshold int
	// ThresholdHallucination is the maximum acceptable hallucination score
	// (default 0.7).
	ThresholdHallucination float64
	// ThresholdGrade is the minimum acceptable overall grade (default 0.6).
	ThresholdGrade float64
	// RoutingEnabled routes simple queries past retrieval (default true).
	RoutingEnabled bool
	// WebEnabled allows the web fallback (default false).
	WebEnabled bool
	// TurnDeadline bounds one turn end to end (default 60s).
	TurnDeadline time.Duration
	// MetadataTTL bounds the store-metadata cache age (default 300s).
	MetadataTTL time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxSubtasks:            5,
		MaxRetries:             3,
		TopK:                   10,
		RRFK:                   60,
		SemanticWeight:         0.5,
		KeywordWeight:          0.5,
		WebFallbackThreshold:   3,
		ThresholdHallucination: 0.7,
		ThresholdGrade:         0.6,
		RoutingEnabled:         true,
		WebEnabled:             false,
		TurnDeadline:           60 * time.Second,
		MetadataTTL:            300 * time.Second,
	}
}

// Validate reports the first out-of-range option.
func (c Config) Validate() error {
	if c.MaxSubtasks < 1 {
		return fmt.Errorf("max_subtasks must be >= 1, got %d", c.MaxSubtasks)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %d", c.TopK)
	}
	if c.RRFK < 1 {
		return fmt.Errorf("rrf_k must be >= 1, got %d", c.RRFK)
	}
	if c.WebFallbackThreshold < 0 {
		return fmt.Errorf("web_fallback_threshold must be >= 0, got %d", c.WebFallbackThreshold)
	}
	if c.ThresholdHallucination < 0 || c.ThresholdHallucination > 1 {
		return fmt.Errorf("threshold_hallucination must be in [0,1], got %v", c.ThresholdHallucination)
	}
	if c.ThresholdGrade < 0 || c.ThresholdGrade > 1 {
		return fmt.Errorf("threshold_grade must be in [0,1], got %v", c.ThresholdGrade)
	}
	if c.TurnDeadline <= 0 {
		return fmt.Errorf("turn_deadline must be positive, got %v", c.TurnDeadline)
	}
	return nil
}

// StepBudget is the upper bound on node steps per turn.
func (c Config) StepBudget() int {
	return c.MaxSubtasks*3 + c.MaxRetries*4 + 30
}
