package graph

import (
	"strings"
	"time"
)

// BackoffStrategy determines how retry delays grow between attempts.
type BackoffStrategy int

const (
	// FixedBackoff waits the same base delay between attempts.
	FixedBackoff BackoffStrategy = iota
	// ExponentialBackoff doubles the delay each attempt: 1s, 2s, 4s, ...
	ExponentialBackoff
	// LinearBackoff grows the delay linearly: 1s, 2s, 3s, ...
	LinearBackoff
)

// RetryPolicy defines retry behavior for failed nodes. An error is retried
// only if its message contains one of the RetryableErrors substrings.
type RetryPolicy struct {
	MaxRetries      int
	BackoffStrategy BackoffStrategy
	BaseDelay       time.Duration
	RetryableErrors []string
}

// NewRetryPolicy returns a policy with exponential backoff starting at 1s.
func NewRetryPolicy(maxRetries int, retryable ...string) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:      maxRetries,
		BackoffStrategy: ExponentialBackoff,
		BaseDelay:       time.Second,
		RetryableErrors: retryable,
	}
}

func (p *RetryPolicy) isRetryable(err error) bool {
	if len(p.RetryableErrors) == 0 {
		return true
	}
	msg := err.Error()
	for _, pattern := range p.RetryableErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func (p *RetryPolicy) backoffDelay(attempt int) time.Duration {
	base := p.BaseDelay
	if base == 0 {
		base = time.Second
	}
	switch p.BackoffStrategy {
	case FixedBackoff:
		return base
	case ExponentialBackoff:
		return base * time.Duration(1<<attempt)
	case LinearBackoff:
		return base * time.Duration(attempt+1)
	default:
		return base
	}
}
