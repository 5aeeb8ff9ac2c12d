package tool

import (
	"sync"
	"time"
)

// QuotaManager enforces a daily query limit. The counter resets when the
// (UTC) day changes. Process-wide callers share one instance; all methods
// are mutex guarded.
type QuotaManager struct {
	mu         sync.Mutex
	dailyLimit int
	used       int
	day        string

	now func() time.Time
}

// NewQuotaManager creates a manager with the given daily limit.
func NewQuotaManager(dailyLimit int) *QuotaManager {
	return &QuotaManager{
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
}

// CanQuery reports whether another query is allowed today.
func (q *QuotaManager) CanQuery() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.checkReset()
	return q.used < q.dailyLimit
}

// Increment records one spent query.
func (q *QuotaManager) Increment() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.checkReset()
	q.used++
}

// Remaining returns the number of queries left today.
func (q *QuotaManager) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.checkReset()
	return q.dailyLimit - q.used
}

func (q *QuotaManager) checkReset() {
	today := q.now().UTC().Format("2006-01-02")
	if q.day != today {
		q.day = today
		q.used = 0
	}
}
