package pipeline

import (
	"sync"

	"github.com/sells-group/multiplier-cli/internal/model"
)

// LatestResult holds the most recent successful result. Store and Load copy
// the record, so readers never see a partially written value.
type LatestResult struct {
	mu     sync.RWMutex
	result *model.Result
}

// NewLatestResult returns an empty holder.
func NewLatestResult() *LatestResult {
	return &LatestResult{}
}

// Store replaces the held result.
func (l *LatestResult) Store(r *model.Result) {
	c := r.Clone()
	l.mu.Lock()
	l.result = c
	l.mu.Unlock()
}

// Load returns a copy of the held result and whether one exists.
func (l *LatestResult) Load() (*model.Result, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.result == nil {
		return nil, false
	}
	return l.result.Clone(), true
}
