// Package store persists the append-only prediction history.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/multiplier-cli/internal/model"
)

// DefaultListLimit caps ListHistory when no limit is given.
const DefaultListLimit = 100

// Store defines the persistence interface for prediction history.
type Store interface {
	// AppendHistory adds one entry. Empty ID and zero CreatedAt are filled in.
	AppendHistory(ctx context.Context, entry *model.HistoryEntry) error
	// ListHistory returns up to limit entries, newest first.
	ListHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error)
	// ImportHistory bulk-loads entries and returns the number written.
	ImportHistory(ctx context.Context, entries []model.HistoryEntry) (int64, error)

	Migrate(ctx context.Context) error
	Close() error
}

// prepareEntry fills the generated fields of entry.
func prepareEntry(entry *model.HistoryEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
