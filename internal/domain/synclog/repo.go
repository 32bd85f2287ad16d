package synclog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows history queries.
type Filter struct {
	APIName string
	Status  string
	Limit   int
}

// SourceSummary aggregates run outcomes per source.
type SourceSummary struct {
	APIName          string     `json:"apiName"`
	Runs             int        `json:"runs"`
	Success          int        `json:"success"`
	Partial          int        `json:"partial"`
	Errors           int        `json:"errors"`
	RecordsProcessed int        `json:"recordsProcessed"`
	LastRun          *time.Time `json:"lastRun,omitempty"`
}

// Repository persists sync run logs. Rows are append-only.
type Repository interface {
	Create(ctx context.Context, l *SyncLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*SyncLog, error)
	List(ctx context.Context, f Filter) ([]*SyncLog, error)
	// LastRun returns the most recent log, optionally scoped to one source.
	// Returns (nil, nil) when no run has been recorded.
	LastRun(ctx context.Context, apiName string) (*SyncLog, error)
	Summary(ctx context.Context, since time.Time) ([]SourceSummary, error)
}
