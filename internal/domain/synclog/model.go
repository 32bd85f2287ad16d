package synclog

import (
	"time"

	"github.com/google/uuid"
)

// Trigger kinds.
const (
	TypeManual    = "manual"
	TypeScheduled = "scheduled"
	TypeWebhook   = "webhook"
)

// Run outcomes. Error means the source fetch itself failed; individual record
// failures produce Partial.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// SyncLog maps to the sync_logs table: one immutable row per sync execution
// against one source.
type SyncLog struct {
	ID               uuid.UUID              `db:"id" json:"id"`
	APIName          string                 `db:"api_name" json:"apiName"`
	SyncType         string                 `db:"sync_type" json:"syncType"`
	Status           string                 `db:"status" json:"status"`
	StartTime        time.Time              `db:"start_time" json:"startTime"`
	EndTime          *time.Time             `db:"end_time" json:"endTime,omitempty"`
	DurationMS       *int64                 `db:"duration_ms" json:"durationMs,omitempty"`
	RecordsProcessed int                    `db:"records_processed" json:"recordsProcessed"`
	RecordsCreated   int                    `db:"records_created" json:"recordsCreated"`
	RecordsUpdated   int                    `db:"records_updated" json:"recordsUpdated"`
	RecordsFailed    int                    `db:"records_failed" json:"recordsFailed"`
	ErrorMessage     *string                `db:"error_message" json:"errorMessage,omitempty"`
	ErrorDetails     map[string]interface{} `db:"error_details" json:"errorDetails,omitempty"`
	UserID           *string                `db:"user_id" json:"userId,omitempty"`
	Metadata         map[string]interface{} `db:"metadata" json:"metadata,omitempty"`
	CreatedAt        time.Time              `db:"created_at" json:"createdAt"`
}
