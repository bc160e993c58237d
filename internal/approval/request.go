// internal/approval/request.go
package approval

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Request is the persisted approval request. Status is the only field the
// workflow engine mutates after creation; everything else is write-once.
// Requests are never physically deleted: cancelled is the soft-delete
// terminal state and rows are retained for audit.
type Request struct {
	ID          uuid.UUID       `json:"id"`
	Kind        Kind            `json:"kind"`
	TargetID    string          `json:"target_id"`
	RequestedBy string          `json:"requested_by"`
	Status      Status          `json:"status"`
	ReviewedBy  *string         `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time      `json:"reviewed_at,omitempty"`
	Notes       *string         `json:"notes,omitempty"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Filter narrows a listing. Zero values mean "no constraint".
type Filter struct {
	Status      Status
	Kind        Kind
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Search      string
	Page        int
	PageSize    int
}

// Page is one page of a filtered listing, newest first.
type Page struct {
	Items    []*Request `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// Stats is an aggregate snapshot of the request table. All counters come
// from a single query so they are mutually consistent.
type Stats struct {
	Pending         int          `json:"pending"`
	Approved        int          `json:"approved"`
	Rejected        int          `json:"rejected"`
	Cancelled       int          `json:"cancelled"`
	Total           int          `json:"total"`
	ByKind          map[Kind]int `json:"by_kind"`
	TodayPending    int          `json:"today_pending"`
	ThisWeekPending int          `json:"this_week_pending"`
}

// BulkResult reports which of the requested ids were actually eligible.
// Already-resolved ids are skipped, never an error for the whole batch.
type BulkResult struct {
	Resolved []uuid.UUID `json:"resolved"`
	Skipped  []uuid.UUID `json:"skipped"`
}
