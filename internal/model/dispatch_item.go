// internal/model/dispatch_item.go
package model

import "time"

// DispatchItemStatus is the per-item delivery state. An item moves from
// pending to sent or failed exactly once and never back.
type DispatchItemStatus string

const (
	DispatchItemStatusPending DispatchItemStatus = "pending"
	DispatchItemStatusSent    DispatchItemStatus = "sent"
	DispatchItemStatusFailed  DispatchItemStatus = "failed"
)

// Failure reasons recorded on dispatch items that never reached the channel.
const (
	FailReasonCancelled = "cancelled"
	FailReasonTimeout   = "timeout"
)

// DispatchItem is one planned send to a single contact within a campaign.
// Items are created as one batch at plan time and never reordered; on
// cancellation remaining pending items are marked failed, not deleted, so
// the audit trail survives.
type DispatchItem struct {
	ID           int                `db:"id" json:"id"`
	CampaignID   int                `db:"campaign_id" json:"campaign_id"`
	ContactID    int                `db:"contact_id" json:"contact_id"`
	Phone        string             `db:"phone" json:"phone"`
	TemplateID   int                `db:"template_id" json:"template_id"`
	ScheduledAt  time.Time          `db:"scheduled_at" json:"scheduled_at"`
	Status       DispatchItemStatus `db:"status" json:"status"`
	SentAt       *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
	ErrorMessage string             `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at" json:"updated_at"`
}
