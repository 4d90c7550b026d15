// internal/model/campaign.go
package model

import "time"

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusPending   CampaignStatus = "pending"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// allowedTransitions encodes the campaign state machine. completed and
// cancelled are terminal.
var allowedTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusPending: {CampaignStatusRunning, CampaignStatusCancelled},
	CampaignStatusRunning: {CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusCancelled},
	CampaignStatusPaused:  {CampaignStatusRunning, CampaignStatusCancelled},
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from s.
func (s CampaignStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// IsValid reports whether s is a known campaign status.
func (s CampaignStatus) IsValid() bool {
	switch s {
	case CampaignStatusPending, CampaignStatusRunning, CampaignStatusPaused,
		CampaignStatusCompleted, CampaignStatusCancelled:
		return true
	}
	return false
}

// Schedule holds the calendar bounds (inclusive, optional) and the daily
// active window during which sends are permitted. Times are "HH:MM" local
// to the service timezone.
type Schedule struct {
	StartDate *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
	StartTime string     `db:"start_time" json:"start_time"`
	EndTime   string     `db:"end_time" json:"end_time"`
}

// Throttle holds the anti-spam pacing settings for a campaign.
type Throttle struct {
	MinDelaySeconds      int `db:"min_delay_seconds" json:"min_delay_seconds"`
	MaxDelaySeconds      int `db:"max_delay_seconds" json:"max_delay_seconds"`
	PauseAfterMessages   int `db:"pause_after_messages" json:"pause_after_messages"`
	PauseDurationMinutes int `db:"pause_duration_minutes" json:"pause_duration_minutes"`
}

type Campaign struct {
	ID             int            `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	ConnectionID   string         `db:"connection_id" json:"connection_id"`
	ListID         int            `db:"list_id" json:"list_id"`
	TemplateIDs    []int          `db:"template_ids" json:"template_ids"`
	Schedule       Schedule       `json:"schedule"`
	Throttle       Throttle       `json:"throttle"`
	RandomOrder    bool           `db:"random_order" json:"random_order"`
	RandomMessages bool           `db:"random_messages" json:"random_messages"`
	Status         CampaignStatus `db:"status" json:"status"`
	SentCount      int            `db:"sent_count" json:"sent_count"`
	FailedCount    int            `db:"failed_count" json:"failed_count"`
	PlannedCount   int            `db:"planned_count" json:"planned_count"`
	PlannedAt      *time.Time     `db:"planned_at" json:"planned_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// Planned reports whether the dispatch timetable has been materialized.
// A plan truncated down to zero items still counts as planned.
func (c *Campaign) Planned() bool {
	return c.PlannedAt != nil
}
