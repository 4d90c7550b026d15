// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrWindowExhausted signals that no further instant fits inside a
// campaign's sending window. It truncates planning; it is not a failure
// surfaced to the caller.
var ErrWindowExhausted = errors.New("sending window exhausted")

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrValidation rejects a campaign at creation time, before it ever
// reaches pending.
type ErrValidation struct {
	Reason string
}

func (e *ErrValidation) Error() string {
	return "invalid campaign: " + e.Reason
}

func NewValidation(format string, args ...any) error {
	return &ErrValidation{Reason: fmt.Sprintf(format, args...)}
}

// ErrInvalidTransition rejects a lifecycle command that the state machine
// does not allow. The campaign is left unchanged.
type ErrInvalidTransition struct {
	CampaignID int
	From       string
	To         string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("campaign %d cannot move from %s to %s", e.CampaignID, e.From, e.To)
}

func NewInvalidTransition(campaignID int, from, to string) error {
	return &ErrInvalidTransition{CampaignID: campaignID, From: from, To: to}
}
