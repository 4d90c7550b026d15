package model_test

import (
	"testing"

	"github.com/zapvia/wadispatch-backend/internal/model"
)

func TestCampaignStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to model.CampaignStatus
		allowed  bool
	}{
		{model.CampaignStatusPending, model.CampaignStatusRunning, true},
		{model.CampaignStatusPending, model.CampaignStatusCancelled, true},
		{model.CampaignStatusPending, model.CampaignStatusPaused, false},
		{model.CampaignStatusPending, model.CampaignStatusCompleted, false},
		{model.CampaignStatusRunning, model.CampaignStatusPaused, true},
		{model.CampaignStatusRunning, model.CampaignStatusCompleted, true},
		{model.CampaignStatusRunning, model.CampaignStatusCancelled, true},
		{model.CampaignStatusRunning, model.CampaignStatusPending, false},
		{model.CampaignStatusPaused, model.CampaignStatusRunning, true},
		{model.CampaignStatusPaused, model.CampaignStatusCancelled, true},
		{model.CampaignStatusPaused, model.CampaignStatusCompleted, false},
		{model.CampaignStatusCompleted, model.CampaignStatusRunning, false},
		{model.CampaignStatusCompleted, model.CampaignStatusCancelled, false},
		{model.CampaignStatusCancelled, model.CampaignStatusRunning, false},
		{model.CampaignStatusCancelled, model.CampaignStatusPending, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestCampaignStatusTerminal(t *testing.T) {
	terminal := map[model.CampaignStatus]bool{
		model.CampaignStatusPending:   false,
		model.CampaignStatusRunning:   false,
		model.CampaignStatusPaused:    false,
		model.CampaignStatusCompleted: true,
		model.CampaignStatusCancelled: true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal(): expected %v, got %v", status, want, got)
		}
	}
}

func TestCampaignStatusIsValid(t *testing.T) {
	for _, status := range []model.CampaignStatus{
		model.CampaignStatusPending, model.CampaignStatusRunning, model.CampaignStatusPaused,
		model.CampaignStatusCompleted, model.CampaignStatusCancelled,
	} {
		if !status.IsValid() {
			t.Errorf("%s should be valid", status)
		}
	}
	if model.CampaignStatus("archived").IsValid() {
		t.Error("unknown status should be invalid")
	}
}

func TestCampaignPlanned(t *testing.T) {
	c := &model.Campaign{}
	if c.Planned() {
		t.Error("campaign without a plan timestamp should not report planned")
	}
	now := c.CreatedAt
	c.PlannedAt = &now
	if !c.Planned() {
		t.Error("campaign with a plan timestamp should report planned")
	}
}
