// internal/schedule/planner.go
package schedule

import (
	"errors"
	"math/rand"
	"time"

	appErrors "github.com/zapvia/wadispatch-backend/internal/errors"
	"github.com/zapvia/wadispatch-backend/internal/model"
)

// Planner materializes a campaign's per-contact timetable in one O(n)
// pass, combining the delay policy, the active window and the configured
// contact/template ordering.
type Planner struct {
	delay *DelayPolicy
	rng   *rand.Rand
}

// NewPlanner builds a planner around rng. A nil rng gets a time-seeded
// source; tests inject a fixed seed.
func NewPlanner(rng *rand.Rand) *Planner {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{delay: NewDelayPolicy(rng), rng: rng}
}

// PlanInput carries everything a plan needs. Contacts and Templates are in
// their stored order; Now is the plan start time.
type PlanInput struct {
	Campaign  *model.Campaign
	Contacts  []model.Contact
	Templates []model.MessageTemplate
	Window    Window
	Now       time.Time
}

// Plan is a materialized timetable. Truncated is set when the window ran
// out before every contact was scheduled; the unplanned remainder is an
// informational discrepancy, not an error.
type Plan struct {
	Items           []*model.DispatchItem
	Truncated       bool
	SkippedContacts int
}

func (p *Planner) Plan(in PlanInput) *Plan {
	campaign := in.Campaign
	throttle := campaign.Throttle

	contacts := append([]model.Contact(nil), in.Contacts...)
	if campaign.RandomOrder {
		// Shuffled once at plan time; the order is fixed for the life of
		// the campaign.
		p.rng.Shuffle(len(contacts), func(i, j int) {
			contacts[i], contacts[j] = contacts[j], contacts[i]
		})
	}

	plan := &Plan{Items: []*model.DispatchItem{}}
	cursor := in.Now
	sinceLastPause := 0

	for i, contact := range contacts {
		// The cursor is re-clamped before every item: a cool-down that
		// pushed it past the window's end must land on the next open slot.
		next, err := in.Window.NextAllowed(cursor)
		if errors.Is(err, appErrors.ErrWindowExhausted) {
			plan.Truncated = true
			plan.SkippedContacts = len(contacts) - i
			break
		}
		cursor = next

		templateID := p.pickTemplate(in.Templates, i, campaign.RandomMessages)

		plan.Items = append(plan.Items, &model.DispatchItem{
			CampaignID:  campaign.ID,
			ContactID:   contact.ID,
			Phone:       contact.Phone,
			TemplateID:  templateID,
			ScheduledAt: cursor,
			Status:      model.DispatchItemStatusPending,
		})

		sinceLastPause++
		if p.delay.ShouldCoolDown(sinceLastPause, throttle.PauseAfterMessages) {
			cursor = cursor.Add(CoolDownGap(throttle.PauseDurationMinutes))
			sinceLastPause = 0
		} else {
			cursor = cursor.Add(p.delay.NextGap(throttle.MinDelaySeconds, throttle.MaxDelaySeconds))
		}
	}

	return plan
}

func (p *Planner) pickTemplate(templates []model.MessageTemplate, position int, random bool) int {
	if random {
		return templates[p.rng.Intn(len(templates))].ID
	}
	return templates[position%len(templates)].ID
}
