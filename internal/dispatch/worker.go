// internal/dispatch/worker.go
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zapvia/wadispatch-backend/internal/model"
	"github.com/zapvia/wadispatch-backend/internal/repository"
	"github.com/zapvia/wadispatch-backend/internal/schedule"
)

// Sender delivers one message over a messaging connection. The wire
// protocol behind it is a collaborator concern; failures are reported,
// never fatal.
type Sender interface {
	Send(ctx context.Context, connectionID, phone, content string) error
}

// RenderFunc turns a template and a contact into the message content. It
// is supplied by the caller as a pure function.
type RenderFunc func(template model.MessageTemplate, contact model.Contact) string

// Notifier receives delivery outcomes and lifecycle changes, typically to
// fan them out to downstream consumers.
type Notifier interface {
	ItemDispatched(campaign *model.Campaign, item *model.DispatchItem)
	CampaignStatusChanged(campaignID int, from, to model.CampaignStatus)
}

// NopNotifier discards everything.
type NopNotifier struct{}

func (NopNotifier) ItemDispatched(*model.Campaign, *model.DispatchItem)              {}
func (NopNotifier) CampaignStatusChanged(int, model.CampaignStatus, model.CampaignStatus) {}

// retryBackoff is the pause after a persistence hiccup before the loop
// tries again.
const retryBackoff = 2 * time.Second

// Worker is the run loop for one running campaign: wait for each
// scheduled instant, serialize the send through the connection gate,
// record the outcome, advance. One goroutine per worker.
type Worker struct {
	campaign  *model.Campaign
	templates map[int]model.MessageTemplate

	items     repository.DispatchItemRepositoryInterface
	campaigns repository.CampaignRepositoryInterface
	contacts  repository.ContactRepositoryInterface

	gate        *ConnectionGate
	sender      Sender
	render      RenderFunc
	delay       *schedule.DelayPolicy
	notifier    Notifier
	sendTimeout time.Duration
}

func NewWorker(
	campaign *model.Campaign,
	templates map[int]model.MessageTemplate,
	items repository.DispatchItemRepositoryInterface,
	campaigns repository.CampaignRepositoryInterface,
	contacts repository.ContactRepositoryInterface,
	gate *ConnectionGate,
	sender Sender,
	render RenderFunc,
	notifier Notifier,
	sendTimeout time.Duration,
) *Worker {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Worker{
		campaign:    campaign,
		templates:   templates,
		items:       items,
		campaigns:   campaigns,
		contacts:    contacts,
		gate:        gate,
		sender:      sender,
		render:      render,
		delay:       schedule.NewDelayPolicy(nil),
		notifier:    notifier,
		sendTimeout: sendTimeout,
	}
}

// Run consumes the campaign's timetable until it is exhausted or ctx is
// cancelled. Cancellation wakes the scheduled-instant wait early; an
// in-flight send is always allowed to finish.
func (w *Worker) Run(ctx context.Context) {
	campaignID := w.campaign.ID
	log.Info().
		Int("campaignID", campaignID).
		Str("connectionID", w.campaign.ConnectionID).
		Msg("dispatch worker started")

	var lastSentAt time.Time

	for {
		if ctx.Err() != nil {
			log.Info().Int("campaignID", campaignID).Msg("dispatch worker stopped")
			return
		}

		item, err := w.items.NextPending(campaignID)
		if err != nil {
			log.Error().Err(err).Int("campaignID", campaignID).Msg("failed to fetch next dispatch item")
			if !w.sleepUntil(ctx, time.Now().Add(retryBackoff)) {
				return
			}
			continue
		}

		if item == nil {
			w.complete(campaignID)
			return
		}

		wakeAt := item.ScheduledAt
		if !lastSentAt.IsZero() && wakeAt.Before(time.Now()) {
			// Overdue backlog after a pause or restart: send promptly but
			// keep the normal inter-send gap, never bulk-dump.
			throttle := w.campaign.Throttle
			wakeAt = lastSentAt.Add(w.delay.NextGap(throttle.MinDelaySeconds, throttle.MaxDelaySeconds))
		}
		if !w.sleepUntil(ctx, wakeAt) {
			log.Info().Int("campaignID", campaignID).Msg("dispatch worker stopped")
			return
		}

		token, err := w.gate.Acquire(ctx, w.campaign.ConnectionID)
		if err != nil {
			// Cancelled while queued for the gate.
			log.Info().Int("campaignID", campaignID).Msg("dispatch worker stopped")
			return
		}
		sendErr := w.sendItem(item)
		w.gate.Release(token)

		lastSentAt = time.Now()
		w.recordOutcome(item, sendErr)
	}
}

// sendItem renders and delivers one item. The send runs on its own
// timeout context detached from the worker's, so a pause or cancel never
// aborts it mid-flight; a hung channel is cut off so one stuck campaign
// cannot starve others sharing the connection.
func (w *Worker) sendItem(item *model.DispatchItem) error {
	template, ok := w.templates[item.TemplateID]
	if !ok {
		return errors.New("message template missing")
	}

	contact, err := w.contacts.GetByID(item.ContactID)
	if err != nil {
		return err
	}
	if contact == nil {
		return errors.New("contact no longer exists")
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.sendTimeout)
	defer cancel()

	content := w.render(template, *contact)
	return w.sender.Send(ctx, w.campaign.ConnectionID, item.Phone, content)
}

// recordOutcome moves the item to its terminal status, bumps the campaign
// counters and notifies. A failed send is not retried and does not halt
// the campaign.
func (w *Worker) recordOutcome(item *model.DispatchItem, sendErr error) {
	now := time.Now()
	if sendErr == nil {
		item.Status = model.DispatchItemStatusSent
		item.SentAt = &now
		if err := w.items.MarkSent(item.ID, now); err != nil {
			log.Error().Err(err).Int("itemID", item.ID).Msg("failed to persist sent item")
		}
		if err := w.campaigns.IncrementCounters(item.CampaignID, 1, 0); err != nil {
			log.Error().Err(err).Int("campaignID", item.CampaignID).Msg("failed to update sent counter")
		}
	} else {
		reason := sendErr.Error()
		if errors.Is(sendErr, context.DeadlineExceeded) {
			// Distinct reason code so operators can tell a hung channel
			// from a channel-side rejection.
			reason = model.FailReasonTimeout
		}
		item.Status = model.DispatchItemStatusFailed
		item.ErrorMessage = reason
		if err := w.items.MarkFailed(item.ID, reason); err != nil {
			log.Error().Err(err).Int("itemID", item.ID).Msg("failed to persist failed item")
		}
		if err := w.campaigns.IncrementCounters(item.CampaignID, 0, 1); err != nil {
			log.Error().Err(err).Int("campaignID", item.CampaignID).Msg("failed to update failed counter")
		}
		log.Warn().
			Int("campaignID", item.CampaignID).
			Int("itemID", item.ID).
			Str("reason", reason).
			Msg("send failed")
	}

	w.notifier.ItemDispatched(w.campaign, item)
}

func (w *Worker) complete(campaignID int) {
	moved, err := w.campaigns.TransitionStatus(campaignID, model.CampaignStatusRunning, model.CampaignStatusCompleted)
	if err != nil {
		log.Error().Err(err).Int("campaignID", campaignID).Msg("failed to complete campaign")
		return
	}
	if moved {
		log.Info().Int("campaignID", campaignID).Msg("campaign completed")
		w.notifier.CampaignStatusChanged(campaignID, model.CampaignStatusRunning, model.CampaignStatusCompleted)
	}
}

// sleepUntil waits for t on a cancellable timer. It returns false when ctx
// was cancelled first.
func (w *Worker) sleepUntil(ctx context.Context, t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
