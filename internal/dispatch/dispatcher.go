// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zapvia/wadispatch-backend/internal/model"
	"github.com/zapvia/wadispatch-backend/internal/repository"
)

// Dispatcher owns the dispatch workers, one per running campaign. It is
// an explicit component constructed once at boot and passed by reference
// to whatever issues lifecycle commands; there is no process-global
// registry.
type Dispatcher struct {
	mu      sync.Mutex
	workers map[int]*workerHandle

	items     repository.DispatchItemRepositoryInterface
	campaigns repository.CampaignRepositoryInterface
	contacts  repository.ContactRepositoryInterface
	templates repository.TemplateRepositoryInterface

	gate        *ConnectionGate
	sender      Sender
	render      RenderFunc
	notifier    Notifier
	sendTimeout time.Duration
}

type workerHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDispatcher(
	items repository.DispatchItemRepositoryInterface,
	campaigns repository.CampaignRepositoryInterface,
	contacts repository.ContactRepositoryInterface,
	templates repository.TemplateRepositoryInterface,
	gate *ConnectionGate,
	sender Sender,
	render RenderFunc,
	notifier Notifier,
	sendTimeout time.Duration,
) *Dispatcher {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Dispatcher{
		workers:     map[int]*workerHandle{},
		items:       items,
		campaigns:   campaigns,
		contacts:    contacts,
		templates:   templates,
		gate:        gate,
		sender:      sender,
		render:      render,
		notifier:    notifier,
		sendTimeout: sendTimeout,
	}
}

// StartWorker spawns the dispatch worker for a campaign that has just
// moved to running. Starting an already-dispatching campaign is a no-op.
func (d *Dispatcher) StartWorker(campaign *model.Campaign) error {
	// Load collaborators before registering the handle: once a handle is
	// in the map it must always end with done closed, so registration has
	// to be the last fallible step.
	templates, err := d.loadTemplates(campaign.TemplateIDs)
	if err != nil {
		return err
	}

	d.mu.Lock()
	for {
		handle, exists := d.workers[campaign.ID]
		if !exists {
			break
		}
		if handle.ctx.Err() == nil {
			d.mu.Unlock()
			return nil
		}
		// A previous worker is still winding down after pause/cancel;
		// let it finish its in-flight send before respawning.
		d.mu.Unlock()
		<-handle.done
		d.mu.Lock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	handle := &workerHandle{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	d.workers[campaign.ID] = handle
	d.mu.Unlock()

	worker := NewWorker(campaign, templates, d.items, d.campaigns, d.contacts,
		d.gate, d.sender, d.render, d.notifier, d.sendTimeout)

	go func() {
		defer close(handle.done)
		defer d.remove(campaign.ID)
		worker.Run(ctx)
	}()

	return nil
}

// StopWorker signals a campaign's worker to stop after its in-flight send,
// if any, and returns without waiting for it.
func (d *Dispatcher) StopWorker(campaignID int) {
	d.mu.Lock()
	handle := d.workers[campaignID]
	d.mu.Unlock()
	if handle != nil {
		handle.cancel()
	}
}

// WaitStopped blocks until the campaign's worker goroutine has exited.
// Used by tests and shutdown.
func (d *Dispatcher) WaitStopped(campaignID int) {
	d.mu.Lock()
	handle := d.workers[campaignID]
	d.mu.Unlock()
	if handle != nil {
		<-handle.done
	}
}

// Running reports whether a worker is currently dispatching the campaign.
func (d *Dispatcher) Running(campaignID int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.workers[campaignID]
	return ok
}

// Recover respawns workers for campaigns persisted as running, without
// re-planning; the timetable is durable exactly so a restart can pick up
// where the process left off. Campaigns whose timetable is already
// exhausted are completed on the spot.
func (d *Dispatcher) Recover() error {
	running, err := d.campaigns.ListByStatus(model.CampaignStatusRunning)
	if err != nil {
		return err
	}

	for _, campaign := range running {
		next, err := d.items.NextPending(campaign.ID)
		if err != nil {
			log.Error().Err(err).Int("campaignID", campaign.ID).Msg("recovery: failed to inspect timetable")
			continue
		}
		if next == nil {
			moved, err := d.campaigns.TransitionStatus(campaign.ID, model.CampaignStatusRunning, model.CampaignStatusCompleted)
			if err != nil {
				log.Error().Err(err).Int("campaignID", campaign.ID).Msg("recovery: failed to complete campaign")
			} else if moved {
				d.notifier.CampaignStatusChanged(campaign.ID, model.CampaignStatusRunning, model.CampaignStatusCompleted)
			}
			continue
		}
		if err := d.StartWorker(campaign); err != nil {
			log.Error().Err(err).Int("campaignID", campaign.ID).Msg("recovery: failed to start worker")
			continue
		}
		log.Info().Int("campaignID", campaign.ID).Msg("recovered running campaign")
	}

	return nil
}

// Shutdown stops every worker and waits for in-flight sends to finish.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	handles := make([]*workerHandle, 0, len(d.workers))
	for _, h := range d.workers {
		h.cancel()
		handles = append(handles, h)
	}
	d.mu.Unlock()

	for _, h := range handles {
		<-h.done
	}
}

func (d *Dispatcher) loadTemplates(ids []int) (map[int]model.MessageTemplate, error) {
	templates, err := d.templates.GetByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]model.MessageTemplate, len(templates))
	for _, t := range templates {
		byID[t.ID] = t
	}
	return byID, nil
}

func (d *Dispatcher) remove(campaignID int) {
	d.mu.Lock()
	delete(d.workers, campaignID)
	d.mu.Unlock()
}
