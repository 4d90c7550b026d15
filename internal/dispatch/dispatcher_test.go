package dispatch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zapvia/wadispatch-backend/internal/model"
)

type statusChange struct {
	CampaignID int
	From, To   model.CampaignStatus
}

type recordingNotifier struct {
	mu          sync.Mutex
	dispatched  int
	transitions []statusChange
}

func (n *recordingNotifier) ItemDispatched(*model.Campaign, *model.DispatchItem) {
	n.mu.Lock()
	n.dispatched++
	n.mu.Unlock()
}

func (n *recordingNotifier) CampaignStatusChanged(campaignID int, from, to model.CampaignStatus) {
	n.mu.Lock()
	n.transitions = append(n.transitions, statusChange{CampaignID: campaignID, From: from, To: to})
	n.mu.Unlock()
}

func (n *recordingNotifier) changes() []statusChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]statusChange, len(n.transitions))
	copy(out, n.transitions)
	return out
}

func newTestDispatcher(env *workerEnv, notifier Notifier) *Dispatcher {
	templates := &memTemplateRepo{templates: []model.MessageTemplate{{ID: 1, Name: "hello", Body: "Hi there"}}}
	return NewDispatcher(env.items, env.campaigns, env.contacts, templates,
		env.gate, env.sender, renderBody, notifier, time.Second)
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting until %s", what)
}

func TestDispatcherRunsWorkerToCompletion(t *testing.T) {
	env := newWorkerEnv(t, 2)
	d := newTestDispatcher(env, nil)

	if err := d.StartWorker(env.campaign); err != nil {
		t.Fatalf("StartWorker failed: %v", err)
	}
	// A second start while dispatching is a no-op, not an error.
	if err := d.StartWorker(env.campaign); err != nil {
		t.Fatalf("second StartWorker failed: %v", err)
	}

	d.WaitStopped(env.campaign.ID)

	if d.Running(env.campaign.ID) {
		t.Error("worker still registered after completion")
	}
	if got := env.campaigns.status(env.campaign.ID); got != model.CampaignStatusCompleted {
		t.Errorf("expected completed campaign, got %s", got)
	}
	if got := len(env.sender.sent()); got != 2 {
		t.Errorf("expected 2 sends, got %d", got)
	}
}

func TestDispatcherStopThenRestart(t *testing.T) {
	env := newWorkerEnv(t, 1)
	env.items.mu.Lock()
	env.items.items[0].ScheduledAt = time.Now().Add(time.Hour)
	env.items.mu.Unlock()
	d := newTestDispatcher(env, nil)

	if err := d.StartWorker(env.campaign); err != nil {
		t.Fatalf("StartWorker failed: %v", err)
	}
	waitUntil(t, "worker is running", func() bool { return d.Running(env.campaign.ID) })

	d.StopWorker(env.campaign.ID)

	// Restart immediately: StartWorker must wait out the old worker's
	// wind-down instead of silently doing nothing.
	if err := d.StartWorker(env.campaign); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	waitUntil(t, "worker is running again", func() bool { return d.Running(env.campaign.ID) })

	d.Shutdown()
	if d.Running(env.campaign.ID) {
		t.Error("worker survived shutdown")
	}
	stats, _ := env.items.Stats(env.campaign.ID)
	if stats["pending"] != 1 {
		t.Errorf("future item should still be pending, stats: %v", stats)
	}
}

func TestDispatcherRecoverRespawnsRunningCampaigns(t *testing.T) {
	env := newWorkerEnv(t, 2)
	d := newTestDispatcher(env, nil)

	// Simulates a process restart: the campaign row says running, items
	// are pending, but no worker exists yet.
	if err := d.Recover(); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	waitUntil(t, "recovered campaign completes", func() bool {
		return env.campaigns.status(env.campaign.ID) == model.CampaignStatusCompleted
	})
	if got := len(env.sender.sent()); got != 2 {
		t.Errorf("expected 2 sends after recovery, got %d", got)
	}
}

func TestDispatcherRecoverCompletesExhaustedCampaigns(t *testing.T) {
	env := newWorkerEnv(t, 1)
	if _, err := env.items.MarkPendingCancelled(env.campaign.ID); err != nil {
		t.Fatalf("seeding failed: %v", err)
	}
	notifier := &recordingNotifier{}
	d := newTestDispatcher(env, notifier)

	if err := d.Recover(); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	if d.Running(env.campaign.ID) {
		t.Error("no worker should be spawned for an exhausted timetable")
	}
	if got := env.campaigns.status(env.campaign.ID); got != model.CampaignStatusCompleted {
		t.Errorf("expected completed campaign, got %s", got)
	}
	changes := notifier.changes()
	if len(changes) != 1 || changes[0].To != model.CampaignStatusCompleted {
		t.Errorf("expected a single running->completed notification, got %v", changes)
	}
}

type failingTemplateRepo struct{}

func (failingTemplateRepo) GetByID(int) (*model.MessageTemplate, error) {
	return nil, errors.New("template store offline")
}

func (failingTemplateRepo) GetByIDs([]int) ([]model.MessageTemplate, error) {
	return nil, errors.New("template store offline")
}

func TestDispatcherStartWorkerLoadFailureLeavesNoHandle(t *testing.T) {
	env := newWorkerEnv(t, 1)
	d := NewDispatcher(env.items, env.campaigns, env.contacts, failingTemplateRepo{},
		env.gate, env.sender, renderBody, nil, time.Second)

	if err := d.StartWorker(env.campaign); err == nil {
		t.Fatal("expected StartWorker to fail when templates cannot be loaded")
	}
	if d.Running(env.campaign.ID) {
		t.Error("failed start left a worker registered")
	}

	// Nothing was registered, so nothing may block on the handle.
	done := make(chan struct{})
	go func() {
		d.WaitStopped(env.campaign.ID)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitStopped blocked after a failed start")
	}
}

func TestDispatcherRecoverSkipsNonRunningCampaigns(t *testing.T) {
	env := newWorkerEnv(t, 1)
	env.campaigns.mu.Lock()
	env.campaigns.campaigns[env.campaign.ID].Status = model.CampaignStatusPaused
	env.campaigns.mu.Unlock()
	d := newTestDispatcher(env, nil)

	if err := d.Recover(); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if d.Running(env.campaign.ID) {
		t.Error("paused campaign must not be resumed by recovery")
	}
	if got := env.campaigns.status(env.campaign.ID); got != model.CampaignStatusPaused {
		t.Errorf("recovery changed a paused campaign to %s", got)
	}
}
