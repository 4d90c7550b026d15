// internal/service/campaign_service.go
package service

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/zapvia/wadispatch-backend/internal/dispatch"
	appErrors "github.com/zapvia/wadispatch-backend/internal/errors"
	"github.com/zapvia/wadispatch-backend/internal/model"
	"github.com/zapvia/wadispatch-backend/internal/repository"
	"github.com/zapvia/wadispatch-backend/internal/schedule"
)

// Throttle safety bounds enforced at campaign creation. Anything faster
// than the floor risks channel bans; anything above the ceiling is a
// configuration mistake.
const (
	MinDelayFloorSeconds = 120
	MaxDelayCeilSeconds  = 300
)

const progressCacheTTL = 5 * time.Second

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ItemRepo     repository.DispatchItemRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface

	Dispatcher *dispatch.Dispatcher
	Planner    *schedule.Planner
	Notifier   dispatch.Notifier
	Timezone   *time.Location

	progressCache *cache.Cache
}

func NewCampaignService(
	campaignRepo repository.CampaignRepositoryInterface,
	itemRepo repository.DispatchItemRepositoryInterface,
	contactRepo repository.ContactRepositoryInterface,
	templateRepo repository.TemplateRepositoryInterface,
	dispatcher *dispatch.Dispatcher,
	planner *schedule.Planner,
	notifier dispatch.Notifier,
	timezone *time.Location,
) *CampaignService {
	if notifier == nil {
		notifier = dispatch.NopNotifier{}
	}
	if timezone == nil {
		timezone = time.Local
	}
	return &CampaignService{
		CampaignRepo:  campaignRepo,
		ItemRepo:      itemRepo,
		ContactRepo:   contactRepo,
		TemplateRepo:  templateRepo,
		Dispatcher:    dispatcher,
		Planner:       planner,
		Notifier:      notifier,
		Timezone:      timezone,
		progressCache: cache.New(progressCacheTTL, time.Minute),
	}
}

// CreateCampaignInput is the caller-supplied shape of a new campaign.
type CreateCampaignInput struct {
	Name           string
	ConnectionID   string
	ListID         int
	TemplateIDs    []int
	Schedule       model.Schedule
	Throttle       model.Throttle
	RandomOrder    bool
	RandomMessages bool
}

// CreateCampaign validates and persists a new campaign in pending status.
// A campaign that fails validation never reaches pending.
func (s *CampaignService) CreateCampaign(in CreateCampaignInput) (*model.Campaign, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		Name:           in.Name,
		ConnectionID:   in.ConnectionID,
		ListID:         in.ListID,
		TemplateIDs:    in.TemplateIDs,
		Schedule:       in.Schedule,
		Throttle:       in.Throttle,
		RandomOrder:    in.RandomOrder,
		RandomMessages: in.RandomMessages,
		Status:         model.CampaignStatusPending,
	}

	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}

	log.Info().
		Int("campaignID", c.ID).
		Str("connectionID", c.ConnectionID).
		Int("listID", c.ListID).
		Msg("campaign created")
	return c, nil
}

func (s *CampaignService) validate(in CreateCampaignInput) error {
	if in.ConnectionID == "" {
		return appErrors.NewValidation("connection id is required")
	}
	if len(in.TemplateIDs) == 0 {
		return appErrors.NewValidation("at least one message template is required")
	}

	templates, err := s.TemplateRepo.GetByIDs(in.TemplateIDs)
	if err != nil {
		return err
	}
	if len(templates) != len(in.TemplateIDs) {
		return appErrors.NewValidation("one or more message templates do not exist")
	}

	contactCount, err := s.ContactRepo.CountByListID(in.ListID)
	if err != nil {
		return err
	}
	if contactCount == 0 {
		return appErrors.NewValidation("contact list %d is empty", in.ListID)
	}

	t := in.Throttle
	if t.MinDelaySeconds < MinDelayFloorSeconds {
		return appErrors.NewValidation("min delay must be at least %d seconds", MinDelayFloorSeconds)
	}
	if t.MaxDelaySeconds > MaxDelayCeilSeconds {
		return appErrors.NewValidation("max delay must be at most %d seconds", MaxDelayCeilSeconds)
	}
	if t.MinDelaySeconds > t.MaxDelaySeconds {
		return appErrors.NewValidation("min delay cannot exceed max delay")
	}
	if t.PauseAfterMessages < 1 {
		return appErrors.NewValidation("pause after messages must be at least 1")
	}
	if t.PauseDurationMinutes < 1 {
		return appErrors.NewValidation("pause duration must be at least 1 minute")
	}

	startTime, err := schedule.ParseTimeOfDay(in.Schedule.StartTime)
	if err != nil {
		return appErrors.NewValidation("bad start time: %v", err)
	}
	endTime, err := schedule.ParseTimeOfDay(in.Schedule.EndTime)
	if err != nil {
		return appErrors.NewValidation("bad end time: %v", err)
	}
	if startTime.Minutes() >= endTime.Minutes() {
		return appErrors.NewValidation("sending window is empty: start time must be before end time")
	}

	if in.Schedule.StartDate != nil && in.Schedule.EndDate != nil &&
		in.Schedule.EndDate.Before(*in.Schedule.StartDate) {
		return appErrors.NewValidation("end date is before start date")
	}

	return nil
}

// Start moves a pending campaign to running: materializes the timetable
// if it has not been planned yet, then spawns the dispatch worker.
func (s *CampaignService) Start(campaignID int) error {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	if !c.Status.CanTransitionTo(model.CampaignStatusRunning) || c.Status == model.CampaignStatusPaused {
		return appErrors.NewInvalidTransition(campaignID, string(c.Status), string(model.CampaignStatusRunning))
	}

	if !c.Planned() {
		if err := s.plan(c); err != nil {
			return err
		}
	}

	moved, err := s.CampaignRepo.TransitionStatus(campaignID, model.CampaignStatusPending, model.CampaignStatusRunning)
	if err != nil {
		return err
	}
	if !moved {
		return s.staleTransition(campaignID, model.CampaignStatusRunning)
	}
	c.Status = model.CampaignStatusRunning
	s.progressCache.Delete(progressKey(campaignID))
	s.Notifier.CampaignStatusChanged(campaignID, model.CampaignStatusPending, model.CampaignStatusRunning)

	if err := s.Dispatcher.StartWorker(c); err != nil {
		return err
	}
	log.Info().Int("campaignID", campaignID).Msg("campaign started")
	return nil
}

// Pause stops consumption after the in-flight send, if any. The partially
// elapsed delay is discarded; resume computes a fresh gap.
func (s *CampaignService) Pause(campaignID int) error {
	moved, err := s.CampaignRepo.TransitionStatus(campaignID, model.CampaignStatusRunning, model.CampaignStatusPaused)
	if err != nil {
		return err
	}
	if !moved {
		return s.staleTransition(campaignID, model.CampaignStatusPaused)
	}

	s.Dispatcher.StopWorker(campaignID)
	s.progressCache.Delete(progressKey(campaignID))
	s.Notifier.CampaignStatusChanged(campaignID, model.CampaignStatusRunning, model.CampaignStatusPaused)
	log.Info().Int("campaignID", campaignID).Msg("campaign paused")
	return nil
}

// Resume restarts consumption from the first remaining pending item.
// Overdue items go out promptly but still spaced by the normal gap.
func (s *CampaignService) Resume(campaignID int) error {
	moved, err := s.CampaignRepo.TransitionStatus(campaignID, model.CampaignStatusPaused, model.CampaignStatusRunning)
	if err != nil {
		return err
	}
	if !moved {
		return s.staleTransition(campaignID, model.CampaignStatusRunning)
	}

	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	s.progressCache.Delete(progressKey(campaignID))
	s.Notifier.CampaignStatusChanged(campaignID, model.CampaignStatusPaused, model.CampaignStatusRunning)

	if err := s.Dispatcher.StartWorker(c); err != nil {
		return err
	}
	log.Info().Int("campaignID", campaignID).Msg("campaign resumed")
	return nil
}

// Cancel terminates a campaign from any non-terminal state. Remaining
// pending items are marked failed with reason cancelled; items already
// sent or failed keep their outcome.
func (s *CampaignService) Cancel(campaignID int) error {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	if !c.Status.CanTransitionTo(model.CampaignStatusCancelled) {
		return appErrors.NewInvalidTransition(campaignID, string(c.Status), string(model.CampaignStatusCancelled))
	}

	moved, err := s.CampaignRepo.TransitionStatus(campaignID, c.Status, model.CampaignStatusCancelled)
	if err != nil {
		return err
	}
	if !moved {
		return s.staleTransition(campaignID, model.CampaignStatusCancelled)
	}

	// Wait for the worker to wind down before touching the items: an
	// in-flight send is allowed to finish, and its outcome must land
	// before the remainder is marked cancelled. Bounded by the send timeout.
	s.Dispatcher.StopWorker(campaignID)
	s.Dispatcher.WaitStopped(campaignID)

	cancelled, err := s.ItemRepo.MarkPendingCancelled(campaignID)
	if err != nil {
		return err
	}
	s.progressCache.Delete(progressKey(campaignID))
	s.Notifier.CampaignStatusChanged(campaignID, c.Status, model.CampaignStatusCancelled)
	log.Info().
		Int("campaignID", campaignID).
		Int("cancelledItems", cancelled).
		Msg("campaign cancelled")
	return nil
}

// plan materializes and persists the timetable for a campaign.
func (s *CampaignService) plan(c *model.Campaign) error {
	contacts, err := s.ContactRepo.ListByListID(c.ListID)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		return appErrors.NewValidation("contact list %d is empty", c.ListID)
	}

	templates, err := s.TemplateRepo.GetByIDs(c.TemplateIDs)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return appErrors.NewValidation("campaign has no usable message templates")
	}

	window, err := s.buildWindow(c)
	if err != nil {
		return err
	}

	plan := s.Planner.Plan(schedule.PlanInput{
		Campaign:  c,
		Contacts:  contacts,
		Templates: templates,
		Window:    window,
		Now:       time.Now().In(s.Timezone),
	})

	if err := s.ItemRepo.CreateBatch(plan.Items); err != nil {
		return err
	}
	if err := s.CampaignRepo.MarkPlanned(c.ID, len(plan.Items)); err != nil {
		return err
	}
	now := time.Now()
	c.PlannedAt = &now
	c.PlannedCount = len(plan.Items)

	if plan.Truncated {
		log.Warn().
			Int("campaignID", c.ID).
			Int("planned", len(plan.Items)).
			Int("skipped", plan.SkippedContacts).
			Msg("sending window ran out before all contacts were scheduled")
	} else {
		log.Info().
			Int("campaignID", c.ID).
			Int("planned", len(plan.Items)).
			Msg("campaign timetable planned")
	}
	return nil
}

func (s *CampaignService) buildWindow(c *model.Campaign) (schedule.Window, error) {
	startTime, err := schedule.ParseTimeOfDay(c.Schedule.StartTime)
	if err != nil {
		return schedule.Window{}, appErrors.NewValidation("bad start time: %v", err)
	}
	endTime, err := schedule.ParseTimeOfDay(c.Schedule.EndTime)
	if err != nil {
		return schedule.Window{}, appErrors.NewValidation("bad end time: %v", err)
	}
	return schedule.Window{
		StartDate: c.Schedule.StartDate,
		EndDate:   c.Schedule.EndDate,
		StartTime: startTime,
		EndTime:   endTime,
		Location:  s.Timezone,
	}, nil
}

// staleTransition reloads the campaign after a conditional update lost the
// race and reports what the state actually was.
func (s *CampaignService) staleTransition(campaignID int, to model.CampaignStatus) error {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	return appErrors.NewInvalidTransition(campaignID, string(c.Status), string(to))
}

// Progress is a point-in-time view of a campaign's delivery state.
// EstimatedCompletionAt is the scheduled instant of the last pending item
// at query time, not a continuously recomputed forecast.
type Progress struct {
	CampaignID            int        `json:"campaign_id"`
	Status                string     `json:"status"`
	Sent                  int        `json:"sent"`
	Failed                int        `json:"failed"`
	Pending               int        `json:"pending"`
	EstimatedCompletionAt *time.Time `json:"estimated_completion_at,omitempty"`
}

func progressKey(campaignID int) string {
	return fmt.Sprintf("progress:%d", campaignID)
}

// GetProgress aggregates item stats, caching briefly since viewers poll.
// Lifecycle commands drop the cached snapshot so a caller never reads a
// pre-command status.
func (s *CampaignService) GetProgress(campaignID int) (*Progress, error) {
	key := progressKey(campaignID)
	if cached, found := s.progressCache.Get(key); found {
		return cached.(*Progress), nil
	}

	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.ItemRepo.Stats(campaignID)
	if err != nil {
		return nil, err
	}
	estimate, err := s.ItemRepo.LastPendingScheduledAt(campaignID)
	if err != nil {
		return nil, err
	}

	progress := &Progress{
		CampaignID:            campaignID,
		Status:                string(c.Status),
		Sent:                  stats["sent"],
		Failed:                stats["failed"],
		Pending:               stats["pending"],
		EstimatedCompletionAt: estimate,
	}
	s.progressCache.Set(key, progress, cache.DefaultExpiration)
	return progress, nil
}

// CampaignDetails is a campaign plus its aggregated item stats.
type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

func (s *CampaignService) GetCampaignDetailsWithStats(campaignID int) (*CampaignDetails, error) {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.ItemRepo.Stats(campaignID)
	if err != nil {
		return nil, err
	}
	stats["total"] = stats["pending"] + stats["sent"] + stats["failed"]
	return &CampaignDetails{Campaign: c, Stats: stats}, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, connectionID string, status model.CampaignStatus) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, connectionID, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// RenderPreview renders one of a campaign's templates against a single
// contact, optionally overriding the template body.
func (s *CampaignService) RenderPreview(campaignID, contactID int, overrideBody *string) (string, error) {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return "", err
	}

	contact, err := s.ContactRepo.GetByID(contactID)
	if err != nil {
		return "", err
	}
	if contact == nil {
		return "", fmt.Errorf("contact %d not found", contactID)
	}

	template := model.MessageTemplate{}
	if overrideBody != nil && *overrideBody != "" {
		template.Body = *overrideBody
	} else {
		first, err := s.TemplateRepo.GetByID(c.TemplateIDs[0])
		if err != nil {
			return "", err
		}
		if first == nil {
			return "", fmt.Errorf("template %d not found", c.TemplateIDs[0])
		}
		template = *first
	}

	return RenderTemplate(template, *contact), nil
}

// Recover respawns workers for campaigns that were running when the
// process last stopped. Called once at boot.
func (s *CampaignService) Recover() error {
	return s.Dispatcher.Recover()
}
