// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/zapvia/wadispatch-backend/internal/errors"
	"github.com/zapvia/wadispatch-backend/internal/model"
	"github.com/zapvia/wadispatch-backend/internal/service"
)

// CampaignHandler holds the dependencies for campaign-related HTTP handlers
type CampaignHandler struct {
	Service *service.CampaignService
}

func NewCampaignHandler(svc *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{Service: svc}
}

// Routes mounts the campaign endpoints on a chi router.
func (h *CampaignHandler) Routes(r chi.Router) {
	r.Post("/campaigns", h.CreateCampaign)
	r.Get("/campaigns", h.ListCampaigns)
	r.Get("/campaigns/{id}", h.GetCampaign)
	r.Get("/campaigns/{id}/progress", h.GetProgress)
	r.Post("/campaigns/{id}/start", h.StartCampaign)
	r.Post("/campaigns/{id}/pause", h.PauseCampaign)
	r.Post("/campaigns/{id}/resume", h.ResumeCampaign)
	r.Post("/campaigns/{id}/cancel", h.CancelCampaign)
	r.Post("/campaigns/{id}/preview", h.PersonalizedPreview)
}

type createCampaignRequest struct {
	Name           string         `json:"name"`
	ConnectionID   string         `json:"connection_id"`
	ListID         int            `json:"list_id"`
	TemplateIDs    []int          `json:"template_ids"`
	StartDate      string         `json:"start_date,omitempty"`
	EndDate        string         `json:"end_date,omitempty"`
	StartTime      string         `json:"start_time"`
	EndTime        string         `json:"end_time"`
	Throttle       model.Throttle `json:"throttle"`
	RandomOrder    bool           `json:"random_order"`
	RandomMessages bool           `json:"random_messages"`
}

func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	input := service.CreateCampaignInput{
		Name:         body.Name,
		ConnectionID: body.ConnectionID,
		ListID:       body.ListID,
		TemplateIDs:  body.TemplateIDs,
		Schedule: model.Schedule{
			StartTime: body.StartTime,
			EndTime:   body.EndTime,
		},
		Throttle:       body.Throttle,
		RandomOrder:    body.RandomOrder,
		RandomMessages: body.RandomMessages,
	}

	if body.StartDate != "" {
		t, err := time.Parse("2006-01-02", body.StartDate)
		if err != nil {
			http.Error(w, "invalid start_date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		input.Schedule.StartDate = &t
	}
	if body.EndDate != "" {
		t, err := time.Parse("2006-01-02", body.EndDate)
		if err != nil {
			http.Error(w, "invalid end_date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		input.Schedule.EndDate = &t
	}

	campaign, err := h.Service.CreateCampaign(input)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(campaign)
}

func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	connectionID := r.URL.Query().Get("connection_id")
	status := model.CampaignStatus(r.URL.Query().Get("status"))

	if status != "" && !status.IsValid() {
		http.Error(w, "unknown status filter", http.StatusBadRequest)
		return
	}

	campaigns, pagination, err := h.Service.ListCampaigns(page, pageSize, connectionID, status)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	details, err := h.Service.GetCampaignDetailsWithStats(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(details)
}

func (h *CampaignHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	progress, err := h.Service.GetProgress(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(progress)
}

func (h *CampaignHandler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Service.Start)
}

func (h *CampaignHandler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Service.Pause)
}

func (h *CampaignHandler) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Service.Resume)
}

func (h *CampaignHandler) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Service.Cancel)
}

func (h *CampaignHandler) lifecycle(w http.ResponseWriter, r *http.Request, command func(int) error) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	if err := command(id); err != nil {
		writeError(w, err)
		return
	}

	progress, err := h.Service.GetProgress(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(progress)
}

func (h *CampaignHandler) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var body struct {
		ContactID        int     `json:"contact_id"`
		OverrideTemplate *string `json:"override_template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	rendered, err := h.Service.RenderPreview(id, body.ContactID, body.OverrideTemplate)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"rendered_message": rendered,
		"contact_id":       body.ContactID,
	})
}

func campaignID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var notFound *appErrors.ErrCampaignNotFound
	var validation *appErrors.ErrValidation
	var transition *appErrors.ErrInvalidTransition

	switch {
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &validation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &transition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
