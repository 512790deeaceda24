package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/bulkmailer/internal/domain"
	"github.com/ignite/bulkmailer/internal/ingest"
	"github.com/ignite/bulkmailer/internal/service/dispatch"
	tmpl "github.com/ignite/bulkmailer/internal/template"
)

// maxUploadBytes caps the recipient file upload size.
const maxUploadBytes = 64 << 20 // 64 MB

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	svc      *dispatch.Service
	previews *tmpl.Service
}

// NewHandlers creates the handler set.
func NewHandlers(svc *dispatch.Service, previews *tmpl.Service) *Handlers {
	return &Handlers{svc: svc, previews: previews}
}

// HealthCheck reports process liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// campaignView is the list/create response shape for one campaign. Counts
// come from the recipient rows, not the denormalized campaign columns.
type campaignView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Subject     string    `json:"subject"`
	Progress    int       `json:"progress"`
	Total       int       `json:"total"`
	Sent        int       `json:"sent"`
	Failed      int       `json:"failed"`
	Pending     int       `json:"pending"`
	ProgressPct int       `json:"progress_pct"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCampaignView(c domain.Campaign, counts domain.StatusCounts) campaignView {
	return campaignView{
		ID:          c.ID,
		Title:       c.Title,
		Subject:     c.Subject,
		Progress:    c.Progress,
		Total:       counts.Total,
		Sent:        counts.Sent,
		Failed:      counts.Failed,
		Pending:     counts.Pending,
		ProgressPct: counts.Pct(counts.Sent),
		CreatedAt:   c.CreatedAt,
	}
}

// CreateCampaign accepts a multipart form with the campaign fields and a
// CSV recipient file.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "recipient file is required")
		return
	}
	defer file.Close()

	parsed, err := ingest.ParseRecipients(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, skipped, err := h.svc.Create(r.Context(), dispatch.CreateInput{
		Title:      r.FormValue("title"),
		Subject:    r.FormValue("subject"),
		Message:    r.FormValue("message"),
		Recipients: parsed.Recipients,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A fresh campaign has only pending recipients.
	counts := domain.StatusCounts{Total: c.Total, Pending: c.Total}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"campaign": toCampaignView(*c, counts),
		"skipped":  skipped + parsed.Skipped,
	})
}

// ListCampaigns returns all campaigns, newest first.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	overviews, err := h.svc.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list campaigns")
		return
	}
	views := make([]campaignView, 0, len(overviews))
	for _, o := range overviews {
		views = append(views, toCampaignView(o.Campaign, o.Counts))
	}
	respondJSON(w, http.StatusOK, views)
}

// recipientView is the status response shape for one recipient.
type recipientView struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Status       string     `json:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// CampaignStatus returns a live snapshot of the campaign's send state.
func (h *Handlers) CampaignStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := h.svc.Status(r.Context(), id)
	if err != nil {
		if err == dispatch.ErrNotFound {
			respondError(w, http.StatusNotFound, "campaign not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load status")
		return
	}

	recipients := make([]recipientView, 0, len(status.Recipients))
	for _, rec := range status.Recipients {
		recipients = append(recipients, recipientView{
			ID:           rec.ID,
			Name:         rec.Name,
			Email:        rec.Email,
			Status:       string(rec.Status),
			SentAt:       rec.SentAt,
			ErrorMessage: rec.ErrorMessage,
		})
	}

	counts := status.Counts
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":       counts.Total,
		"sent":        counts.Sent,
		"failed":      counts.Failed,
		"pending":     counts.Pending,
		"sent_pct":    counts.Pct(counts.Sent),
		"failed_pct":  counts.Pct(counts.Failed),
		"pending_pct": counts.Pct(counts.Pending),
		"recipients":  recipients,
	})
}

// SendCampaign starts a background send run for the campaign.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, err := h.svc.StartDispatch(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to start send")
		return
	}

	switch state {
	case dispatch.RunStarted:
		respondJSON(w, http.StatusOK, map[string]string{"status": string(state)})
	case dispatch.RunAlreadyActive:
		respondJSON(w, http.StatusConflict, map[string]string{"status": string(state)})
	case dispatch.RunTargetNotFound:
		respondJSON(w, http.StatusNotFound, map[string]string{"status": string(state)})
	}
}

// PreviewTemplate renders a Liquid preview of a campaign message.
func (h *Handlers) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Message string `json:"message"`
		Name    string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if input.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}
	respondJSON(w, http.StatusOK, h.previews.Render(input.Message, input.Name))
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
