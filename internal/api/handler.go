package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"TalentReach/internal/db"
	"TalentReach/internal/models"
	"TalentReach/internal/template"
)

// Handler is the thin surface the approval UI and the scraping pipeline
// talk to. Everything else about those collaborators lives outside the
// delivery engine.
type Handler struct {
	Store      *db.Store
	SenderName string
	Log        *zap.Logger
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /messages", h.DraftMessage)
	mux.HandleFunc("POST /messages/{id}/approval", h.SetApproval)
	mux.HandleFunc("GET /messages", h.ListMessages)
}

type draftRequest struct {
	LeadID       int64      `json:"lead_id"`
	TemplateName string     `json:"template_name"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
}

// DraftMessage renders an initial outreach for a lead and stores it
// pending approval.
func (h *Handler) DraftMessage(w http.ResponseWriter, r *http.Request) {
	var req draftRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	lead, err := h.Store.GetLead(ctx, req.LeadID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "lead not found", http.StatusNotFound)
			return
		}
		h.internalError(w, "lead lookup failed", err)
		return
	}

	tmpl, err := h.Store.GetTemplate(ctx, req.TemplateName)
	if err != nil {
		if errors.Is(err, template.ErrTemplateNotFound) {
			http.Error(w, "template not found", http.StatusNotFound)
			return
		}
		h.internalError(w, "template lookup failed", err)
		return
	}

	rendered := template.Render(*tmpl, template.LeadVars(*lead, h.SenderName))

	scheduledAt := time.Now()
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}

	msg := &models.Message{
		LeadID:         lead.ID,
		Kind:           models.KindInitial,
		Recipient:      lead.Email,
		Subject:        rendered.Subject,
		Body:           rendered.Body,
		TemplateName:   tmpl.Name,
		ApprovalState:  models.ApprovalPending,
		LifecycleState: models.StateScheduled,
		ScheduledAt:    scheduledAt,
	}

	if err := h.Store.CreateMessage(ctx, msg); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			http.Error(w, "initial outreach for this lead already exists", http.StatusConflict)
			return
		}
		h.internalError(w, "message insert failed", err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

type approvalRequest struct {
	Decision models.ApprovalState `json:"decision"`
}

// SetApproval records the human decision. Rejection only takes effect
// while the message is still unclaimed.
func (h *Handler) SetApproval(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Decision != models.ApprovalApproved && req.Decision != models.ApprovalRejected {
		http.Error(w, "decision must be approved or rejected", http.StatusBadRequest)
		return
	}

	if err := h.Store.SetApprovalState(r.Context(), id, req.Decision); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "message not found or no longer scheduled", http.StatusConflict)
			return
		}
		h.internalError(w, "approval update failed", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMessages queries messages by lead, state, or thread for display.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		msgs []models.Message
		err  error
	)

	switch {
	case q.Get("lead_id") != "":
		var leadID int64
		leadID, err = strconv.ParseInt(q.Get("lead_id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid lead_id", http.StatusBadRequest)
			return
		}
		msgs, err = h.Store.ListByLead(ctx, leadID)

	case q.Get("state") != "":
		msgs, err = h.Store.ListByState(ctx, models.LifecycleState(q.Get("state")))

	case q.Get("thread") != "":
		msgs, err = h.Store.ListByThread(ctx, q.Get("thread"))

	default:
		http.Error(w, "one of lead_id, state or thread is required", http.StatusBadRequest)
		return
	}

	if err != nil {
		h.internalError(w, "message query failed", err)
		return
	}

	json.NewEncoder(w).Encode(msgs)
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.Log.Error(msg, zap.Error(err))
	http.Error(w, msg, http.StatusInternalServerError)
}
