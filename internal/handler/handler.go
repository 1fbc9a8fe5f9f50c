// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eventgate/ticketd/internal/model"
	"github.com/eventgate/ticketd/internal/repository"
	"github.com/eventgate/ticketd/internal/service"
)

// Handler holds all HTTP handlers for the ticketing API.
type Handler struct {
	events  *service.EventService
	tickets *service.TicketService
}

// New constructs a Handler.
func New(events *service.EventService, tickets *service.TicketService) *Handler {
	return &Handler{events: events, tickets: tickets}
}

// Routes mounts every API route on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Get("/{id}/tickets", h.ListAttendees)
		r.Post("/{id}/tickets", h.IssueTicket)
	})

	r.Route("/tickets", func(r chi.Router) {
		r.Get("/", h.ListHolderTickets)
		r.Get("/{id}", h.GetTicket)
		r.Post("/{id}/redeem", h.RedeemByID)
	})

	r.Post("/redeem", h.Redeem)
	r.Get("/stats", h.Stats)
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps domain errors to HTTP statuses. Policy violations
// are conflicts, not server faults; only Contention signals the caller to
// retry later.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, repository.ErrTicketNotFound):
		writeError(w, http.StatusNotFound, "ticket not found")
	case errors.Is(err, repository.ErrSoldOut):
		writeError(w, http.StatusConflict, "event is sold out")
	case errors.Is(err, repository.ErrQuotaExceeded):
		writeError(w, http.StatusConflict, "ticket quota reached for this event")
	case errors.Is(err, repository.ErrEventClosed):
		writeError(w, http.StatusConflict, "event has ended, booking closed")
	case errors.Is(err, repository.ErrContention):
		writeError(w, http.StatusServiceUnavailable, "high demand, please retry")
	case errors.Is(err, service.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, "invalid ticket code")
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ─── Event handlers ───────────────────────────────────────────────────────────

// CreateEvent handles POST /events.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.CreateEvent(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// ListAttendees handles GET /events/{id}/tickets, the validation screen's
// attendee list.
func (h *Handler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.events.ListAttendees(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

// Stats handles GET /stats, the organizer dashboard aggregate.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.events.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ─── Ticket handlers ──────────────────────────────────────────────────────────

// IssueTicket handles POST /events/{id}/tickets.
// Performs a concurrency-safe booking for the specified event.
func (h *Handler) IssueTicket(w http.ResponseWriter, r *http.Request) {
	var req model.IssueTicketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ticket, err := h.tickets.Issue(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

// ListHolderTickets handles GET /tickets?email=, the "my tickets" screen.
func (h *Handler) ListHolderTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.tickets.ListByHolder(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

// GetTicket handles GET /tickets/{id}; the response includes the payload to
// embed in the scannable code.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	resp, err := h.tickets.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Redeem handles POST /redeem with a scanned payload. AlreadyUsed is a 200
// with outcome=already_used: the terminal shows why entry is denied and keeps
// scanning.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req model.RedeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.tickets.Redeem(r.Context(), req.Payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RedeemByID handles POST /tickets/{id}/redeem, manual validation from the
// attendee list.
func (h *Handler) RedeemByID(w http.ResponseWriter, r *http.Request) {
	result, err := h.tickets.RedeemByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
