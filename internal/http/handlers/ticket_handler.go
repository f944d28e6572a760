// Ticket HTTP handlers.
//
// This file exposes the REST endpoints for ticket resources:
//   - POST   /tickets               (submit a ticket; classifier runs inline)
//   - GET    /tickets               (list; optional pagination; ETag support)
//   - GET    /tickets/stats         (admin dashboard summary)
//   - GET    /tickets/{id}          (track a ticket)
//   - POST   /tickets/{id}/reply    (generate an AI draft reply)
//   - PATCH  /tickets/{id}          (partial update; admin close workflow)
//
// Handlers are transport-thin: they validate input shape, call the lifecycle
// service, and translate results into HTTP responses. The error mapping
// follows the service's sentinel errors: malformed ids are 400 before any
// store access, missing tickets are 404, intake validation is 422.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smartdesk-ai/go-ticket-backend/internal/domain"
	"github.com/smartdesk-ai/go-ticket-backend/internal/draft"
	"github.com/smartdesk-ai/go-ticket-backend/internal/http/middleware"
	"github.com/smartdesk-ai/go-ticket-backend/internal/repo"
	"github.com/smartdesk-ai/go-ticket-backend/internal/services"
	"github.com/smartdesk-ai/go-ticket-backend/internal/utils"
)

//
// Service contract (context-aware)
//

// TicketService defines the lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type TicketService interface {
	// Create validates and persists a new open ticket, classifying it inline.
	Create(ctx context.Context, subject, description string) (*domain.Ticket, error)
	// Get returns a single ticket by id.
	Get(ctx context.Context, id string) (*domain.Ticket, error)
	// List returns every ticket.
	List(ctx context.Context) ([]domain.Ticket, error)
	// ListPage returns a page of tickets and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Ticket, int64, error)
	// GenerateDraft produces and persists a suggested reply for the ticket.
	GenerateDraft(ctx context.Context, id string) (string, error)
	// Update applies a partial field merge and reports what changed.
	Update(ctx context.Context, id string, patch domain.TicketPatch) (services.UpdateOutcome, error)
	// Stats returns the admin dashboard summary.
	Stats(ctx context.Context) (*repo.TicketSummary, error)
	// StatsMeta returns the row count and latest update time backing the
	// list endpoint's cache validator.
	StatsMeta(ctx context.Context) (int64, *time.Time, error)
	// ReplaySubmission returns the ticket created by an earlier submission
	// with the same idempotency key.
	ReplaySubmission(ctx context.Context, userID, key string) (*domain.Ticket, error)
	// RememberSubmission records a submission key for later replay.
	RememberSubmission(ctx context.Context, userID, key, ticketID string, status int) error
}

// Handlers groups the HTTP endpoints for tickets. It depends on the abstract
// service interface to keep transport concerns separate from business logic.
type Handlers struct {
	svc TicketService
}

// New constructs a Handlers instance bound to the given service.
func New(svc TicketService) *Handlers {
	return &Handlers{svc: svc}
}

// userID extracts the caller identity from the Gin context (set by upstream
// middleware). If absent, it falls back to the "X-User-ID" header, and
// finally to "anonymous". Ticket routes are public; identity only scopes
// rate limiting and idempotent submission.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "anonymous"
}

//
// DTOs
//

// CreateTicketRequest is the JSON payload for submitting a ticket.
type CreateTicketRequest struct {
	// Subject is a short summary (minimum 3 characters).
	Subject string `json:"subject" example:"VPN Error"`
	// Description is the full problem report (minimum 10 characters).
	Description string `json:"description" example:"Cannot connect to VPN from home network"`
}

// ReplyResponse is returned by the draft-generation endpoint.
type ReplyResponse struct {
	TicketID string `json:"ticket_id"`
	AIReply  string `json:"ai_reply"`
}

// UpdateResponse is returned by the partial-update endpoint. Message is
// either "Ticket updated successfully" or "No changes needed".
type UpdateResponse struct {
	Message string `json:"message" example:"Ticket updated successfully"`
	ID      string `json:"id"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListTicketsResponse wraps a page of tickets and pagination information.
// It is returned only when the caller asks for pagination explicitly; the
// plain list endpoint returns a bare array.
type ListTicketsResponse struct {
	Tickets    []domain.Ticket `json:"tickets"`
	Pagination Pagination      `json:"pagination"`
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// CreateTicket godoc
// @ID          createTicket
// @Summary     Submit a support ticket
// @Description Validates the payload, classifies the description, and stores a new open ticket. Supports safe retries via the Idempotency-Key header.
// @Tags        Tickets
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Caller identity (scopes idempotent retries)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Key for safe retries of the same submission"
// @Param       body             body    handlers.CreateTicketRequest  true  "Ticket payload"
//
// @Success     200  {object}  domain.Ticket
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failure"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tickets [post]
func (h *Handlers) CreateTicket(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	// Replay a previously completed submission instead of inserting twice.
	if key, hasKey := middleware.GetIdempotencyKey(c); hasKey && middleware.IsReplay(c) {
		if t, err := h.svc.ReplaySubmission(ctx, uid, key); err == nil {
			ok(c, http.StatusOK, t)
			return
		}
		// Record gone or unreadable: fall through to a fresh create.
	}

	var req CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, "invalid request body")
		return
	}

	t, err := h.svc.Create(ctx, req.Subject, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSubjectTooShort),
			errors.Is(err, services.ErrDescriptionTooShort):
			fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}

	// Best effort: a failed bookkeeping write must not fail the submission.
	if key, hasKey := middleware.GetIdempotencyKey(c); hasKey {
		_ = h.svc.RememberSubmission(ctx, uid, key, t.ID, http.StatusOK)
	}

	middleware.ObserveTicketCreated(t.Category, t.Priority)
	ok(c, http.StatusOK, t)
}

// ListTickets godoc
// @ID          listTickets
// @Summary     List tickets
// @Description Returns all tickets as a bare array. With page/page_size query params it returns a paginated envelope instead. Supports weak ETag via If-None-Match.
// @Tags        Tickets
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100)
//
// @Success     200  {array}   domain.Ticket
// @Success     304  {string}  string "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /tickets [get]
func (h *Handlers) ListTickets(c *gin.Context) {
	ctx := c.Request.Context()

	// ETag pre-check (best effort). Nanosecond precision: two updates landing
	// in the same second must still produce distinct validators.
	if count, maxTS, err := h.svc.StatsMeta(ctx); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"tickets:%d:%d"`, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	// Paginated envelope only on request.
	if c.Query("page") != "" || c.Query("page_size") != "" {
		page, pageSize := clampPagination(c)
		items, total, err := h.svc.ListPage(ctx, page, pageSize)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
			return
		}
		if items == nil {
			items = []domain.Ticket{} // out-of-range pages serialize as [], not null
		}
		totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
		ok(c, http.StatusOK, ListTicketsResponse{
			Tickets: items,
			Pagination: Pagination{
				Page:       page,
				PageSize:   pageSize,
				Total:      total,
				TotalPages: totalPages,
				HasNext:    page < totalPages,
			},
		})
		return
	}

	items, err := h.svc.List(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Ticket{}
	}
	ok(c, http.StatusOK, items)
}

// GetTicket godoc
// @ID          getTicket
// @Summary     Fetch a single ticket
// @Description Returns the ticket for the given id. Malformed ids are rejected before any store lookup.
// @Tags        Tickets
// @Produce     json
//
// @Param       id  path  string  true  "Ticket ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Ticket
// @Failure     400  {object}  handlers.ErrorResponse "Invalid ticket id"
// @Failure     404  {object}  handlers.ErrorResponse "Ticket not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /tickets/{id} [get]
func (h *Handlers) GetTicket(c *gin.Context) {
	t, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failTicketErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, t)
}

// GenerateReply godoc
// @ID          generateReply
// @Summary     Generate an AI draft reply
// @Description Runs the drafting pipeline against the ticket description and stores the result in suggested_reply. Degraded pipelines yield placeholder text, not an error.
// @Tags        Tickets
// @Produce     json
//
// @Param       id  path  string  true  "Ticket ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.ReplyResponse
// @Failure     400  {object}  handlers.ErrorResponse "Invalid ticket id"
// @Failure     404  {object}  handlers.ErrorResponse "Ticket not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /tickets/{id}/reply [post]
func (h *Handlers) GenerateReply(c *gin.Context) {
	id := c.Param("id")
	reply, err := h.svc.GenerateDraft(c.Request.Context(), id)
	if err != nil {
		failTicketErr(c, err, ErrCodeDraftFailed)
		return
	}
	switch {
	case reply == draft.OfflineMessage:
		middleware.ObserveDraft("offline")
	case strings.HasPrefix(reply, "Error: "):
		middleware.ObserveDraft("error")
	default:
		middleware.ObserveDraft("ok")
	}
	ok(c, http.StatusOK, ReplyResponse{TicketID: id, AIReply: reply})
}

// UpdateTicket godoc
// @ID          updateTicket
// @Summary     Partially update a ticket
// @Description Applies a shallow field merge. Any subset of the mutable fields may be sent; the admin close workflow sends status and solution together, but no combination is enforced. The response message distinguishes a real change from a no-op resubmission.
// @Tags        Tickets
// @Accept      json
// @Produce     json
//
// @Param       id    path  string              true  "Ticket ID (UUID)"  format(uuid)
// @Param       body  body  domain.TicketPatch  true  "Fields to overwrite"
//
// @Success     200  {object}  handlers.UpdateResponse
// @Failure     400  {object}  handlers.ErrorResponse "Invalid ticket id or body"
// @Failure     404  {object}  handlers.ErrorResponse "Ticket not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /tickets/{id} [patch]
func (h *Handlers) UpdateTicket(c *gin.Context) {
	id := c.Param("id")

	var patch domain.TicketPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	outcome, err := h.svc.Update(c.Request.Context(), id, patch)
	if err != nil {
		failTicketErr(c, err, ErrCodeUpdateFailed)
		return
	}
	msg := "No changes needed"
	if outcome == services.OutcomeUpdated {
		msg = "Ticket updated successfully"
	}
	ok(c, http.StatusOK, UpdateResponse{Message: msg, ID: id})
}

// TicketStats godoc
// @ID          ticketStats
// @Summary     Admin dashboard summary
// @Description Returns queue totals by status plus category and priority distributions.
// @Tags        Tickets
// @Produce     json
//
// @Success     200  {object}  repo.TicketSummary
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /tickets/stats [get]
func (h *Handlers) TicketStats(c *gin.Context) {
	s, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, s)
}

// failTicketErr maps the service's sentinel errors onto the HTTP taxonomy:
// malformed id -> 400, missing ticket -> 404, anything else -> 500 with the
// supplied domain code.
func failTicketErr(c *gin.Context, err error, internalCode string) {
	switch {
	case errors.Is(err, services.ErrInvalidTicketID):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrTicketNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	default:
		fail(c, http.StatusInternalServerError, internalCode, err.Error())
	}
}
