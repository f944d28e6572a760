package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smartdesk-ai/go-ticket-backend/internal/domain"
	"github.com/smartdesk-ai/go-ticket-backend/internal/http/middleware"
	"github.com/smartdesk-ai/go-ticket-backend/internal/repo"
	"github.com/smartdesk-ai/go-ticket-backend/internal/services"
)

// stubService implements TicketService with per-test function fields. A nil
// field fails the test if the handler calls it unexpectedly.
type stubService struct {
	t *testing.T

	create   func(ctx context.Context, subject, description string) (*domain.Ticket, error)
	get      func(ctx context.Context, id string) (*domain.Ticket, error)
	list     func(ctx context.Context) ([]domain.Ticket, error)
	listPage func(ctx context.Context, page, pageSize int) ([]domain.Ticket, int64, error)
	draft    func(ctx context.Context, id string) (string, error)
	update   func(ctx context.Context, id string, patch domain.TicketPatch) (services.UpdateOutcome, error)
	stats    func(ctx context.Context) (*repo.TicketSummary, error)
	meta     func(ctx context.Context) (int64, *time.Time, error)
	replay   func(ctx context.Context, userID, key string) (*domain.Ticket, error)
	remember func(ctx context.Context, userID, key, ticketID string, status int) error
}

func (s *stubService) Create(ctx context.Context, subject, description string) (*domain.Ticket, error) {
	if s.create == nil {
		s.t.Fatal("unexpected Create call")
	}
	return s.create(ctx, subject, description)
}

func (s *stubService) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	if s.get == nil {
		s.t.Fatal("unexpected Get call")
	}
	return s.get(ctx, id)
}

func (s *stubService) List(ctx context.Context) ([]domain.Ticket, error) {
	if s.list == nil {
		s.t.Fatal("unexpected List call")
	}
	return s.list(ctx)
}

func (s *stubService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Ticket, int64, error) {
	if s.listPage == nil {
		s.t.Fatal("unexpected ListPage call")
	}
	return s.listPage(ctx, page, pageSize)
}

func (s *stubService) GenerateDraft(ctx context.Context, id string) (string, error) {
	if s.draft == nil {
		s.t.Fatal("unexpected GenerateDraft call")
	}
	return s.draft(ctx, id)
}

func (s *stubService) Update(ctx context.Context, id string, patch domain.TicketPatch) (services.UpdateOutcome, error) {
	if s.update == nil {
		s.t.Fatal("unexpected Update call")
	}
	return s.update(ctx, id, patch)
}

func (s *stubService) Stats(ctx context.Context) (*repo.TicketSummary, error) {
	if s.stats == nil {
		s.t.Fatal("unexpected Stats call")
	}
	return s.stats(ctx)
}

// StatsMeta runs on every list request (ETag pre-check), so a nil field is
// not an error here: it reports the metadata as unavailable, which the
// handler treats as "skip the validator".
func (s *stubService) StatsMeta(ctx context.Context) (int64, *time.Time, error) {
	if s.meta == nil {
		return 0, nil, errors.New("stats meta unavailable")
	}
	return s.meta(ctx)
}

func (s *stubService) ReplaySubmission(ctx context.Context, userID, key string) (*domain.Ticket, error) {
	if s.replay == nil {
		s.t.Fatal("unexpected ReplaySubmission call")
	}
	return s.replay(ctx, userID, key)
}

func (s *stubService) RememberSubmission(ctx context.Context, userID, key, ticketID string, status int) error {
	if s.remember == nil {
		s.t.Fatal("unexpected RememberSubmission call")
	}
	return s.remember(ctx, userID, key, ticketID, status)
}

// newTicketRouter mounts the handlers under the real routes, optionally with
// the idempotency validator in front (lookup controls replay detection).
func newTicketRouter(svc TicketService, lookup middleware.IdempotencyLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if lookup != nil {
		r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, lookup))
	}
	h := New(svc)
	r.POST("/tickets", h.CreateTicket)
	r.GET("/tickets", h.ListTickets)
	r.GET("/tickets/stats", h.TicketStats)
	r.GET("/tickets/:id", h.GetTicket)
	r.POST("/tickets/:id/reply", h.GenerateReply)
	r.PATCH("/tickets/:id", h.UpdateTicket)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sampleTicket(id string) *domain.Ticket {
	return &domain.Ticket{
		ID:          id,
		Subject:     "VPN down",
		Description: "the vpn tunnel keeps dropping",
		Category:    "Network",
		Priority:    "High",
		Status:      domain.StatusOpen,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
}

func TestCreateTicket_OK(t *testing.T) {
	id := uuid.NewString()
	svc := &stubService{
		t: t,
		create: func(ctx context.Context, subject, description string) (*domain.Ticket, error) {
			if subject != "VPN down" || description != "the vpn tunnel keeps dropping" {
				t.Fatalf("create got %q/%q", subject, description)
			}
			return sampleTicket(id), nil
		},
	}
	r := newTicketRouter(svc, nil)

	w := doJSON(t, r, http.MethodPost, "/tickets",
		`{"subject":"VPN down","description":"the vpn tunnel keeps dropping"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var got domain.Ticket
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != id || got.Status != domain.StatusOpen {
		t.Fatalf("body = %+v", got)
	}
}

func TestCreateTicket_ValidationErrors(t *testing.T) {
	svc := &stubService{
		t: t,
		create: func(ctx context.Context, subject, description string) (*domain.Ticket, error) {
			return nil, services.ErrSubjectTooShort
		},
	}
	r := newTicketRouter(svc, nil)

	t.Run("malformed JSON", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/tickets", `{not json`, nil)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d", w.Code)
		}
		var e ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if e.Code != ErrCodeValidation {
			t.Fatalf("code = %q", e.Code)
		}
	})

	t.Run("service validation error", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/tickets", `{"subject":"hi","description":"long enough text"}`, nil)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d", w.Code)
		}
		var e ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if e.Code != ErrCodeValidation || e.Message != services.ErrSubjectTooShort.Error() {
			t.Fatalf("envelope = %+v", e)
		}
	})
}

func TestCreateTicket_RemembersSubmissionKey(t *testing.T) {
	id := uuid.NewString()
	var rememberedUser, rememberedKey, rememberedTicket string
	svc := &stubService{
		t: t,
		create: func(ctx context.Context, subject, description string) (*domain.Ticket, error) {
			return sampleTicket(id), nil
		},
		remember: func(ctx context.Context, userID, key, ticketID string, status int) error {
			rememberedUser, rememberedKey, rememberedTicket = userID, key, ticketID
			if status != http.StatusOK {
				t.Fatalf("remember status = %d", status)
			}
			return nil
		},
	}
	lookup := func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
		return false, nil // no prior submission
	}
	r := newTicketRouter(svc, lookup)

	w := doJSON(t, r, http.MethodPost, "/tickets",
		`{"subject":"VPN down","description":"the vpn tunnel keeps dropping"}`,
		map[string]string{"Idempotency-Key": "sub-1", "X-User-ID": "u1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if rememberedUser != "u1" || rememberedKey != "sub-1" || rememberedTicket != id {
		t.Fatalf("remembered %q/%q/%q", rememberedUser, rememberedKey, rememberedTicket)
	}
}

func TestCreateTicket_ReplaysPriorSubmission(t *testing.T) {
	id := uuid.NewString()
	svc := &stubService{
		t: t, // create stays nil: a replayed request must not insert
		replay: func(ctx context.Context, userID, key string) (*domain.Ticket, error) {
			if userID != "u1" || key != "sub-1" {
				t.Fatalf("replay got %q/%q", userID, key)
			}
			return sampleTicket(id), nil
		},
	}
	lookup := func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
		return true, nil
	}
	r := newTicketRouter(svc, lookup)

	w := doJSON(t, r, http.MethodPost, "/tickets", `{"subject":"ignored","description":"ignored as well"}`,
		map[string]string{"Idempotency-Key": "sub-1", "X-User-ID": "u1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var got domain.Ticket
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != id {
		t.Fatalf("replayed id = %q, want %q", got.ID, id)
	}
}

func TestCreateTicket_ReplayRecordGoneFallsThrough(t *testing.T) {
	id := uuid.NewString()
	var created bool
	svc := &stubService{
		t: t,
		replay: func(ctx context.Context, userID, key string) (*domain.Ticket, error) {
			return nil, services.ErrTicketNotFound
		},
		create: func(ctx context.Context, subject, description string) (*domain.Ticket, error) {
			created = true
			return sampleTicket(id), nil
		},
		remember: func(ctx context.Context, userID, key, ticketID string, status int) error {
			return nil
		},
	}
	lookup := func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
		return true, nil
	}
	r := newTicketRouter(svc, lookup)

	w := doJSON(t, r, http.MethodPost, "/tickets",
		`{"subject":"VPN down","description":"the vpn tunnel keeps dropping"}`,
		map[string]string{"Idempotency-Key": "sub-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !created {
		t.Fatal("expected fresh create after unreadable replay record")
	}
}

func TestListTickets_BareArray(t *testing.T) {
	svc := &stubService{
		t: t,
		list: func(ctx context.Context) ([]domain.Ticket, error) {
			return nil, nil // repo may hand back a nil slice
		},
	}
	r := newTicketRouter(svc, nil)

	w := doJSON(t, r, http.MethodGet, "/tickets", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Fatalf("nil list must serialize as [], got %s", body)
	}
}

func TestListTickets_PaginatedEnvelope(t *testing.T) {
	svc := &stubService{
		t: t,
		listPage: func(ctx context.Context, page, pageSize int) ([]domain.Ticket, int64, error) {
			if page != 2 || pageSize != 2 {
				t.Fatalf("listPage got page=%d size=%d", page, pageSize)
			}
			return []domain.Ticket{*sampleTicket(uuid.NewString())}, 5, nil
		},
	}
	r := newTicketRouter(svc, nil)

	w := doJSON(t, r, http.MethodGet, "/tickets?page=2&page_size=2", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got ListTicketsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	p := got.Pagination
	if p.Page != 2 || p.PageSize != 2 || p.Total != 5 || p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("pagination = %+v", p)
	}
	if len(got.Tickets) != 1 {
		t.Fatalf("tickets = %d", len(got.Tickets))
	}
}

func TestListTickets_PaginatedPagePastEndIsEmptyArray(t *testing.T) {
	svc := &stubService{
		t: t,
		listPage: func(ctx context.Context, page, pageSize int) ([]domain.Ticket, int64, error) {
			return nil, 5, nil // offset past the end: the store hands back nil
		},
	}
	r := newTicketRouter(svc, nil)

	w := doJSON(t, r, http.MethodGet, "/tickets?page=99&page_size=20", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := strings.TrimSpace(string(m["tickets"])); got != "[]" {
		t.Fatalf("tickets = %s, want []", got)
	}
}

func TestListTickets_ETag(t *testing.T) {
	ts := time.Date(2026, 8, 28, 12, 0, 0, 123456789, time.UTC)
	svc := &stubService{
		t: t,
		list: func(ctx context.Context) ([]domain.Ticket, error) {
			return []domain.Ticket{*sampleTicket(uuid.NewString())}, nil
		},
		meta: func(ctx context.Context) (int64, *time.Time, error) {
			return 1, &ts, nil
		},
	}
	r := newTicketRouter(svc, nil)

	w := doJSON(t, r, http.MethodGet, "/tickets", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" || !strings.HasPrefix(etag, `W/"tickets:1:`) {
		t.Fatalf("ETag = %q", etag)
	}

	w = doJSON(t, r, http.MethodGet, "/tickets", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("matching If-None-Match: status = %d, want 304", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("304 carried a body: %s", w.Body.String())
	}

	// An update landing within the same second changes the validator, so the
	// stale tag must fetch a fresh body instead of a 304.
	ts = ts.Add(time.Millisecond)
	w = doJSON(t, r, http.MethodGet, "/tickets", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("stale If-None-Match after sub-second update: status = %d, want 200", w.Code)
	}
	if fresh := w.Header().Get("ETag"); fresh == etag {
		t.Fatalf("validator did not change across a sub-second update: %q", fresh)
	}
}

func TestListTickets_MetaUnavailableSkipsETag(t *testing.T) {
	svc := &stubService{
		t: t,
		list: func(ctx context.Context) ([]domain.Ticket, error) {
			return []domain.Ticket{}, nil
		},
	}
	r := newTicketRouter(svc, nil)

	w := doJSON(t, r, http.MethodGet, "/tickets", "", map[string]string{"If-None-Match": `W/"tickets:0:0"`})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when metadata is unavailable", w.Code)
	}
	if etag := w.Header().Get("ETag"); etag != "" {
		t.Fatalf("ETag set without metadata: %q", etag)
	}
}

func TestListTickets_ClampsPaginationParams(t *testing.T) {
	svc := &stubService{
		t: t,
		listPage: func(ctx context.Context, page, pageSize int) ([]domain.Ticket, int64, error) {
			if page != 1 || pageSize != 100 {
				t.Fatalf("listPage got page=%d size=%d, want 1/100", page, pageSize)
			}
			return []domain.Ticket{}, 0, nil
		},
	}
	r := newTicketRouter(svc, nil)

	if w := doJSON(t, r, http.MethodGet, "/tickets?page=-3&page_size=9999", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestListTickets_ServiceError(t *testing.T) {
	svc := &stubService{
		t: t,
		list: func(ctx context.Context) ([]domain.Ticket, error) {
			return nil, errors.New("disk on fire")
		},
	}
	r := newTicketRouter(svc, nil)

	w := doJSON(t, r, http.MethodGet, "/tickets", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Code != ErrCodeListFailed {
		t.Fatalf("code = %q", e.Code)
	}
}

func TestGetTicket_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"malformed id", services.ErrInvalidTicketID, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown id", services.ErrTicketNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"store failure", errors.New("locked"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{
				t: t,
				get: func(ctx context.Context, id string) (*domain.Ticket, error) {
					return nil, tc.err
				},
			}
			r := newTicketRouter(svc, nil)
			w := doJSON(t, r, http.MethodGet, "/tickets/"+uuid.NewString(), "", nil)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			var e ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if e.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", e.Code, tc.wantCode)
			}
		})
	}
}

func TestGenerateReply_OK(t *testing.T) {
	id := uuid.NewString()
	svc := &stubService{
		t: t,
		draft: func(ctx context.Context, got string) (string, error) {
			if got != id {
				t.Fatalf("draft got id %q", got)
			}
			return "Hello,\n\ntry rebooting.", nil
		},
	}
	r := newTicketRouter(svc, nil)

	w := doJSON(t, r, http.MethodPost, "/tickets/"+id+"/reply", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got ReplyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.TicketID != id || got.AIReply != "Hello,\n\ntry rebooting." {
		t.Fatalf("body = %+v", got)
	}
}

func TestGenerateReply_NotFound(t *testing.T) {
	svc := &stubService{
		t: t,
		draft: func(ctx context.Context, id string) (string, error) {
			return "", services.ErrTicketNotFound
		},
	}
	r := newTicketRouter(svc, nil)

	w := doJSON(t, r, http.MethodPost, "/tickets/"+uuid.NewString()+"/reply", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUpdateTicket_Messages(t *testing.T) {
	cases := []struct {
		name    string
		outcome services.UpdateOutcome
		want    string
	}{
		{"changed", services.OutcomeUpdated, "Ticket updated successfully"},
		{"no-op", services.OutcomeNoChange, "No changes needed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := uuid.NewString()
			svc := &stubService{
				t: t,
				update: func(ctx context.Context, gotID string, patch domain.TicketPatch) (services.UpdateOutcome, error) {
					if gotID != id {
						t.Fatalf("update got id %q", gotID)
					}
					if patch.Status == nil || *patch.Status != "closed" {
						t.Fatalf("patch = %+v", patch)
					}
					return tc.outcome, nil
				},
			}
			r := newTicketRouter(svc, nil)

			w := doJSON(t, r, http.MethodPatch, "/tickets/"+id, `{"status":"closed"}`, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
			}
			var got UpdateResponse
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Message != tc.want || got.ID != id {
				t.Fatalf("body = %+v", got)
			}
		})
	}
}

func TestUpdateTicket_Errors(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		svc := &stubService{t: t}
		r := newTicketRouter(svc, nil)
		w := doJSON(t, r, http.MethodPatch, "/tickets/"+uuid.NewString(), `{"status":42}`, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("unknown ticket", func(t *testing.T) {
		svc := &stubService{
			t: t,
			update: func(ctx context.Context, id string, patch domain.TicketPatch) (services.UpdateOutcome, error) {
				return services.OutcomeNoChange, services.ErrTicketNotFound
			},
		}
		r := newTicketRouter(svc, nil)
		w := doJSON(t, r, http.MethodPatch, "/tickets/"+uuid.NewString(), `{"status":"closed"}`, nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d", w.Code)
		}
	})
}

func TestTicketStats_OK(t *testing.T) {
	svc := &stubService{
		t: t,
		stats: func(ctx context.Context) (*repo.TicketSummary, error) {
			return &repo.TicketSummary{
				Total: 3, Open: 2, Closed: 1,
				ByCategory: map[string]int64{"Network": 2, "General": 1},
				ByPriority: map[string]int64{"High": 1, "Medium": 2},
			}, nil
		},
	}
	r := newTicketRouter(svc, nil)

	w := doJSON(t, r, http.MethodGet, "/tickets/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got repo.TicketSummary
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Total != 3 || got.ByCategory["Network"] != 2 {
		t.Fatalf("summary = %+v", got)
	}
}
