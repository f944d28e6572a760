// Package services – TicketService
//
// This file implements TicketService, the application-level component that
// owns the ticket lifecycle. It validates intake payloads, invokes the
// classifier and drafting ports with explicit degraded-mode fallbacks, and
// coordinates repository operations for creating, reading, drafting on, and
// partially updating tickets.
//
// The two ports are optional enrichment: a nil Classifier or Drafter means
// the process started degraded and stays degraded; create/get/list/update
// never fail because a port is down, and GenerateDraft converts port errors
// into visible placeholder text instead of propagating them.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the ticket identifier where applicable.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartdesk-ai/go-ticket-backend/internal/classify"
	"github.com/smartdesk-ai/go-ticket-backend/internal/domain"
	"github.com/smartdesk-ai/go-ticket-backend/internal/draft"
	"github.com/smartdesk-ai/go-ticket-backend/internal/repo"
)

// Intake validation minimums, matching the public API contract.
const (
	minSubjectRunes     = 3
	minDescriptionRunes = 10
)

// UpdateOutcome reports what a partial update actually did to the store.
type UpdateOutcome int

const (
	// OutcomeNoChange means the ticket exists but every submitted value was
	// already the persisted value.
	OutcomeNoChange UpdateOutcome = iota
	// OutcomeUpdated means at least one stored field changed.
	OutcomeUpdated
)

// String returns the human-readable outcome used in PATCH responses.
func (o UpdateOutcome) String() string {
	if o == OutcomeUpdated {
		return "updated"
	}
	return "no changes needed"
}

// TicketService coordinates ticket persistence and the enrichment ports.
// All state lives in the store; the service itself holds no per-request
// mutable state and is safe for concurrent use.
type TicketService struct {
	DB *gorm.DB

	// Classifier assigns category/priority on create. Nil means degraded:
	// every ticket gets the default label pair.
	Classifier classify.Classifier

	// Drafter produces suggested replies. Nil means degraded: drafts are the
	// offline sentinel text.
	Drafter draft.Drafter

	// IdempotencyTTL bounds how long a submission key replays the original
	// ticket. Zero disables recording.
	IdempotencyTTL time.Duration
}

// Create validates the intake payload, classifies the description, and
// persists a new open ticket with no solution. Validation and classification
// happen before any store access, so invalid input leaves no partial state.
// Length checks and storage both apply to the submitted text verbatim: no
// trimming or normalization, so whitespace counts toward the minimums.
func (s *TicketService) Create(ctx context.Context, subject, description string) (*domain.Ticket, error) {
	tr := otel.Tracer("services/TicketService")
	ctx, span := tr.Start(ctx, "Create")
	defer span.End()

	if utf8.RuneCountInString(subject) < minSubjectRunes {
		return nil, ErrSubjectTooShort
	}
	if utf8.RuneCountInString(description) < minDescriptionRunes {
		return nil, ErrDescriptionTooShort
	}

	category, priority := s.classify(description)

	t, err := repo.CreateTicket(ctx, s.DB, subject, description, category, priority)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("ticket.id", t.ID),
		attribute.String("ticket.category", t.Category),
		attribute.String("ticket.priority", t.Priority),
	)
	return t, nil
}

// Get returns the ticket for id. A syntactically malformed id fails with
// ErrInvalidTicketID before any store round-trip; a well-formed id with no
// matching row fails with ErrTicketNotFound.
func (s *TicketService) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	tr := otel.Tracer("services/TicketService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("ticket.id", id)),
	)
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidTicketID
	}
	t, err := repo.GetTicket(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return t, nil
}

// List returns every ticket. No ordering is part of the contract; the repo
// orders by creation time for stable pagination only.
func (s *TicketService) List(ctx context.Context) ([]domain.Ticket, error) {
	tr := otel.Tracer("services/TicketService")
	ctx, span := tr.Start(ctx, "List")
	defer span.End()

	return repo.ListTickets(ctx, s.DB)
}

// ListPage returns a page of tickets and the total count. It applies
// defaults for invalid page/pageSize.
func (s *TicketService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Ticket, int64, error) {
	tr := otel.Tracer("services/TicketService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountTickets(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Ticket{}, 0, nil
	}

	items, err := repo.ListTicketsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// GenerateDraft loads the ticket, asks the drafting port for a suggested
// reply to its description, persists it into suggested_reply (overwriting any
// prior draft), and returns the text.
//
// Degradation contract: a nil drafter yields the offline sentinel, a drafter
// error yields "Error: <msg>"; both are persisted and returned with success.
// The call never touches status or solution. Re-invoking regenerates, so the
// call is idempotent in effect but not in value.
func (s *TicketService) GenerateDraft(ctx context.Context, id string) (string, error) {
	tr := otel.Tracer("services/TicketService")
	ctx, span := tr.Start(ctx, "GenerateDraft",
		trace.WithAttributes(attribute.String("ticket.id", id)),
	)
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return "", ErrInvalidTicketID
	}
	t, err := repo.GetTicket(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrTicketNotFound
		}
		return "", err
	}

	text := s.draft(ctx, t.Description)

	if err := repo.SetSuggestedReply(ctx, s.DB, id, text); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrTicketNotFound
		}
		return "", err
	}
	return text, nil
}

// Update applies a caller-supplied partial merge to the ticket. Any subset of
// the mutable fields may be overwritten; no combination is required and no
// cross-field rule is enforced (closing without a solution is accepted).
//
// The Updated/NoChange distinction is computed against persisted values: the
// read-compare-write runs in one transaction so the comparison is against the
// row the write lands on.
func (s *TicketService) Update(ctx context.Context, id string, patch domain.TicketPatch) (UpdateOutcome, error) {
	tr := otel.Tracer("services/TicketService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(attribute.String("ticket.id", id)),
	)
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return OutcomeNoChange, ErrInvalidTicketID
	}

	var changed bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		changed, err = repo.ApplyTicketPatch(ctx, tx, id, patch)
		return err
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return OutcomeNoChange, ErrTicketNotFound
		}
		return OutcomeNoChange, err
	}
	if changed {
		return OutcomeUpdated, nil
	}
	return OutcomeNoChange, nil
}

// Stats returns the queue summary backing the admin dashboard.
func (s *TicketService) Stats(ctx context.Context) (*repo.TicketSummary, error) {
	tr := otel.Tracer("services/TicketService")
	ctx, span := tr.Start(ctx, "Stats")
	defer span.End()

	return repo.TicketStats(ctx, s.DB)
}

// StatsMeta returns the collection row count and the latest update time;
// together they parameterize the list endpoint's weak ETag.
func (s *TicketService) StatsMeta(ctx context.Context) (int64, *time.Time, error) {
	return repo.TicketsStats(ctx, s.DB)
}

// ReplaySubmission returns the ticket created by a previous submission with
// the same (user, key), or ErrTicketNotFound when no valid record exists.
func (s *TicketService) ReplaySubmission(ctx context.Context, userID, key string) (*domain.Ticket, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, key, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	t, err := repo.GetTicket(ctx, s.DB, rec.TicketID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return t, nil
}

// RememberSubmission records (user, key) -> ticket so retries replay the
// original ticket. Losing the race to a concurrent retry is not an error.
func (s *TicketService) RememberSubmission(ctx context.Context, userID, key, ticketID string, status int) error {
	if s.IdempotencyTTL <= 0 || strings.TrimSpace(key) == "" {
		return nil
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, key, ticketID, status, s.IdempotencyTTL)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// classify invokes the classifier port, falling back to the default label
// pair when the port is degraded.
func (s *TicketService) classify(description string) (string, string) {
	if s.Classifier == nil {
		return domain.DefaultCategory, domain.DefaultPriority
	}
	return s.Classifier.Classify(description)
}

// draft invokes the drafting port, converting unavailability and call-time
// failures into placeholder text per the degradation contract.
func (s *TicketService) draft(ctx context.Context, description string) string {
	if s.Drafter == nil {
		return draft.OfflineMessage
	}
	out, err := s.Drafter.Draft(ctx, description)
	if err != nil {
		return "Error: " + err.Error()
	}
	return out
}
