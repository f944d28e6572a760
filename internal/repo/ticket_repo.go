// Package repo implements the data persistence layer for the ticket store,
// backed by GORM. This file provides repository functions for the Ticket model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a ticket is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Note that syntactic validation of identifiers is NOT performed here; the
// service layer rejects malformed ids before any store round-trip.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/smartdesk-ai/go-ticket-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateTicket inserts a new ticket row. The ticket ID is a randomly
// generated UUID (string) and CreatedAt is set to UTC. Category and priority
// must already be populated by the caller (classifier output or fallback).
//
// On success, it returns the persisted Ticket. On failure, it returns a DB error.
func CreateTicket(ctx context.Context, db *gorm.DB, subject, description, category, priority string) (*domain.Ticket, error) {
	t := &domain.Ticket{
		ID:          uuid.NewString(),
		Subject:     subject,
		Description: description,
		Category:    category,
		Priority:    priority,
		Status:      domain.StatusOpen,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// GetTicket fetches a single ticket by its ID. If the record does not exist,
// it returns ErrNotFound. On other DB errors, the raw error is returned.
func GetTicket(ctx context.Context, db *gorm.DB, id string) (*domain.Ticket, error) {
	var t domain.Ticket
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTickets returns every ticket ordered deterministically
// (CreatedAt ASC, ID ASC). It returns an empty slice when the store is empty.
func ListTickets(ctx context.Context, db *gorm.DB) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountTickets returns the total number of tickets in the store.
func CountTickets(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Ticket{}).Count(&total).Error
	return total, err
}

// ListTicketsPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
// Use CountTickets to obtain the total for pagination metadata.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListTicketsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SetSuggestedReply overwrites the stored AI draft for a ticket. Any prior
// draft is replaced. If no row matches, it returns ErrNotFound.
func SetSuggestedReply(ctx context.Context, db *gorm.DB, id, reply string) error {
	res := db.WithContext(ctx).
		Model(&domain.Ticket{}).
		Where("id = ?", id).
		Update("suggested_reply", reply)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ApplyTicketPatch merges a partial update into the stored ticket and
// reports whether any persisted field value actually changed.
//
// The changed/unchanged distinction is computed against the stored row, not
// the request: resubmitting identical values yields (false, nil). Only the
// columns that differ are written. If the ticket does not exist, it returns
// ErrNotFound.
//
// Callers needing atomicity between the read and the write should pass a
// transaction-bound handle.
func ApplyTicketPatch(ctx context.Context, db *gorm.DB, id string, p domain.TicketPatch) (bool, error) {
	var t domain.Ticket
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return false, err
	}

	updates := map[string]any{}
	if p.Subject != nil && *p.Subject != t.Subject {
		updates["subject"] = *p.Subject
	}
	if p.Description != nil && *p.Description != t.Description {
		updates["description"] = *p.Description
	}
	if p.Category != nil && *p.Category != t.Category {
		updates["category"] = *p.Category
	}
	if p.Priority != nil && *p.Priority != t.Priority {
		updates["priority"] = *p.Priority
	}
	if p.Status != nil && *p.Status != t.Status {
		updates["status"] = *p.Status
	}
	if p.Solution != nil && (t.Solution == nil || *t.Solution != *p.Solution) {
		updates["solution"] = *p.Solution
	}
	if p.SuggestedReply != nil && (t.SuggestedReply == nil || *t.SuggestedReply != *p.SuggestedReply) {
		updates["suggested_reply"] = *p.SuggestedReply
	}
	if len(updates) == 0 {
		return false, nil
	}

	res := db.WithContext(ctx).
		Model(&domain.Ticket{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return true, nil
}
