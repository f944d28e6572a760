// Package repo implements the data persistence layer for the ticket store,
// backed by GORM. This file provides small aggregate queries backing the
// admin dashboard summary and conditional responses in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/smartdesk-ai/go-ticket-backend/internal/domain"
)

// TicketSummary aggregates queue-level counts for the admin dashboard.
type TicketSummary struct {
	Total      int64            `json:"total"`
	Open       int64            `json:"open"`
	Closed     int64            `json:"closed"`
	ByCategory map[string]int64 `json:"by_category"`
	ByPriority map[string]int64 `json:"by_priority"`
}

// labelCount is a scan target for GROUP BY label queries.
type labelCount struct {
	Label string
	N     int64
}

// TicketStats returns the dashboard summary: totals by status and
// distributions by category and priority. Maps are always non-nil, so an
// empty store serializes as {} rather than null.
func TicketStats(ctx context.Context, db *gorm.DB) (*TicketSummary, error) {
	s := &TicketSummary{
		ByCategory: map[string]int64{},
		ByPriority: map[string]int64{},
	}

	q := db.WithContext(ctx).Model(&domain.Ticket{})
	if err := q.Count(&s.Total).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("status = ?", domain.StatusOpen).Count(&s.Open).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("status = ?", domain.StatusClosed).Count(&s.Closed).Error; err != nil {
		return nil, err
	}

	var byCat []labelCount
	if err := db.WithContext(ctx).Model(&domain.Ticket{}).
		Select("category AS label, COUNT(*) AS n").
		Group("category").
		Scan(&byCat).Error; err != nil {
		return nil, err
	}
	for _, row := range byCat {
		s.ByCategory[row.Label] = row.N
	}

	var byPri []labelCount
	if err := db.WithContext(ctx).Model(&domain.Ticket{}).
		Select("priority AS label, COUNT(*) AS n").
		Group("priority").
		Scan(&byPri).Error; err != nil {
		return nil, err
	}
	for _, row := range byPri {
		s.ByPriority[row.Label] = row.N
	}

	return s, nil
}

// TicketsStats returns aggregate metadata for the ticket collection: the
// total number of rows and the maximum UpdatedAt timestamp among them. It is
// used for weak ETag generation on list responses. When the store is empty,
// the returned count is 0 and maxUpdatedAt is nil.
func TicketsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = db.WithContext(ctx).Model(&domain.Ticket{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Ticket{}).
		Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
