// Package domain defines the persistence model for support tickets. This
// file holds the bookkeeping record used to deduplicate retried ticket
// submissions.
package domain

import "time"

// Idempotency records the outcome of a previously processed ticket
// submission, keyed by (user_id, key). It lets POST /tickets/ replay the
// originally created ticket instead of inserting a duplicate when a client
// retries with the same Idempotency-Key header.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_key,priority:1"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_key,priority:2"`
	TicketID  string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
