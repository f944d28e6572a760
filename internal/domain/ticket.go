// Package domain defines the persistence model for support tickets. The
// Ticket type is mapped with GORM and forms the single aggregate of the
// intake and triage application.
package domain

import "time"

// Ticket lifecycle states. A ticket is created open and is moved to closed
// by an explicit admin update. No code path re-opens a closed ticket, but
// the data model does not forbid it.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Fallback labels applied when the classifier is unavailable.
const (
	DefaultCategory = "General"
	DefaultPriority = "Medium"
)

// Ticket represents a user-submitted support request tracked through
// open/closed states.
//
// Fields:
//   - ID: stable UUID primary key (char(36)), assigned on insert, immutable.
//   - Subject / Description: user-supplied text, validated by the service.
//   - Category / Priority: classification labels; always populated after
//     creation, either classifier output or the default fallback pair.
//   - Status: "open" or "closed" in normal operation. The column is kept
//     unconstrained so the permissive PATCH surface never trips a store
//     error on unexpected values.
//   - Solution: final answer text supplied by an admin; nil until then.
//   - SuggestedReply: latest AI-drafted reply; nil until drafting runs,
//     overwritten on every subsequent draft.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Ticket struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	Subject        string    `json:"subject"         gorm:"type:varchar(255);not null"`
	Description    string    `json:"description"     gorm:"type:text;not null"`
	Category       string    `json:"category"        gorm:"type:varchar(64);not null;index:idx_ticket_category"`
	Priority       string    `json:"priority"        gorm:"type:varchar(32);not null;index:idx_ticket_priority"`
	Status         string    `json:"status"          gorm:"type:varchar(16);not null;default:'open';index:idx_ticket_status"`
	Solution       *string   `json:"solution"        gorm:"type:text"`
	SuggestedReply *string   `json:"suggested_reply" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for Ticket.
func (Ticket) TableName() string { return "tickets" }

// IsClosed reports whether the ticket has been closed by an admin.
func (t *Ticket) IsClosed() bool { return t.Status == StatusClosed }
