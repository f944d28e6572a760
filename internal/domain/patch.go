package domain

// TicketPatch is a partial-update request against a ticket. Every field is
// optional; a nil pointer means "leave untouched". The set of mutable fields
// is deliberately the whole ticket surface minus the immutable ID: the admin
// workflow closes a ticket by sending status together with solution, but no
// combination is required and no subset is rejected.
type TicketPatch struct {
	Subject        *string `json:"subject"`
	Description    *string `json:"description"`
	Category       *string `json:"category"`
	Priority       *string `json:"priority"`
	Status         *string `json:"status"`
	Solution       *string `json:"solution"`
	SuggestedReply *string `json:"suggested_reply"`
}

// IsZero reports whether the patch carries no fields at all.
func (p TicketPatch) IsZero() bool {
	return p.Subject == nil && p.Description == nil && p.Category == nil &&
		p.Priority == nil && p.Status == nil && p.Solution == nil &&
		p.SuggestedReply == nil
}
