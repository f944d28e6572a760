// Package draft implements the reply-drafting pipeline: given a ticket
// description it retrieves the best-matching knowledge base paragraphs and
// composes a suggested support reply from them.
//
// The pipeline is built once at process start from the knowledge base file.
// When construction fails the process runs without a drafter for its whole
// lifetime; the lifecycle service then returns the offline sentinel instead
// of a draft. A drafting failure never fails a ticket operation.
package draft

import (
	"context"
	"errors"
	"strings"

	"github.com/smartdesk-ai/go-ticket-backend/internal/search"
)

// OfflineMessage is the sentinel returned in place of a draft when the
// drafting pipeline was never initialized. It is stored and surfaced to the
// admin verbatim so degraded mode is visible, not silent.
const OfflineMessage = "AI System is offline."

// Drafter produces a suggested reply for a ticket description.
// Implementations must be safe for concurrent use.
type Drafter interface {
	Draft(ctx context.Context, description string) (string, error)
}

// ErrNoIndex indicates the responder was constructed without a usable
// knowledge index.
var ErrNoIndex = errors.New("draft: knowledge index not available")

// Responder drafts replies by retrieval over a search.Index.
type Responder struct {
	index     search.Index
	topK      int
	threshold float64
}

// ResponderOption customizes a Responder.
type ResponderOption func(*Responder)

// WithTopK sets how many knowledge snippets are considered per draft.
func WithTopK(k int) ResponderOption {
	return func(r *Responder) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithThreshold sets the minimum similarity score a snippet needs to be
// quoted in the reply.
func WithThreshold(t float64) ResponderOption {
	return func(r *Responder) {
		if t >= 0 {
			r.threshold = t
		}
	}
}

// NewResponder builds a Responder over an existing index.
func NewResponder(idx search.Index, opts ...ResponderOption) *Responder {
	r := &Responder{index: idx, topK: 3, threshold: 0.05}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewResponderFromFile builds the retrieval index from the knowledge base at
// path and wraps it in a Responder. An unreadable file surfaces as an error
// so the caller can decide to run degraded.
func NewResponderFromFile(path string, opts ...ResponderOption) (*Responder, error) {
	idx, err := search.NewIndexFromFile(path)
	if err != nil {
		return nil, err
	}
	return NewResponder(idx, opts...), nil
}

// Draft retrieves knowledge snippets matching the description and composes a
// polite support reply. When nothing in the knowledge base matches, the reply
// is a generic acknowledgement rather than an error: an unhelpful draft is
// still a draft.
func (r *Responder) Draft(ctx context.Context, description string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.index == nil {
		return "", ErrNoIndex
	}

	var steps []string
	for _, res := range r.index.TopK(description, r.topK) {
		if res.Score < r.threshold {
			continue
		}
		steps = append(steps, res.Snippet)
	}
	return compose(steps), nil
}

// compose renders the reply email body. Kept deliberately plain: the admin
// edits the draft before sending, so formatting stays minimal.
func compose(steps []string) string {
	var b strings.Builder
	b.WriteString("Hello,\n\nThank you for contacting IT support. ")
	if len(steps) == 0 {
		b.WriteString("We have received your ticket and an agent is looking into it.")
	} else {
		b.WriteString("Based on your description, the following may resolve the issue:\n")
		for _, s := range steps {
			b.WriteString("\n- ")
			b.WriteString(s)
		}
	}
	b.WriteString("\n\nIf this does not resolve the issue, reply to this ticket and we will investigate further.\n\nBest regards,\nIT Support")
	return b.String()
}
