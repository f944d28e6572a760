// Package services defines the business logic for the ticket lifecycle.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

var (
	// ErrSubjectTooShort is returned when a create request carries a subject
	// shorter than the minimum length.
	ErrSubjectTooShort = errors.New("subject must be at least 3 characters")

	// ErrDescriptionTooShort is returned when a create request carries a
	// description shorter than the minimum length.
	ErrDescriptionTooShort = errors.New("description must be at least 10 characters")

	// ErrInvalidTicketID is returned when a path identifier is not a
	// syntactically valid ticket id. It is raised before any store access.
	ErrInvalidTicketID = errors.New("invalid ticket id format")

	// ErrTicketNotFound indicates that no ticket exists for a well-formed id.
	ErrTicketNotFound = errors.New("ticket not found")
)
