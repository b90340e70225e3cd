package billing

import (
	"fmt"
	"strings"

	"rentflow-system/internal/apperr"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusUnpaid    Status = "unpaid"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

var statusCycle = map[Status]Status{
	StatusDraft:     StatusUnpaid,
	StatusUnpaid:    StatusPaid,
	StatusPaid:      StatusCancelled,
	StatusCancelled: StatusUnpaid,
}

// ParseStatus accepts the canonical statuses plus the legacy "sent" label, which maps to unpaid.
func ParseStatus(s string) (Status, error) {
	switch v := Status(strings.ToLower(strings.TrimSpace(s))); v {
	case StatusDraft, StatusUnpaid, StatusPaid, StatusCancelled:
		return v, nil
	case "sent":
		return StatusUnpaid, nil
	default:
		return "", fmt.Errorf("status %q: %w", s, apperr.ErrInvalidInput)
	}
}

// Next is the status reached by one toggle.
func (s Status) Next() Status {
	if next, ok := statusCycle[s]; ok {
		return next
	}
	return StatusUnpaid
}

func (s Status) String() string {
	return string(s)
}
