package order

import (
	"strings"

	"github.com/kickzhub/storefront/internal/domain/apperr"
)

// Status is the order lifecycle label. Known values are listed below, but any
// other non-empty label is stored verbatim as a custom status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	// StatusRejected is terminal and set by Cancel.
	StatusRejected Status = "rejected"
)

var statusAliases = map[string]Status{
	"pending":   StatusPending,
	"initial":   StatusPending,
	"confirmed": StatusConfirmed,
	"shipped":   StatusShipped,
	"delivered": StatusDelivered,
	"rejected":  StatusRejected,
	"cancelled": StatusRejected,
	"canceled":  StatusRejected,
}

// ParseStatus maps known labels (case-insensitive, with aliases) to their
// canonical value and keeps unknown labels as given.
func ParseStatus(s string) (Status, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", apperr.Invalid("status", "status required")
	}
	if st, ok := statusAliases[strings.ToLower(trimmed)]; ok {
		return st, nil
	}
	return Status(trimmed), nil
}

// Known reports whether s is one of the canonical statuses.
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusRejected:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }
