package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ParkingRequest struct {
	ID            int64               `json:"id"`
	UserID        int64               `json:"user_id"`
	SpaceID       int64               `json:"space_id"`
	VehicleNumber string              `json:"vehicle_number"`
	Status        string              `json:"status"` // PENDING, ACCEPTED, DENIED, ACTIVE, COMPLETED
	DurationHours decimal.NullDecimal `json:"duration_hours"`
	AmountPaid    decimal.NullDecimal `json:"amount_paid"`
	RequestedAt   time.Time           `json:"requested_at"`
	DecidedAt     *time.Time          `json:"decided_at,omitempty"`
	ParkedAt      *time.Time          `json:"parked_at,omitempty"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// RequestView joins a request with the names shown to users and providers.
type RequestView struct {
	ParkingRequest
	UserName     string          `json:"user_name"`
	SpaceAddress string          `json:"space_address"`
	RatePerHour  decimal.Decimal `json:"rate_per_hour"`
	ProviderID   int64           `json:"provider_id"`
}

var requestTransitions = map[string][]string{
	RequestStatusPending:  {RequestStatusAccepted, RequestStatusDenied},
	RequestStatusAccepted: {RequestStatusActive},
	RequestStatusActive:   {RequestStatusCompleted},
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from status.
func IsTerminal(status string) bool {
	return len(requestTransitions[status]) == 0
}

// OpenRequestStatuses are the statuses that count against a space's capacity.
var OpenRequestStatuses = []string{RequestStatusPending, RequestStatusAccepted, RequestStatusActive}
