package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Bill struct {
	ID         int64               `json:"id"`
	RequestID  int64               `json:"request_id"`
	UserID     int64               `json:"user_id"`
	SpaceID    int64               `json:"space_id"`
	Amount     decimal.Decimal     `json:"amount"`
	Status     string              `json:"status"` // PENDING, PAID
	CreatedAt  time.Time           `json:"created_at"`
	DueDate    time.Time           `json:"due_date"`
	PaidAt     *time.Time          `json:"paid_at,omitempty"`
	AmountPaid decimal.NullDecimal `json:"amount_paid"`
}

func (b *Bill) IsPaid() bool {
	return b.Status == BillStatusPaid
}

// BillView adds the space context shown next to a bill.
type BillView struct {
	Bill
	Address       string          `json:"address"`
	RatePerHour   decimal.Decimal `json:"rate_per_hour"`
	UserName      string          `json:"user_name"`
	VehicleNumber string          `json:"vehicle_number"`
}

type Payment struct {
	ID            int64           `json:"id"`
	BillID        int64           `json:"bill_id"`
	UserID        int64           `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"payment_method"`
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"` // SUCCESS, FAILED, PENDING
	PaymentTime   time.Time       `json:"payment_time"`
}
