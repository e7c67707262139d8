package service

import (
	"context"
	"testing"

	"parkingnear/internal/domain"
	"parkingnear/internal/metrics"
	"parkingnear/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A payment whose row cannot be written must not leave the bill PAID: the
// bill update, payment insert and notification commit together or not at all.
func TestProcessPayment_RollsBackOnLaterFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	spaceID := env.addSpace(t, 5, "40")

	firstBill, err := env.billing.GenerateBill(ctx, env.completedRequest(t, spaceID, "1"), nil)
	require.NoError(t, err)
	secondReq := env.completedRequest(t, spaceID, "2")
	secondBill, err := env.billing.GenerateBill(ctx, secondReq, nil)
	require.NoError(t, err)

	env.payments.newTxID = func() string { return "TXN-FIXED" }

	_, err = env.payments.ProcessPayment(ctx, firstBill, env.userID, dec("40"), models.PaymentMethodUPI)
	require.NoError(t, err)

	notesBefore, err := env.db.ListUserNotifications(ctx, env.providerID)
	require.NoError(t, err)

	// same transaction id: the insert fails after the bill was flipped to PAID
	_, err = env.payments.ProcessPayment(ctx, secondBill, env.userID, dec("80"), models.PaymentMethodUPI)
	assert.ErrorIs(t, err, domain.ErrConflict)

	bill, err := env.billing.GetBill(ctx, secondBill)
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusPending, bill.Status)
	assert.Nil(t, bill.PaidAt)

	count, err := env.db.CountBillPayments(ctx, secondBill)
	require.NoError(t, err)
	assert.Zero(t, count)

	req, err := env.requests.GetRequest(ctx, secondReq)
	require.NoError(t, err)
	assert.False(t, req.AmountPaid.Valid)

	notesAfter, err := env.db.ListUserNotifications(ctx, env.providerID)
	require.NoError(t, err)
	assert.Len(t, notesAfter, len(notesBefore))

	// a fresh transaction id goes through
	env.payments.newTxID = func() string { return "TXN-SECOND" }
	_, err = env.payments.ProcessPayment(ctx, secondBill, env.userID, dec("80"), models.PaymentMethodUPI)
	require.NoError(t, err)
}

func rejectedPayments(t *testing.T, reason string) float64 {
	t.Helper()
	metrics.Register()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "parkingnear_payments_rejected_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "reason" && l.GetValue() == reason {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestProcessPayment_RejectionLabels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	spaceID := env.addSpace(t, 5, "40")
	billID, err := env.billing.GenerateBill(ctx, env.completedRequest(t, spaceID, "1"), nil)
	require.NoError(t, err)

	validation := rejectedPayments(t, "validation")
	_, err = env.payments.ProcessPayment(ctx, billID, env.userID, dec("40"), "CASH")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, validation+1, rejectedPayments(t, "validation"))

	_, err = env.payments.ProcessPayment(ctx, billID, env.userID, dec("40"), models.PaymentMethodUPI)
	require.NoError(t, err)

	conflict := rejectedPayments(t, "conflict")
	_, err = env.payments.ProcessPayment(ctx, billID, env.userID, dec("40"), models.PaymentMethodUPI)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, conflict+1, rejectedPayments(t, "conflict"))

	// store failures are not precondition rejections
	conflict = rejectedPayments(t, "conflict")
	retryable := rejectedPayments(t, "retryable")
	require.NoError(t, env.db.Close())
	_, err = env.payments.ProcessPayment(ctx, billID, env.userID, dec("40"), models.PaymentMethodUPI)
	assert.ErrorIs(t, err, domain.ErrRetryable)
	assert.Equal(t, retryable+1, rejectedPayments(t, "retryable"))
	assert.Equal(t, conflict, rejectedPayments(t, "conflict"))
}
