package service

import (
	"context"
	"fmt"
	"time"

	"parkingnear/internal/domain"
	"parkingnear/internal/events"
	"parkingnear/internal/metrics"
	"parkingnear/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type PaymentService struct {
	store    domain.Store
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
	now      func() time.Time
	newTxID  func() string
}

var _ domain.PaymentService = (*PaymentService)(nil)

func NewPaymentService(store domain.Store, eventBus domain.EventPublisher, logger *zerolog.Logger) *PaymentService {
	return &PaymentService{
		store:    store,
		eventBus: eventBus,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newTxID:  func() string { return "TXN-" + uuid.NewString() },
	}
}

// ProcessPayment records a payment of exactly the bill amount and flips the
// bill to PAID. The bill can be paid only once: a second attempt returns
// ErrConflict and records nothing.
func (s *PaymentService) ProcessPayment(ctx context.Context, billID, userID int64, amount decimal.Decimal, method string) (int64, error) {
	if !models.IsPaymentMethod(method) {
		return 0, s.reject(validationErr("unknown payment method %q", method))
	}
	if !amount.IsPositive() {
		return 0, s.reject(validationErr("payment amount must be positive, got %s", amount))
	}

	paidAt := s.now()
	payment := &models.Payment{
		BillID:        billID,
		UserID:        userID,
		Amount:        amount,
		Method:        method,
		TransactionID: s.newTxID(),
		Status:        models.PaymentStatusSuccess,
		PaymentTime:   paidAt,
	}

	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		bill, err := repo.GetBill(ctx, billID)
		if err != nil {
			return err
		}
		if bill.UserID != userID {
			return fmt.Errorf("%w: bill %d belongs to another user", domain.ErrForbidden, billID)
		}
		if bill.Status != models.BillStatusPending {
			return fmt.Errorf("%w: bill %d is %s", domain.ErrConflict, billID, bill.Status)
		}
		if !amount.Equal(bill.Amount) {
			return validationErr("payment %s does not match bill %d amount %s", amount, billID, bill.Amount)
		}

		space, err := repo.GetSpace(ctx, bill.SpaceID)
		if err != nil {
			return err
		}

		// Порядок важен: условное обновление счета защищает от двойной оплаты
		if err := repo.MarkBillPaid(ctx, billID, amount, paidAt); err != nil {
			return err
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return err
		}
		if err := repo.SetRequestAmountPaid(ctx, bill.RequestID, amount); err != nil {
			return err
		}

		return repo.EnqueueNotification(ctx, &models.Notification{
			UserID:  space.ProviderID,
			Type:    models.NotificationTypePayment,
			Message: fmt.Sprintf("Payment received for Bill ID: %d (%s via %s)", billID, amount.StringFixed(2), method),
		})
	})
	if err != nil {
		return 0, s.reject(storeErr(s.logger, fmt.Sprintf("process payment for bill %d", billID), err))
	}

	metrics.IncBillPaid("payment")
	s.logger.Info().
		Int64("payment_id", payment.ID).
		Int64("bill_id", billID).
		Str("method", method).
		Str("transaction_id", payment.TransactionID).
		Msg("Payment processed")

	if s.eventBus != nil {
		err := s.eventBus.PublishJSON(events.EventPaymentProcessed, events.PaymentEventPayload{
			PaymentID:     payment.ID,
			BillID:        billID,
			UserID:        userID,
			Amount:        amount,
			Method:        method,
			TransactionID: payment.TransactionID,
		})
		if err != nil {
			s.logger.Error().Err(err).Int64("payment_id", payment.ID).Msg("Failed to publish payment event")
		}
	}

	return payment.ID, nil
}

// reject counts a refused payment under the class of err.
func (s *PaymentService) reject(err error) error {
	metrics.IncPaymentRejected(domain.Kind(err))
	return err
}

// MarkPaidExternally settles a PENDING bill paid outside the system. No
// payment row is written.
func (s *PaymentService) MarkPaidExternally(ctx context.Context, billID int64, amountPaid decimal.Decimal) error {
	return s.markPaid(ctx, 0, billID, amountPaid)
}

// MarkPaidExternallyAs restricts MarkPaidExternally to the provider of the billed space.
func (s *PaymentService) MarkPaidExternallyAs(ctx context.Context, providerID, billID int64, amountPaid decimal.Decimal) error {
	if providerID <= 0 {
		return fmt.Errorf("%w: provider is required", domain.ErrForbidden)
	}
	return s.markPaid(ctx, providerID, billID, amountPaid)
}

func (s *PaymentService) markPaid(ctx context.Context, providerID, billID int64, amountPaid decimal.Decimal) error {
	if !amountPaid.IsPositive() {
		return validationErr("amount paid must be positive, got %s", amountPaid)
	}

	var bill *models.Bill
	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		var err error
		bill, err = repo.GetBill(ctx, billID)
		if err != nil {
			return err
		}
		space, err := repo.GetSpace(ctx, bill.SpaceID)
		if err != nil {
			return err
		}
		if providerID != 0 && space.ProviderID != providerID {
			return fmt.Errorf("%w: bill %d belongs to another provider", domain.ErrForbidden, billID)
		}
		if bill.Status != models.BillStatusPending {
			return fmt.Errorf("%w: bill %d is %s", domain.ErrConflict, billID, bill.Status)
		}

		if err := repo.MarkBillPaid(ctx, billID, amountPaid, s.now()); err != nil {
			return err
		}
		if err := repo.SetRequestAmountPaid(ctx, bill.RequestID, amountPaid); err != nil {
			return err
		}
		return repo.EnqueueNotification(ctx, &models.Notification{
			UserID:  bill.UserID,
			Type:    models.NotificationTypeBill,
			Message: fmt.Sprintf("Bill ID: %d marked as paid (%s)", billID, amountPaid.StringFixed(2)),
		})
	})
	if err != nil {
		return storeErr(s.logger, fmt.Sprintf("mark bill %d paid", billID), err)
	}

	metrics.IncBillPaid("external")
	s.logger.Info().Int64("bill_id", billID).Str("amount_paid", amountPaid.String()).Msg("Bill marked as paid externally")

	if s.eventBus != nil {
		err := s.eventBus.PublishJSON(events.EventBillPaid, events.BillEventPayload{
			BillID:    billID,
			RequestID: bill.RequestID,
			UserID:    bill.UserID,
			Amount:    amountPaid,
			Status:    models.BillStatusPaid,
		})
		if err != nil {
			s.logger.Error().Err(err).Int64("bill_id", billID).Msg("Failed to publish bill event")
		}
	}
	return nil
}

func (s *PaymentService) ListPayments(ctx context.Context, userID int64) ([]*models.Payment, error) {
	payments, err := s.store.ListUserPayments(ctx, userID)
	if err != nil {
		return nil, storeErr(s.logger, fmt.Sprintf("list payments of user %d", userID), err)
	}
	return payments, nil
}
