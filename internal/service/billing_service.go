package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parkingnear/internal/domain"
	"parkingnear/internal/events"
	"parkingnear/internal/metrics"
	"parkingnear/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type BillingService struct {
	store    domain.Store
	eventBus domain.EventPublisher
	dueDays  int
	logger   *zerolog.Logger
	now      func() time.Time
}

var _ domain.BillingService = (*BillingService)(nil)

func NewBillingService(store domain.Store, eventBus domain.EventPublisher, dueDays int, logger *zerolog.Logger) *BillingService {
	if dueDays <= 0 {
		dueDays = models.DefaultBillDueDays
	}
	return &BillingService{
		store:    store,
		eventBus: eventBus,
		dueDays:  dueDays,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CalculateCharge returns duration × rate exactly, without rounding.
func (s *BillingService) CalculateCharge(duration, rate decimal.Decimal) (decimal.Decimal, error) {
	if !duration.IsPositive() {
		return decimal.Zero, validationErr("duration must be positive, got %s", duration)
	}
	if !rate.IsPositive() {
		return decimal.Zero, validationErr("rate must be positive, got %s", rate)
	}
	return duration.Mul(rate), nil
}

// GenerateBill creates the single PENDING bill of a completed request. When
// amount is nil the charge is computed from the recorded duration and the
// space's current rate.
func (s *BillingService) GenerateBill(ctx context.Context, requestID int64, amount *decimal.Decimal) (int64, error) {
	if amount != nil && !amount.IsPositive() {
		return 0, validationErr("bill amount must be positive, got %s", amount)
	}

	var bill *models.Bill
	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		req, err := repo.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.RequestStatusCompleted {
			return fmt.Errorf("%w: request %d is %s, only completed requests are billed",
				domain.ErrInvalidTransition, requestID, req.Status)
		}

		if _, err := repo.GetBillByRequest(ctx, requestID); err == nil {
			return fmt.Errorf("%w: request %d is already billed", domain.ErrConflict, requestID)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		space, err := repo.GetSpace(ctx, req.SpaceID)
		if err != nil {
			return err
		}

		total, err := s.chargeFor(req, space, amount)
		if err != nil {
			return err
		}

		created := s.now()
		bill = &models.Bill{
			RequestID: requestID,
			UserID:    req.UserID,
			SpaceID:   req.SpaceID,
			Amount:    total,
			Status:    models.BillStatusPending,
			CreatedAt: created,
			DueDate:   created.AddDate(0, 0, s.dueDays),
		}
		if err := repo.CreateBill(ctx, bill); err != nil {
			return err
		}

		hours := "the agreed amount"
		if req.DurationHours.Valid {
			hours = req.DurationHours.Decimal.String() + " hours"
		}
		return repo.EnqueueNotification(ctx, &models.Notification{
			UserID:  req.UserID,
			Type:    models.NotificationTypeBill,
			Message: fmt.Sprintf("New bill received: %s for %s parking at %s", total.StringFixed(2), hours, space.Address),
		})
	})
	if err != nil {
		return 0, storeErr(s.logger, fmt.Sprintf("generate bill for request %d", requestID), err)
	}

	metrics.IncBillGenerated()
	s.logger.Info().
		Int64("bill_id", bill.ID).
		Int64("request_id", requestID).
		Str("amount", bill.Amount.String()).
		Msg("Bill generated")

	if s.eventBus != nil {
		payload := events.BillEventPayload{
			BillID:    bill.ID,
			RequestID: requestID,
			UserID:    bill.UserID,
			Amount:    bill.Amount,
			Status:    bill.Status,
		}
		if err := s.eventBus.PublishJSON(events.EventBillGenerated, payload); err != nil {
			s.logger.Error().Err(err).Int64("bill_id", bill.ID).Msg("Failed to publish bill event")
		}
	}

	return bill.ID, nil
}

func (s *BillingService) chargeFor(req *models.ParkingRequest, space *models.Space, amount *decimal.Decimal) (decimal.Decimal, error) {
	if amount != nil {
		return *amount, nil
	}
	if !req.DurationHours.Valid {
		return decimal.Zero, validationErr("request %d has no recorded duration", req.ID)
	}
	return s.CalculateCharge(req.DurationHours.Decimal, space.RatePerHour)
}

// HandleRequestCompleted is subscribed to request_completed when automatic
// billing is on. An existing bill is not an error.
func (s *BillingService) HandleRequestCompleted(event *events.Event) error {
	var payload events.RequestEventPayload
	if err := event.Decode(&payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to decode request_completed event")
		return err
	}

	_, err := s.GenerateBill(context.Background(), payload.RequestID, nil)
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		s.logger.Error().Err(err).Int64("request_id", payload.RequestID).Msg("Automatic billing failed")
		return err
	}
	return nil
}

func (s *BillingService) GetBill(ctx context.Context, id int64) (*models.Bill, error) {
	bill, err := s.store.GetBill(ctx, id)
	if err != nil {
		return nil, storeErr(s.logger, fmt.Sprintf("get bill %d", id), err)
	}
	return bill, nil
}

func (s *BillingService) GetBillByRequest(ctx context.Context, requestID int64) (*models.Bill, error) {
	bill, err := s.store.GetBillByRequest(ctx, requestID)
	if err != nil {
		return nil, storeErr(s.logger, fmt.Sprintf("get bill of request %d", requestID), err)
	}
	return bill, nil
}

func (s *BillingService) ListPendingBills(ctx context.Context, userID int64) ([]*models.BillView, error) {
	bills, err := s.store.ListPendingBills(ctx, userID)
	if err != nil {
		return nil, storeErr(s.logger, fmt.Sprintf("list pending bills of user %d", userID), err)
	}
	return bills, nil
}

func (s *BillingService) ListProviderBills(ctx context.Context, providerID int64) ([]*models.BillView, error) {
	bills, err := s.store.ListProviderBills(ctx, providerID)
	if err != nil {
		return nil, storeErr(s.logger, fmt.Sprintf("list bills of provider %d", providerID), err)
	}
	return bills, nil
}
