package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"parkingnear/internal/domain"
	"parkingnear/internal/events"
	"parkingnear/internal/metrics"
	"parkingnear/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type RequestService struct {
	store    domain.Store
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
	now      func() time.Time
}

var _ domain.RequestService = (*RequestService)(nil)

func NewRequestService(store domain.Store, eventBus domain.EventPublisher, logger *zerolog.Logger) *RequestService {
	return &RequestService{
		store:    store,
		eventBus: eventBus,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeVehicleNumber trims and upper-cases a plate number.
func NormalizeVehicleNumber(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// SubmitRequest creates a PENDING request and notifies the space provider.
func (s *RequestService) SubmitRequest(ctx context.Context, userID, spaceID int64, vehicleNumber string) (int64, error) {
	vehicleNumber = NormalizeVehicleNumber(vehicleNumber)
	if vehicleNumber == "" {
		return 0, validationErr("vehicle number is required")
	}
	if len(vehicleNumber) > models.MaxVehicleNumberLength {
		return 0, validationErr("vehicle number longer than %d characters", models.MaxVehicleNumberLength)
	}

	req := &models.ParkingRequest{
		UserID:        userID,
		SpaceID:       spaceID,
		VehicleNumber: vehicleNumber,
		Status:        models.RequestStatusPending,
	}
	var space *models.Space

	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		if _, err := repo.GetUserByID(ctx, userID); err != nil {
			return err
		}

		var err error
		space, err = repo.GetSpace(ctx, spaceID)
		if err != nil {
			return err
		}
		if !space.IsActive() {
			return validationErr("space %d is not accepting requests", spaceID)
		}

		// Проверяем дубликаты и свободные места внутри транзакции
		open, err := repo.HasOpenRequest(ctx, userID, spaceID)
		if err != nil {
			return err
		}
		if open {
			return fmt.Errorf("%w: user %d already has an open request on space %d", domain.ErrConflict, userID, spaceID)
		}
		occupied, err := repo.CountOpenRequests(ctx, spaceID)
		if err != nil {
			return err
		}
		if occupied >= space.Capacity {
			return fmt.Errorf("%w: space %d is full", domain.ErrConflict, spaceID)
		}

		if err := repo.CreateRequest(ctx, req); err != nil {
			return err
		}

		return repo.EnqueueNotification(ctx, &models.Notification{
			UserID:  space.ProviderID,
			Type:    models.NotificationTypeRequest,
			Message: fmt.Sprintf("New parking request #%d for %s from vehicle %s", req.ID, space.Address, vehicleNumber),
		})
	})
	if err != nil {
		return 0, storeErr(s.logger, fmt.Sprintf("submit request of user %d for space %d", userID, spaceID), err)
	}

	metrics.IncTransition(models.RequestStatusPending)
	s.logger.Info().
		Int64("request_id", req.ID).
		Int64("user_id", userID).
		Int64("space_id", spaceID).
		Msg("Parking request submitted")
	s.publish(events.EventRequestSubmitted, req, space.ProviderID)

	return req.ID, nil
}

// DecideRequest accepts or denies a PENDING request.
func (s *RequestService) DecideRequest(ctx context.Context, requestID int64, decision string) error {
	return s.decide(ctx, 0, requestID, decision)
}

// DecideRequestAs is DecideRequest restricted to the provider owning the space.
func (s *RequestService) DecideRequestAs(ctx context.Context, providerID, requestID int64, decision string) error {
	if providerID <= 0 {
		return fmt.Errorf("%w: provider is required", domain.ErrForbidden)
	}
	return s.decide(ctx, providerID, requestID, decision)
}

func (s *RequestService) decide(ctx context.Context, providerID, requestID int64, decision string) error {
	decision = strings.ToUpper(strings.TrimSpace(decision))
	if decision != models.RequestStatusAccepted && decision != models.RequestStatusDenied {
		return validationErr("decision must be ACCEPTED or DENIED, got %q", decision)
	}

	var (
		req     *models.ParkingRequest
		space   *models.Space
		decided = s.now()
	)
	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		var err error
		req, err = repo.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		space, err = repo.GetSpace(ctx, req.SpaceID)
		if err != nil {
			return err
		}
		if providerID != 0 && space.ProviderID != providerID {
			return fmt.Errorf("%w: request %d belongs to another provider", domain.ErrForbidden, requestID)
		}
		if req.Status != models.RequestStatusPending {
			return fmt.Errorf("%w: request %d is %s", domain.ErrInvalidTransition, requestID, req.Status)
		}

		if err := repo.TransitionRequest(ctx, requestID, models.RequestStatusPending, decision, decided); err != nil {
			return err
		}
		req.Status = decision
		req.DecidedAt = &decided

		verb := "accepted"
		if decision == models.RequestStatusDenied {
			verb = "denied"
		}
		return repo.EnqueueNotification(ctx, &models.Notification{
			UserID:  req.UserID,
			Type:    models.NotificationTypeRequest,
			Message: fmt.Sprintf("Your parking request #%d at %s was %s", requestID, space.Address, verb),
		})
	})
	if err != nil {
		return storeErr(s.logger, fmt.Sprintf("decide request %d", requestID), err)
	}

	metrics.IncTransition(decision)
	s.logger.Info().Int64("request_id", requestID).Str("decision", decision).Msg("Parking request decided")
	s.publish(events.EventRequestDecided, req, space.ProviderID)
	return nil
}

// Park moves an ACCEPTED request to ACTIVE.
func (s *RequestService) Park(ctx context.Context, requestID int64) error {
	var (
		req    *models.ParkingRequest
		space  *models.Space
		parked = s.now()
	)
	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		var err error
		req, err = repo.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.RequestStatusAccepted {
			return fmt.Errorf("%w: request %d is %s", domain.ErrInvalidTransition, requestID, req.Status)
		}
		space, err = repo.GetSpace(ctx, req.SpaceID)
		if err != nil {
			return err
		}
		if err := repo.TransitionRequest(ctx, requestID, models.RequestStatusAccepted, models.RequestStatusActive, parked); err != nil {
			return err
		}
		req.Status = models.RequestStatusActive
		req.ParkedAt = &parked
		return nil
	})
	if err != nil {
		return storeErr(s.logger, fmt.Sprintf("park request %d", requestID), err)
	}

	metrics.IncTransition(models.RequestStatusActive)
	s.logger.Info().Int64("request_id", requestID).Msg("Vehicle parked")
	s.publish(events.EventRequestParked, req, space.ProviderID)
	return nil
}

// Unpark completes an ACTIVE request. A positive durationHours is recorded
// as given; otherwise the duration is measured from parked_at.
func (s *RequestService) Unpark(ctx context.Context, requestID int64, durationHours *decimal.Decimal) error {
	if durationHours != nil && !durationHours.IsPositive() {
		return validationErr("duration must be positive, got %s", durationHours)
	}

	var (
		req       *models.ParkingRequest
		space     *models.Space
		completed = s.now()
	)
	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		var err error
		req, err = repo.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.RequestStatusActive {
			return fmt.Errorf("%w: request %d is %s", domain.ErrInvalidTransition, requestID, req.Status)
		}
		space, err = repo.GetSpace(ctx, req.SpaceID)
		if err != nil {
			return err
		}

		duration := BillableHours(req.ParkedAt, completed)
		if durationHours != nil {
			duration = *durationHours
		}

		if err := repo.CompleteRequest(ctx, requestID, duration, completed); err != nil {
			return err
		}
		req.Status = models.RequestStatusCompleted
		req.DurationHours = decimal.NewNullDecimal(duration)
		req.CompletedAt = &completed
		return nil
	})
	if err != nil {
		return storeErr(s.logger, fmt.Sprintf("unpark request %d", requestID), err)
	}

	metrics.IncTransition(models.RequestStatusCompleted)
	s.logger.Info().
		Int64("request_id", requestID).
		Str("duration_hours", req.DurationHours.Decimal.String()).
		Msg("Parking completed")

	// Событие уходит только после фиксации транзакции
	s.publish(events.EventRequestCompleted, req, space.ProviderID)
	return nil
}

// BillableHours converts the time between parked and completed into hours:
// whole minutes rounded up, at least one minute, four decimal places.
func BillableHours(parked *time.Time, completed time.Time) decimal.Decimal {
	minutes := int64(1)
	if parked != nil {
		elapsed := completed.Sub(*parked)
		m := int64(elapsed / time.Minute)
		if elapsed%time.Minute > 0 {
			m++
		}
		if m > minutes {
			minutes = m
		}
	}
	return decimal.NewFromInt(minutes).DivRound(decimal.NewFromInt(60), 4)
}

func (s *RequestService) GetRequest(ctx context.Context, id int64) (*models.ParkingRequest, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, storeErr(s.logger, fmt.Sprintf("get request %d", id), err)
	}
	return req, nil
}

func (s *RequestService) ListUserRequests(ctx context.Context, userID int64) ([]*models.RequestView, error) {
	list, err := s.store.ListUserRequests(ctx, userID)
	if err != nil {
		return nil, storeErr(s.logger, fmt.Sprintf("list requests of user %d", userID), err)
	}
	return list, nil
}

func (s *RequestService) ListProviderRequests(ctx context.Context, providerID int64) ([]*models.RequestView, error) {
	list, err := s.store.ListProviderRequests(ctx, providerID)
	if err != nil {
		return nil, storeErr(s.logger, fmt.Sprintf("list requests of provider %d", providerID), err)
	}
	return list, nil
}

// CurrentBooking returns the user's latest non-terminal request.
func (s *RequestService) CurrentBooking(ctx context.Context, userID int64) (*models.RequestView, error) {
	view, err := s.store.GetCurrentRequest(ctx, userID)
	if err != nil {
		return nil, storeErr(s.logger, fmt.Sprintf("current booking of user %d", userID), err)
	}
	return view, nil
}

func (s *RequestService) ListUnbilledCompleted(ctx context.Context, providerID int64) ([]*models.RequestView, error) {
	list, err := s.store.ListUnbilledCompleted(ctx, providerID)
	if err != nil {
		return nil, storeErr(s.logger, fmt.Sprintf("list unbilled requests of provider %d", providerID), err)
	}
	return list, nil
}

func (s *RequestService) publish(eventType string, req *models.ParkingRequest, providerID int64) {
	if s.eventBus == nil {
		return
	}
	payload := events.RequestEventPayload{
		RequestID:     req.ID,
		UserID:        req.UserID,
		SpaceID:       req.SpaceID,
		ProviderID:    providerID,
		VehicleNumber: req.VehicleNumber,
		Status:        req.Status,
		DurationHours: req.DurationHours,
		At:            s.now(),
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Int64("request_id", req.ID).Msg("Failed to publish event")
	}
}
