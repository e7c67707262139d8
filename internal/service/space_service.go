package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"parkingnear/internal/domain"
	"parkingnear/internal/geo"
	"parkingnear/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type SpaceService struct {
	store    domain.Store
	geocoder domain.Geocoder
	logger   *zerolog.Logger
}

var _ domain.SpaceService = (*SpaceService)(nil)

// NewSpaceService builds the registry. geocoder may be nil, then spaces must
// come with coordinates.
func NewSpaceService(store domain.Store, geocoder domain.Geocoder, logger *zerolog.Logger) *SpaceService {
	return &SpaceService{
		store:    store,
		geocoder: geocoder,
		logger:   logger,
	}
}

// AddSpace validates and persists a new ACTIVE space owned by in.ProviderID.
func (s *SpaceService) AddSpace(ctx context.Context, in models.Space) (int64, error) {
	in.Address = strings.TrimSpace(in.Address)
	in.Description = strings.TrimSpace(in.Description)

	if in.Capacity <= 0 {
		return 0, validationErr("capacity must be positive, got %d", in.Capacity)
	}
	if !in.RatePerHour.IsPositive() {
		return 0, validationErr("rate per hour must be positive, got %s", in.RatePerHour)
	}
	if !geo.ValidCoordinates(in.Latitude, in.Longitude) {
		return 0, validationErr("coordinates out of range: %f,%f", in.Latitude, in.Longitude)
	}

	noCoords := in.Latitude == 0 && in.Longitude == 0

	if in.Address == "" {
		if s.geocoder == nil || noCoords {
			return 0, validationErr("address is required")
		}
		// Адрес не задан: восстанавливаем по координатам
		addr, err := s.geocoder.Reverse(ctx, in.Latitude, in.Longitude)
		if err != nil {
			return 0, s.geocodeErr(fmt.Sprintf("%f,%f", in.Latitude, in.Longitude), err)
		}
		in.Address = strings.TrimSpace(addr)
		if in.Address == "" {
			return 0, validationErr("no address found at %f,%f", in.Latitude, in.Longitude)
		}
	}

	// Координаты не заданы: пробуем геокодер
	if noCoords && s.geocoder != nil {
		lat, lon, err := s.resolve(ctx, in.Address)
		if err != nil {
			return 0, err
		}
		in.Latitude, in.Longitude = lat, lon
	}

	in.Status = models.SpaceStatusActive

	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		provider, err := repo.GetUserByID(ctx, in.ProviderID)
		if err != nil {
			return err
		}
		if provider.UserType != models.UserTypeProvider && provider.UserType != models.UserTypeAdmin {
			return fmt.Errorf("%w: user %d is not a provider", domain.ErrForbidden, in.ProviderID)
		}
		return repo.CreateSpace(ctx, &in)
	})
	if err != nil {
		return 0, storeErr(s.logger, fmt.Sprintf("add space for provider %d", in.ProviderID), err)
	}

	s.logger.Info().
		Int64("space_id", in.ID).
		Int64("provider_id", in.ProviderID).
		Str("rate", in.RatePerHour.String()).
		Msg("Parking space added")

	return in.ID, nil
}

// resolve geocodes address and rejects results outside valid coordinates.
func (s *SpaceService) resolve(ctx context.Context, address string) (float64, float64, error) {
	lat, lon, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		return 0, 0, s.geocodeErr(address, err)
	}
	if !geo.ValidCoordinates(lat, lon) {
		s.logger.Warn().Str("address", address).Float64("lat", lat).Float64("lon", lon).Msg("Geocoder returned invalid coordinates")
		return 0, 0, validationErr("address %q resolved to invalid coordinates %f,%f", address, lat, lon)
	}
	return lat, lon, nil
}

func (s *SpaceService) geocodeErr(address string, err error) error {
	if errors.Is(err, geo.ErrNoResult) {
		return validationErr("address %q could not be located", address)
	}
	s.logger.Warn().Err(err).Str("address", address).Msg("Geocoding failed")
	return fmt.Errorf("%w: geocode address", domain.ErrRetryable)
}

func (s *SpaceService) GetSpace(ctx context.Context, id int64) (*models.Space, error) {
	space, err := s.store.GetSpace(ctx, id)
	if err != nil {
		return nil, storeErr(s.logger, fmt.Sprintf("get space %d", id), err)
	}
	return space, nil
}

// ListSpaces returns a snapshot of spaces matching the filter. With Near set
// only spaces within RadiusKm are returned, nearest first. An Address without
// Near is geocoded into the search point.
func (s *SpaceService) ListSpaces(ctx context.Context, filter models.SpaceFilter) ([]*models.SpaceDistance, error) {
	filter.Address = strings.TrimSpace(filter.Address)
	if filter.Near == nil && filter.Address != "" {
		if s.geocoder == nil {
			return nil, validationErr("address search is not available, pass coordinates")
		}
		lat, lon, err := s.resolve(ctx, filter.Address)
		if err != nil {
			return nil, err
		}
		filter.Near = &models.GeoPoint{Latitude: lat, Longitude: lon}
	}

	if filter.Near != nil {
		if !geo.ValidCoordinates(filter.Near.Latitude, filter.Near.Longitude) {
			return nil, validationErr("search point out of range")
		}
		if filter.RadiusKm < 0 {
			return nil, validationErr("radius must not be negative")
		}
		if filter.RadiusKm == 0 {
			filter.RadiusKm = models.DefaultSearchRadiusKm
		}
	}

	spaces, err := s.store.ListSpaces(ctx, filter.ProviderID, filter.OnlyActive)
	if err != nil {
		return nil, storeErr(s.logger, "list spaces", err)
	}

	result := make([]*models.SpaceDistance, 0, len(spaces))
	for _, space := range spaces {
		item := &models.SpaceDistance{Space: *space}
		if filter.Near != nil {
			item.DistanceKm = geo.Distance(filter.Near.Latitude, filter.Near.Longitude, space.Latitude, space.Longitude)
			if item.DistanceKm > filter.RadiusKm {
				continue
			}
		}
		result = append(result, item)
	}

	if filter.Near != nil {
		sort.SliceStable(result, func(i, j int) bool {
			return result[i].DistanceKm < result[j].DistanceKm
		})
	}
	return result, nil
}

// ComputeOccupancy counts PENDING, ACCEPTED and ACTIVE requests against capacity.
func (s *SpaceService) ComputeOccupancy(ctx context.Context, spaceID int64) (*models.Occupancy, error) {
	op := fmt.Sprintf("compute occupancy of space %d", spaceID)

	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, storeErr(s.logger, op, err)
	}
	occupied, err := s.store.CountOpenRequests(ctx, spaceID)
	if err != nil {
		return nil, storeErr(s.logger, op, err)
	}

	available := space.Capacity - occupied
	if available < 0 {
		available = 0
	}
	return &models.Occupancy{
		SpaceID:   spaceID,
		Capacity:  space.Capacity,
		Occupied:  occupied,
		Available: available,
	}, nil
}

func (s *SpaceService) UpdateRate(ctx context.Context, providerID, spaceID int64, rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return validationErr("rate per hour must be positive, got %s", rate)
	}
	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		if _, err := ownedSpace(ctx, repo, providerID, spaceID); err != nil {
			return err
		}
		return repo.UpdateSpaceRate(ctx, spaceID, rate)
	})
	return storeErr(s.logger, fmt.Sprintf("update rate of space %d", spaceID), err)
}

func (s *SpaceService) SetStatus(ctx context.Context, providerID, spaceID int64, status string) error {
	if status != models.SpaceStatusActive && status != models.SpaceStatusInactive {
		return validationErr("unknown space status %q", status)
	}
	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		if _, err := ownedSpace(ctx, repo, providerID, spaceID); err != nil {
			return err
		}
		return repo.UpdateSpaceStatus(ctx, spaceID, status)
	})
	return storeErr(s.logger, fmt.Sprintf("set status of space %d", spaceID), err)
}

// DeleteSpace removes a space that no request has ever referenced.
func (s *SpaceService) DeleteSpace(ctx context.Context, providerID, spaceID int64) error {
	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		if _, err := ownedSpace(ctx, repo, providerID, spaceID); err != nil {
			return err
		}
		count, err := repo.CountSpaceRequests(ctx, spaceID)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: space %d has %d requests", domain.ErrConflict, spaceID, count)
		}
		return repo.DeleteSpace(ctx, spaceID)
	})
	return storeErr(s.logger, fmt.Sprintf("delete space %d", spaceID), err)
}

func ownedSpace(ctx context.Context, repo domain.Repository, providerID, spaceID int64) (*models.Space, error) {
	space, err := repo.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if space.ProviderID != providerID {
		return nil, fmt.Errorf("%w: space %d belongs to another provider", domain.ErrForbidden, spaceID)
	}
	return space, nil
}
