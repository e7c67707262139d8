package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Space struct {
	ID          int64           `json:"id"`
	ProviderID  int64           `json:"provider_id"`
	Address     string          `json:"address"`
	Latitude    float64         `json:"latitude"`
	Longitude   float64         `json:"longitude"`
	Capacity    int64           `json:"capacity"`
	RatePerHour decimal.Decimal `json:"rate_per_hour"`
	Description string          `json:"description"`
	Status      string          `json:"status"` // ACTIVE, INACTIVE
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (s *Space) IsActive() bool {
	return s.Status == SpaceStatusActive
}

// Occupancy is a point-in-time view of how many requests hold a space.
type Occupancy struct {
	SpaceID   int64 `json:"space_id"`
	Capacity  int64 `json:"capacity"`
	Occupied  int64 `json:"occupied"`
	Available int64 `json:"available"`
}

// SpaceDistance pairs a space with its distance from a search point.
type SpaceDistance struct {
	Space
	DistanceKm float64 `json:"distance_km"`
}

// SpaceFilter narrows ListSpaces. Zero values mean "no restriction";
// Near or Address enables the radius search.
type SpaceFilter struct {
	ProviderID int64
	Near       *GeoPoint
	Address    string
	RadiusKm   float64
	OnlyActive bool
}

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
