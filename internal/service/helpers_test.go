package service

import (
	"context"
	"testing"

	"parkingnear/internal/database"
	"parkingnear/internal/events"
	"parkingnear/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	db       *database.DB
	bus      *events.EventBus
	spaces   *SpaceService
	requests *RequestService
	billing  *BillingService
	payments *PaymentService
	users    *UserService

	providerID int64
	userID     int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := events.NewEventBus()
	env := &testEnv{
		db:       db,
		bus:      bus,
		spaces:   NewSpaceService(db, nil, &logger),
		requests: NewRequestService(db, bus, &logger),
		billing:  NewBillingService(db, bus, 7, &logger),
		payments: NewPaymentService(db, bus, &logger),
		users:    NewUserService(db, &logger),
	}
	env.users.bcryptCost = bcrypt.MinCost

	env.providerID = env.createUser(t, "provider", models.UserTypeProvider)
	env.userID = env.createUser(t, "driver", models.UserTypeUser)
	return env
}

func (e *testEnv) createUser(t *testing.T, username, userType string) int64 {
	t.Helper()
	user := &models.User{Username: username, PasswordHash: "x", FullName: username, UserType: userType}
	require.NoError(t, e.db.CreateUser(context.Background(), user))
	return user.ID
}

func (e *testEnv) addSpace(t *testing.T, capacity int64, rate string) int64 {
	t.Helper()
	id, err := e.spaces.AddSpace(context.Background(), models.Space{
		ProviderID:  e.providerID,
		Address:     "12 MG Road, Pune",
		Latitude:    18.5204,
		Longitude:   73.8567,
		Capacity:    capacity,
		RatePerHour: decimal.RequireFromString(rate),
	})
	require.NoError(t, err)
	return id
}

// completedRequest drives a fresh request from submission to COMPLETED.
func (e *testEnv) completedRequest(t *testing.T, spaceID int64, hours string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := e.requests.SubmitRequest(ctx, e.userID, spaceID, "MH12AB1234")
	require.NoError(t, err)
	require.NoError(t, e.requests.DecideRequest(ctx, id, models.RequestStatusAccepted))
	require.NoError(t, e.requests.Park(ctx, id))
	d := decimal.RequireFromString(hours)
	require.NoError(t, e.requests.Unpark(ctx, id, &d))
	return id
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
