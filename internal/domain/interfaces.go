package domain

import (
	"context"
	"time"

	"parkingnear/internal/models"

	"github.com/shopspring/decimal"
)

// Repository is the data access contract of the engine. Implementations
// return errors wrapping ErrNotFound and ErrConflict where applicable.
type Repository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUserTelegramChat(ctx context.Context, userID, chatID int64) error

	CreateSpace(ctx context.Context, space *models.Space) error
	GetSpace(ctx context.Context, id int64) (*models.Space, error)
	ListSpaces(ctx context.Context, providerID int64, onlyActive bool) ([]*models.Space, error)
	UpdateSpaceRate(ctx context.Context, id int64, rate decimal.Decimal) error
	UpdateSpaceStatus(ctx context.Context, id int64, status string) error
	DeleteSpace(ctx context.Context, id int64) error
	CountSpaceRequests(ctx context.Context, spaceID int64) (int64, error)
	CountOpenRequests(ctx context.Context, spaceID int64) (int64, error)

	CreateRequest(ctx context.Context, req *models.ParkingRequest) error
	GetRequest(ctx context.Context, id int64) (*models.ParkingRequest, error)
	HasOpenRequest(ctx context.Context, userID, spaceID int64) (bool, error)
	TransitionRequest(ctx context.Context, id int64, from, to string, at time.Time) error
	CompleteRequest(ctx context.Context, id int64, duration decimal.Decimal, at time.Time) error
	SetRequestAmountPaid(ctx context.Context, id int64, amount decimal.Decimal) error
	ListUserRequests(ctx context.Context, userID int64) ([]*models.RequestView, error)
	ListProviderRequests(ctx context.Context, providerID int64) ([]*models.RequestView, error)
	GetCurrentRequest(ctx context.Context, userID int64) (*models.RequestView, error)
	ListUnbilledCompleted(ctx context.Context, providerID int64) ([]*models.RequestView, error)

	CreateBill(ctx context.Context, bill *models.Bill) error
	GetBill(ctx context.Context, id int64) (*models.Bill, error)
	GetBillByRequest(ctx context.Context, requestID int64) (*models.Bill, error)
	MarkBillPaid(ctx context.Context, id int64, amountPaid decimal.Decimal, at time.Time) error
	ListPendingBills(ctx context.Context, userID int64) ([]*models.BillView, error)
	ListProviderBills(ctx context.Context, providerID int64) ([]*models.BillView, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	ListUserPayments(ctx context.Context, userID int64) ([]*models.Payment, error)
	CountBillPayments(ctx context.Context, billID int64) (int64, error)

	EnqueueNotification(ctx context.Context, n *models.Notification) error
}

// Store is a Repository that can also run a unit of work. Everything fn does
// through the repository it receives commits or rolls back together.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(repo Repository) error) error
}

// NotificationQueue is the outbox side consumed by the delivery worker.
type NotificationQueue interface {
	GetPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error)
	UpdateNotificationStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Geocoder resolves addresses and coordinates through an external service.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lon float64, err error)
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

type SpaceService interface {
	AddSpace(ctx context.Context, in models.Space) (int64, error)
	GetSpace(ctx context.Context, id int64) (*models.Space, error)
	ListSpaces(ctx context.Context, filter models.SpaceFilter) ([]*models.SpaceDistance, error)
	ComputeOccupancy(ctx context.Context, spaceID int64) (*models.Occupancy, error)
	UpdateRate(ctx context.Context, providerID, spaceID int64, rate decimal.Decimal) error
	SetStatus(ctx context.Context, providerID, spaceID int64, status string) error
	DeleteSpace(ctx context.Context, providerID, spaceID int64) error
}

type RequestService interface {
	SubmitRequest(ctx context.Context, userID, spaceID int64, vehicleNumber string) (int64, error)
	DecideRequest(ctx context.Context, requestID int64, decision string) error
	DecideRequestAs(ctx context.Context, providerID, requestID int64, decision string) error
	Park(ctx context.Context, requestID int64) error
	Unpark(ctx context.Context, requestID int64, durationHours *decimal.Decimal) error
	GetRequest(ctx context.Context, id int64) (*models.ParkingRequest, error)
	ListUserRequests(ctx context.Context, userID int64) ([]*models.RequestView, error)
	ListProviderRequests(ctx context.Context, providerID int64) ([]*models.RequestView, error)
	CurrentBooking(ctx context.Context, userID int64) (*models.RequestView, error)
	ListUnbilledCompleted(ctx context.Context, providerID int64) ([]*models.RequestView, error)
}

type BillingService interface {
	CalculateCharge(duration, rate decimal.Decimal) (decimal.Decimal, error)
	GenerateBill(ctx context.Context, requestID int64, amount *decimal.Decimal) (int64, error)
	GetBill(ctx context.Context, id int64) (*models.Bill, error)
	GetBillByRequest(ctx context.Context, requestID int64) (*models.Bill, error)
	ListPendingBills(ctx context.Context, userID int64) ([]*models.BillView, error)
	ListProviderBills(ctx context.Context, providerID int64) ([]*models.BillView, error)
}

type PaymentService interface {
	ProcessPayment(ctx context.Context, billID, userID int64, amount decimal.Decimal, method string) (int64, error)
	MarkPaidExternally(ctx context.Context, billID int64, amountPaid decimal.Decimal) error
	MarkPaidExternallyAs(ctx context.Context, providerID, billID int64, amountPaid decimal.Decimal) error
	ListPayments(ctx context.Context, userID int64) ([]*models.Payment, error)
}

type UserService interface {
	Register(ctx context.Context, username, password, fullName, userType string) (int64, error)
	Verify(ctx context.Context, username, password string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	SetTelegramChat(ctx context.Context, userID, chatID int64) error
}
