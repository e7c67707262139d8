package models

const (
	SpaceStatusActive   = "ACTIVE"
	SpaceStatusInactive = "INACTIVE"
)

const (
	RequestStatusPending   = "PENDING"
	RequestStatusAccepted  = "ACCEPTED"
	RequestStatusDenied    = "DENIED"
	RequestStatusActive    = "ACTIVE"
	RequestStatusCompleted = "COMPLETED"
)

const (
	BillStatusPending = "PENDING"
	BillStatusPaid    = "PAID"
)

const (
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
	PaymentStatusPending = "PENDING"
)

const (
	PaymentMethodCreditCard = "CREDIT_CARD"
	PaymentMethodDebitCard  = "DEBIT_CARD"
	PaymentMethodUPI        = "UPI"
	PaymentMethodNetBanking = "NET_BANKING"
)

const (
	NotificationTypeRequest = "REQUEST"
	NotificationTypeBill    = "BILL"
	NotificationTypePayment = "PAYMENT"
)

const (
	ParseModeMarkdown = "Markdown"
)

// Outbox row states.
const (
	NotificationPending = "pending"
	NotificationRetry   = "retry"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

const (
	UserTypeUser     = "USER"
	UserTypeProvider = "PROVIDER"
	UserTypeAdmin    = "ADMIN"
)

const (
	// DefaultSearchRadiusKm радиус поиска парковок вокруг точки
	DefaultSearchRadiusKm = 0.5

	// EarthRadiusKm средний радиус Земли для формулы гаверсинуса
	EarthRadiusKm = 6371.0

	// DefaultBillDueDays срок оплаты счета по умолчанию
	DefaultBillDueDays = 7

	// DefaultWatchInterval период опроса статуса текущей заявки
	DefaultWatchInterval = 5 // секунд

	// NotificationBatchSize размер пачки уведомлений за один опрос
	NotificationBatchSize = 20

	// MaxVehicleNumberLength ограничение длины номера автомобиля
	MaxVehicleNumberLength = 20
)

// PaymentMethods lists accepted payment methods.
var PaymentMethods = []string{
	PaymentMethodCreditCard,
	PaymentMethodDebitCard,
	PaymentMethodUPI,
	PaymentMethodNetBanking,
}

func IsPaymentMethod(method string) bool {
	for _, m := range PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

func IsUserType(t string) bool {
	return t == UserTypeUser || t == UserTypeProvider || t == UserTypeAdmin
}
