package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"parkingnear/internal/config"
	"parkingnear/internal/domain"
	"parkingnear/internal/metrics"
	"parkingnear/internal/models"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

const (
	apiPrefix       = "/api/v1"
	healthPath      = apiPrefix + "/healthz"
	requestIDHeader = "X-Request-ID"
)

// StatementExporter builds a provider's bill statement file.
type StatementExporter interface {
	ProviderStatement(ctx context.Context, providerID int64, dir string) (string, error)
}

// NotificationLister reads the notification outbox.
type NotificationLister interface {
	ListUserNotifications(ctx context.Context, userID int64) ([]models.Notification, error)
	GetFailedNotifications(ctx context.Context) ([]models.Notification, error)
}

// DeadLetterLister reads notifications that ran out of retries.
type DeadLetterLister interface {
	List(ctx context.Context, limit int64) ([]models.Notification, error)
}

// Services bundles what the handlers call into.
type Services struct {
	Spaces        domain.SpaceService
	Requests      domain.RequestService
	Billing       domain.BillingService
	Payments      domain.PaymentService
	Users         domain.UserService
	Exporter      StatementExporter
	Notifications NotificationLister
	DeadLetters   DeadLetterLister
	ExportDir     string
}

// HTTPServer exposes the booking and billing operations as JSON over HTTP.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	server *http.Server
	auth   *HTTPAuth
	logger zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}

	srv := &HTTPServer{
		cfg:    cfg,
		svc:    svc,
		auth:   NewHTTPAuth(cfg),
		logger: base,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) routes() http.Handler {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.handle(router, http.MethodGet, "/healthz", s.handleHealth)

	s.handle(router, http.MethodPost, "/users", s.handleRegister)
	s.handle(router, http.MethodPost, "/auth/verify", s.handleVerify)
	s.handle(router, http.MethodGet, "/users/:id", s.handleGetUser)
	s.handle(router, http.MethodPut, "/users/:id/telegram", s.handleSetTelegram)
	s.handle(router, http.MethodGet, "/users/:id/requests", s.handleUserRequests)
	s.handle(router, http.MethodGet, "/users/:id/current", s.handleCurrentBooking)
	s.handle(router, http.MethodGet, "/users/:id/bills", s.handlePendingBills)
	s.handle(router, http.MethodGet, "/users/:id/payments", s.handleListPayments)
	s.handle(router, http.MethodGet, "/users/:id/notifications", s.handleUserNotifications)
	s.handle(router, http.MethodGet, "/notifications/failed", s.handleFailedNotifications)
	s.handle(router, http.MethodGet, "/notifications/dead", s.handleDeadLetters)

	s.handle(router, http.MethodPost, "/spaces", s.handleAddSpace)
	s.handle(router, http.MethodGet, "/spaces", s.handleListSpaces)
	s.handle(router, http.MethodGet, "/spaces/:id", s.handleGetSpace)
	s.handle(router, http.MethodDelete, "/spaces/:id", s.handleDeleteSpace)
	s.handle(router, http.MethodGet, "/spaces/:id/occupancy", s.handleOccupancy)
	s.handle(router, http.MethodPut, "/spaces/:id/rate", s.handleUpdateRate)
	s.handle(router, http.MethodPut, "/spaces/:id/status", s.handleSetStatus)

	s.handle(router, http.MethodPost, "/requests", s.handleSubmitRequest)
	s.handle(router, http.MethodGet, "/requests/:id", s.handleGetRequest)
	s.handle(router, http.MethodPost, "/requests/:id/decision", s.handleDecide)
	s.handle(router, http.MethodPost, "/requests/:id/park", s.handlePark)
	s.handle(router, http.MethodPost, "/requests/:id/unpark", s.handleUnpark)
	s.handle(router, http.MethodGet, "/requests/:id/bill", s.handleBillByRequest)

	s.handle(router, http.MethodGet, "/providers/:id/requests", s.handleProviderRequests)
	s.handle(router, http.MethodGet, "/providers/:id/unbilled", s.handleUnbilled)
	s.handle(router, http.MethodGet, "/providers/:id/bills", s.handleProviderBills)
	s.handle(router, http.MethodGet, "/providers/:id/statement", s.handleStatement)

	s.handle(router, http.MethodGet, "/charge", s.handleCharge)
	s.handle(router, http.MethodPost, "/bills", s.handleGenerateBill)
	s.handle(router, http.MethodGet, "/bills/:id", s.handleGetBill)
	s.handle(router, http.MethodPost, "/bills/:id/payments", s.handleProcessPayment)
	s.handle(router, http.MethodPost, "/bills/:id/mark-paid", s.handleMarkPaid)

	return s.requestID(s.auth.Wrap(router))
}

// handle registers h and records its status under the route pattern.
func (s *HTTPServer) handle(router *httprouter.Router, method, path string, h httprouter.Handle) {
	route := method + " " + apiPrefix + path
	router.Handle(method, apiPrefix+path, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(recorder, r, ps)

		metrics.IncHTTP(route, strconv.Itoa(recorder.status))
		s.logger.Info().
			Str("request_id", w.Header().Get(requestIDHeader)).
			Str("route", route).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
