package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"parkingnear/internal/config"
	"parkingnear/internal/database"
	"parkingnear/internal/events"
	"parkingnear/internal/models"
	"parkingnear/internal/report"
	"parkingnear/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	t  *testing.T
	ts *httptest.Server
}

func newTestAPI(t *testing.T, cfg config.APIConfig) *testAPI {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := events.NewEventBus()
	billing := service.NewBillingService(db, bus, 7, &logger)
	svc := Services{
		Spaces:        service.NewSpaceService(db, nil, &logger),
		Requests:      service.NewRequestService(db, bus, &logger),
		Billing:       billing,
		Payments:      service.NewPaymentService(db, bus, &logger),
		Users:         service.NewUserService(db, &logger),
		Exporter:      report.NewExporter(billing, &logger),
		Notifications: db,
		ExportDir:     t.TempDir(),
	}

	server := NewHTTPServer(cfg, svc, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testAPI{t: t, ts: ts}
}

func (a *testAPI) do(method, path string, body any, headers ...string) *http.Response {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, a.ts.URL+path, reader)
	require.NoError(a.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (a *testAPI) create(path string, body any) int64 {
	a.t.Helper()
	resp := a.do(http.MethodPost, path, body)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode, "POST %s", path)
	var out idResponse
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&out))
	return out.ID
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestBookingToPaymentOverHTTP(t *testing.T) {
	api := newTestAPI(t, config.APIConfig{})

	providerID := api.create("/api/v1/users", map[string]string{
		"username": "provider", "password": "secret1", "full_name": "Asha", "user_type": "PROVIDER",
	})
	userID := api.create("/api/v1/users", map[string]string{
		"username": "driver", "password": "secret1", "full_name": "Ravi", "user_type": "USER",
	})

	spaceID := api.create("/api/v1/spaces", map[string]any{
		"provider_id": providerID, "address": "12 MG Road, Pune",
		"latitude": 18.5204, "longitude": 73.8567, "capacity": 10, "rate_per_hour": "40.00",
	})

	requestID := api.create("/api/v1/requests", map[string]any{
		"user_id": userID, "space_id": spaceID, "vehicle_number": "mh12ab1234",
	})

	resp := api.do(http.MethodPost, fmt.Sprintf("/api/v1/requests/%d/decision", requestID),
		map[string]any{"provider_id": providerID, "decision": "ACCEPTED"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.do(http.MethodPost, fmt.Sprintf("/api/v1/requests/%d/decision", requestID),
		map[string]any{"decision": "DENIED"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = api.do(http.MethodPost, fmt.Sprintf("/api/v1/requests/%d/park", requestID), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.do(http.MethodGet, fmt.Sprintf("/api/v1/users/%d/current", userID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	current := decode[models.RequestView](t, resp)
	assert.Equal(t, models.RequestStatusActive, current.Status)
	assert.Equal(t, "MH12AB1234", current.VehicleNumber)

	resp = api.do(http.MethodPost, fmt.Sprintf("/api/v1/requests/%d/unpark", requestID),
		map[string]any{"duration_hours": "3"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	billID := api.create("/api/v1/bills", map[string]any{"request_id": requestID})

	resp = api.do(http.MethodPost, "/api/v1/bills", map[string]any{"request_id": requestID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = api.do(http.MethodGet, fmt.Sprintf("/api/v1/bills/%d", billID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bill := decode[models.Bill](t, resp)
	assert.Equal(t, "120", bill.Amount.String())
	assert.Equal(t, models.BillStatusPending, bill.Status)

	resp = api.do(http.MethodPost, fmt.Sprintf("/api/v1/bills/%d/payments", billID),
		map[string]any{"user_id": userID, "amount": "100.00", "payment_method": "UPI"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	api.create(fmt.Sprintf("/api/v1/bills/%d/payments", billID),
		map[string]any{"user_id": userID, "amount": "120.00", "payment_method": "UPI"})

	resp = api.do(http.MethodPost, fmt.Sprintf("/api/v1/bills/%d/payments", billID),
		map[string]any{"user_id": userID, "amount": "120.00", "payment_method": "UPI"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = api.do(http.MethodGet, fmt.Sprintf("/api/v1/users/%d/payments", userID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payments := decode[struct {
		Payments []models.Payment `json:"payments"`
	}](t, resp)
	require.Len(t, payments.Payments, 1)
	assert.Equal(t, models.PaymentStatusSuccess, payments.Payments[0].Status)

	resp = api.do(http.MethodGet, fmt.Sprintf("/api/v1/providers/%d/statement", providerID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "statement_provider_")

	resp = api.do(http.MethodGet, fmt.Sprintf("/api/v1/users/%d/notifications", providerID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	notes := decode[struct {
		Notifications []models.Notification `json:"notifications"`
	}](t, resp)
	require.Len(t, notes.Notifications, 2)
	types := []string{notes.Notifications[0].Type, notes.Notifications[1].Type}
	assert.ElementsMatch(t, []string{models.NotificationTypeRequest, models.NotificationTypePayment}, types)

	resp = api.do(http.MethodGet, "/api/v1/notifications/failed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	failed := decode[struct {
		Notifications []models.Notification `json:"notifications"`
	}](t, resp)
	assert.Empty(t, failed.Notifications)
}

func TestSpaceEndpoints(t *testing.T) {
	api := newTestAPI(t, config.APIConfig{})

	providerID := api.create("/api/v1/users", map[string]string{
		"username": "provider", "password": "secret1", "user_type": "PROVIDER",
	})
	near := api.create("/api/v1/spaces", map[string]any{
		"provider_id": providerID, "address": "Near", "latitude": 18.5204, "longitude": 73.8567,
		"capacity": 2, "rate_per_hour": 30,
	})
	api.create("/api/v1/spaces", map[string]any{
		"provider_id": providerID, "address": "Far", "latitude": 19.0760, "longitude": 72.8777,
		"capacity": 2, "rate_per_hour": 30,
	})

	resp := api.do(http.MethodGet, "/api/v1/spaces?lat=18.5210&lon=73.8570&radius_km=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	found := decode[struct {
		Spaces []models.SpaceDistance `json:"spaces"`
	}](t, resp)
	require.Len(t, found.Spaces, 1)
	assert.Equal(t, near, found.Spaces[0].ID)

	resp = api.do(http.MethodGet, "/api/v1/spaces?lat=18.5", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// address search needs a geocoder
	resp = api.do(http.MethodGet, "/api/v1/spaces?address=MG+Road", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(http.MethodPut, fmt.Sprintf("/api/v1/spaces/%d/rate", near),
		map[string]any{"provider_id": providerID + 100, "rate_per_hour": "45.50"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = api.do(http.MethodPut, fmt.Sprintf("/api/v1/spaces/%d/rate", near),
		map[string]any{"provider_id": providerID, "rate_per_hour": "45.50"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.do(http.MethodGet, fmt.Sprintf("/api/v1/spaces/%d/occupancy", near), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	occ := decode[models.Occupancy](t, resp)
	assert.Equal(t, int64(2), occ.Available)

	resp = api.do(http.MethodDelete, fmt.Sprintf("/api/v1/spaces/%d?provider_id=%d", near, providerID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.do(http.MethodGet, fmt.Sprintf("/api/v1/spaces/%d", near), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCharge(t *testing.T) {
	api := newTestAPI(t, config.APIConfig{})

	resp := api.do(http.MethodGet, "/api/v1/charge?duration_hours=1.5167&rate=35.50", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "53.84285", body["amount"])

	resp = api.do(http.MethodGet, "/api/v1/charge?duration_hours=-1&rate=10", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(http.MethodGet, "/api/v1/charge?rate=10", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorResponses(t *testing.T) {
	api := newTestAPI(t, config.APIConfig{})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown bill", http.MethodGet, "/api/v1/bills/999", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/v1/bills/abc", nil, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/requests", map[string]any{"oops": 1}, http.StatusBadRequest},
		{"empty body", http.MethodPost, "/api/v1/bills", nil, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/api/v1/nothing", nil, http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/api/v1/charge", nil, http.StatusMethodNotAllowed},
		{"bad credentials", http.MethodPost, "/api/v1/auth/verify",
			map[string]string{"username": "ghost", "password": "secret1"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	api := newTestAPI(t, config.APIConfig{})

	resp := api.do(http.MethodGet, "/api/v1/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, resp.Header.Get(requestIDHeader), 36)

	resp = api.do(http.MethodGet, "/api/v1/healthz", nil, requestIDHeader, "trace-42")
	assert.Equal(t, "trace-42", resp.Header.Get(requestIDHeader))
}
