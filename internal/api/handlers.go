package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"parkingnear/internal/domain"
	"parkingnear/internal/models"

	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"
)

type idResponse struct {
	ID int64 `json:"id"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Users

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
		UserType string `json:"user_type"`
	}
	if err := readJSON(w, r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}

	id, err := s.svc.Users.Register(r.Context(), body.Username, body.Password, body.FullName, body.UserType)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *HTTPServer) handleVerify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}

	user, err := s.svc.Users.Verify(r.Context(), body.Username, body.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	user, err := s.svc.Users.GetUser(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleSetTelegram(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var body struct {
		ChatID int64 `json:"chat_id"`
	}
	if err := readJSON(w, r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.svc.Users.SetTelegramChat(r.Context(), id, body.ChatID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Spaces

func (s *HTTPServer) handleAddSpace(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		ProviderID  int64           `json:"provider_id"`
		Address     string          `json:"address"`
		Latitude    float64         `json:"latitude"`
		Longitude   float64         `json:"longitude"`
		Capacity    int64           `json:"capacity"`
		RatePerHour decimal.Decimal `json:"rate_per_hour"`
		Description string          `json:"description"`
	}
	if err := readJSON(w, r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}

	id, err := s.svc.Spaces.AddSpace(r.Context(), models.Space{
		ProviderID:  body.ProviderID,
		Address:     body.Address,
		Latitude:    body.Latitude,
		Longitude:   body.Longitude,
		Capacity:    body.Capacity,
		RatePerHour: body.RatePerHour,
		Description: body.Description,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *HTTPServer) handleListSpaces(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var filter models.SpaceFilter
	var err error

	if filter.ProviderID, err = queryInt64(r, "provider_id"); err != nil {
		s.writeServiceError(w, err)
		return
	}
	lat, hasLat, err := queryFloat(r, "lat")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	lon, hasLon, err := queryFloat(r, "lon")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if hasLat != hasLon {
		s.writeServiceError(w, fmt.Errorf("%w: lat and lon go together", domain.ErrValidation))
		return
	}
	if hasLat {
		filter.Near = &models.GeoPoint{Latitude: lat, Longitude: lon}
	}
	filter.Address = r.URL.Query().Get("address")
	if filter.RadiusKm, _, err = queryFloat(r, "radius_km"); err != nil {
		s.writeServiceError(w, err)
		return
	}
	filter.OnlyActive = r.URL.Query().Get("active") == "true"

	spaces, err := s.svc.Spaces.ListSpaces(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"spaces": spaces})
}

func (s *HTTPServer) handleGetSpace(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	space, err := s.svc.Spaces.GetSpace(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, space)
}

func (s *HTTPServer) handleOccupancy(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	occ, err := s.svc.Spaces.ComputeOccupancy(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, occ)
}

func (s *HTTPServer) handleUpdateRate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var body struct {
		ProviderID  int64           `json:"provider_id"`
		RatePerHour decimal.Decimal `json:"rate_per_hour"`
	}
	if err := readJSON(w, r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.svc.Spaces.UpdateRate(r.Context(), body.ProviderID, id, body.RatePerHour); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSetStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var body struct {
		ProviderID int64  `json:"provider_id"`
		Status     string `json:"status"`
	}
	if err := readJSON(w, r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.svc.Spaces.SetStatus(r.Context(), body.ProviderID, id, body.Status); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleDeleteSpace(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	providerID, err := queryInt64(r, "provider_id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.svc.Spaces.DeleteSpace(r.Context(), providerID, id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Requests

func (s *HTTPServer) handleSubmitRequest(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		UserID        int64  `json:"user_id"`
		SpaceID       int64  `json:"space_id"`
		VehicleNumber string `json:"vehicle_number"`
	}
	if err := readJSON(w, r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}

	id, err := s.svc.Requests.SubmitRequest(r.Context(), body.UserID, body.SpaceID, body.VehicleNumber)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *HTTPServer) handleGetRequest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	req, err := s.svc.Requests.GetRequest(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *HTTPServer) handleDecide(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var body struct {
		ProviderID int64  `json:"provider_id"`
		Decision   string `json:"decision"`
	}
	if err := readJSON(w, r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}

	if body.ProviderID != 0 {
		err = s.svc.Requests.DecideRequestAs(r.Context(), body.ProviderID, id, body.Decision)
	} else {
		err = s.svc.Requests.DecideRequest(r.Context(), id, body.Decision)
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handlePark(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.svc.Requests.Park(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleUnpark(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var body struct {
		DurationHours *decimal.Decimal `json:"duration_hours"`
	}
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &body); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	if err := s.svc.Requests.Unpark(r.Context(), id, body.DurationHours); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleUserRequests(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	list, err := s.svc.Requests.ListUserRequests(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": list})
}

func (s *HTTPServer) handleCurrentBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	view, err := s.svc.Requests.CurrentBooking(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleProviderRequests(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	list, err := s.svc.Requests.ListProviderRequests(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": list})
}

func (s *HTTPServer) handleUnbilled(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	list, err := s.svc.Requests.ListUnbilledCompleted(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": list})
}

// Billing

func (s *HTTPServer) handleCharge(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	duration, err := decimal.NewFromString(q.Get("duration_hours"))
	if err != nil {
		s.writeServiceError(w, fmt.Errorf("%w: invalid duration_hours", domain.ErrValidation))
		return
	}
	rate, err := decimal.NewFromString(q.Get("rate"))
	if err != nil {
		s.writeServiceError(w, fmt.Errorf("%w: invalid rate", domain.ErrValidation))
		return
	}

	charge, err := s.svc.Billing.CalculateCharge(duration, rate)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"amount": charge})
}

func (s *HTTPServer) handleGenerateBill(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		RequestID int64            `json:"request_id"`
		Amount    *decimal.Decimal `json:"amount"`
	}
	if err := readJSON(w, r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}

	id, err := s.svc.Billing.GenerateBill(r.Context(), body.RequestID, body.Amount)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *HTTPServer) handleGetBill(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	bill, err := s.svc.Billing.GetBill(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *HTTPServer) handleBillByRequest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	bill, err := s.svc.Billing.GetBillByRequest(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *HTTPServer) handlePendingBills(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	bills, err := s.svc.Billing.ListPendingBills(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bills": bills})
}

func (s *HTTPServer) handleProviderBills(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	bills, err := s.svc.Billing.ListProviderBills(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bills": bills})
}

func (s *HTTPServer) handleStatement(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if s.svc.Exporter == nil {
		writeError(w, http.StatusNotFound, "exports are disabled")
		return
	}

	path, err := s.svc.Exporter.ProviderStatement(r.Context(), id, s.svc.ExportDir)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// Payments

func (s *HTTPServer) handleProcessPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var body struct {
		UserID int64           `json:"user_id"`
		Amount decimal.Decimal `json:"amount"`
		Method string          `json:"payment_method"`
	}
	if err := readJSON(w, r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}

	paymentID, err := s.svc.Payments.ProcessPayment(r.Context(), id, body.UserID, body.Amount, body.Method)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: paymentID})
}

func (s *HTTPServer) handleMarkPaid(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var body struct {
		ProviderID int64           `json:"provider_id"`
		AmountPaid decimal.Decimal `json:"amount_paid"`
	}
	if err := readJSON(w, r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}

	if body.ProviderID != 0 {
		err = s.svc.Payments.MarkPaidExternallyAs(r.Context(), body.ProviderID, id, body.AmountPaid)
	} else {
		err = s.svc.Payments.MarkPaidExternally(r.Context(), id, body.AmountPaid)
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListPayments(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	payments, err := s.svc.Payments.ListPayments(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (s *HTTPServer) handleUserNotifications(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := idParam(ps)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	list, err := s.svc.Notifications.ListUserNotifications(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *HTTPServer) handleFailedNotifications(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	list, err := s.svc.Notifications.GetFailedNotifications(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

// handleDeadLetters lists the redis dead-letter queue, empty when redis is off.
func (s *HTTPServer) handleDeadLetters(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, err := queryInt64(r, "limit")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if limit <= 0 {
		limit = 100
	}
	list := []models.Notification{}
	if s.svc.DeadLetters != nil {
		list, err = s.svc.DeadLetters.List(r.Context(), limit)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}
