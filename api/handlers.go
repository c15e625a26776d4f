/*
handlers.go - HTTP API handlers for the parking reservation engine

PURPOSE:
  Exposes the reservation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to engine.Service.

ENDPOINTS:
  Slots:
    GET    /api/slots                   Search slots (floor, zone, type, max_price, available)
    POST   /api/slots                   Provision one slot
    GET    /api/availability            Occupancy summary

  Users:
    GET    /api/users                   List users
    POST   /api/users                   Register a user with an opening balance
    GET    /api/users/{id}              Profile with USD/INR balance and reservations
    POST   /api/users/{id}/balance      Wallet top-up

  Reservations:
    POST   /api/reservations            Reserve a slot (the transaction engine)
    GET    /api/reservations            List (status, user_id, slot_id, limit)
    POST   /api/reservations/{id}/end   End an active reservation

  Analytics:
    GET    /api/analytics               Report for ?from=&to= (YYYY-MM-DD)

  Admin:
    GET    /api/admin/wallet-transactions  Wallet audit trail
    POST   /api/admin/layout               Provision slots from a JSON layout
    POST   /api/admin/expire               End overdue reservations now
    GET    /api/admin/scheduler            Expiry scheduler status

  Health:
    GET    /api/health                  Store liveness (503 when unreachable)

ERROR HANDLING:
  Engine errors are mapped by writeEngineError:
  - 400: InvalidDuration, InvalidAmount, invalid layout, validation
  - 402: InsufficientFunds
  - 404: NotFound
  - 409: SlotUnavailable, NotActive, Duplicate
  - 503: StoreUnavailable
  - 500: anything else

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/parking-engine/cache"
	"github.com/warp/parking-engine/engine"
	"github.com/warp/parking-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// AdminStore is the store surface the admin endpoints need beyond the
// engine: wiping tables for scenarios and a liveness check.
// *sqlite.Store satisfies it.
type AdminStore interface {
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
}

// AnalyticsReader serves the read-heavy analytics endpoints.
// *engine.Service and *cache.Analytics both satisfy it.
type AnalyticsReader interface {
	Report(ctx context.Context, rng engine.Range) (engine.Report, error)
	Summary(ctx context.Context) (engine.AvailabilitySummary, error)
}

// DefaultINRRate is the USD to INR rate used when none is configured.
var DefaultINRRate = decimal.NewFromInt(83)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *engine.Service
	Store     AdminStore
	Layouts   *factory.LayoutFactory
	Analytics AnalyticsReader
	Scheduler *ExpiryScheduler
	INRRate   decimal.Decimal

	cache    *cache.Analytics
	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler reading analytics straight from the service.
func NewHandler(svc *engine.Service, store AdminStore) *Handler {
	return &Handler{
		Service:   svc,
		Store:     store,
		Layouts:   factory.NewLayoutFactory(),
		Analytics: svc,
		INRRate:   DefaultINRRate,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// UseCache routes analytics reads through c and invalidates it after
// provisioning and scenario loads.
func (h *Handler) UseCache(c *cache.Analytics) {
	h.cache = c
	h.Analytics = c
}

func (h *Handler) invalidate(ctx context.Context) {
	if h.cache != nil {
		h.cache.Invalidate(ctx)
	}
}

// =============================================================================
// SLOT HANDLERS
// =============================================================================

// ListSlots searches slots. Only free slots are returned unless
// available=false or available=all.
// GET /api/slots
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSlotFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid slot filter", err)
		return
	}

	slots, err := h.Service.Availability(r.Context(), filter)
	if err != nil {
		writeEngineError(w, "Failed to list slots", err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotDTOs(slots))
}

// CreateSlot provisions a single slot.
// POST /api/slots
func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var req CreateSlotRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	slot, err := h.Service.AddSlot(r.Context(), engine.Slot{
		Number:       req.Number,
		Floor:        req.Floor,
		Zone:         req.Zone,
		Type:         engine.SlotType(req.Type),
		PricePerHour: req.PricePerHour,
	})
	if err != nil {
		writeEngineError(w, "Failed to create slot", err)
		return
	}
	h.invalidate(r.Context())

	writeMessage(w, http.StatusCreated, toSlotDTO(slot), fmt.Sprintf("Slot %s created", slot.Number))
}

// GetAvailability returns the current occupancy summary.
// GET /api/availability
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Analytics.Summary(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to get availability", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users.
// GET /api/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.Users(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser registers a user.
// POST /api/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, err := h.Service.Register(r.Context(), engine.User{
		Username:      req.Username,
		Email:         req.Email,
		Phone:         req.Phone,
		VehicleNumber: req.VehicleNumber,
		Balance:       req.InitialBalance,
	})
	if err != nil {
		writeEngineError(w, "Failed to register user", err)
		return
	}

	writeMessage(w, http.StatusCreated, toUserDTO(user), fmt.Sprintf("User %s registered", user.Username))
}

// GetUser returns a user profile. ?currency=INR picks the display currency.
// GET /api/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := engine.UserID(chi.URLParam(r, "id"))

	currency := strings.ToUpper(r.URL.Query().Get("currency"))
	if currency == "" {
		currency = "USD"
	}
	if currency != "USD" && currency != "INR" {
		writeError(w, http.StatusBadRequest, "Invalid currency", fmt.Errorf("currency must be USD or INR, got %q", currency))
		return
	}

	user, err := h.Service.User(ctx, id)
	if err != nil {
		writeEngineError(w, "Failed to get user", err)
		return
	}

	reservations, err := h.Service.ListReservations(ctx, engine.ReservationFilter{UserID: &id})
	if err != nil {
		writeEngineError(w, "Failed to list reservations", err)
		return
	}
	payments, err := h.Service.Payments(ctx, engine.PaymentFilter{UserID: &id})
	if err != nil {
		writeEngineError(w, "Failed to list payments", err)
		return
	}

	profile := UserProfileDTO{
		User:         toUserDTO(user),
		Balance:      h.balanceDTO(user.Balance, currency),
		Reservations: toReservationDTOs(reservations),
	}
	for _, res := range reservations {
		if res.Status == engine.ReservationActive {
			profile.ActiveReservations++
		}
	}
	for _, p := range payments {
		if p.Status == engine.PaymentCompleted {
			profile.TotalSpent = profile.TotalSpent.Add(p.Amount)
		}
	}

	writeJSON(w, http.StatusOK, profile)
}

// TopUp adds funds to a wallet.
// POST /api/users/{id}/balance
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	var req TopUpRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, err := h.Service.TopUp(r.Context(), engine.UserID(chi.URLParam(r, "id")), req.Amount)
	if err != nil {
		writeEngineError(w, "Failed to add balance", err)
		return
	}

	writeMessage(w, http.StatusOK, toUserDTO(user), fmt.Sprintf("Added %s to wallet", req.Amount))
}

func (h *Handler) balanceDTO(usd engine.Money, currency string) BalanceDTO {
	b := BalanceDTO{
		USD:             usd,
		INR:             usd.Convert(h.INRRate),
		DisplayCurrency: currency,
	}
	b.DisplayBalance = b.USD
	if currency == "INR" {
		b.DisplayBalance = b.INR
	}
	return b
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// CreateReservation runs the reservation workflow.
// POST /api/reservations
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	hours, err := req.Hours()
	if err != nil {
		writeEngineError(w, "Reservation failed", err)
		return
	}

	out, err := h.Service.Reserve(r.Context(), engine.ReserveRequest{
		UserID:        engine.UserID(req.UserID),
		SlotID:        engine.SlotID(req.SlotID),
		DurationHours: hours,
	})
	if err != nil {
		writeEngineError(w, "Reservation failed", err)
		return
	}

	writeMessage(w, http.StatusCreated, ReserveResponse{
		Reservation: toReservationDTO(out.Reservation),
		Payment:     toPaymentDTO(out.Payment),
		State:       string(out.State),
	}, fmt.Sprintf("Reservation confirmed, charged %s", out.Reservation.TotalAmount))
}

// EndReservation completes an active reservation.
// POST /api/reservations/{id}/end
func (h *Handler) EndReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.EndReservation(r.Context(), engine.ReservationID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to end reservation", err)
		return
	}
	writeMessage(w, http.StatusOK, toReservationDTO(res), "Reservation ended")
}

// ListReservations lists reservations, newest first.
// GET /api/reservations
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseReservationFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reservation filter", err)
		return
	}

	list, err := h.Service.ListReservations(r.Context(), filter)
	if err != nil {
		writeEngineError(w, "Failed to list reservations", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTOs(list))
}

// =============================================================================
// ANALYTICS HANDLERS
// =============================================================================

// GetAnalytics returns the report for a date range plus demand and revenue.
// GET /api/analytics?from=2025-03-01&to=2025-03-31
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rng, err := parseRange(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	report, err := h.Analytics.Report(ctx, rng)
	if err != nil {
		writeEngineError(w, "Failed to build report", err)
		return
	}
	peak, err := h.Service.Analytics.PeakDemand(ctx, rng, 5)
	if err != nil {
		writeEngineError(w, "Failed to predict demand", err)
		return
	}
	revenue, err := h.Service.Analytics.Revenue(ctx, rng)
	if err != nil {
		writeEngineError(w, "Failed to build revenue report", err)
		return
	}

	writeJSON(w, http.StatusOK, AnalyticsResponse{Report: report, PeakDemand: peak, Revenue: revenue})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ListWalletTransactions returns the wallet audit trail.
// GET /api/admin/wallet-transactions?user_id=&limit=
func (h *Handler) ListWalletTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := engine.WalletEntryFilter{Limit: 100}
	if v := q.Get("user_id"); v != "" {
		id := engine.UserID(v)
		filter.UserID = &id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", fmt.Errorf("limit must be a positive integer, got %q", v))
			return
		}
		filter.Limit = n
	}

	entries, err := h.Service.WalletHistory(r.Context(), filter)
	if err != nil {
		writeEngineError(w, "Failed to list wallet transactions", err)
		return
	}

	dtos := make([]WalletEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toWalletEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApplyLayout provisions every slot in a JSON layout, all or nothing.
// POST /api/admin/layout
func (h *Handler) ApplyLayout(w http.ResponseWriter, r *http.Request) {
	var lj factory.LayoutJSON
	if err := json.NewDecoder(r.Body).Decode(&lj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	slots, err := h.Layouts.FromJSON(lj)
	if err != nil {
		writeEngineError(w, "Invalid layout", err)
		return
	}

	created, err := h.Service.AddSlots(r.Context(), slots)
	if err != nil {
		writeEngineError(w, "Failed to provision layout", err)
		return
	}
	h.invalidate(r.Context())

	writeMessage(w, http.StatusCreated, LayoutResponse{Name: lj.Name, Created: toSlotDTOs(created)},
		fmt.Sprintf("Provisioned %d slots", len(created)))
}

// ExpireOverdue ends every reservation whose booked time has run out.
// POST /api/admin/expire
func (h *Handler) ExpireOverdue(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.ExpireOverdue(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to expire reservations", err)
		return
	}
	writeMessage(w, http.StatusOK, ExpireResponse{Ended: n}, fmt.Sprintf("Ended %d overdue reservations", n))
}

// GetSchedulerStatus reports the last expiry sweep.
// GET /api/admin/scheduler
func (h *Handler) GetSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeJSON(w, http.StatusOK, SchedulerStatus{})
		return
	}
	writeJSON(w, http.StatusOK, h.Scheduler.Status())
}

// Health reports whether the store answers.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeEngineError(w, "Store unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeEngineError(w, "Failed to reset database", err)
		return
	}
	h.invalidate(r.Context())

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeMessage(w, http.StatusOK, map[string]string{"status": "ok"}, "Database reset")
}

// =============================================================================
// QUERY PARSING
// =============================================================================

func parseSlotFilter(q url.Values) (engine.SlotFilter, error) {
	filter := engine.SlotFilter{OnlyAvailable: true}

	switch v := strings.ToLower(q.Get("available")); v {
	case "", "true":
	case "false", "all":
		filter.OnlyAvailable = false
	default:
		return filter, fmt.Errorf("available must be true, false or all, got %q", v)
	}

	if v := q.Get("floor"); v != "" {
		floor, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("floor must be an integer, got %q", v)
		}
		filter.Floor = &floor
	}
	if v := q.Get("zone"); v != "" {
		filter.Zone = &v
	}
	if v := q.Get("type"); v != "" {
		t := engine.SlotType(strings.ToLower(v))
		if !t.Valid() {
			return filter, fmt.Errorf("unknown slot type %q", v)
		}
		filter.Type = &t
	}
	if v := q.Get("max_price"); v != "" {
		price, err := engine.ParseMoney(v)
		if err != nil {
			return filter, err
		}
		filter.MaxPrice = &price
	}
	return filter, nil
}

func parseReservationFilter(q url.Values) (engine.ReservationFilter, error) {
	var filter engine.ReservationFilter

	if v := q.Get("status"); v != "" {
		status := engine.ReservationStatus(strings.ToLower(v))
		switch status {
		case engine.ReservationActive, engine.ReservationCompleted, engine.ReservationCancelled:
			filter.Status = &status
		default:
			return filter, fmt.Errorf("unknown reservation status %q", v)
		}
	}
	if v := q.Get("user_id"); v != "" {
		id := engine.UserID(v)
		filter.UserID = &id
	}
	if v := q.Get("slot_id"); v != "" {
		id := engine.SlotID(v)
		filter.SlotID = &id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, fmt.Errorf("limit must be a positive integer, got %q", v)
		}
		filter.Limit = n
	}
	return filter, nil
}

func parseRange(q url.Values) (engine.Range, error) {
	var rng engine.Range
	var err error
	if v := q.Get("from"); v != "" {
		if rng.From, err = time.Parse(engine.DateLayout, v); err != nil {
			return rng, fmt.Errorf("from must be YYYY-MM-DD, got %q", v)
		}
	}
	if v := q.Get("to"); v != "" {
		if rng.To, err = time.Parse(engine.DateLayout, v); err != nil {
			return rng, fmt.Errorf("to must be YYYY-MM-DD, got %q", v)
		}
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && rng.To.Before(rng.From) {
		return rng, fmt.Errorf("to (%s) is before from (%s)", rng.ToDate(), rng.FromDate())
	}
	return rng, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// decode unmarshals the body into dst and validates its struct tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	writeMessage(w, status, data, "Success")
}

func writeMessage(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Success: status < 400, Data: data, Message: message})
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Error = err.Error()
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			resp.Code = "validation"
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			resp.Details = fields
		}
	}
	writeMessage(w, status, resp, message)
}

// writeEngineError maps engine errors to status codes.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	status, code := classify(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var funds *engine.InsufficientFundsError
	if errors.As(err, &funds) {
		resp.Details = map[string]engine.Money{
			"balance":   funds.Balance,
			"requested": funds.Requested,
			"shortfall": funds.Shortfall(),
		}
	}
	var notActive *engine.NotActiveError
	if errors.As(err, &notActive) {
		resp.Details = map[string]string{"status": string(notActive.Status)}
	}

	writeMessage(w, status, resp, message)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrInvalidDuration):
		return http.StatusBadRequest, "invalid_duration"
	case errors.Is(err, engine.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, factory.ErrInvalidLayout):
		return http.StatusBadRequest, "invalid_layout"
	case errors.Is(err, engine.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, engine.ErrSlotUnavailable):
		return http.StatusConflict, "slot_unavailable"
	case errors.Is(err, engine.ErrNotActive):
		return http.StatusConflict, "not_active"
	case errors.Is(err, engine.ErrDuplicate):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, engine.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
