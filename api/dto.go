/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

ENVELOPE:
  Every response is wrapped:
    {"success": true,  "data": {...},                        "message": "..."}
    {"success": false, "data": {"error": "...", "code": ...}, "message": "..."}

VALIDATION:
  Request types carry go-playground/validator tags. Handlers call
  h.decode, which unmarshals and validates in one step. Money and duration
  rules (price and amount bounds, positive top-up, duration range) are
  enforced by the engine so every transport gets them. The reservation
  duration is parsed on its own so a non-numeric value reports
  invalid_duration.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/layout.go: LayoutJSON type
*/
package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/parking-engine/engine"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope wraps every response body.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// ErrorResponse is the data of a failed response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// SLOTS
// =============================================================================

type SlotDTO struct {
	ID           string       `json:"id"`
	Number       string       `json:"number"`
	Floor        int          `json:"floor"`
	Zone         string       `json:"zone"`
	Type         string       `json:"type"`
	PricePerHour engine.Money `json:"price_per_hour"`
	Available    bool         `json:"available"`
	CreatedAt    string       `json:"created_at,omitempty"`
}

type CreateSlotRequest struct {
	Number       string       `json:"number" validate:"required,max=32"`
	Floor        int          `json:"floor" validate:"gte=-10,lte=200"`
	Zone         string       `json:"zone" validate:"required,max=16"`
	Type         string       `json:"type" validate:"omitempty,oneof=regular handicap vip electric"`
	PricePerHour engine.Money `json:"price_per_hour"`
}

// =============================================================================
// USERS
// =============================================================================

type UserDTO struct {
	ID            string       `json:"id"`
	Username      string       `json:"username"`
	Email         string       `json:"email,omitempty"`
	Phone         string       `json:"phone,omitempty"`
	VehicleNumber string       `json:"vehicle_number,omitempty"`
	Balance       engine.Money `json:"balance"`
	CreatedAt     string       `json:"created_at,omitempty"`
}

type CreateUserRequest struct {
	Username       string       `json:"username" validate:"required,min=3,max=50"`
	Email          string       `json:"email" validate:"omitempty,email"`
	Phone          string       `json:"phone" validate:"omitempty,max=20"`
	VehicleNumber  string       `json:"vehicle_number" validate:"omitempty,max=20"`
	InitialBalance engine.Money `json:"initial_balance"`
}

type TopUpRequest struct {
	Amount engine.Money `json:"amount"`
}

// BalanceDTO shows a wallet in both supported currencies.
type BalanceDTO struct {
	USD             engine.Money `json:"balance_usd"`
	INR             engine.Money `json:"balance_inr"`
	DisplayCurrency string       `json:"display_currency"`
	DisplayBalance  engine.Money `json:"display_balance"`
}

// UserProfileDTO is the user detail view.
type UserProfileDTO struct {
	User               UserDTO          `json:"user"`
	Balance            BalanceDTO       `json:"balance"`
	Reservations       []ReservationDTO `json:"reservations"`
	ActiveReservations int              `json:"active_reservations"`
	TotalSpent         engine.Money     `json:"total_spent"`
}

// =============================================================================
// RESERVATIONS
// =============================================================================

type CreateReservationRequest struct {
	UserID   string          `json:"user_id" validate:"required"`
	SlotID   string          `json:"slot_id" validate:"required"`
	Duration json.RawMessage `json:"duration"` // hours, number or numeric string
}

// Hours parses Duration. Anything that is not a number of hours is an
// invalid duration rather than a malformed body.
func (r CreateReservationRequest) Hours() (decimal.Decimal, error) {
	raw := strings.TrimSpace(string(r.Duration))
	if raw == "" || raw == "null" {
		return decimal.Zero, fmt.Errorf("%w: duration is required", engine.ErrInvalidDuration)
	}
	hours, err := decimal.NewFromString(strings.Trim(raw, `"`))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s is not a number of hours", engine.ErrInvalidDuration, raw)
	}
	return hours, nil
}

type ReservationDTO struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	SlotID        string       `json:"slot_id"`
	StartTime     string       `json:"start_time"`
	EndTime       *string      `json:"end_time,omitempty"`
	DueAt         string       `json:"due_at"`
	DurationHours float64      `json:"duration_hours"`
	TotalAmount   engine.Money `json:"total_amount"`
	PaymentStatus string       `json:"payment_status"`
	Status        string       `json:"status"`
}

type PaymentDTO struct {
	ID             string       `json:"id"`
	ReservationID  string       `json:"reservation_id"`
	UserID         string       `json:"user_id"`
	Amount         engine.Money `json:"amount"`
	Method         string       `json:"method"`
	TransactionRef string       `json:"transaction_ref"`
	Status         string       `json:"status"`
	CreatedAt      string       `json:"created_at"`
}

// ReserveResponse is returned by POST /api/reservations.
type ReserveResponse struct {
	Reservation ReservationDTO `json:"reservation"`
	Payment     PaymentDTO     `json:"payment"`
	State       string         `json:"state"`
}

// =============================================================================
// WALLET / ADMIN
// =============================================================================

type WalletEntryDTO struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Kind        string       `json:"kind"`
	Amount      engine.Money `json:"amount"`
	ReferenceID string       `json:"reference_id,omitempty"`
	CreatedAt   string       `json:"created_at"`
}

type ExpireResponse struct {
	Ended int `json:"ended"`
}

type LayoutResponse struct {
	Name    string    `json:"name,omitempty"`
	Created []SlotDTO `json:"created"`
}

// =============================================================================
// ANALYTICS
// =============================================================================

// AnalyticsResponse is returned by GET /api/analytics.
type AnalyticsResponse struct {
	Report     engine.Report           `json:"report"`
	PeakDemand []engine.DemandForecast `json:"peak_demand"`
	Revenue    engine.RevenueReport    `json:"revenue"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toSlotDTO(s engine.Slot) SlotDTO {
	return SlotDTO{
		ID:           string(s.ID),
		Number:       s.Number,
		Floor:        s.Floor,
		Zone:         s.Zone,
		Type:         string(s.Type),
		PricePerHour: s.PricePerHour,
		Available:    s.Available,
		CreatedAt:    formatTime(s.CreatedAt),
	}
}

func toSlotDTOs(slots []engine.Slot) []SlotDTO {
	dtos := make([]SlotDTO, len(slots))
	for i, s := range slots {
		dtos[i] = toSlotDTO(s)
	}
	return dtos
}

func toUserDTO(u engine.User) UserDTO {
	return UserDTO{
		ID:            string(u.ID),
		Username:      u.Username,
		Email:         u.Email,
		Phone:         u.Phone,
		VehicleNumber: u.VehicleNumber,
		Balance:       u.Balance,
		CreatedAt:     formatTime(u.CreatedAt),
	}
}

func toReservationDTO(r engine.Reservation) ReservationDTO {
	dto := ReservationDTO{
		ID:            string(r.ID),
		UserID:        string(r.UserID),
		SlotID:        string(r.SlotID),
		StartTime:     formatTime(r.StartTime),
		DueAt:         formatTime(r.DueAt()),
		DurationHours: r.DurationHours.InexactFloat64(),
		TotalAmount:   r.TotalAmount,
		PaymentStatus: string(r.PaymentStatus),
		Status:        string(r.Status),
	}
	if r.EndTime != nil {
		end := formatTime(*r.EndTime)
		dto.EndTime = &end
	}
	return dto
}

func toReservationDTOs(list []engine.Reservation) []ReservationDTO {
	dtos := make([]ReservationDTO, len(list))
	for i, r := range list {
		dtos[i] = toReservationDTO(r)
	}
	return dtos
}

func toPaymentDTO(p engine.Payment) PaymentDTO {
	return PaymentDTO{
		ID:             string(p.ID),
		ReservationID:  string(p.ReservationID),
		UserID:         string(p.UserID),
		Amount:         p.Amount,
		Method:         p.Method,
		TransactionRef: p.TransactionRef,
		Status:         string(p.Status),
		CreatedAt:      formatTime(p.CreatedAt),
	}
}

func toWalletEntryDTO(e engine.WalletEntry) WalletEntryDTO {
	return WalletEntryDTO{
		ID:          e.ID,
		UserID:      string(e.UserID),
		Kind:        string(e.Kind),
		Amount:      e.Amount,
		ReferenceID: e.ReferenceID,
		CreatedAt:   formatTime(e.CreatedAt),
	}
}
