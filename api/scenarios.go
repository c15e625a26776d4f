/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for testing and demos. Each scenario provisions a garage layout,
	registers drivers and books reservations through the real engine, so
	wallets, payments and utilization stats are all consistent.

AVAILABLE SCENARIOS:

	demo-garage:     Six slots over three floors, two drivers, two bookings
	rush-hour:       Twelve slots, ten drivers, most of the garage booked
	low-balance:     A driver whose wallet cannot cover a VIP slot
	contested-slot:  One slot already taken, a second driver waiting for it

HOW SCENARIOS WORK:
 1. Reset store (clear all data)
 2. Provision slots from a JSON layout via the layout factory
 3. Register drivers with opening balances
 4. Book reservations through engine.Service.Reserve

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "demo-garage"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to scenarioLoader

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase handler
  - factory/layout.go: Layout JSON definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/parking-engine/engine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "demo-garage",
		Name:        "Demo Garage",
		Description: "Six slots on three floors, two drivers with active reservations",
		Category:    "basics",
	},
	{
		ID:          "rush-hour",
		Name:        "Rush Hour",
		Description: "Ten drivers competing for twelve slots; most of the garage is occupied",
		Category:    "load",
	},
	{
		ID:          "low-balance",
		Name:        "Low Balance",
		Description: "A driver with 3.00 in the wallet and a 10.00/hr VIP slot: the charge is refused",
		Category:    "failures",
	},
	{
		ID:          "contested-slot",
		Name:        "Contested Slot",
		Description: "A single slot held by one driver while another tries to book it",
		Category:    "failures",
	},
}

// demoGarageLayout is the garage used by the demo-garage scenario.
const demoGarageLayout = `{
	"name": "Demo Garage",
	"zones": [
		{
			"zone": "A", "floor": 1, "type": "regular", "price_per_hour": 5.00, "count": 3,
			"overrides": {"A-103": {"type": "handicap", "price_per_hour": 4.00}}
		},
		{
			"zone": "B", "floor": 2, "type": "regular", "price_per_hour": 6.00, "count": 2,
			"overrides": {"B-202": {"type": "vip", "price_per_hour": 10.00}}
		},
		{"zone": "C", "floor": 3, "type": "regular", "price_per_hour": 5.00, "count": 1}
	]
}`

// rushHourLayout has two floors of six slots.
const rushHourLayout = `{
	"name": "Rush Hour Garage",
	"zones": [
		{
			"zone": "A", "floor": 1, "type": "regular", "price_per_hour": 4.00, "count": 6,
			"overrides": {"A-106": {"type": "electric", "price_per_hour": 6.50}}
		},
		{
			"zone": "B", "floor": 2, "type": "regular", "price_per_hour": 3.50, "count": 6,
			"overrides": {"B-201": {"type": "handicap"}, "B-206": {"type": "vip", "price_per_hour": 9.00}}
		}
	]
}`

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	load := h.scenarioLoader(req.ScenarioID)
	if load == nil {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("no scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()

	h.mu.Lock()
	defer h.mu.Unlock()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeEngineError(w, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	err := load(ctx)
	h.invalidate(ctx)
	if err != nil {
		writeEngineError(w, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID

	writeMessage(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID},
		fmt.Sprintf("Scenario %s loaded", req.ScenarioID))
}

func (h *Handler) scenarioLoader(id string) func(context.Context) error {
	switch id {
	case "demo-garage":
		return h.loadDemoGarageScenario
	case "rush-hour":
		return h.loadRushHourScenario
	case "low-balance":
		return h.loadLowBalanceScenario
	case "contested-slot":
		return h.loadContestedSlotScenario
	default:
		return nil
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadDemoGarageScenario(ctx context.Context) error {
	slots, err := h.provisionLayout(ctx, demoGarageLayout)
	if err != nil {
		return err
	}

	john, err := h.Service.Register(ctx, engine.User{
		Username:      "john_doe",
		Email:         "john@example.com",
		Phone:         "1234567890",
		VehicleNumber: "ABC-1234",
		Balance:       engine.NewMoney(100),
	})
	if err != nil {
		return err
	}
	jane, err := h.Service.Register(ctx, engine.User{
		Username:      "jane_smith",
		Email:         "jane@example.com",
		Phone:         "0987654321",
		VehicleNumber: "XYZ-5678",
		Balance:       engine.NewMoney(50),
	})
	if err != nil {
		return err
	}

	// john: A-101 for 2h (10.00), jane: B-201 for 1.5h (9.00)
	if err := h.book(ctx, john.ID, slots["A-101"], decimal.NewFromInt(2)); err != nil {
		return err
	}
	return h.book(ctx, jane.ID, slots["B-201"], decimal.NewFromFloat(1.5))
}

func (h *Handler) loadRushHourScenario(ctx context.Context) error {
	slots, err := h.provisionLayout(ctx, rushHourLayout)
	if err != nil {
		return err
	}

	// Ten drivers, nine bookings: the last driver finds the garage nearly full.
	numbers := []string{"A-101", "A-102", "A-103", "A-104", "A-105", "A-106", "B-202", "B-203", "B-206"}
	for i := 0; i < 10; i++ {
		user, err := h.Service.Register(ctx, engine.User{
			Username:      fmt.Sprintf("commuter_%02d", i+1),
			Email:         fmt.Sprintf("commuter%02d@example.com", i+1),
			VehicleNumber: fmt.Sprintf("RSH-%04d", 1000+i),
			Balance:       engine.NewMoney(40),
		})
		if err != nil {
			return err
		}
		if i >= len(numbers) {
			continue
		}
		hours := decimal.NewFromInt(int64(1 + i%3))
		if err := h.book(ctx, user.ID, slots[numbers[i]], hours); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadLowBalanceScenario(ctx context.Context) error {
	if _, err := h.Service.AddSlots(ctx, []engine.Slot{
		{Number: "V-101", Floor: 1, Zone: "V", Type: engine.SlotVIP, PricePerHour: engine.NewMoney(10)},
		{Number: "R-101", Floor: 1, Zone: "R", Type: engine.SlotRegular, PricePerHour: engine.NewMoney(2.5)},
	}); err != nil {
		return err
	}
	_, err := h.Service.Register(ctx, engine.User{
		Username: "low_balance_lee",
		Email:    "lee@example.com",
		Balance:  engine.NewMoney(3),
	})
	return err
}

func (h *Handler) loadContestedSlotScenario(ctx context.Context) error {
	created, err := h.Service.AddSlots(ctx, []engine.Slot{
		{Number: "P-001", Floor: 0, Zone: "P", Type: engine.SlotRegular, PricePerHour: engine.NewMoney(8)},
	})
	if err != nil {
		return err
	}

	holder, err := h.Service.Register(ctx, engine.User{Username: "early_bird", Email: "early@example.com", Balance: engine.NewMoney(50)})
	if err != nil {
		return err
	}
	if _, err := h.Service.Register(ctx, engine.User{Username: "late_comer", Email: "late@example.com", Balance: engine.NewMoney(50)}); err != nil {
		return err
	}
	return h.book(ctx, holder.ID, created[0].ID, decimal.NewFromInt(3))
}

// =============================================================================
// HELPERS
// =============================================================================

// provisionLayout creates every slot in the layout and returns their IDs
// keyed by slot number.
func (h *Handler) provisionLayout(ctx context.Context, layout string) (map[string]engine.SlotID, error) {
	slots, err := h.Layouts.ParseLayout(layout)
	if err != nil {
		return nil, err
	}
	created, err := h.Service.AddSlots(ctx, slots)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]engine.SlotID, len(created))
	for _, s := range created {
		ids[s.Number] = s.ID
	}
	return ids, nil
}

func (h *Handler) book(ctx context.Context, user engine.UserID, slot engine.SlotID, hours decimal.Decimal) error {
	if slot == "" {
		return fmt.Errorf("scenario references a slot that was not provisioned")
	}
	_, err := h.Service.Reserve(ctx, engine.ReserveRequest{UserID: user, SlotID: slot, DurationHours: hours})
	return err
}
