/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state through the real
	engine: slots provisioned, drivers registered, wallets charged and
	slots occupied.

These tests double as integration tests for the reservation workflow.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/parking-engine/engine"
)

func (e *testEnv) loadScenario(t *testing.T, id string) {
	t.Helper()
	status, resp := e.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": id})
	require.Equal(t, http.StatusOK, status, string(resp.Data))
}

func (e *testEnv) usersByName(t *testing.T) map[string]UserDTO {
	t.Helper()
	_, resp := e.do(t, http.MethodGet, "/api/users", nil)
	var users []UserDTO
	decodeData(t, resp, &users)
	byName := make(map[string]UserDTO, len(users))
	for _, u := range users {
		byName[u.Username] = u
	}
	return byName
}

func (e *testEnv) summary(t *testing.T) engine.AvailabilitySummary {
	t.Helper()
	_, resp := e.do(t, http.MethodGet, "/api/availability", nil)
	var s engine.AvailabilitySummary
	decodeData(t, resp, &s)
	return s
}

func TestScenario_DemoGarage(t *testing.T) {
	// GIVEN: Demo garage scenario
	// WHEN: Loading the scenario
	// THEN: Six slots exist, two are booked and both wallets were charged

	env := setupTestHandler(t)
	env.loadScenario(t, "demo-garage")

	s := env.summary(t)
	assert.Equal(t, 6, s.TotalSlots)
	assert.Equal(t, 4, s.AvailableSlots)
	assert.Equal(t, 33.33, s.OccupancyRate)
	require.Len(t, s.ByFloor, 3)

	users := env.usersByName(t)
	require.Len(t, users, 2)
	assert.Equal(t, "90.00", users["john_doe"].Balance.String())
	assert.Equal(t, "41.00", users["jane_smith"].Balance.String())
	assert.Equal(t, "ABC-1234", users["john_doe"].VehicleNumber)

	_, resp := env.do(t, http.MethodGet, "/api/slots?available=all", nil)
	var slots []SlotDTO
	decodeData(t, resp, &slots)
	types := make(map[string]string, len(slots))
	for _, sl := range slots {
		types[sl.Number] = sl.Type
	}
	assert.Equal(t, map[string]string{
		"A-101": "regular", "A-102": "regular", "A-103": "handicap",
		"B-201": "regular", "B-202": "vip", "C-301": "regular",
	}, types)

	_, resp = env.do(t, http.MethodGet, "/api/scenarios/current", nil)
	var current ScenarioDTO
	decodeData(t, resp, &current)
	assert.Equal(t, "demo-garage", current.ID)
}

func TestScenario_ReloadResets(t *testing.T) {
	// GIVEN: A scenario already loaded
	env := setupTestHandler(t)
	env.loadScenario(t, "demo-garage")

	// WHEN: Loading it again
	env.loadScenario(t, "demo-garage")

	// THEN: The store holds one copy, not two
	assert.Equal(t, 6, env.summary(t).TotalSlots)
	assert.Len(t, env.usersByName(t), 2)
}

func TestScenario_RushHour(t *testing.T) {
	env := setupTestHandler(t)
	env.loadScenario(t, "rush-hour")

	s := env.summary(t)
	assert.Equal(t, 12, s.TotalSlots)
	assert.Equal(t, 9, s.OccupiedSlots)
	assert.Len(t, env.usersByName(t), 10)

	_, resp := env.do(t, http.MethodGet, "/api/analytics", nil)
	var analytics AnalyticsResponse
	decodeData(t, resp, &analytics)
	assert.Equal(t, int64(9), analytics.Report.TotalOccupancy)
	assert.Equal(t, 9, analytics.Revenue.PaymentCount)
}

func TestScenario_LowBalance(t *testing.T) {
	// GIVEN: The low-balance scenario
	env := setupTestHandler(t)
	env.loadScenario(t, "low-balance")
	lee := env.usersByName(t)["low_balance_lee"]

	_, resp := env.do(t, http.MethodGet, "/api/slots?type=vip", nil)
	var vip []SlotDTO
	decodeData(t, resp, &vip)
	require.Len(t, vip, 1)

	// WHEN: Lee tries the VIP slot for an hour
	status, _ := env.reserve(t, lee.ID, vip[0].ID, 1)

	// THEN: The charge is refused and the wallet keeps its 3.00
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "3.00", env.usersByName(t)["low_balance_lee"].Balance.String())
}

func TestScenario_ContestedSlot(t *testing.T) {
	env := setupTestHandler(t)
	env.loadScenario(t, "contested-slot")
	late := env.usersByName(t)["late_comer"]

	_, resp := env.do(t, http.MethodGet, "/api/slots?available=all", nil)
	var slots []SlotDTO
	decodeData(t, resp, &slots)
	require.Len(t, slots, 1)
	assert.False(t, slots[0].Available)

	status, _ := env.reserve(t, late.ID, slots[0].ID, 1)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "50.00", env.usersByName(t)["late_comer"].Balance.String())
}

func TestScenario_Unknown(t *testing.T) {
	env := setupTestHandler(t)

	status, _ := env.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "moon-base"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestScenario_List(t *testing.T) {
	env := setupTestHandler(t)

	_, resp := env.do(t, http.MethodGet, "/api/scenarios", nil)
	var list []ScenarioDTO
	decodeData(t, resp, &list)
	require.Len(t, list, len(scenarios))
	for _, s := range list {
		assert.NotNil(t, env.handler.scenarioLoader(s.ID), s.ID)
	}
}

func TestResetDatabase(t *testing.T) {
	env := setupTestHandler(t)
	env.loadScenario(t, "demo-garage")

	status, _ := env.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, 0, env.summary(t).TotalSlots)
	assert.Empty(t, env.usersByName(t))
}

func TestScenarioLoaders_Direct(t *testing.T) {
	// Loaders run against an empty store without going through HTTP.
	env := setupTestHandler(t)
	ctx := context.Background()

	require.NoError(t, env.handler.loadContestedSlotScenario(ctx))

	active := engine.ReservationActive
	list, err := env.handler.Service.ListReservations(ctx, engine.ReservationFilter{Status: &active})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].DurationHours.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, "24.00", list[0].TotalAmount.String())
}
