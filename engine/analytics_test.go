package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/parking-engine/engine"
)

// bookAt reserves and immediately ends a reservation starting at t.
func bookAt(t *testing.T, svc *engine.Service, clock *testClock, at time.Time, user engine.UserID, slot engine.SlotID, h float64) {
	t.Helper()
	clock.Set(at)
	out, err := svc.Reserve(context.Background(), engine.ReserveRequest{UserID: user, SlotID: slot, DurationHours: hours(h)})
	require.NoError(t, err)
	_, err = svc.EndReservation(context.Background(), out.Reservation.ID)
	require.NoError(t, err)
}

func TestAnalytics_Report_AggregatesBuckets(t *testing.T) {
	// GIVEN: Bookings across two days, three hours and three slot types
	// WHEN: Requesting the report for both days
	// THEN: Peak hours, revenue by day/type and zone utilization add up

	forEachStore(t, func(t *testing.T, st engine.TxStore) {
		clock := newTestClock()
		svc := newService(t, st, clock)
		ctx := context.Background()

		a101 := addSlot(t, svc, "A-101", 1, "A", engine.SlotRegular, 10)
		a103 := addSlot(t, svc, "A-103", 1, "A", engine.SlotHandicap, 5)
		b201 := addSlot(t, svc, "B-201", 2, "B", engine.SlotVIP, 20)
		user := addUser(t, svc, "john_doe", 1000)

		day1 := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
		day2 := day1.AddDate(0, 0, 1)

		// day1: 10 + 10 + 20, day2: 40 + 30 + 5
		bookAt(t, svc, clock, day1.Add(9*time.Hour), user.ID, a101.ID, 1)
		bookAt(t, svc, clock, day1.Add(9*time.Hour+10*time.Minute), user.ID, a103.ID, 2)
		bookAt(t, svc, clock, day1.Add(18*time.Hour), user.ID, b201.ID, 1)
		bookAt(t, svc, clock, day2.Add(9*time.Hour), user.ID, b201.ID, 2)
		bookAt(t, svc, clock, day2.Add(12*time.Hour), user.ID, a101.ID, 3)

		// One slot still occupied for the current utilization view
		clock.Set(day2.Add(13 * time.Hour))
		_, err := svc.Reserve(ctx, engine.ReserveRequest{UserID: user.ID, SlotID: a103.ID, DurationHours: hours(1)})
		require.NoError(t, err)

		report, err := svc.Report(ctx, engine.Range{From: day1, To: day2})
		require.NoError(t, err)

		assert.Equal(t, "2025-03-10", report.From)
		assert.Equal(t, "2025-03-11", report.To)
		assert.Equal(t, int64(6), report.TotalOccupancy)
		assert.Equal(t, "115.00", report.TotalRevenue.String())

		require.NotEmpty(t, report.PeakHours)
		assert.Equal(t, 9, report.PeakHours[0].Hour)
		assert.Equal(t, int64(3), report.PeakHours[0].Occupancy)
		assert.Equal(t, "60.00", report.PeakHours[0].Revenue.String())

		require.Len(t, report.RevenueByDay, 2)
		assert.Equal(t, "2025-03-10", report.RevenueByDay[0].Date)
		assert.Equal(t, "40.00", report.RevenueByDay[0].Revenue.String())
		assert.Equal(t, "75.00", report.RevenueByDay[1].Revenue.String())

		require.Len(t, report.RevenueBySlotType, 3)
		assert.Equal(t, engine.SlotVIP, report.RevenueBySlotType[0].Type)
		assert.Equal(t, "60.00", report.RevenueBySlotType[0].Revenue.String())
		assert.Equal(t, engine.SlotRegular, report.RevenueBySlotType[1].Type)
		assert.Equal(t, "40.00", report.RevenueBySlotType[1].Revenue.String())
		assert.Equal(t, engine.SlotHandicap, report.RevenueBySlotType[2].Type)
		assert.Equal(t, "15.00", report.RevenueBySlotType[2].Revenue.String())

		require.Len(t, report.UtilizationByZone, 2)
		zoneA := report.UtilizationByZone[0]
		assert.Equal(t, "A", zoneA.Zone)
		assert.Equal(t, 2, zoneA.TotalSlots)
		assert.Equal(t, 1, zoneA.OccupiedSlots)
		assert.Equal(t, 50.0, zoneA.OccupancyRate)
		assert.Equal(t, int64(4), zoneA.Bookings)
		assert.Equal(t, "55.00", zoneA.Revenue.String())
		zoneB := report.UtilizationByZone[1]
		assert.Equal(t, 0, zoneB.OccupiedSlots)
		assert.Equal(t, "60.00", zoneB.Revenue.String())

		// Narrow range excludes day 1
		only2, err := svc.Report(ctx, engine.Range{From: day2, To: day2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), only2.TotalOccupancy)
		assert.Equal(t, "75.00", only2.TotalRevenue.String())
	})
}

func TestAnalytics_Report_Empty(t *testing.T) {
	forEachStore(t, func(t *testing.T, st engine.TxStore) {
		svc := newService(t, st, newTestClock())

		report, err := svc.Report(context.Background(), engine.Range{})
		require.NoError(t, err)
		assert.Empty(t, report.PeakHours)
		assert.Equal(t, int64(0), report.TotalOccupancy)
		assert.True(t, report.TotalRevenue.IsZero())
	})
}

func TestAnalytics_Summary_ByFloor(t *testing.T) {
	forEachStore(t, func(t *testing.T, st engine.TxStore) {
		svc := newService(t, st, newTestClock())
		ctx := context.Background()

		a101 := addSlot(t, svc, "A-101", 1, "A", engine.SlotRegular, 5)
		addSlot(t, svc, "A-102", 1, "A", engine.SlotRegular, 5)
		addSlot(t, svc, "B-201", 2, "B", engine.SlotVIP, 10)
		user := addUser(t, svc, "john_doe", 50)

		_, err := svc.Reserve(ctx, engine.ReserveRequest{UserID: user.ID, SlotID: a101.ID, DurationHours: hours(1)})
		require.NoError(t, err)

		summary, err := svc.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, summary.TotalSlots)
		assert.Equal(t, 2, summary.AvailableSlots)
		assert.Equal(t, 1, summary.OccupiedSlots)
		assert.Equal(t, 33.33, summary.OccupancyRate)
		require.Len(t, summary.ByFloor, 2)
		assert.Equal(t, engine.FloorAvailability{Floor: 1, Total: 2, Available: 1}, summary.ByFloor[0])
		assert.Equal(t, engine.FloorAvailability{Floor: 2, Total: 1, Available: 1}, summary.ByFloor[1])
	})
}

func TestAnalytics_PeakDemand_AveragesOverObservedDays(t *testing.T) {
	forEachStore(t, func(t *testing.T, st engine.TxStore) {
		clock := newTestClock()
		svc := newService(t, st, clock)
		ctx := context.Background()

		a := addSlot(t, svc, "A-101", 1, "A", engine.SlotRegular, 1)
		b := addSlot(t, svc, "A-102", 1, "A", engine.SlotRegular, 1)
		user := addUser(t, svc, "john_doe", 100)

		day1 := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
		day2 := day1.AddDate(0, 0, 1)

		bookAt(t, svc, clock, day1.Add(8*time.Hour), user.ID, a.ID, 1)
		bookAt(t, svc, clock, day1.Add(8*time.Hour), user.ID, b.ID, 1)
		bookAt(t, svc, clock, day2.Add(8*time.Hour), user.ID, a.ID, 1)
		bookAt(t, svc, clock, day2.Add(17*time.Hour), user.ID, a.ID, 1)

		forecast, err := svc.Analytics.PeakDemand(ctx, engine.Range{}, 1)
		require.NoError(t, err)
		require.Len(t, forecast, 1)
		assert.Equal(t, 8, forecast[0].Hour)
		assert.Equal(t, 1.5, forecast[0].AverageOccupancy)
		assert.Equal(t, 2, forecast[0].DaysObserved)

		all, err := svc.Analytics.PeakDemand(ctx, engine.Range{}, 0)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, 17, all[1].Hour)
		assert.Equal(t, 0.5, all[1].AverageOccupancy)
	})
}

func TestAnalytics_Revenue_FromPayments(t *testing.T) {
	forEachStore(t, func(t *testing.T, st engine.TxStore) {
		clock := newTestClock()
		svc := newService(t, st, clock)
		ctx := context.Background()

		a := addSlot(t, svc, "A-101", 1, "A", engine.SlotRegular, 10)
		user := addUser(t, svc, "john_doe", 100)

		bookAt(t, svc, clock, clock.Now(), user.ID, a.ID, 1)
		bookAt(t, svc, clock, clock.Now().Add(time.Hour), user.ID, a.ID, 2)

		rev, err := svc.Analytics.Revenue(ctx, engine.Range{})
		require.NoError(t, err)
		assert.Equal(t, 2, rev.PaymentCount)
		assert.Equal(t, "30.00", rev.TotalRevenue.String())
		assert.Equal(t, "15.00", rev.AveragePayment.String())
	})
}

func TestAnalytics_Revenue_RespectsRange(t *testing.T) {
	// GIVEN: One payment on March 10 and one on March 12
	// WHEN: Asking for revenue on March 12 only
	// THEN: Only the later payment counts

	forEachStore(t, func(t *testing.T, st engine.TxStore) {
		clock := newTestClock()
		svc := newService(t, st, clock)
		ctx := context.Background()

		a := addSlot(t, svc, "A-101", 1, "A", engine.SlotRegular, 10)
		user := addUser(t, svc, "john_doe", 100)

		day1 := clock.Now()
		day3 := day1.Add(48 * time.Hour)
		bookAt(t, svc, clock, day1, user.ID, a.ID, 1)
		bookAt(t, svc, clock, day3, user.ID, a.ID, 3)

		rev, err := svc.Analytics.Revenue(ctx, engine.Range{From: day3, To: day3})
		require.NoError(t, err)
		assert.Equal(t, 1, rev.PaymentCount)
		assert.Equal(t, "30.00", rev.TotalRevenue.String())

		rev, err = svc.Analytics.Revenue(ctx, engine.Range{To: day1})
		require.NoError(t, err)
		assert.Equal(t, 1, rev.PaymentCount)
		assert.Equal(t, "10.00", rev.TotalRevenue.String())
	})
}
