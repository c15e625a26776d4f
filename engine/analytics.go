/*
analytics.go - Read-only analytics derived from utilization buckets

PURPOSE:
  Computes the views operators look at (peak hours, revenue by day and by
  slot type, utilization by zone) from UtilizationStat rows joined with the
  slot catalogue. Nothing here writes; everything is recomputable.

VIEWS:
  Report:              peak hours, revenue by day, revenue by slot type,
                       utilization by zone, totals for a date range
  AvailabilitySummary: current total/available/occupied slots, by floor
  PeakDemand:          average occupancy per hour of day across observed days
  RevenueReport:       payment totals from the append-only payment log

SEE ALSO:
  - stats.go: The writer of UtilizationStat
*/
package engine

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// AnalyticsSource is the read-only slice of Store the analytics need.
type AnalyticsSource interface {
	ListSlots(ctx context.Context, filter SlotFilter) ([]Slot, error)
	ListUtilization(ctx context.Context, rng Range) ([]UtilizationStat, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
}

// =============================================================================
// REPORT TYPES
// =============================================================================

type HourUsage struct {
	Hour      int   `json:"hour"`
	Occupancy int64 `json:"occupancy"`
	Revenue   Money `json:"revenue"`
}

type DayRevenue struct {
	Date      string `json:"date"`
	Occupancy int64  `json:"occupancy"`
	Revenue   Money  `json:"revenue"`
}

type TypeRevenue struct {
	Type      SlotType `json:"type"`
	Occupancy int64    `json:"occupancy"`
	Revenue   Money    `json:"revenue"`
}

type ZoneUtilization struct {
	Zone          string  `json:"zone"`
	TotalSlots    int     `json:"total_slots"`
	OccupiedSlots int     `json:"occupied_slots"`
	OccupancyRate float64 `json:"occupancy_rate"` // current, percent
	Bookings      int64   `json:"bookings"`       // in range
	Revenue       Money   `json:"revenue"`        // in range
}

// Report is the analytics bundle for a date range.
type Report struct {
	From              string            `json:"from,omitempty"`
	To                string            `json:"to,omitempty"`
	PeakHours         []HourUsage       `json:"peak_hours"`
	RevenueByDay      []DayRevenue      `json:"revenue_by_day"`
	RevenueBySlotType []TypeRevenue     `json:"revenue_by_slot_type"`
	UtilizationByZone []ZoneUtilization `json:"utilization_by_zone"`
	TotalOccupancy    int64             `json:"total_occupancy"`
	TotalRevenue      Money             `json:"total_revenue"`
}

type FloorAvailability struct {
	Floor     int `json:"floor"`
	Total     int `json:"total"`
	Available int `json:"available"`
}

type AvailabilitySummary struct {
	TotalSlots     int                 `json:"total_slots"`
	AvailableSlots int                 `json:"available_slots"`
	OccupiedSlots  int                 `json:"occupied_slots"`
	OccupancyRate  float64             `json:"occupancy_rate"` // percent, 2 dp
	ByFloor        []FloorAvailability `json:"by_floor"`
}

type DemandForecast struct {
	Hour             int     `json:"hour"`
	AverageOccupancy float64 `json:"average_occupancy"`
	DaysObserved     int     `json:"days_observed"`
}

type RevenueReport struct {
	TotalRevenue   Money `json:"total_revenue"`
	PaymentCount   int   `json:"payment_count"`
	AveragePayment Money `json:"average_payment"`
}

// =============================================================================
// ANALYTICS QUERY
// =============================================================================

type AnalyticsQuery struct {
	source AnalyticsSource
}

func NewAnalyticsQuery(source AnalyticsSource) *AnalyticsQuery {
	return &AnalyticsQuery{source: source}
}

// Report aggregates the utilization buckets in rng.
func (q *AnalyticsQuery) Report(ctx context.Context, rng Range) (Report, error) {
	stats, err := q.source.ListUtilization(ctx, rng)
	if err != nil {
		return Report{}, err
	}
	slots, err := q.source.ListSlots(ctx, SlotFilter{})
	if err != nil {
		return Report{}, err
	}

	bySlot := make(map[SlotID]Slot, len(slots))
	for _, s := range slots {
		bySlot[s.ID] = s
	}

	hours := make(map[int]*HourUsage)
	days := make(map[string]*DayRevenue)
	types := make(map[SlotType]*TypeRevenue)
	zones := make(map[string]*ZoneUtilization)

	for _, s := range slots {
		z := zoneEntry(zones, s.Zone)
		z.TotalSlots++
		if !s.Available {
			z.OccupiedSlots++
		}
	}

	report := Report{From: rng.FromDate(), To: rng.ToDate()}
	for _, st := range stats {
		if !rng.Contains(st.Date) {
			continue
		}
		report.TotalOccupancy += st.OccupancyCount
		report.TotalRevenue = report.TotalRevenue.Add(st.Revenue)

		h, ok := hours[st.Hour]
		if !ok {
			h = &HourUsage{Hour: st.Hour}
			hours[st.Hour] = h
		}
		h.Occupancy += st.OccupancyCount
		h.Revenue = h.Revenue.Add(st.Revenue)

		d, ok := days[st.Date]
		if !ok {
			d = &DayRevenue{Date: st.Date}
			days[st.Date] = d
		}
		d.Occupancy += st.OccupancyCount
		d.Revenue = d.Revenue.Add(st.Revenue)

		slot, known := bySlot[st.SlotID]
		if !known {
			continue
		}
		t, ok := types[slot.Type]
		if !ok {
			t = &TypeRevenue{Type: slot.Type}
			types[slot.Type] = t
		}
		t.Occupancy += st.OccupancyCount
		t.Revenue = t.Revenue.Add(st.Revenue)

		z := zoneEntry(zones, slot.Zone)
		z.Bookings += st.OccupancyCount
		z.Revenue = z.Revenue.Add(st.Revenue)
	}

	for _, h := range hours {
		report.PeakHours = append(report.PeakHours, *h)
	}
	sort.Slice(report.PeakHours, func(i, j int) bool {
		a, b := report.PeakHours[i], report.PeakHours[j]
		if a.Occupancy != b.Occupancy {
			return a.Occupancy > b.Occupancy
		}
		return a.Hour < b.Hour
	})

	for _, d := range days {
		report.RevenueByDay = append(report.RevenueByDay, *d)
	}
	sort.Slice(report.RevenueByDay, func(i, j int) bool {
		return report.RevenueByDay[i].Date < report.RevenueByDay[j].Date
	})

	for _, t := range types {
		report.RevenueBySlotType = append(report.RevenueBySlotType, *t)
	}
	sort.Slice(report.RevenueBySlotType, func(i, j int) bool {
		a, b := report.RevenueBySlotType[i], report.RevenueBySlotType[j]
		if !a.Revenue.Equal(b.Revenue) {
			return a.Revenue.GreaterThan(b.Revenue)
		}
		return a.Type < b.Type
	})

	for _, z := range zones {
		z.OccupancyRate = percent(z.OccupiedSlots, z.TotalSlots)
		report.UtilizationByZone = append(report.UtilizationByZone, *z)
	}
	sort.Slice(report.UtilizationByZone, func(i, j int) bool {
		return report.UtilizationByZone[i].Zone < report.UtilizationByZone[j].Zone
	})

	return report, nil
}

// Summary reports current occupancy across the whole garage.
func (q *AnalyticsQuery) Summary(ctx context.Context) (AvailabilitySummary, error) {
	slots, err := q.source.ListSlots(ctx, SlotFilter{})
	if err != nil {
		return AvailabilitySummary{}, err
	}

	floors := make(map[int]*FloorAvailability)
	var summary AvailabilitySummary
	for _, s := range slots {
		summary.TotalSlots++
		f, ok := floors[s.Floor]
		if !ok {
			f = &FloorAvailability{Floor: s.Floor}
			floors[s.Floor] = f
		}
		f.Total++
		if s.Available {
			summary.AvailableSlots++
			f.Available++
		}
	}
	summary.OccupiedSlots = summary.TotalSlots - summary.AvailableSlots
	summary.OccupancyRate = percent(summary.OccupiedSlots, summary.TotalSlots)

	summary.ByFloor = make([]FloorAvailability, 0, len(floors))
	for _, f := range floors {
		summary.ByFloor = append(summary.ByFloor, *f)
	}
	sort.Slice(summary.ByFloor, func(i, j int) bool {
		return summary.ByFloor[i].Floor < summary.ByFloor[j].Floor
	})
	return summary, nil
}

// PeakDemand ranks hours of the day by average occupancy per observed day
// and returns the top n (all hours when n <= 0).
func (q *AnalyticsQuery) PeakDemand(ctx context.Context, rng Range, n int) ([]DemandForecast, error) {
	stats, err := q.source.ListUtilization(ctx, rng)
	if err != nil {
		return nil, err
	}

	observedDays := make(map[string]struct{})
	totals := make(map[int]int64)
	for _, st := range stats {
		if !rng.Contains(st.Date) {
			continue
		}
		observedDays[st.Date] = struct{}{}
		totals[st.Hour] += st.OccupancyCount
	}
	if len(observedDays) == 0 {
		return []DemandForecast{}, nil
	}

	forecast := make([]DemandForecast, 0, len(totals))
	for hour, total := range totals {
		avg := decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(len(observedDays)))).Round(2)
		f, _ := avg.Float64()
		forecast = append(forecast, DemandForecast{Hour: hour, AverageOccupancy: f, DaysObserved: len(observedDays)})
	}
	sort.Slice(forecast, func(i, j int) bool {
		if forecast[i].AverageOccupancy != forecast[j].AverageOccupancy {
			return forecast[i].AverageOccupancy > forecast[j].AverageOccupancy
		}
		return forecast[i].Hour < forecast[j].Hour
	})
	if n > 0 && len(forecast) > n {
		forecast = forecast[:n]
	}
	return forecast, nil
}

// Revenue totals completed payments whose UTC creation date lies in rng.
func (q *AnalyticsQuery) Revenue(ctx context.Context, rng Range) (RevenueReport, error) {
	payments, err := q.source.ListPayments(ctx, PaymentFilter{})
	if err != nil {
		return RevenueReport{}, err
	}

	var report RevenueReport
	for _, p := range payments {
		if p.Status != PaymentCompleted || !rng.Contains(p.CreatedAt.UTC().Format(DateLayout)) {
			continue
		}
		report.TotalRevenue = report.TotalRevenue.Add(p.Amount)
		report.PaymentCount++
	}
	if report.PaymentCount > 0 {
		avg := report.TotalRevenue.Value.Div(decimal.NewFromInt(int64(report.PaymentCount)))
		report.AveragePayment = Money{Value: avg.Round(MoneyScale)}
	}
	return report, nil
}

func zoneEntry(zones map[string]*ZoneUtilization, zone string) *ZoneUtilization {
	z, ok := zones[zone]
	if !ok {
		z = &ZoneUtilization{Zone: zone}
		zones[zone] = z
	}
	return z
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	p, _ := decimal.NewFromInt(int64(part)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		Float64()
	return p
}
