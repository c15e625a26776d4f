package monitoring

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/warp/parking-engine/engine"
)

var (
	reservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_reservations_total",
			Help: "Reservation attempts by outcome and failure reason",
		},
		[]string{"outcome", "reason"},
	)

	endingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_reservation_endings_total",
			Help: "Reservation end attempts by outcome and failure reason",
		},
		[]string{"outcome", "reason"},
	)

	compensationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parking_compensations_total",
			Help: "Reservations rolled back after a compensating wallet credit",
		},
	)

	workflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parking_workflow_duration_seconds",
			Help:    "Wall time of a reservation unit of work",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"operation"},
	)

	slotsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parking_slots",
			Help: "Current slot count by state",
		},
		[]string{"state"},
	)

	occupancyRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parking_occupancy_rate_percent",
			Help: "Share of slots currently occupied",
		},
	)
)

// SummarySource reports current occupancy. *engine.Service satisfies it.
type SummarySource interface {
	Summary(ctx context.Context) (engine.AvailabilitySummary, error)
}

// Monitor turns workflow events into Prometheus series and periodically
// samples occupancy.
type Monitor struct {
	source SummarySource
}

func NewMonitor(source SummarySource) *Monitor {
	return &Monitor{source: source}
}

// Observe implements engine.Observer.
func (m *Monitor) Observe(_ context.Context, ev engine.Event) {
	switch ev.Kind {
	case engine.EventReserved:
		reservationsTotal.WithLabelValues("committed", "").Inc()
		workflowDuration.WithLabelValues("reserve").Observe(ev.Elapsed.Seconds())
	case engine.EventReserveFailed:
		reservationsTotal.WithLabelValues("rolled_back", Reason(ev.Err)).Inc()
		workflowDuration.WithLabelValues("reserve").Observe(ev.Elapsed.Seconds())
		if ev.Compensated {
			compensationsTotal.Inc()
		}
	case engine.EventEnded:
		endingsTotal.WithLabelValues("committed", "").Inc()
		workflowDuration.WithLabelValues("end").Observe(ev.Elapsed.Seconds())
	case engine.EventEndFailed:
		endingsTotal.WithLabelValues("rolled_back", Reason(ev.Err)).Inc()
		workflowDuration.WithLabelValues("end").Observe(ev.Elapsed.Seconds())
	}
}

// Run samples occupancy every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.CollectOccupancy(ctx)
	for {
		select {
		case <-ticker.C:
			m.CollectOccupancy(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CollectOccupancy refreshes the slot gauges.
func (m *Monitor) CollectOccupancy(ctx context.Context) {
	s, err := m.source.Summary(ctx)
	if err != nil {
		log.Printf("[Monitor] Occupancy sample failed: %v", err)
		return
	}
	slotsGauge.WithLabelValues("total").Set(float64(s.TotalSlots))
	slotsGauge.WithLabelValues("available").Set(float64(s.AvailableSlots))
	slotsGauge.WithLabelValues("occupied").Set(float64(s.OccupiedSlots))
	occupancyRate.Set(s.OccupancyRate)
}

// Reason maps an engine error to a low-cardinality label value.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, engine.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, engine.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, engine.ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, engine.ErrNotFound):
		return "not_found"
	case errors.Is(err, engine.ErrNotActive):
		return "not_active"
	case errors.Is(err, engine.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}
