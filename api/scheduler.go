/*
scheduler.go - Overdue reservation sweeper

PURPOSE:
  Periodically ends reservations whose booked duration has run out, so
  their slots return to the pool without anyone calling the end endpoint.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Each overdue reservation ends in its own unit of work; one failure
    does not block the rest of the sweep (see engine.ExpireOverdue)
  - Keeps the last run's outcome for GET /api/admin/scheduler

CONFIGURATION:
  - CheckInterval: How often to check (EXPIRY_CHECK_INTERVAL, default 1m)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewExpiryScheduler(svc)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ExpireOverdue endpoint (manual sweep)
  - engine/reservation.go: ExpireOverdue
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/parking-engine/engine"
)

// Expirer ends overdue reservations. *engine.Service satisfies it.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// SchedulerStatus describes the last sweep.
type SchedulerStatus struct {
	Enabled       bool   `json:"enabled"`
	CheckInterval string `json:"check_interval,omitempty"`
	LastRunAt     string `json:"last_run_at,omitempty"`
	LastEnded     int    `json:"last_ended"`
	LastError     string `json:"last_error,omitempty"`
	TotalEnded    int    `json:"total_ended"`
	NextRunAt     string `json:"next_run_at,omitempty"`
}

// ExpiryScheduler ends overdue reservations on a ticker.
type ExpiryScheduler struct {
	Expirer       Expirer
	CheckInterval time.Duration
	Enabled       bool
	Timeout       time.Duration

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	statusMu sync.RWMutex
	status   SchedulerStatus
	lastRun  time.Time
}

// NewExpiryScheduler creates a new scheduler.
func NewExpiryScheduler(expirer Expirer) *ExpiryScheduler {
	return &ExpiryScheduler{
		Expirer:       expirer,
		CheckInterval: 1 * time.Minute,
		Enabled:       true,
		Timeout:       30 * time.Second,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (es *ExpiryScheduler) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	es.ticker = time.NewTicker(es.CheckInterval)
	es.wg.Add(1)

	go es.run()

	log.Printf("[Scheduler] Started with check interval: %v", es.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (es *ExpiryScheduler) Stop() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker != nil {
		es.ticker.Stop()
		close(es.stop)
		es.wg.Wait()
		es.ticker = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (es *ExpiryScheduler) run() {
	defer es.wg.Done()

	// Run immediately on start
	es.RunNow()

	for {
		select {
		case <-es.ticker.C:
			es.RunNow()
		case <-es.stop:
			return
		}
	}
}

// RunNow performs one sweep and returns how many reservations it ended.
func (es *ExpiryScheduler) RunNow() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), es.Timeout)
	defer cancel()

	started := time.Now()
	ended, err := es.Expirer.ExpireOverdue(ctx)

	es.statusMu.Lock()
	es.lastRun = started
	es.status.LastRunAt = started.UTC().Format(time.RFC3339)
	es.status.LastEnded = ended
	es.status.TotalEnded += ended
	es.status.LastError = ""
	if err != nil {
		es.status.LastError = err.Error()
	}
	es.statusMu.Unlock()

	switch {
	case err != nil && engine.IsRetryable(err):
		log.Printf("[Scheduler] Store unavailable after ending %d reservations, will retry: %v", ended, err)
	case err != nil:
		log.Printf("[Scheduler] Sweep failed after ending %d reservations: %v", ended, err)
	case ended > 0:
		log.Printf("[Scheduler] Ended %d overdue reservations", ended)
	}
	return ended, err
}

// Status returns a snapshot of the last sweep.
func (es *ExpiryScheduler) Status() SchedulerStatus {
	es.statusMu.RLock()
	defer es.statusMu.RUnlock()

	s := es.status
	s.Enabled = es.Enabled
	s.CheckInterval = es.CheckInterval.String()
	if !es.lastRun.IsZero() && es.Enabled {
		s.NextRunAt = es.lastRun.Add(es.CheckInterval).UTC().Format(time.RFC3339)
	}
	return s
}
