package engine

import (
	"context"
	"time"
)

// =============================================================================
// STATS AGGREGATOR - Hourly per-slot utilization counters
// =============================================================================

// StatsAggregator folds committed reservations into (slot, date, hour)
// buckets. The increment is one atomic upsert in the store, so concurrent
// hits on the same bucket never lose updates and different buckets never
// touch each other.
//
// Re-processing the same event would double count; at-most-once is
// guaranteed by the reservation unit of work, not by this table.
type StatsAggregator struct {
	stats StatsStore
}

func NewStatsAggregator(stats StatsStore) *StatsAggregator {
	return &StatsAggregator{stats: stats}
}

// Record adds one occupancy and amount of revenue to the bucket containing at.
func (a *StatsAggregator) Record(ctx context.Context, slotID SlotID, at time.Time, amount Money) error {
	return a.stats.IncrementUtilization(ctx, BucketFor(slotID, at), amount)
}
