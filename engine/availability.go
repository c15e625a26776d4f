package engine

import "context"

// =============================================================================
// AVAILABILITY MANAGER - Slot state transitions (available <-> occupied)
// =============================================================================

// AvailabilityManager owns the slot occupancy flag. No locks are held across
// calls; the conditional update in SlotStore.OccupySlot is the concurrency
// primitive, so among concurrent contenders for one slot at most one wins.
type AvailabilityManager struct {
	slots SlotStore
}

func NewAvailabilityManager(slots SlotStore) *AvailabilityManager {
	return &AvailabilityManager{slots: slots}
}

// TryOccupy flips the slot to occupied if it is currently free.
// Returns *SlotUnavailableError when occupied, *NotFoundError when unknown.
func (m *AvailabilityManager) TryOccupy(ctx context.Context, id SlotID) error {
	ok, err := m.slots.OccupySlot(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	// Condition failed: either the slot is taken or it never existed.
	slot, err := m.slots.GetSlot(ctx, id)
	if err != nil {
		return err
	}
	return &SlotUnavailableError{SlotID: slot.ID, Number: slot.Number}
}

// Release flips the slot back to available. Idempotent for free slots.
func (m *AvailabilityManager) Release(ctx context.Context, id SlotID) error {
	ok, err := m.slots.ReleaseSlot(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Kind: "slot", ID: string(id)}
	}
	return nil
}

// Search lists slots matching the filter. Read-only.
func (m *AvailabilityManager) Search(ctx context.Context, filter SlotFilter) ([]Slot, error) {
	return m.slots.ListSlots(ctx, filter)
}

// Provision creates a new slot. New slots always start free.
func (m *AvailabilityManager) Provision(ctx context.Context, slot Slot) (Slot, error) {
	if !slot.Type.Valid() {
		slot.Type = SlotRegular
	}
	if err := slot.PricePerHour.CheckAmount("price per hour"); err != nil {
		return Slot{}, err
	}
	slot.Available = true
	if err := m.slots.CreateSlot(ctx, slot); err != nil {
		return Slot{}, err
	}
	return slot, nil
}
