/*
Package factory provides JSON to Go garage layout conversion.

PURPOSE:
  Converts a JSON garage layout into engine.Slot values ready for
  provisioning. Operators describe zones in bulk ("zone A on floor 1 has
  20 regular slots at 5.00/hr starting at 101") and list odd slots
  explicitly, without writing code.

JSON SCHEMA:
  {
    "name": "Downtown Garage",
    "zones": [
      {
        "zone": "A",
        "floor": 1,
        "type": "regular",
        "price_per_hour": 5.00,
        "count": 3,
        "start_number": 101,
        "overrides": {
          "A-103": {"type": "handicap", "price_per_hour": 4.00}
        }
      }
    ],
    "slots": [
      {"number": "C-301", "floor": 3, "zone": "C", "type": "electric", "price_per_hour": 7.00}
    ]
  }

  Zone slot numbers are "<zone>-<start_number + i>". start_number defaults
  to floor*100 + 1.

KEY FEATURES:
  - Struct-tag validation (go-playground/validator)
  - Defaults type to regular
  - Rejects duplicate slot numbers across zones and explicit slots
  - Rejects overrides that name a slot the zone does not generate

USAGE:
  f := factory.NewLayoutFactory()
  slots, err := f.ParseLayout(jsonString)
  created, err := svc.AddSlots(ctx, slots)

SEE ALSO:
  - engine/availability.go: Provision
  - api/scenarios.go: Demo layouts
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/warp/parking-engine/engine"
)

// MaxZoneSlots caps a single zone block.
const MaxZoneSlots = 1000

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// LayoutJSON is the JSON representation of a garage layout.
type LayoutJSON struct {
	Name  string     `json:"name"`
	Zones []ZoneJSON `json:"zones,omitempty" validate:"dive"`
	Slots []SlotJSON `json:"slots,omitempty" validate:"dive"`
}

// ZoneJSON generates Count consecutive slots.
type ZoneJSON struct {
	Zone         string                  `json:"zone" validate:"required,max=16"`
	Floor        int                     `json:"floor" validate:"gte=-10,lte=200"`
	Type         string                  `json:"type,omitempty"`
	PricePerHour engine.Money            `json:"price_per_hour"`
	Count        int                     `json:"count" validate:"gte=1"`
	StartNumber  int                     `json:"start_number,omitempty" validate:"gte=0"`
	Overrides    map[string]OverrideJSON `json:"overrides,omitempty" validate:"dive"`
}

// OverrideJSON changes type or price of one generated slot.
type OverrideJSON struct {
	Type         string        `json:"type,omitempty"`
	PricePerHour *engine.Money `json:"price_per_hour,omitempty"`
}

// SlotJSON is one explicitly listed slot.
type SlotJSON struct {
	Number       string       `json:"number" validate:"required,max=32"`
	Floor        int          `json:"floor" validate:"gte=-10,lte=200"`
	Zone         string       `json:"zone" validate:"required,max=16"`
	Type         string       `json:"type,omitempty"`
	PricePerHour engine.Money `json:"price_per_hour"`
}

// ErrInvalidLayout wraps every layout rejection.
var ErrInvalidLayout = errors.New("invalid layout")

// =============================================================================
// LAYOUT FACTORY
// =============================================================================

// LayoutFactory converts JSON layouts to slots.
type LayoutFactory struct {
	validate *validator.Validate
}

// NewLayoutFactory creates a new layout factory.
func NewLayoutFactory() *LayoutFactory {
	return &LayoutFactory{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// ParseLayout parses a JSON layout string into slots.
func (f *LayoutFactory) ParseLayout(jsonStr string) ([]engine.Slot, error) {
	var lj LayoutJSON
	if err := json.Unmarshal([]byte(jsonStr), &lj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	return f.FromJSON(lj)
}

// FromJSON expands a LayoutJSON into slots, in declaration order.
func (f *LayoutFactory) FromJSON(lj LayoutJSON) ([]engine.Slot, error) {
	if err := f.validate.Struct(lj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	if len(lj.Zones) == 0 && len(lj.Slots) == 0 {
		return nil, fmt.Errorf("%w: no zones or slots", ErrInvalidLayout)
	}

	seen := make(map[string]bool)
	var slots []engine.Slot
	add := func(s engine.Slot) error {
		if seen[s.Number] {
			return fmt.Errorf("%w: duplicate slot number %s", ErrInvalidLayout, s.Number)
		}
		if s.PricePerHour.IsNegative() {
			return fmt.Errorf("%w: slot %s has negative price", ErrInvalidLayout, s.Number)
		}
		seen[s.Number] = true
		slots = append(slots, s)
		return nil
	}

	for _, zj := range lj.Zones {
		if zj.Count > MaxZoneSlots {
			return nil, fmt.Errorf("%w: zone %s count %d exceeds %d", ErrInvalidLayout, zj.Zone, zj.Count, MaxZoneSlots)
		}
		zoneType, err := parseSlotType(zj.Type)
		if err != nil {
			return nil, err
		}
		start := zj.StartNumber
		if start == 0 {
			start = zj.Floor*100 + 1
		}

		generated := make(map[string]bool, zj.Count)
		for i := 0; i < zj.Count; i++ {
			s := engine.Slot{
				Number:       fmt.Sprintf("%s-%d", zj.Zone, start+i),
				Floor:        zj.Floor,
				Zone:         zj.Zone,
				Type:         zoneType,
				PricePerHour: zj.PricePerHour,
			}
			if o, ok := zj.Overrides[s.Number]; ok {
				if o.Type != "" {
					if s.Type, err = parseSlotType(o.Type); err != nil {
						return nil, err
					}
				}
				if o.PricePerHour != nil {
					s.PricePerHour = *o.PricePerHour
				}
			}
			generated[s.Number] = true
			if err := add(s); err != nil {
				return nil, err
			}
		}

		for number := range zj.Overrides {
			if !generated[number] {
				return nil, fmt.Errorf("%w: override %s is not in zone %s", ErrInvalidLayout, number, zj.Zone)
			}
		}
	}

	for _, sj := range lj.Slots {
		typ, err := parseSlotType(sj.Type)
		if err != nil {
			return nil, err
		}
		if err := add(engine.Slot{
			Number:       sj.Number,
			Floor:        sj.Floor,
			Zone:         sj.Zone,
			Type:         typ,
			PricePerHour: sj.PricePerHour,
		}); err != nil {
			return nil, err
		}
	}

	return slots, nil
}

// ToJSON renders slots as an explicit-slot layout.
func (f *LayoutFactory) ToJSON(name string, slots []engine.Slot) LayoutJSON {
	lj := LayoutJSON{Name: name, Slots: make([]SlotJSON, 0, len(slots))}
	for _, s := range slots {
		lj.Slots = append(lj.Slots, SlotJSON{
			Number:       s.Number,
			Floor:        s.Floor,
			Zone:         s.Zone,
			Type:         string(s.Type),
			PricePerHour: s.PricePerHour,
		})
	}
	return lj
}

func parseSlotType(s string) (engine.SlotType, error) {
	if s == "" {
		return engine.SlotRegular, nil
	}
	t := engine.SlotType(strings.ToLower(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown slot type %q", ErrInvalidLayout, s)
	}
	return t, nil
}
