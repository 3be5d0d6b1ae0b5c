package arena

import (
	"fmt"
	"math"
)

// AllocOptions defines the segment growth strategy of an arena.
// Each new segment holds NextNumSlots(previous) slots.
type AllocOptions struct {
	// Name for this configuration (for logging and benchmarks)
	Name string

	InitialNumSlots uint32  // Slots in an arena's first segment
	MaxNumSlots     uint32  // Upper bound on slots per segment
	GrowthFactor    float64 // Geometric growth between consecutive segments
}

// MaxSlotsPerSegment bounds MaxNumSlots so slot indices fit a Ref.
const MaxSlotsPerSegment = 1 << 30

// Predefined configurations.
var (
	// Doubling: 8, 16, 32, ... up to 64K slots. Few segments per arena.
	OptionsDoubling = AllocOptions{
		Name:            "Doubling",
		InitialNumSlots: 8,
		MaxNumSlots:     1 << 16,
		GrowthFactor:    2.0,
	}

	// Gentle: slower growth, less unused tail space in the last segment.
	OptionsGentle = AllocOptions{
		Name:            "Gentle",
		InitialNumSlots: 8,
		MaxNumSlots:     1 << 12,
		GrowthFactor:    1.5,
	}

	// Fixed: every segment has the same size. Mostly useful in tests.
	OptionsFixed = AllocOptions{
		Name:            "Fixed",
		InitialNumSlots: 8,
		MaxNumSlots:     8,
		GrowthFactor:    1.0,
	}

	// DefaultOptions is used when none are specified.
	DefaultOptions = OptionsDoubling
)

// Validate checks the options for consistency.
func (o AllocOptions) Validate() error {
	if o.InitialNumSlots == 0 {
		return fmt.Errorf("%w: initial slots must be positive", ErrSlotCount)
	}
	if o.MaxNumSlots < o.InitialNumSlots {
		return fmt.Errorf("%w: max slots %d below initial %d", ErrSlotCount, o.MaxNumSlots, o.InitialNumSlots)
	}
	if o.MaxNumSlots > MaxSlotsPerSegment {
		return fmt.Errorf("%w: max slots %d above limit %d", ErrSlotCount, o.MaxNumSlots, MaxSlotsPerSegment)
	}
	if o.GrowthFactor < 1.0 {
		return fmt.Errorf("%w: growth factor %.2f below 1", ErrSlotCount, o.GrowthFactor)
	}
	return nil
}

// NextNumSlots returns the slot count of the segment following one with
// prev slots. prev == 0 means the arena has no segment yet.
func (o AllocOptions) NextNumSlots(prev uint32) uint32 {
	if prev == 0 {
		return o.InitialNumSlots
	}
	next := math.Ceil(float64(prev) * o.GrowthFactor)
	if next > float64(o.MaxNumSlots) {
		return o.MaxNumSlots
	}
	if uint32(next) < o.InitialNumSlots {
		return o.InitialNumSlots
	}
	return uint32(next)
}

func (o AllocOptions) String() string {
	return fmt.Sprintf("%s(%d..%d x%.2f)", o.Name, o.InitialNumSlots, o.MaxNumSlots, o.GrowthFactor)
}
