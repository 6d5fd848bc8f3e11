package sequencer

import (
	"github.com/ben-juodvalkis/permute-sub000/debug"
)

const (
	// MaxPatternLen is the pattern storage capacity. Lengths beyond the
	// active prefix are inert but survive shrink/regrow cycles.
	MaxPatternLen = 64

	// DefaultPatternLen matches the eight cells the UI and the wire
	// protocol exchange.
	DefaultPatternLen = 8

	// StepIdle is the current-step sentinel while transport is stopped.
	StepIdle = -1
)

// StepSequencer advances a binary pattern in lockstep with the transport.
// The default value is the pattern's inert state: 1 for the mute sequencer
// (unmuted) and 0 for the pitch sequencer (unshifted). A sequencer is active
// only while some cell differs from the default - activity is cached and
// recomputed on mutation, never scanned per tick.
type StepSequencer struct {
	name         string
	defaultValue int
	pattern      [MaxPatternLen]int
	length       int
	division     Division
	ticksPerStep int64
	currentStep  int
	active       bool
}

// NewStepSequencer returns an idle sequencer with an all-default pattern of
// length 8 stepping one sixteenth per step in 4/4.
func NewStepSequencer(name string, defaultValue int) *StepSequencer {
	s := &StepSequencer{
		name:         name,
		defaultValue: defaultValue,
		length:       DefaultPatternLen,
		division:     Division{Ticks: int(SixteenthTicks)},
		ticksPerStep: SixteenthTicks,
		currentStep:  StepIdle,
	}
	for i := range s.pattern {
		s.pattern[i] = defaultValue
	}
	return s
}

// SetPattern overwrites the leading cells with the given binary values.
// Non-binary values coerce to the default with a logged warning; input
// beyond storage capacity is ignored.
func (s *StepSequencer) SetPattern(values []int) {
	for i, v := range values {
		if i >= MaxPatternLen {
			debug.Log("steps", "%s: pattern input truncated at %d values", s.name, MaxPatternLen)
			break
		}
		s.pattern[i] = s.coerce(i, v)
	}
	s.recomputeActive()
}

// SetStep sets one cell. Out-of-bounds indices are ignored silently.
func (s *StepSequencer) SetStep(index, value int) {
	if index < 0 || index >= s.length {
		return
	}
	s.pattern[index] = s.coerce(index, value)
	s.recomputeActive()
}

// SetLength clamps to [1, 64]. Cells below the new length keep their
// values; cells regrown past a previous shrink resurface whatever they
// held. The current step resets to 0 if the new length strands it.
func (s *StepSequencer) SetLength(length int) {
	if length < 1 {
		debug.Log("steps", "%s: length %d clamped to 1", s.name, length)
		length = 1
	}
	if length > MaxPatternLen {
		debug.Log("steps", "%s: length %d clamped to %d", s.name, length, MaxPatternLen)
		length = MaxPatternLen
	}
	s.length = length
	if s.currentStep >= length {
		s.currentStep = 0
	}
	s.recomputeActive()
}

// SetDivision stores the triple and recomputes ticks per step against the
// live time signature numerator.
func (s *StepSequencer) SetDivision(div Division, beatsPerBar int) {
	s.division = div
	s.ticksPerStep = TicksPerStep(div, beatsPerBar)
}

// CalculateStep maps an absolute tick position to a step index.
func (s *StepSequencer) CalculateStep(absoluteTicks int64) int {
	if s.ticksPerStep <= 0 {
		// TicksPerStep never returns <= 0; guard stays for corrupted state.
		debug.Log("steps", "%s: ticksPerStep=%d, returning step 0", s.name, s.ticksPerStep)
		return 0
	}
	return int((absoluteTicks / s.ticksPerStep) % int64(s.length))
}

// Advance recomputes the current step for a tick position and reports
// whether it changed.
func (s *StepSequencer) Advance(absoluteTicks int64) (step int, changed bool) {
	step = s.CalculateStep(absoluteTicks)
	changed = step != s.currentStep
	s.currentStep = step
	return step, changed
}

// Reset returns the sequencer to idle (transport stopped).
func (s *StepSequencer) Reset() {
	s.currentStep = StepIdle
}

// IsActive reports whether any cell in the active prefix differs from the
// default value. O(1); the cache is maintained by the mutating setters.
func (s *StepSequencer) IsActive() bool {
	return s.active
}

// Value returns the cell at index, or the default when out of bounds.
func (s *StepSequencer) Value(index int) int {
	if index < 0 || index >= s.length {
		return s.defaultValue
	}
	return s.pattern[index]
}

// Pattern returns a copy of the active prefix.
func (s *StepSequencer) Pattern() []int {
	out := make([]int, s.length)
	copy(out, s.pattern[:s.length])
	return out
}

// PatternHead returns a copy of the first n cells regardless of length,
// padded view used by the fixed-shape wire snapshot.
func (s *StepSequencer) PatternHead(n int) []int {
	if n > MaxPatternLen {
		n = MaxPatternLen
	}
	out := make([]int, n)
	copy(out, s.pattern[:n])
	return out
}

func (s *StepSequencer) Length() int          { return s.length }
func (s *StepSequencer) Division() Division   { return s.division }
func (s *StepSequencer) TicksEachStep() int64 { return s.ticksPerStep }
func (s *StepSequencer) CurrentStep() int     { return s.currentStep }

func (s *StepSequencer) coerce(index, v int) int {
	if v != 0 && v != 1 {
		debug.Log("steps", "%s: non-binary value %d at step %d, using default %d", s.name, v, index, s.defaultValue)
		return s.defaultValue
	}
	return v
}

func (s *StepSequencer) recomputeActive() {
	s.active = false
	for i := 0; i < s.length; i++ {
		if s.pattern[i] != s.defaultValue {
			s.active = true
			return
		}
	}
}
