package sequencer

// Musical time constants. The transport reports absolute position in ticks
// at 480 per quarter note; the engine advances at sixteenth resolution.
const (
	TicksPerBeat   int64 = 480
	SixteenthTicks int64 = TicksPerBeat / 4
)

// Division expresses one step's duration as bars + beats + ticks.
type Division struct {
	Bars  int `json:"bars"`
	Beats int `json:"beats"`
	Ticks int `json:"ticks"`
}

// TicksPerStep converts a division to ticks under the given time signature
// numerator (beats per bar). Non-positive input coerces to the defaults
// (4 beats per bar, one-sixteenth step) rather than failing.
func TicksPerStep(div Division, beatsPerBar int) int64 {
	if beatsPerBar <= 0 {
		beatsPerBar = 4
	}
	t := int64(div.Bars)*int64(beatsPerBar)*TicksPerBeat +
		int64(div.Beats)*TicksPerBeat +
		int64(div.Ticks)
	if t <= 0 {
		return SixteenthTicks
	}
	return t
}
