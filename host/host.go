package host

// Parameter is a single automatable control on a device.
type Parameter interface {
	Name() string
	Value() (float64, error)
	SetValue(v float64) error
	Range() (min, max float64)
}

// Device is an instrument in the bound track's device chain.
type Device interface {
	Class() string // host device class, e.g. "sampler"
	Parameters() []Parameter
}

// Clip is the content surface of a playing clip. Handles go stale when the
// host swaps clips - callers re-resolve via Song.PlayingClip each tick
// rather than holding one across ticks.
type Clip interface {
	ID() string
	IsMIDI() bool

	// MIDI clips
	Notes() ([]Note, error)
	ApplyNotes(notes []Note) error // updates existing notes matched by ID

	// Audio clips
	Gain() (float64, error)
	SetGain(v float64) error
	PitchCoarse() (int, error)
	SetPitchCoarse(semitones int) error

	// ObserveLoopJump fires fn each time playback wraps to the clip's
	// loop start. The returned cancel detaches the observer.
	ObserveLoopJump(fn func()) (cancel func(), err error)
}

// Song is the transport-side view of the host: what is playing, what
// instrument sits on the bound track, and change notification for both.
// Observer callbacks run in the host's notification context - they must
// never mutate host state directly, only schedule work.
type Song interface {
	// PlayingClip returns the clip playing on the bound track, or
	// (nil, nil) when nothing is playing.
	PlayingClip() (Clip, error)
	// InstrumentDevice returns the first instrument on the bound track,
	// or (nil, nil) when the track has none.
	InstrumentDevice() (Device, error)
	TimeSignature() (numerator, denominator int)

	ObservePlayingClip(fn func()) (cancel func(), err error)
	ObserveInstrument(fn func()) (cancel func(), err error)
	ObserveTimeSignature(fn func()) (cancel func(), err error)
}
