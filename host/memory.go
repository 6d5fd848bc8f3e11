package host

import (
	"fmt"
	"sync"
)

// MemorySong is an in-process Song. It backs the standalone player and the
// test suite: clips and devices are plain structs, observers fire
// synchronously, and every write is counted so tests can assert exactly how
// often the engine touched the host.
type MemorySong struct {
	mu      sync.Mutex
	clip    *MemoryClip
	device  *MemoryDevice
	sigNum  int
	sigDen  int
	nextObs int
	clipObs map[int]func()
	instObs map[int]func()
	sigObs  map[int]func()
}

func NewMemorySong() *MemorySong {
	return &MemorySong{
		sigNum:  4,
		sigDen:  4,
		clipObs: make(map[int]func()),
		instObs: make(map[int]func()),
		sigObs:  make(map[int]func()),
	}
}

// SetPlayingClip swaps the playing clip (nil for none) and notifies observers.
func (s *MemorySong) SetPlayingClip(c *MemoryClip) {
	s.mu.Lock()
	s.clip = c
	obs := collect(s.clipObs)
	s.mu.Unlock()
	fire(obs)
}

// SetInstrument swaps the track instrument (nil for none) and notifies observers.
func (s *MemorySong) SetInstrument(d *MemoryDevice) {
	s.mu.Lock()
	s.device = d
	obs := collect(s.instObs)
	s.mu.Unlock()
	fire(obs)
}

// SetTimeSignature changes the song time signature and notifies observers.
func (s *MemorySong) SetTimeSignature(num, den int) {
	s.mu.Lock()
	s.sigNum = num
	s.sigDen = den
	obs := collect(s.sigObs)
	s.mu.Unlock()
	fire(obs)
}

// Song interface implementation

func (s *MemorySong) PlayingClip() (Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clip == nil {
		return nil, nil
	}
	return s.clip, nil
}

func (s *MemorySong) InstrumentDevice() (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil, nil
	}
	return s.device, nil
}

func (s *MemorySong) TimeSignature() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sigNum, s.sigDen
}

func (s *MemorySong) ObservePlayingClip(fn func()) (func(), error) {
	return s.observe(s.clipObs, fn), nil
}

func (s *MemorySong) ObserveInstrument(fn func()) (func(), error) {
	return s.observe(s.instObs, fn), nil
}

func (s *MemorySong) ObserveTimeSignature(fn func()) (func(), error) {
	return s.observe(s.sigObs, fn), nil
}

func (s *MemorySong) observe(m map[int]func(), fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	m[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(m, id)
	}
}

// MemoryClip is an in-process Clip, either MIDI (note list) or audio
// (gain + coarse pitch).
type MemoryClip struct {
	mu         sync.Mutex
	id         string
	midi       bool
	notes      []Note
	nextNoteID NoteID
	loopLen    float64 // beats
	gain       float64
	coarse     int
	failing    bool
	nextObs    int
	loopObs    map[int]func()

	noteWrites   int
	gainWrites   int
	coarseWrites int
}

// NewMemoryMIDIClip returns an empty MIDI clip with a 4-beat loop.
func NewMemoryMIDIClip(id string) *MemoryClip {
	return &MemoryClip{
		id:         id,
		midi:       true,
		nextNoteID: 1,
		loopLen:    4,
		loopObs:    make(map[int]func()),
	}
}

// NewMemoryAudioClip returns an audio clip at the given gain and coarse pitch.
func NewMemoryAudioClip(id string, gain float64, coarse int) *MemoryClip {
	return &MemoryClip{
		id:      id,
		gain:    gain,
		coarse:  coarse,
		loopLen: 4,
		loopObs: make(map[int]func()),
	}
}

// AddNote appends a note at full probability and returns it.
func (c *MemoryClip) AddNote(pitch int, start, duration float64, velocity int) Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := Note{
		ID:          c.nextNoteID,
		Pitch:       pitch,
		Start:       start,
		Duration:    duration,
		Velocity:    velocity,
		Probability: 1.0,
	}
	c.nextNoteID++
	c.notes = append(c.notes, n)
	return n
}

// LoopLength returns the clip loop length in beats.
func (c *MemoryClip) LoopLength() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loopLen
}

func (c *MemoryClip) SetLoopLength(beats float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if beats > 0 {
		c.loopLen = beats
	}
}

// FireLoopJump notifies loop observers that playback wrapped to loop start.
func (c *MemoryClip) FireLoopJump() {
	c.mu.Lock()
	obs := collect(c.loopObs)
	c.mu.Unlock()
	fire(obs)
}

// SetFailing makes every subsequent host call on this clip return an error,
// simulating a clip the host can no longer resolve.
func (c *MemoryClip) SetFailing(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing = v
}

// NoteWrites returns how many times ApplyNotes has been called.
func (c *MemoryClip) NoteWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.noteWrites
}

// GainWrites returns how many times SetGain has been called.
func (c *MemoryClip) GainWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gainWrites
}

// CoarseWrites returns how many times SetPitchCoarse has been called.
func (c *MemoryClip) CoarseWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coarseWrites
}

// Clip interface implementation

func (c *MemoryClip) ID() string {
	return c.id
}

func (c *MemoryClip) IsMIDI() bool {
	return c.midi
}

func (c *MemoryClip) Notes() ([]Note, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return nil, fmt.Errorf("clip %s: unavailable", c.id)
	}
	if !c.midi {
		return nil, fmt.Errorf("clip %s: not a MIDI clip", c.id)
	}
	out := make([]Note, len(c.notes))
	copy(out, c.notes)
	return out, nil
}

func (c *MemoryClip) ApplyNotes(notes []Note) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return fmt.Errorf("clip %s: unavailable", c.id)
	}
	if !c.midi {
		return fmt.Errorf("clip %s: not a MIDI clip", c.id)
	}
	c.noteWrites++
	for _, in := range notes {
		for i := range c.notes {
			if c.notes[i].ID == in.ID {
				c.notes[i] = in
				break
			}
		}
	}
	return nil
}

func (c *MemoryClip) Gain() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return 0, fmt.Errorf("clip %s: unavailable", c.id)
	}
	return c.gain, nil
}

func (c *MemoryClip) SetGain(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return fmt.Errorf("clip %s: unavailable", c.id)
	}
	c.gainWrites++
	c.gain = v
	return nil
}

func (c *MemoryClip) PitchCoarse() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return 0, fmt.Errorf("clip %s: unavailable", c.id)
	}
	return c.coarse, nil
}

func (c *MemoryClip) SetPitchCoarse(semitones int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return fmt.Errorf("clip %s: unavailable", c.id)
	}
	c.coarseWrites++
	c.coarse = semitones
	return nil
}

func (c *MemoryClip) ObserveLoopJump(fn func()) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return nil, fmt.Errorf("clip %s: unavailable", c.id)
	}
	id := c.nextObs
	c.nextObs++
	c.loopObs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.loopObs, id)
	}, nil
}

// MemoryDevice is an in-process Device.
type MemoryDevice struct {
	class  string
	params []*MemoryParameter
}

func NewMemoryDevice(class string, params ...*MemoryParameter) *MemoryDevice {
	return &MemoryDevice{class: class, params: params}
}

func (d *MemoryDevice) Class() string {
	return d.class
}

func (d *MemoryDevice) Parameters() []Parameter {
	out := make([]Parameter, len(d.params))
	for i, p := range d.params {
		out[i] = p
	}
	return out
}

// MemoryParameter is an in-process Parameter. SetValue rejects out-of-range
// values the way the host would, so a missing clamp shows up in tests.
type MemoryParameter struct {
	mu   sync.Mutex
	name string
	val  float64
	min  float64
	max  float64
	sets int
}

func NewMemoryParameter(name string, value, min, max float64) *MemoryParameter {
	return &MemoryParameter{name: name, val: value, min: min, max: max}
}

// Sets returns how many times SetValue has been called.
func (p *MemoryParameter) Sets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sets
}

// Parameter interface implementation

func (p *MemoryParameter) Name() string {
	return p.name
}

func (p *MemoryParameter) Value() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.val, nil
}

func (p *MemoryParameter) SetValue(v float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v < p.min || v > p.max {
		return fmt.Errorf("parameter %s: value %v outside [%v, %v]", p.name, v, p.min, p.max)
	}
	p.sets++
	p.val = v
	return nil
}

func (p *MemoryParameter) Range() (float64, float64) {
	return p.min, p.max
}

func collect(m map[int]func()) []func() {
	out := make([]func(), 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}

// fire runs observers outside any lock so they may call back into the host.
func fire(obs []func()) {
	for _, fn := range obs {
		fn()
	}
}
