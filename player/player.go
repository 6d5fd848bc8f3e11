package player

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/ben-juodvalkis/permute-sub000/debug"
	"github.com/ben-juodvalkis/permute-sub000/host"
	"github.com/ben-juodvalkis/permute-sub000/sequencer"
)

// Player is the standalone transport: it walks the configured clip one
// sixteenth at a time, feeds absolute ticks to the engine, fires the clip's
// loop-jump notification at every wrap, and sends whatever notes currently
// sit in the clip over MIDI. The engine rewrites the same clip the player
// reads, so mutes, shifts and probabilities land here with no extra wiring.
//
// With the internal clock a goroutine paces the sixteenths from the tempo;
// under external sync the MIDI clock calls Sixteenth directly.
type Player struct {
	clip   *host.MemoryClip
	engine *sequencer.Engine

	outPort drivers.Out
	send    func(msg gomidi.Message) error
	channel uint8

	mu        sync.Mutex
	tempo     float64
	playing   bool
	external  bool
	sixteenth int64   // absolute sixteenth count since play
	loopPos   float64 // beats into the clip loop
	stopChan  chan struct{}
}

// NewPlayer wires a transport to its clip and engine. channel is the MIDI
// channel 1-16; external suppresses the internal clock goroutine.
func NewPlayer(clip *host.MemoryClip, engine *sequencer.Engine, channel int, tempo float64, external bool) *Player {
	if channel < 1 || channel > 16 {
		channel = 1
	}
	if tempo <= 0 {
		tempo = 120
	}
	return &Player{
		clip:     clip,
		engine:   engine,
		channel:  uint8(channel - 1),
		tempo:    tempo,
		external: external,
	}
}

// OpenOutput opens the named MIDI output, or the first available one when
// name is empty. Without an output the player still runs; notes just have
// nowhere to go.
func (p *Player) OpenOutput(name string) error {
	outs := gomidi.GetOutPorts()
	if len(outs) == 0 {
		return fmt.Errorf("no MIDI output ports available")
	}
	port := outs[0]
	if name != "" {
		found := false
		for _, o := range outs {
			if o.String() == name {
				port = o
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("MIDI output %q not found", name)
		}
	}
	send, err := gomidi.SendTo(port)
	if err != nil {
		return fmt.Errorf("failed to open MIDI output %s: %w", port.String(), err)
	}
	p.outPort = port
	p.send = send
	debug.Log("player", "MIDI output: %s", port.String())
	return nil
}

// Play starts the transport from the top of the loop.
func (p *Player) Play() {
	p.start(true)
}

// Resume starts the transport without rewinding, for external Continue.
func (p *Player) Resume() {
	p.start(false)
}

func (p *Player) start(rewind bool) {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = true
	if rewind {
		p.sixteenth = 0
		p.loopPos = 0
	}
	p.stopChan = make(chan struct{})
	stop := p.stopChan
	external := p.external
	p.mu.Unlock()

	debug.Log("player", "play (rewind=%v)", rewind)
	p.engine.TransportStart()
	if !external {
		go p.clockLoop(stop)
	}
}

// Stop halts the transport. The engine runs its stop revert.
func (p *Player) Stop() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	close(p.stopChan)
	p.mu.Unlock()

	debug.Log("player", "stop")
	p.engine.TransportStop()
}

// Playing reports whether the transport runs.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Position reports the absolute sixteenth count and the loop position in
// beats.
func (p *Player) Position() (int64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sixteenth, p.loopPos
}

// Tempo returns the internal clock tempo in BPM.
func (p *Player) Tempo() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tempo
}

// SetTempo sets the internal clock tempo, clamped to 20-300 BPM.
func (p *Player) SetTempo(bpm float64) {
	if bpm < 20 {
		bpm = 20
	}
	if bpm > 300 {
		bpm = 300
	}
	p.mu.Lock()
	p.tempo = bpm
	p.mu.Unlock()
}

// clockLoop paces Sixteenth from the tempo until stopped. The duration is
// recomputed every iteration so live tempo changes take effect mid-bar.
func (p *Player) clockLoop(stop chan struct{}) {
	for {
		p.mu.Lock()
		if !p.playing {
			p.mu.Unlock()
			return
		}
		tempo := p.tempo
		p.mu.Unlock()

		p.Sixteenth()

		stepDur := time.Duration(float64(time.Second) * 60.0 / tempo / 4.0)
		select {
		case <-stop:
			return
		case <-time.After(stepDur):
		}
	}
}

// Sixteenth advances the transport one sixteenth: engine tick, note window,
// position advance, loop wrap. External clocks call this at their own pace.
func (p *Player) Sixteenth() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	tick := p.sixteenth * sequencer.SixteenthTicks
	from := p.loopPos
	tempo := p.tempo
	p.sixteenth++
	p.loopPos += 0.25
	wrapped := false
	if loopLen := p.clip.LoopLength(); p.loopPos >= loopLen {
		p.loopPos = 0
		wrapped = true
	}
	p.mu.Unlock()

	p.engine.ProcessTick(tick)
	p.playWindow(from, tempo)
	if wrapped {
		p.clip.FireLoopJump()
	}
}

// playWindow sends every playable note starting within [from, from+0.25).
func (p *Player) playWindow(from, tempo float64) {
	notes, err := p.clip.Notes()
	if err != nil {
		debug.Log("player", "reading notes failed: %v", err)
		return
	}
	stepDur := time.Duration(float64(time.Second) * 60.0 / tempo / 4.0)
	for _, n := range notes {
		if n.Start < from || n.Start >= from+0.25 {
			continue
		}
		if !playable(n) {
			continue
		}
		p.sendNote(n, tempo, stepDur)
	}
}

// playable applies the live mute flag, the probability gate and the MIDI
// pitch range.
func playable(n host.Note) bool {
	if n.Muted {
		return false
	}
	if n.Pitch < 0 || n.Pitch > 127 {
		return false
	}
	if n.Probability < 1.0 && rand.Float64() >= n.Probability {
		return false
	}
	return true
}

func (p *Player) sendNote(n host.Note, tempo float64, stepDur time.Duration) {
	if p.send == nil {
		return
	}
	key := uint8(n.Pitch)
	vel := uint8(n.Velocity)
	ch := p.channel
	if err := p.send(gomidi.NoteOn(ch, key, vel)); err != nil {
		debug.Log("player", "note on failed: %v", err)
		return
	}
	offDelay := stepDur * 80 / 100
	if n.Duration > 0 {
		offDelay = time.Duration(n.Duration * 60.0 / tempo * float64(time.Second))
	}
	// Schedule note off; the key is captured now so a pitch rewrite between
	// on and off cannot strand a hanging note.
	go func() {
		time.Sleep(offDelay)
		p.send(gomidi.NoteOff(ch, key))
	}()
}

// Close releases the MIDI output.
func (p *Player) Close() {
	p.Stop()
	if p.outPort != nil {
		p.outPort.Close()
	}
}
