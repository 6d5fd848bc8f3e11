package midiclock

import (
	"context"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"github.com/ben-juodvalkis/permute-sub000/debug"
	"github.com/ben-juodvalkis/permute-sub000/player"
)

// MIDI clock runs at 24 pulses per quarter note; the transport advances on
// sixteenth boundaries, so every 6th pulse drives one step.
const (
	pulsesPerQuarter   = 24
	pulsesPerSixteenth = pulsesPerQuarter / 4
)

// ClockEvent is emitted when the clock source connects/disconnects or the
// remote transport starts/stops.
type ClockEvent struct {
	Type ClockEventType
	Port string
}

type ClockEventType int

const (
	ClockConnected ClockEventType = iota
	ClockDisconnected
	ClockStarted
	ClockStopped
)

// Follower slaves the player to an external MIDI clock. It watches for the
// configured input port, counts timing clock pulses, and translates the
// Start/Continue/Stop realtime messages into transport calls.
type Follower struct {
	player   *player.Player
	portName string

	mu      sync.Mutex
	port    drivers.In
	stopFn  func()
	running bool
	pulses  int64

	events   chan ClockEvent
	pollRate time.Duration
}

// NewFollower creates a follower for the named input port. An empty name
// follows the first input that appears.
func NewFollower(p *player.Player, portName string) *Follower {
	return &Follower{
		player:   p,
		portName: portName,
		events:   make(chan ClockEvent, 16),
		pollRate: time.Second,
	}
}

// Events returns a channel of clock connect/disconnect/transport events.
func (f *Follower) Events() <-chan ClockEvent {
	return f.events
}

// Connected reports whether a clock source is attached.
func (f *Follower) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.port != nil
}

// PortName returns the attached port name, or "" when disconnected.
func (f *Follower) PortName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.port == nil {
		return ""
	}
	return f.port.String()
}

// Run starts the polling loop (blocking - run in goroutine)
func (f *Follower) Run(ctx context.Context) {
	ticker := time.NewTicker(f.pollRate)
	defer ticker.Stop()

	// Initial scan
	f.scan()

	for {
		select {
		case <-ctx.Done():
			f.disconnect()
			close(f.events)
			return
		case <-ticker.C:
			f.scan()
		}
	}
}

func (f *Follower) scan() {
	// Get current MIDI ports with timeout (CoreMIDI can hang)
	ch := make(chan []drivers.In, 1)
	go func() {
		ch <- gomidi.GetInPorts()
	}()

	var ins []drivers.In
	select {
	case ins = <-ch:
	case <-time.After(3 * time.Second):
		// CoreMIDI is hung - skip this scan
		return
	}

	want := strings.ToLower(f.portName)
	var found drivers.In
	for i, in := range ins {
		name := strings.ToLower(in.String())
		if want == "" || strings.Contains(name, want) {
			found = ins[i]
			break
		}
	}

	f.mu.Lock()
	cur := f.port
	f.mu.Unlock()

	switch {
	case cur == nil && found != nil:
		f.connect(found)
	case cur != nil && found == nil:
		f.disconnect()
	case cur != nil && found.String() != cur.String():
		f.disconnect()
		f.connect(found)
	}
}

func (f *Follower) connect(port drivers.In) {
	stop, err := gomidi.ListenTo(port, f.handleMessage, gomidi.UseTimeCode())
	if err != nil {
		debug.Log("midiclock", "listen on %s failed: %v", port.String(), err)
		return
	}
	f.mu.Lock()
	f.port = port
	f.stopFn = stop
	f.pulses = 0
	f.running = false
	f.mu.Unlock()
	debug.Log("midiclock", "following clock on %s", port.String())
	f.notify(ClockConnected, port.String())
}

func (f *Follower) disconnect() {
	f.mu.Lock()
	stop := f.stopFn
	port := f.port
	f.stopFn = nil
	f.port = nil
	f.running = false
	f.mu.Unlock()
	if stop != nil {
		stop()
	}
	if port != nil {
		debug.Log("midiclock", "clock source %s lost", port.String())
		f.notify(ClockDisconnected, port.String())
		f.player.Stop()
	}
}

func (f *Follower) handleMessage(msg gomidi.Message, timestampms int32) {
	switch {
	case msg.Is(gomidi.TimingClockMsg):
		f.pulse()
	case msg.Is(gomidi.StartMsg):
		f.mu.Lock()
		f.running = true
		f.pulses = 0
		f.mu.Unlock()
		f.player.Play()
		f.notify(ClockStarted, "")
	case msg.Is(gomidi.ContinueMsg):
		f.mu.Lock()
		f.running = true
		f.mu.Unlock()
		f.player.Resume()
		f.notify(ClockStarted, "")
	case msg.Is(gomidi.StopMsg):
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
		f.player.Stop()
		f.notify(ClockStopped, "")
	}
}

// pulse fires the player every sixth clock. The pulse right after Start is
// the downbeat, so the count starts at zero.
func (f *Follower) pulse() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	n := f.pulses
	f.pulses++
	f.mu.Unlock()

	if n%pulsesPerSixteenth == 0 {
		f.player.Sixteenth()
	}
}

func (f *Follower) notify(t ClockEventType, port string) {
	select {
	case f.events <- ClockEvent{Type: t, Port: port}:
	default:
	}
}
