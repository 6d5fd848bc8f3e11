package midiclock

import (
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/ben-juodvalkis/permute-sub000/host"
	"github.com/ben-juodvalkis/permute-sub000/player"
	"github.com/ben-juodvalkis/permute-sub000/sequencer"
)

func newTestFollower(t *testing.T) (*Follower, *player.Player, *sequencer.Runner) {
	t.Helper()
	song := host.NewMemorySong()
	clip := host.NewMemoryMIDIClip("clip-1")
	clip.SetLoopLength(4)
	song.SetPlayingClip(clip)
	r := sequencer.NewRunner()
	e := sequencer.NewEngine(song, 0, r)
	p := player.NewPlayer(clip, e, 1, 120, true)
	return NewFollower(p, ""), p, r
}

func TestStartClocksAdvanceSixteenths(t *testing.T) {
	f, p, r := newTestFollower(t)

	f.handleMessage(gomidi.Start(), 0)
	if !p.Playing() {
		t.Fatal("player not playing after Start")
	}
	select {
	case ev := <-f.Events():
		if ev.Type != ClockStarted {
			t.Errorf("event type = %d, want ClockStarted", ev.Type)
		}
	default:
		t.Error("no clock event emitted on Start")
	}

	// One quarter note of clock: pulses 0, 6, 12, 18 land on sixteenths.
	for i := 0; i < 24; i++ {
		f.handleMessage(gomidi.TimingClock(), 0)
	}
	r.Pump()

	if six, _ := p.Position(); six != 4 {
		t.Errorf("sixteenths after 24 clocks = %d, want 4", six)
	}
}

func TestClocksIgnoredBeforeStart(t *testing.T) {
	f, p, _ := newTestFollower(t)
	for i := 0; i < 12; i++ {
		f.handleMessage(gomidi.TimingClock(), 0)
	}
	if six, _ := p.Position(); six != 0 {
		t.Errorf("advanced %d sixteenths without Start", six)
	}
}

func TestStopHaltsAndContinueResumes(t *testing.T) {
	f, p, r := newTestFollower(t)

	f.handleMessage(gomidi.Start(), 0)
	for i := 0; i < 12; i++ {
		f.handleMessage(gomidi.TimingClock(), 0)
	}
	f.handleMessage(gomidi.Stop(), 0)
	if p.Playing() {
		t.Fatal("player still playing after Stop")
	}
	for i := 0; i < 6; i++ {
		f.handleMessage(gomidi.TimingClock(), 0)
	}
	if six, _ := p.Position(); six != 2 {
		t.Errorf("clocks advanced transport while stopped: %d sixteenths", six)
	}

	f.handleMessage(gomidi.Continue(), 0)
	for i := 0; i < 6; i++ {
		f.handleMessage(gomidi.TimingClock(), 0)
	}
	r.Pump()
	if six, _ := p.Position(); six != 3 {
		t.Errorf("sixteenths after Continue = %d, want 3", six)
	}
}

func TestRestartResetsDownbeat(t *testing.T) {
	f, p, r := newTestFollower(t)

	f.handleMessage(gomidi.Start(), 0)
	for i := 0; i < 7; i++ {
		f.handleMessage(gomidi.TimingClock(), 0)
	}
	f.handleMessage(gomidi.Stop(), 0)

	f.handleMessage(gomidi.Start(), 0)
	f.handleMessage(gomidi.TimingClock(), 0)
	r.Pump()

	// Fresh Start rewinds: the first clock after it is the downbeat.
	if six, _ := p.Position(); six != 1 {
		t.Errorf("sixteenths after restart + 1 clock = %d, want 1", six)
	}
}
