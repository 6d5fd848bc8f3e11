package player

import (
	"sync"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/ben-juodvalkis/permute-sub000/host"
	"github.com/ben-juodvalkis/permute-sub000/sequencer"
)

func newTestPlayer(t *testing.T, loopBeats float64) (*Player, *host.MemoryClip, *sequencer.Runner) {
	t.Helper()
	song := host.NewMemorySong()
	clip := host.NewMemoryMIDIClip("clip-1")
	clip.SetLoopLength(loopBeats)
	song.SetPlayingClip(clip)
	r := sequencer.NewRunner()
	e := sequencer.NewEngine(song, 0, r)
	// External sync so no clock goroutine runs; tests drive Sixteenth.
	p := NewPlayer(clip, e, 1, 120, true)
	return p, clip, r
}

// fakeSender records note-ons and ignores everything else. Note-offs arrive
// from timer goroutines, so access is locked.
type fakeSender struct {
	mu  sync.Mutex
	ons []uint8
}

func (f *fakeSender) send(msg gomidi.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ch, key, vel uint8
	if msg.GetNoteOn(&ch, &key, &vel) && vel > 0 {
		f.ons = append(f.ons, key)
	}
	return nil
}

func (f *fakeSender) keys() []uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint8(nil), f.ons...)
}

func TestPlayableGate(t *testing.T) {
	cases := []struct {
		name string
		note host.Note
		want bool
	}{
		{"normal", host.Note{Pitch: 60, Velocity: 100, Probability: 1.0}, true},
		{"muted", host.Note{Pitch: 60, Velocity: 100, Muted: true, Probability: 1.0}, false},
		{"zero probability", host.Note{Pitch: 60, Velocity: 100, Probability: 0}, false},
		{"pitch below range", host.Note{Pitch: -3, Velocity: 100, Probability: 1.0}, false},
		{"pitch above range", host.Note{Pitch: 131, Velocity: 100, Probability: 1.0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := playable(tc.note); got != tc.want {
				t.Errorf("playable(%+v) = %v, want %v", tc.note, got, tc.want)
			}
		})
	}
}

func TestPlayWindowSelectsQuarterBeat(t *testing.T) {
	p, clip, _ := newTestPlayer(t, 4)
	clip.AddNote(60, 0.0, 0.4, 100)
	clip.AddNote(62, 0.1, 0.4, 100)
	clip.AddNote(64, 0.25, 0.4, 100) // next window
	clip.AddNote(65, 0.5, 0.4, 100)

	fs := &fakeSender{}
	p.send = fs.send
	p.playWindow(0, 120)

	got := fs.keys()
	if len(got) != 2 || got[0] != 60 || got[1] != 62 {
		t.Errorf("window [0, 0.25) played %v, want [60 62]", got)
	}
}

func TestPlayWindowSkipsMutedAndGated(t *testing.T) {
	p, clip, _ := newTestPlayer(t, 4)
	clip.AddNote(60, 0.0, 0.4, 100)
	n := clip.AddNote(62, 0.1, 0.4, 100)
	muted := []host.Note{{ID: n.ID, Pitch: 62, Start: 0.1, Duration: 0.4, Velocity: 100, Muted: true, Probability: 1.0}}
	if err := clip.ApplyNotes(muted); err != nil {
		t.Fatal(err)
	}
	gated := clip.AddNote(64, 0.2, 0.4, 100)
	never := []host.Note{{ID: gated.ID, Pitch: 64, Start: 0.2, Duration: 0.4, Velocity: 100, Probability: 0}}
	if err := clip.ApplyNotes(never); err != nil {
		t.Fatal(err)
	}

	fs := &fakeSender{}
	p.send = fs.send
	p.playWindow(0, 120)

	got := fs.keys()
	if len(got) != 1 || got[0] != 60 {
		t.Errorf("played %v, want just [60]", got)
	}
}

func TestSixteenthAdvancesAndWraps(t *testing.T) {
	p, clip, r := newTestPlayer(t, 1) // one beat loop: four sixteenths
	jumps := 0
	cancel, err := clip.ObserveLoopJump(func() { jumps++ })
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	p.Play()
	for i := 0; i < 4; i++ {
		p.Sixteenth()
	}
	r.Pump()

	if jumps != 1 {
		t.Errorf("loop jumps = %d, want 1", jumps)
	}
	p.mu.Lock()
	six, pos := p.sixteenth, p.loopPos
	p.mu.Unlock()
	if six != 4 {
		t.Errorf("sixteenth counter = %d, want 4", six)
	}
	if pos != 0 {
		t.Errorf("loop position = %v, want 0 after wrap", pos)
	}
}

func TestSixteenthIgnoredWhenStopped(t *testing.T) {
	p, _, _ := newTestPlayer(t, 4)
	p.Sixteenth()
	p.mu.Lock()
	six := p.sixteenth
	p.mu.Unlock()
	if six != 0 {
		t.Errorf("sixteenth advanced while stopped: %d", six)
	}
}

func TestResumeKeepsPosition(t *testing.T) {
	p, _, r := newTestPlayer(t, 4)
	p.Play()
	for i := 0; i < 3; i++ {
		p.Sixteenth()
	}
	p.Stop()
	p.Resume()
	r.Pump()

	if !p.Playing() {
		t.Fatal("player not playing after Resume")
	}
	p.mu.Lock()
	six, pos := p.sixteenth, p.loopPos
	p.mu.Unlock()
	if six != 3 || pos != 0.75 {
		t.Errorf("resume rewound: sixteenth=%d pos=%v, want 3 and 0.75", six, pos)
	}

	p.Stop()
	p.Play()
	p.mu.Lock()
	six = p.sixteenth
	p.mu.Unlock()
	if six != 0 {
		t.Errorf("play did not rewind: sixteenth=%d", six)
	}
}

func TestSetTempoClamps(t *testing.T) {
	p, _, _ := newTestPlayer(t, 4)
	p.SetTempo(10)
	if got := p.Tempo(); got != 20 {
		t.Errorf("tempo = %v, want floor 20", got)
	}
	p.SetTempo(500)
	if got := p.Tempo(); got != 300 {
		t.Errorf("tempo = %v, want ceiling 300", got)
	}
	p.SetTempo(140)
	if got := p.Tempo(); got != 140 {
		t.Errorf("tempo = %v, want 140", got)
	}
}
