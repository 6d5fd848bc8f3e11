package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/ben-juodvalkis/permute-sub000/config"
	"github.com/ben-juodvalkis/permute-sub000/control"
	"github.com/ben-juodvalkis/permute-sub000/debug"
	"github.com/ben-juodvalkis/permute-sub000/host"
	"github.com/ben-juodvalkis/permute-sub000/midiclock"
	"github.com/ben-juodvalkis/permute-sub000/player"
	"github.com/ben-juodvalkis/permute-sub000/sequencer"
	"github.com/ben-juodvalkis/permute-sub000/theme"
	"github.com/ben-juodvalkis/permute-sub000/ui"
)

func main() {
	if sel := os.Getenv("SUB000_DEBUG"); sel != "" {
		debug.Enable(sel)
	}
	defer gomidi.CloseDriver()

	// Load config, writing the defaults on first run so there is a file to
	// edit
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error reading config: %v\n", err)
		os.Exit(1)
	}
	if path, perr := config.ConfigPath(); perr == nil {
		if _, serr := os.Stat(path); os.IsNotExist(serr) {
			cfg.Save()
		}
	}

	// Load theme
	palette := theme.Default()
	if cfg.UI.Palette != "" {
		p, err := theme.LoadGPL(cfg.UI.Palette)
		if err != nil {
			debug.Warn("main", "palette %s: %v", cfg.UI.Palette, err)
		} else {
			palette = p
		}
	}
	th := theme.New(palette)

	// Build the in-memory host from the configured loop
	song := host.NewMemorySong()
	clip := buildClip(cfg.Clip)
	song.SetPlayingClip(clip)

	// Engine on its own goroutine
	runner := sequencer.NewRunner()
	engine := sequencer.NewEngine(song, cfg.Instance, runner)

	// Transport and MIDI output
	external := cfg.Player.Clock == config.ClockMIDI
	pl := player.NewPlayer(clip, engine, cfg.MIDI.Channel, cfg.Player.Tempo, external)
	if err := pl.OpenOutput(cfg.MIDI.OutputPort); err != nil {
		debug.Warn("main", "MIDI output: %v", err)
	}

	// Remote control over UDP
	svc, err := control.NewService(engine, cfg.Control.ListenAddr, cfg.Control.SendAddr)
	if err != nil {
		debug.Warn("main", "control service: %v", err)
	} else {
		engine.AddBroadcaster(svc)
		svc.Start()
		defer svc.Stop()
	}

	// UI listener must register before the engine goroutine starts
	listener := ui.NewListener()
	engine.AddBroadcaster(listener)
	engine.SetPositionFunc(listener.Position)

	runner.Start()
	defer runner.Stop()

	// Restore the previous session, then push the opening snapshot to every
	// listener
	if saved, err := ui.LoadState(); err != nil {
		debug.Log("main", "session state: %v", err)
	} else if saved != nil {
		saved.Apply(engine)
		if !external && saved.Tempo > 0 {
			pl.SetTempo(saved.Tempo)
		}
	}
	engine.RequestInit(sequencer.OriginInternal)

	// External clock follower
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var follower *midiclock.Follower
	if external {
		follower = midiclock.NewFollower(pl, cfg.MIDI.ClockPort)
		go follower.Run(ctx)
	}

	m := ui.NewModel(engine, pl, follower, th, listener)
	prog := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := prog.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	pl.Close()
}

// buildClip turns the configured loop into the clip both the player and the
// sequencers work on.
func buildClip(cc config.ClipConfig) *host.MemoryClip {
	name := cc.Name
	if name == "" {
		name = "loop"
	}
	clip := host.NewMemoryMIDIClip(name)
	clip.SetLoopLength(cc.LoopBeats)
	for _, n := range cc.Notes {
		clip.AddNote(n.Pitch, n.Start, n.Duration, n.Velocity)
	}
	return clip
}
