package config

import (
	"os"
	"testing"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Player.Tempo != 120 || cfg.Player.Clock != ClockInternal {
		t.Errorf("player defaults wrong: %+v", cfg.Player)
	}
	if len(cfg.Clip.Notes) == 0 {
		t.Error("default clip has no notes")
	}
	if cfg.Control.ListenAddr == "" {
		t.Error("default listen address empty")
	}
	if cfg.MIDI.Channel != 1 {
		t.Errorf("default channel = %d, want 1", cfg.MIDI.Channel)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Instance = 3
	cfg.Player.Tempo = 97.5
	cfg.Player.Clock = ClockMIDI
	cfg.MIDI.ClockPort = "IAC Driver Bus 1"
	cfg.UI.Palette = "/tmp/x.gpl"
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}

	got, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.Instance != 3 || got.Player.Tempo != 97.5 || got.Player.Clock != ClockMIDI {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.MIDI.ClockPort != "IAC Driver Bus 1" || got.UI.Palette != "/tmp/x.gpl" {
		t.Errorf("round trip lost fields: midi=%+v ui=%+v", got.MIDI, got.UI)
	}
}

func TestLoadRepairsBadValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path, _ := ConfigPath()
	bad := `{"player":{"tempo":-10,"clock":"smpte"},"midi":{"channel":40},"clip":{"loopBeats":-2}}`
	if err := os.WriteFile(path, []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Player.Tempo != 120 {
		t.Errorf("tempo not repaired: %v", cfg.Player.Tempo)
	}
	if cfg.Player.Clock != ClockInternal {
		t.Errorf("clock not repaired: %v", cfg.Player.Clock)
	}
	if cfg.MIDI.Channel != 1 {
		t.Errorf("channel not repaired: %d", cfg.MIDI.Channel)
	}
	if cfg.Clip.LoopBeats != 4 {
		t.Errorf("loop beats not repaired: %v", cfg.Clip.LoopBeats)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path, _ := ConfigPath()
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Error("malformed config loaded without error")
	}
}
