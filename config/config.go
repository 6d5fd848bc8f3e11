package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// ClockSource identifies what drives the transport tick
type ClockSource string

const (
	ClockInternal ClockSource = "internal"
	ClockMIDI     ClockSource = "midi"
)

// ControlConfig defines the UDP control endpoints
type ControlConfig struct {
	ListenAddr string `json:"listenAddr,omitempty"`
	SendAddr   string `json:"sendAddr,omitempty"`
}

// MIDIConfig defines the MIDI ports and output channel
type MIDIConfig struct {
	OutputPort string `json:"outputPort,omitempty"`
	ClockPort  string `json:"clockPort,omitempty"`
	Channel    int    `json:"channel,omitempty"`
}

// PlayerConfig defines the internal transport
type PlayerConfig struct {
	Tempo float64     `json:"tempo,omitempty"`
	Clock ClockSource `json:"clock,omitempty"`
}

// NoteConfig is one note of the configured loop, in beats
type NoteConfig struct {
	Pitch    int     `json:"pitch"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Velocity int     `json:"velocity"`
}

// ClipConfig defines the loop the player feeds to the sequencers
type ClipConfig struct {
	Name      string       `json:"name,omitempty"`
	LoopBeats float64      `json:"loopBeats,omitempty"`
	Notes     []NoteConfig `json:"notes,omitempty"`
}

// UIConfig styles the TUI. Palette is a path to a GIMP .gpl file; empty
// uses the built-in palette.
type UIConfig struct {
	Palette string `json:"palette,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Instance int           `json:"instance"`
	Control  ControlConfig `json:"control,omitempty"`
	MIDI     MIDIConfig    `json:"midi,omitempty"`
	Player   PlayerConfig  `json:"player,omitempty"`
	Clip     ClipConfig    `json:"clip,omitempty"`
	UI       UIConfig      `json:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instance: 0,
		Control: ControlConfig{
			ListenAddr: "127.0.0.1:7400",
			SendAddr:   "127.0.0.1:7401",
		},
		MIDI: MIDIConfig{
			Channel: 1,
		},
		Player: PlayerConfig{
			Tempo: 120,
			Clock: ClockInternal,
		},
		Clip: ClipConfig{
			Name:      "default",
			LoopBeats: 4,
			Notes: []NoteConfig{
				{Pitch: 60, Start: 0, Duration: 0.4, Velocity: 100},
				{Pitch: 63, Start: 0.5, Duration: 0.4, Velocity: 96},
				{Pitch: 67, Start: 1, Duration: 0.4, Velocity: 100},
				{Pitch: 70, Start: 1.5, Duration: 0.4, Velocity: 92},
				{Pitch: 60, Start: 2, Duration: 0.4, Velocity: 100},
				{Pitch: 63, Start: 2.5, Duration: 0.4, Velocity: 96},
				{Pitch: 67, Start: 3, Duration: 0.4, Velocity: 100},
				{Pitch: 72, Start: 3.5, Duration: 0.4, Velocity: 104},
			},
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "sub000"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyFloors()

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// applyFloors repairs values a hand-edited file can break
func (c *Config) applyFloors() {
	if c.Player.Tempo <= 0 {
		c.Player.Tempo = 120
	}
	if c.Player.Clock != ClockMIDI {
		c.Player.Clock = ClockInternal
	}
	if c.MIDI.Channel < 1 || c.MIDI.Channel > 16 {
		c.MIDI.Channel = 1
	}
	if c.Clip.LoopBeats <= 0 {
		c.Clip.LoopBeats = 4
	}
}
