package ui

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ben-juodvalkis/permute-sub000/sequencer"
)

// SavedState is the on-disk shape shared by the session state file and the
// named presets.
type SavedState struct {
	MutePattern   []int              `json:"mute_pattern"`
	MuteLength    int                `json:"mute_length"`
	MuteDivision  sequencer.Division `json:"mute_division"`
	PitchPattern  []int              `json:"pitch_pattern"`
	PitchLength   int                `json:"pitch_length"`
	PitchDivision sequencer.Division `json:"pitch_division"`
	Temperature   float64            `json:"temperature"`
	Chance        float64            `json:"chance"`
	Tempo         float64            `json:"tempo,omitempty"`
}

// FromSnapshot converts broadcast state to the persisted shape.
func FromSnapshot(s sequencer.Snapshot, tempo float64) SavedState {
	return SavedState{
		MutePattern:   append([]int(nil), s.MutePattern[:]...),
		MuteLength:    s.MuteLength,
		MuteDivision:  s.MuteDivision,
		PitchPattern:  append([]int(nil), s.PitchPattern[:]...),
		PitchLength:   s.PitchLength,
		PitchDivision: s.PitchDivision,
		Temperature:   s.Temperature,
		Chance:        s.Chance,
		Tempo:         tempo,
	}
}

// Apply re-injects the state through the engine as one bulk change. Restore
// origin means every listener, the UI included, repaints from the broadcast.
func (s *SavedState) Apply(e *sequencer.Engine) {
	temp := s.Temperature
	chance := s.Chance
	e.BulkSet(sequencer.BulkState{
		MutePattern:   s.MutePattern,
		MuteLength:    s.MuteLength,
		MuteDivision:  s.MuteDivision,
		PitchPattern:  s.PitchPattern,
		PitchLength:   s.PitchLength,
		PitchDivision: s.PitchDivision,
		Temperature:   &temp,
		Chance:        &chance,
	}, sequencer.OriginRestore, 0)
}

// statePath returns the session state file path
func statePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "sub000", "state.json"), nil
}

// SaveState writes the session state for the next run.
func SaveState(s SavedState) error {
	path, err := statePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadState reads the previous session state. A missing file is not an
// error; it returns (nil, nil) and the caller starts fresh.
func LoadState() (*SavedState, error) {
	path, err := statePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s SavedState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
