package sequencer

import (
	"github.com/ben-juodvalkis/permute-sub000/debug"
	"github.com/ben-juodvalkis/permute-sub000/host"
)

// TemperatureState is the reversible layer under the shuffle. While the
// temperature dial is nonzero it remembers, per note identity, the true
// base pitch of the clip it was captured for - the pitch with any applied
// octave delta subtracted out, so capture and restore work the same
// whether or not the pitch sequencer currently has the clip shifted.
//
// The engine owns the transitions (capture on 0 to >0, restore on return
// to 0, transport stop and clip change); this type only holds the state
// and computes the note rewrites.
type TemperatureState struct {
	value    float64
	clipID   string
	captured map[host.NoteID]int
}

func NewTemperatureState() *TemperatureState {
	return &TemperatureState{}
}

func (t *TemperatureState) Value() float64 {
	return t.value
}

// SetValue stores the clamped scalar and returns what it replaced.
func (t *TemperatureState) SetValue(v float64) (prev float64) {
	prev = t.value
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	t.value = v
	return prev
}

// Capture records every note's base pitch for the given clip. An empty
// clip captures an empty map; that is valid state, not an error.
// appliedDelta reports the direct-data pitch delta currently realized on
// each note (0 or +12 - an applied shift skips notes near the top of the
// range), subtracted so the map holds true base pitches.
func (t *TemperatureState) Capture(clipID string, notes []host.Note, appliedDelta func(host.NoteID) int) {
	t.clipID = clipID
	t.captured = make(map[host.NoteID]int, len(notes))
	for _, n := range notes {
		t.captured[n.ID] = n.Pitch - appliedDelta(n.ID)
	}
	debug.Log("temp", "captured %d notes for clip %s", len(t.captured), clipID)
}

// CapturedFor reports whether capture state exists for the given clip.
func (t *TemperatureState) CapturedFor(clipID string) bool {
	return t.captured != nil && t.clipID == clipID
}

// Discard drops capture state without restoring. Used on clip change,
// where the state belongs to a clip we no longer hold.
func (t *TemperatureState) Discard() {
	t.clipID = ""
	t.captured = nil
}

// Restore returns the notes that must be rewritten to put every captured
// note back at its true base pitch. Notes absent from the map were created
// after capture (overdubbing) and are left exactly as they are.
func (t *TemperatureState) Restore(notes []host.Note) []host.Note {
	var changed []host.Note
	for _, n := range notes {
		base, ok := t.captured[n.ID]
		if !ok || n.Pitch == base {
			continue
		}
		n.Pitch = base
		changed = append(changed, n)
	}
	return changed
}

// Reshuffle computes the loop-boundary rewrite: every captured note goes
// back to base plus the octave delta currently applied to it, then a fresh
// grouping is generated at the live temperature and applied. Starting from
// base each loop keeps shuffles from compounding; shifting before grouping
// keeps an active octave shift intact through the shuffle. The returned
// notes are the ones whose pitch changed against the input.
func (t *TemperatureState) Reshuffle(notes []host.Note, appliedDelta func(host.NoteID) int) []host.Note {
	work := make([]host.Note, len(notes))
	copy(work, notes)
	for i, n := range work {
		if base, ok := t.captured[n.ID]; ok {
			np := base + appliedDelta(n.ID)
			// A permuted pitch can have picked up a shift its base cannot
			// carry; keep it at base rather than write an invalid pitch.
			if np > maxPitch {
				np = base
			}
			work[i].Pitch = np
		}
	}

	groups := GenerateGroups(work, t.value)
	ApplyGroups(work, groups)

	var changed []host.Note
	for i := range work {
		if work[i].Pitch != notes[i].Pitch {
			changed = append(changed, work[i])
		}
	}
	debug.Log("temp", "reshuffle: %d groups, %d notes rewritten", len(groups), len(changed))
	return changed
}
