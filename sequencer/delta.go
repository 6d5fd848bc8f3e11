package sequencer

import "github.com/ben-juodvalkis/permute-sub000/host"

// deltaEntry records what is actually realized on a clip's data right now,
// as opposed to what the patterns currently say. Values are the logical
// pattern values last applied: mute 1 means unmuted, pitch 0 means
// unshifted. Audio clips additionally remember the gain and coarse pitch
// found on first encounter so the revert path can put them back.
type deltaEntry struct {
	mute  int
	pitch int

	// shifted holds the identities of the notes the +12 octave delta was
	// actually applied to. Notes near the top of the MIDI range are
	// skipped when shifting up, so reverting subtracts only from notes
	// that moved - clamping instead would lose the original pitch.
	shifted map[host.NoteID]struct{}

	// chanceApplied marks that the probability gate wrote this clip's
	// notes, so reverting to full probability is ours to do.
	chanceApplied bool

	gainCaptured   bool
	originalGain   float64
	coarseCaptured bool
	originalCoarse int
}

// deltaTable tracks last-applied transformation state per clip identity.
// A missing entry means baseline: nothing applied. An entry is created on
// the first transformation request for a clip and deleted once the
// transport-stop revert has driven the clip back to baseline.
type deltaTable struct {
	entries map[string]*deltaEntry
}

func newDeltaTable() *deltaTable {
	return &deltaTable{entries: make(map[string]*deltaEntry)}
}

// entry returns the clip's record, creating a baseline one if absent.
func (t *deltaTable) entry(clipID string) *deltaEntry {
	e, ok := t.entries[clipID]
	if !ok {
		e = &deltaEntry{mute: 1, pitch: 0}
		t.entries[clipID] = e
	}
	return e
}

// peek returns the clip's record without creating one.
func (t *deltaTable) peek(clipID string) (*deltaEntry, bool) {
	e, ok := t.entries[clipID]
	return e, ok
}

func (t *deltaTable) delete(clipID string) {
	delete(t.entries, clipID)
}
