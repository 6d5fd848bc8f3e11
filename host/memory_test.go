package host

import "testing"

func TestApplyNotesUpdatesByID(t *testing.T) {
	clip := NewMemoryMIDIClip("c1")
	a := clip.AddNote(60, 0, 0.5, 100)
	b := clip.AddNote(64, 1, 0.5, 100)

	a.Pitch = 72
	a.Muted = true
	ghost := Note{ID: 999, Pitch: 40}
	if err := clip.ApplyNotes([]Note{a, ghost}); err != nil {
		t.Fatalf("ApplyNotes failed: %v", err)
	}

	notes, err := clip.Notes()
	if err != nil {
		t.Fatalf("Notes failed: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(notes))
	}
	for _, n := range notes {
		switch n.ID {
		case a.ID:
			if n.Pitch != 72 || !n.Muted {
				t.Fatalf("note %d not updated: %+v", n.ID, n)
			}
		case b.ID:
			if n.Pitch != 64 || n.Muted {
				t.Fatalf("note %d should be untouched: %+v", n.ID, n)
			}
		default:
			t.Fatalf("unknown note id %d (ghost note must not be inserted)", n.ID)
		}
	}
	if clip.NoteWrites() != 1 {
		t.Fatalf("expected 1 note write, got %d", clip.NoteWrites())
	}
}

func TestClipObserverCancel(t *testing.T) {
	song := NewMemorySong()
	fired := 0
	cancel, err := song.ObservePlayingClip(func() { fired++ })
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}

	song.SetPlayingClip(NewMemoryMIDIClip("c1"))
	if fired != 1 {
		t.Fatalf("expected 1 notification, got %d", fired)
	}

	cancel()
	song.SetPlayingClip(nil)
	if fired != 1 {
		t.Fatalf("expected no notification after cancel, got %d", fired)
	}
}

func TestLoopJumpObserver(t *testing.T) {
	clip := NewMemoryMIDIClip("c1")
	fired := 0
	cancel, err := clip.ObserveLoopJump(func() { fired++ })
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	clip.FireLoopJump()
	clip.FireLoopJump()
	if fired != 2 {
		t.Fatalf("expected 2 loop notifications, got %d", fired)
	}
	cancel()
	clip.FireLoopJump()
	if fired != 2 {
		t.Fatalf("expected no notification after cancel, got %d", fired)
	}
}

func TestFailingClipErrorsEverywhere(t *testing.T) {
	clip := NewMemoryMIDIClip("c1")
	clip.AddNote(60, 0, 0.5, 100)
	clip.SetFailing(true)

	if _, err := clip.Notes(); err == nil {
		t.Fatalf("expected Notes to fail")
	}
	if err := clip.ApplyNotes(nil); err == nil {
		t.Fatalf("expected ApplyNotes to fail")
	}
	if _, err := clip.Gain(); err == nil {
		t.Fatalf("expected Gain to fail")
	}
	if clip.NoteWrites() != 0 {
		t.Fatalf("failed writes must not count, got %d", clip.NoteWrites())
	}

	clip.SetFailing(false)
	if _, err := clip.Notes(); err != nil {
		t.Fatalf("expected recovery after SetFailing(false): %v", err)
	}
}

func TestAudioClipRejectsNotes(t *testing.T) {
	clip := NewMemoryAudioClip("a1", 0.85, 0)
	if _, err := clip.Notes(); err == nil {
		t.Fatalf("expected Notes to fail on audio clip")
	}
	if err := clip.SetGain(0); err != nil {
		t.Fatalf("SetGain failed: %v", err)
	}
	g, err := clip.Gain()
	if err != nil || g != 0 {
		t.Fatalf("expected gain 0, got %v (err %v)", g, err)
	}
}

func TestParameterRejectsOutOfRange(t *testing.T) {
	p := NewMemoryParameter("Transpose", 0, -48, 48)
	if err := p.SetValue(49); err == nil {
		t.Fatalf("expected out-of-range set to fail")
	}
	if p.Sets() != 0 {
		t.Fatalf("rejected set must not count, got %d", p.Sets())
	}
	if err := p.SetValue(12); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	v, _ := p.Value()
	if v != 12 {
		t.Fatalf("expected 12, got %v", v)
	}
}
