package host

// NoteID identifies a note within a clip. IDs survive pitch/mute edits;
// a deleted note's ID is never reused.
type NoteID int64

// Note is one note event in a MIDI clip.
type Note struct {
	ID          NoteID
	Pitch       int     // MIDI note number 0-127
	Start       float64 // position in beats from clip start
	Duration    float64 // length in beats
	Velocity    int
	Muted       bool
	Probability float64 // 0.0-1.0 chance the host plays the note
}
