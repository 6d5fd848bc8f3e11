package sequencer

import "github.com/ben-juodvalkis/permute-sub000/host"

// ChanceState drives the probability gate. Deliberately simpler than
// temperature: the dial value is written to every note, and restore means
// writing the constant full probability back - there is no per-identity
// map to maintain.
type ChanceState struct {
	value float64
}

func NewChanceState() *ChanceState {
	return &ChanceState{value: 1.0}
}

func (c *ChanceState) Value() float64 {
	return c.value
}

// SetValue stores the clamped scalar and returns what it replaced.
func (c *ChanceState) SetValue(v float64) (prev float64) {
	prev = c.value
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	c.value = v
	return prev
}

// Apply returns the notes whose probability must change to the dial value.
func (c *ChanceState) Apply(notes []host.Note) []host.Note {
	var changed []host.Note
	for _, n := range notes {
		if n.Probability == c.value {
			continue
		}
		n.Probability = c.value
		changed = append(changed, n)
	}
	return changed
}

// Restore returns the notes whose probability must go back to full.
func (c *ChanceState) Restore(notes []host.Note) []host.Note {
	var changed []host.Note
	for _, n := range notes {
		if n.Probability == 1.0 {
			continue
		}
		n.Probability = 1.0
		changed = append(changed, n)
	}
	return changed
}
