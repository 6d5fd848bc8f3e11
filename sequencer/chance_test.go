package sequencer

import (
	"testing"

	"github.com/ben-juodvalkis/permute-sub000/host"
)

func TestChanceApplyReturnsOnlyChanged(t *testing.T) {
	c := NewChanceState()
	c.SetValue(0.5)
	notes := []host.Note{
		{ID: 1, Probability: 1.0},
		{ID: 2, Probability: 0.5}, // already there
		{ID: 3, Probability: 0.8},
	}
	changed := c.Apply(notes)
	if len(changed) != 2 {
		t.Fatalf("expected 2 rewrites, got %d", len(changed))
	}
	for _, n := range changed {
		if n.Probability != 0.5 {
			t.Fatalf("note %d at %v, want 0.5", n.ID, n.Probability)
		}
		if n.ID == 2 {
			t.Fatalf("note already at the dial value must be skipped")
		}
	}
}

func TestChanceRestoreLiftsToFull(t *testing.T) {
	c := NewChanceState()
	notes := []host.Note{
		{ID: 1, Probability: 0.5},
		{ID: 2, Probability: 1.0},
	}
	changed := c.Restore(notes)
	if len(changed) != 1 || changed[0].ID != 1 || changed[0].Probability != 1.0 {
		t.Fatalf("expected only note 1 lifted to 1.0, got %v", changed)
	}
}

func TestChanceValueClamps(t *testing.T) {
	c := NewChanceState()
	if c.Value() != 1.0 {
		t.Fatalf("resting value must be 1.0, got %v", c.Value())
	}
	if prev := c.SetValue(-1); prev != 1.0 || c.Value() != 0 {
		t.Fatalf("clamp low: prev %v value %v", prev, c.Value())
	}
	c.SetValue(2)
	if c.Value() != 1 {
		t.Fatalf("clamp high: got %v", c.Value())
	}
}
