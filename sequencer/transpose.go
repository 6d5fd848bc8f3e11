package sequencer

import (
	"strings"

	"github.com/ben-juodvalkis/permute-sub000/debug"
	"github.com/ben-juodvalkis/permute-sub000/host"
)

// OctaveSemitones is the note-data delta applied when no transpose control
// is available on the instrument.
const OctaveSemitones = 12

// transposeRules is the priority-ordered list of recognized control names.
// The shift amount is in the control's own units: semitones for
// transpose-style controls, whole octaves for octave controls.
var transposeRules = []struct {
	name  string
	shift float64
}{
	{"transpose", 12},
	{"transposition", 12},
	{"coarse", 12},
	{"pitch", 12},
	{"octave", 1},
	{"oct", 1},
}

// transposableClasses is the device-class allow-list for parameter-driven
// transposition. Anything else shifts note data directly.
var transposableClasses = map[string]bool{
	"instrument": true,
	"sampler":    true,
	"simpler":    true,
	"operator":   true,
	"wavetable":  true,
}

// ParameterTranspose shifts a discovered instrument control between its
// captured baseline and baseline+shift. The baseline is read from the live
// control on first use only and kept for the strategy's whole life:
// re-reading later could capture an already-shifted value, and re-creating
// the strategy per transport cycle reintroduces cumulative drift.
type ParameterTranspose struct {
	control  host.Parameter
	shift    float64
	baseline *float64
}

// DetectTranspose scans the instrument for a recognized transpose control,
// in rule priority order with case-insensitive name matching. It returns
// nil when the device is missing, its class is not allow-listed, or no
// control matches - the caller then realizes shifts on the clip data
// instead.
func DetectTranspose(dev host.Device) *ParameterTranspose {
	if dev == nil || !transposableClasses[dev.Class()] {
		return nil
	}
	params := dev.Parameters()
	for _, rule := range transposeRules {
		for _, p := range params {
			if strings.EqualFold(p.Name(), rule.name) {
				debug.Log("transpose", "using %q on %s device (shift %.0f)", p.Name(), dev.Class(), rule.shift)
				return &ParameterTranspose{control: p, shift: rule.shift}
			}
		}
	}
	return nil
}

// ApplyTranspose moves the control to baseline+shift (clamped to the
// control's range) when up, back to baseline otherwise. Host failures are
// logged no-ops; an unreadable control leaves the baseline uncaptured so a
// later call can try again.
func (p *ParameterTranspose) ApplyTranspose(up bool) {
	if p.baseline == nil {
		v, err := p.control.Value()
		if err != nil {
			debug.Log("transpose", "reading %s failed: %v", p.control.Name(), err)
			return
		}
		p.baseline = &v
	}
	target := *p.baseline
	if up {
		target += p.shift
		min, max := p.control.Range()
		if target > max {
			target = max
		}
		if target < min {
			target = min
		}
	}
	if err := p.control.SetValue(target); err != nil {
		debug.Log("transpose", "setting %s to %v failed: %v", p.control.Name(), target, err)
	}
}

// RevertTranspose returns the control to its baseline. The baseline itself
// stays captured: it must survive stop/start cycles and is discarded only
// with the strategy, on instrument change.
func (p *ParameterTranspose) RevertTranspose() {
	p.ApplyTranspose(false)
}

// Baseline returns the captured baseline, if any.
func (p *ParameterTranspose) Baseline() (float64, bool) {
	if p.baseline == nil {
		return 0, false
	}
	return *p.baseline, true
}
