package sequencer

import (
	"math/rand"
	"sort"

	"github.com/ben-juodvalkis/permute-sub000/debug"
	"github.com/ben-juodvalkis/permute-sub000/host"
)

// ShuffleGroup is a set of temporally adjacent notes whose pitches trade
// places. Indices point into the note slice handed to GenerateGroups, in
// start-time order; Perm is the permutation applied to the group's pitches.
type ShuffleGroup struct {
	Indices []int
	Perm    []int
}

// GenerateGroups walks the notes in start-time order and randomly forms
// disjoint groups of adjacent notes. Higher temperature forms groups more
// often and allows larger ones. Temperature > 0 with at least two notes
// always yields at least one group; temperature 0 or a single note yields
// none. Not reproducible: the global random source is used unseeded.
func GenerateGroups(notes []host.Note, temperature float64) []ShuffleGroup {
	if temperature <= 0 || len(notes) < 2 {
		return nil
	}

	order := make([]int, len(notes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return notes[order[a]].Start < notes[order[b]].Start
	})

	var groups []ShuffleGroup
	n := len(order)
	i := 0
	for i < n {
		// Force a final pair rather than come up empty-handed.
		forced := i == n-2 && len(groups) == 0
		if !forced && rand.Float64() >= temperature {
			i++
			continue
		}

		end := i + groupSize(temperature)
		if end > n {
			end = n
		}
		if end-i < 2 {
			i++
			continue
		}

		members := make([]int, end-i)
		for k := i; k < end; k++ {
			members[k-i] = order[k]
		}
		groups = append(groups, ShuffleGroup{
			Indices: members,
			Perm:    rand.Perm(len(members)),
		})
		i = end
	}
	return groups
}

// groupSize draws a target size from the temperature tier: low temperature
// swaps pairs only, mid sometimes stretches to three, high ranges up to five.
func groupSize(temperature float64) int {
	switch {
	case temperature < 0.34:
		return 2
	case temperature < 0.67:
		if rand.Float64() < 0.6 {
			return 2
		}
		return 3
	default:
		r := rand.Float64()
		switch {
		case r < 0.2:
			return 2
		case r < 0.5:
			return 3
		case r < 0.8:
			return 4
		default:
			return 5
		}
	}
}

// ApplyGroups permutes each group's current pitches in place. Snapshotting
// the current pitch, not some stored original, is what lets a reshuffle
// compose with an active octave shift: it redistributes whatever pitches
// are present. Groups referencing indices beyond the note slice are skipped
// with a logged warning and the rest still apply.
func ApplyGroups(notes []host.Note, groups []ShuffleGroup) {
	for _, g := range groups {
		if !groupInRange(g, len(notes)) {
			debug.Log("shuffle", "group %v out of range for %d notes, skipping", g.Indices, len(notes))
			continue
		}
		pitches := make([]int, len(g.Indices))
		for k, idx := range g.Indices {
			pitches[k] = notes[idx].Pitch
		}
		for k, idx := range g.Indices {
			notes[idx].Pitch = pitches[g.Perm[k]]
		}
	}
}

func groupInRange(g ShuffleGroup, n int) bool {
	if len(g.Perm) != len(g.Indices) {
		return false
	}
	for _, idx := range g.Indices {
		if idx < 0 || idx >= n {
			return false
		}
	}
	for _, p := range g.Perm {
		if p < 0 || p >= len(g.Indices) {
			return false
		}
	}
	return true
}
