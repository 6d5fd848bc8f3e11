package sequencer

// Reason tags a broadcast with what changed, so a listener can decide
// whether to apply the whole payload or only the position fields. The tag
// strings and the snapshot field order are a wire contract shared by
// independent consumers: append new tags, never rename or reorder.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonInit
	ReasonMuteStep
	ReasonMuteLength
	ReasonMuteRate
	ReasonPitchStep
	ReasonPitchLength
	ReasonPitchRate
	ReasonTemperature
	ReasonChance
	ReasonPosition
	ReasonBulkSet
)

var reasonTags = map[Reason]string{
	ReasonUnknown:     "unknown",
	ReasonInit:        "init",
	ReasonMuteStep:    "mstep",
	ReasonMuteLength:  "mlen",
	ReasonMuteRate:    "mrate",
	ReasonPitchStep:   "pstep",
	ReasonPitchLength: "plen",
	ReasonPitchRate:   "prate",
	ReasonTemperature: "temp",
	ReasonChance:      "chance",
	ReasonPosition:    "pos",
	ReasonBulkSet:     "set",
}

func (r Reason) String() string {
	if s, ok := reasonTags[r]; ok {
		return s
	}
	return "unknown"
}

// ReasonFromTag is the inverse of String, yielding ReasonUnknown for
// anything unrecognized.
func ReasonFromTag(tag string) Reason {
	for r, s := range reasonTags {
		if s == tag {
			return r
		}
	}
	return ReasonUnknown
}

// Origin identifies the boundary a change came through. The UI skips
// per-field updates for its own changes; everything else it applies.
type Origin int

const (
	OriginInternal Origin = iota
	OriginUI
	OriginNetwork
	OriginRestore
)

// Change describes one settled state change.
type Change struct {
	Reason Reason
	Origin Origin
	Seq    int64 // correlation number from the originating command, 0 when none
}

// Snapshot is the full engine state as broadcast. Patterns are the leading
// eight cells regardless of active length, matching the fixed wire shape.
type Snapshot struct {
	Instance      int
	MutePattern   [DefaultPatternLen]int
	MuteLength    int
	MuteDivision  Division
	MuteStep      int
	PitchPattern  [DefaultPatternLen]int
	PitchLength   int
	PitchDivision Division
	PitchStep     int
	Temperature   float64
	Chance        float64
}

// Broadcaster receives every settled change with the state it settled to.
// Implementations run on the engine goroutine and must not block.
type Broadcaster interface {
	Broadcast(ch Change, s Snapshot)
}
