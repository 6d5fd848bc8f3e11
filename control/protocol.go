package control

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ben-juodvalkis/permute-sub000/sequencer"
)

// Magic prefixes every datagram in both directions. Lines without it are
// not ours and are dropped without comment.
const Magic = "sub000"

// Verb is an inbound command name. Verbs are the wire tokens themselves.
type Verb string

const (
	VerbMuteStep    Verb = "mstep"
	VerbPitchStep   Verb = "pstep"
	VerbMuteLength  Verb = "mlen"
	VerbPitchLength Verb = "plen"
	VerbMuteRate    Verb = "mrate"
	VerbPitchRate   Verb = "prate"
	VerbTemperature Verb = "temp"
	VerbChance      Verb = "chance"
	VerbShuffle     Verb = "shuffle"
	VerbReset       Verb = "reset"
	VerbSet         Verb = "set"
)

// Command is one parsed instruction. Only the fields the verb uses are
// meaningful; Seq is zero when the sender did not tag the line.
type Command struct {
	Instance int
	Verb     Verb
	Index    int
	Value    int
	Length   int
	Division sequencer.Division
	Scalar   float64
	Bulk     sequencer.BulkState
	Seq      int64
}

// ParseCommand decodes one inbound line:
//
//	sub000 <instance> <verb> <args...> [seq=<n>]
//
// Argument counts are exact per verb, which is also what keeps a reflected
// snapshot line (whose reason tags collide with verb names) from parsing
// as a command.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Command{}, fmt.Errorf("short line (%d fields)", len(fields))
	}
	if fields[0] != Magic {
		return Command{}, fmt.Errorf("bad prefix %q", fields[0])
	}
	instance, err := strconv.Atoi(fields[1])
	if err != nil {
		return Command{}, fmt.Errorf("bad instance %q", fields[1])
	}

	cmd := Command{Instance: instance, Verb: Verb(fields[2])}
	args := fields[3:]
	if n := len(args); n > 0 && strings.HasPrefix(args[n-1], "seq=") {
		seq, err := strconv.ParseInt(args[n-1][len("seq="):], 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("bad seq tag %q", args[n-1])
		}
		cmd.Seq = seq
		args = args[:n-1]
	}

	switch cmd.Verb {
	case VerbMuteStep, VerbPitchStep:
		vals, err := ints(args, 2)
		if err != nil {
			return Command{}, fmt.Errorf("%s: %w", cmd.Verb, err)
		}
		cmd.Index, cmd.Value = vals[0], vals[1]
	case VerbMuteLength, VerbPitchLength:
		vals, err := ints(args, 1)
		if err != nil {
			return Command{}, fmt.Errorf("%s: %w", cmd.Verb, err)
		}
		cmd.Length = vals[0]
	case VerbMuteRate, VerbPitchRate:
		vals, err := ints(args, 3)
		if err != nil {
			return Command{}, fmt.Errorf("%s: %w", cmd.Verb, err)
		}
		cmd.Division = sequencer.Division{Bars: vals[0], Beats: vals[1], Ticks: vals[2]}
	case VerbTemperature, VerbChance:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%s: want 1 arg, got %d", cmd.Verb, len(args))
		}
		f, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return Command{}, fmt.Errorf("%s: bad value %q", cmd.Verb, args[0])
		}
		cmd.Scalar = f
	case VerbShuffle, VerbReset:
		if len(args) != 0 {
			return Command{}, fmt.Errorf("%s: want no args, got %d", cmd.Verb, len(args))
		}
	case VerbSet:
		bulk, err := parseBulk(args)
		if err != nil {
			return Command{}, fmt.Errorf("set: %w", err)
		}
		cmd.Bulk = bulk
	default:
		return Command{}, fmt.Errorf("unknown verb %q", cmd.Verb)
	}
	return cmd, nil
}

// parseBulk decodes the set payload: both sequencer blocks as
// pattern(8) length(1) division(3), then optional temperature and chance.
func parseBulk(args []string) (sequencer.BulkState, error) {
	const block = 8 + 1 + 3
	if n := len(args); n != 2*block && n != 2*block+1 && n != 2*block+2 {
		return sequencer.BulkState{}, fmt.Errorf("want %d, %d or %d args, got %d", 2*block, 2*block+1, 2*block+2, n)
	}
	vals, err := ints(args[:2*block], 2*block)
	if err != nil {
		return sequencer.BulkState{}, err
	}

	var b sequencer.BulkState
	b.MutePattern = vals[0:8]
	b.MuteLength = vals[8]
	b.MuteDivision = sequencer.Division{Bars: vals[9], Beats: vals[10], Ticks: vals[11]}
	b.PitchPattern = vals[block : block+8]
	b.PitchLength = vals[block+8]
	b.PitchDivision = sequencer.Division{Bars: vals[block+9], Beats: vals[block+10], Ticks: vals[block+11]}

	rest := args[2*block:]
	if len(rest) > 0 {
		f, err := strconv.ParseFloat(rest[0], 64)
		if err != nil {
			return sequencer.BulkState{}, fmt.Errorf("bad temperature %q", rest[0])
		}
		b.Temperature = &f
	}
	if len(rest) > 1 {
		f, err := strconv.ParseFloat(rest[1], 64)
		if err != nil {
			return sequencer.BulkState{}, fmt.Errorf("bad chance %q", rest[1])
		}
		b.Chance = &f
	}
	return b, nil
}

func ints(args []string, want int) ([]int, error) {
	if len(args) != want {
		return nil, fmt.Errorf("want %d args, got %d", want, len(args))
	}
	out := make([]int, want)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("bad int %q", a)
		}
		out[i] = v
	}
	return out, nil
}

// EncodeSnapshot renders one outbound state line:
//
//	sub000 <instance> <reason> <seq> <mute×8> <mlen> <mdiv×3> <mstep>
//	       <pitch×8> <plen> <pdiv×3> <pstep> <temp>
//
// The field order is the stable wire contract; chance is deliberately not
// on it.
func EncodeSnapshot(ch sequencer.Change, s sequencer.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(Magic)
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(s.Instance))
	sb.WriteByte(' ')
	sb.WriteString(ch.Reason.String())
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatInt(ch.Seq, 10))
	writeBlock(&sb, s.MutePattern, s.MuteLength, s.MuteDivision, s.MuteStep)
	writeBlock(&sb, s.PitchPattern, s.PitchLength, s.PitchDivision, s.PitchStep)
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatFloat(s.Temperature, 'g', -1, 64))
	return sb.String()
}

func writeBlock(sb *strings.Builder, pattern [8]int, length int, div sequencer.Division, step int) {
	for _, v := range pattern {
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(v))
	}
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(length))
	for _, v := range []int{div.Bars, div.Beats, div.Ticks} {
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(v))
	}
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(step))
}

// ParseSnapshot decodes an outbound state line, for peers that follow this
// instance's state rather than command it.
func ParseSnapshot(line string) (sequencer.Change, sequencer.Snapshot, error) {
	fields := strings.Fields(line)
	const want = 4 + 13 + 13 + 1
	if len(fields) != want {
		return sequencer.Change{}, sequencer.Snapshot{}, fmt.Errorf("want %d fields, got %d", want, len(fields))
	}
	if fields[0] != Magic {
		return sequencer.Change{}, sequencer.Snapshot{}, fmt.Errorf("bad prefix %q", fields[0])
	}

	var ch sequencer.Change
	var s sequencer.Snapshot
	instance, err := strconv.Atoi(fields[1])
	if err != nil {
		return ch, s, fmt.Errorf("bad instance %q", fields[1])
	}
	s.Instance = instance
	// Unrecognized tags map to ReasonUnknown; a follower still applies the
	// state they carry.
	ch.Reason = sequencer.ReasonFromTag(fields[2])
	ch.Origin = sequencer.OriginNetwork
	seq, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return ch, s, fmt.Errorf("bad seq %q", fields[3])
	}
	ch.Seq = seq

	rest := fields[4:]
	if s.MutePattern, s.MuteLength, s.MuteDivision, s.MuteStep, err = parseBlock(rest[:13]); err != nil {
		return ch, s, fmt.Errorf("mute block: %w", err)
	}
	if s.PitchPattern, s.PitchLength, s.PitchDivision, s.PitchStep, err = parseBlock(rest[13:26]); err != nil {
		return ch, s, fmt.Errorf("pitch block: %w", err)
	}
	if s.Temperature, err = strconv.ParseFloat(rest[26], 64); err != nil {
		return ch, s, fmt.Errorf("bad temperature %q", rest[26])
	}
	return ch, s, nil
}

func parseBlock(fields []string) (pattern [8]int, length int, div sequencer.Division, step int, err error) {
	vals := make([]int, 13)
	for i, f := range fields {
		if vals[i], err = strconv.Atoi(f); err != nil {
			return pattern, 0, div, 0, fmt.Errorf("bad int %q", f)
		}
	}
	copy(pattern[:], vals[:8])
	length = vals[8]
	div = sequencer.Division{Bars: vals[9], Beats: vals[10], Ticks: vals[11]}
	step = vals[12]
	return pattern, length, div, step, nil
}
