package control

import (
	"strings"
	"testing"

	"github.com/ben-juodvalkis/permute-sub000/host"
	"github.com/ben-juodvalkis/permute-sub000/sequencer"
)

func TestParseStepCommands(t *testing.T) {
	cmd, err := ParseCommand("sub000 0 mstep 3 0")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Instance != 0 || cmd.Verb != VerbMuteStep || cmd.Index != 3 || cmd.Value != 0 || cmd.Seq != 0 {
		t.Fatalf("unexpected command %+v", cmd)
	}

	cmd, err = ParseCommand("sub000 2 pstep 7 1 seq=99")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Instance != 2 || cmd.Verb != VerbPitchStep || cmd.Index != 7 || cmd.Value != 1 || cmd.Seq != 99 {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestParseLengthAndRate(t *testing.T) {
	cmd, err := ParseCommand("sub000 0 mlen 12")
	if err != nil || cmd.Length != 12 {
		t.Fatalf("mlen: %+v err=%v", cmd, err)
	}
	cmd, err = ParseCommand("sub000 0 prate 1 2 240 seq=5")
	if err != nil {
		t.Fatalf("prate: %v", err)
	}
	want := sequencer.Division{Bars: 1, Beats: 2, Ticks: 240}
	if cmd.Division != want || cmd.Seq != 5 {
		t.Fatalf("prate: %+v", cmd)
	}
}

func TestParseScalars(t *testing.T) {
	cmd, err := ParseCommand("sub000 0 temp 0.65")
	if err != nil || cmd.Scalar != 0.65 {
		t.Fatalf("temp: %+v err=%v", cmd, err)
	}
	cmd, err = ParseCommand("sub000 0 chance 0.3")
	if err != nil || cmd.Scalar != 0.3 {
		t.Fatalf("chance: %+v err=%v", cmd, err)
	}
}

func TestParseTriggers(t *testing.T) {
	if _, err := ParseCommand("sub000 0 shuffle"); err != nil {
		t.Fatalf("shuffle: %v", err)
	}
	if _, err := ParseCommand("sub000 0 reset seq=3"); err != nil {
		t.Fatalf("reset with seq: %v", err)
	}
	if _, err := ParseCommand("sub000 0 shuffle 1"); err == nil {
		t.Fatalf("shuffle with args must fail")
	}
}

func TestParseSet(t *testing.T) {
	base := "sub000 1 set 1 0 1 0 1 0 1 0 8 0 0 120 0 1 0 1 0 1 0 1 4 0 1 0"

	cmd, err := ParseCommand(base)
	if err != nil {
		t.Fatalf("bare set: %v", err)
	}
	b := cmd.Bulk
	if b.MuteLength != 8 || b.PitchLength != 4 {
		t.Fatalf("lengths %d/%d", b.MuteLength, b.PitchLength)
	}
	if b.MuteDivision != (sequencer.Division{Ticks: 120}) || b.PitchDivision != (sequencer.Division{Beats: 1}) {
		t.Fatalf("divisions %+v/%+v", b.MuteDivision, b.PitchDivision)
	}
	if b.MutePattern[0] != 1 || b.MutePattern[1] != 0 || b.PitchPattern[0] != 0 || b.PitchPattern[1] != 1 {
		t.Fatalf("patterns %v/%v", b.MutePattern, b.PitchPattern)
	}
	if b.Temperature != nil || b.Chance != nil {
		t.Fatalf("bare set must leave scalars nil")
	}

	cmd, err = ParseCommand(base + " 0.5")
	if err != nil || cmd.Bulk.Temperature == nil || *cmd.Bulk.Temperature != 0.5 {
		t.Fatalf("set with temp: %+v err=%v", cmd.Bulk, err)
	}
	if cmd.Bulk.Chance != nil {
		t.Fatalf("chance must stay nil without its arg")
	}

	cmd, err = ParseCommand(base + " 0.5 0.75 seq=11")
	if err != nil {
		t.Fatalf("full set: %v", err)
	}
	if cmd.Bulk.Chance == nil || *cmd.Bulk.Chance != 0.75 || cmd.Seq != 11 {
		t.Fatalf("full set: %+v seq=%d", cmd.Bulk, cmd.Seq)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"sub000",
		"sub000 0",
		"nope 0 mstep 1 1",
		"sub000 x mstep 1 1",
		"sub000 0 mstep 1",
		"sub000 0 mstep 1 1 1",
		"sub000 0 mstep one two",
		"sub000 0 bogus 1",
		"sub000 0 temp",
		"sub000 0 temp abc",
		"sub000 0 mrate 1 2",
		"sub000 0 set 1 2 3",
		"sub000 0 mstep 1 1 seq=abc",
	}
	for _, line := range bad {
		if _, err := ParseCommand(line); err == nil {
			t.Fatalf("expected %q to fail", line)
		}
	}
}

// A broadcast snapshot uses reason tags that collide with verb names. The
// argument counts never line up, so a snapshot looped back into the command
// port must always be dropped.
func TestReflectedSnapshotNeverParses(t *testing.T) {
	snap := sequencer.Snapshot{
		Instance:      0,
		MutePattern:   [8]int{1, 0, 1, 0, 1, 1, 1, 1},
		MuteLength:    8,
		MuteDivision:  sequencer.Division{Ticks: 120},
		MuteStep:      2,
		PitchLength:   8,
		PitchDivision: sequencer.Division{Ticks: 120},
		PitchStep:     -1,
		Temperature:   0.5,
	}
	reasons := []sequencer.Reason{
		sequencer.ReasonMuteStep, sequencer.ReasonMuteLength, sequencer.ReasonMuteRate,
		sequencer.ReasonPitchStep, sequencer.ReasonPitchLength, sequencer.ReasonPitchRate,
		sequencer.ReasonTemperature, sequencer.ReasonChance, sequencer.ReasonBulkSet,
		sequencer.ReasonInit, sequencer.ReasonPosition,
	}
	for _, reason := range reasons {
		line := EncodeSnapshot(sequencer.Change{Reason: reason, Seq: 9}, snap)
		if _, err := ParseCommand(line); err == nil {
			t.Fatalf("reflected %q snapshot parsed as a command: %q", reason, line)
		}
	}
}

func TestSnapshotGoldenLine(t *testing.T) {
	snap := sequencer.Snapshot{
		Instance:      0,
		MutePattern:   [8]int{1, 0, 1, 0, 1, 1, 1, 1},
		MuteLength:    8,
		MuteDivision:  sequencer.Division{Ticks: 120},
		MuteStep:      2,
		PitchPattern:  [8]int{0, 0, 0, 0, 0, 0, 0, 0},
		PitchLength:   8,
		PitchDivision: sequencer.Division{Ticks: 120},
		PitchStep:     -1,
		Temperature:   0.5,
	}
	got := EncodeSnapshot(sequencer.Change{Reason: sequencer.ReasonMuteStep, Seq: 7}, snap)
	want := "sub000 0 mstep 7 1 0 1 0 1 1 1 1 8 0 0 120 2 0 0 0 0 0 0 0 0 8 0 0 120 -1 0.5"
	if got != want {
		t.Fatalf("wire line drifted:\n got %q\nwant %q", got, want)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	in := sequencer.Snapshot{
		Instance:      3,
		MutePattern:   [8]int{1, 1, 0, 1, 0, 1, 1, 0},
		MuteLength:    6,
		MuteDivision:  sequencer.Division{Bars: 1, Beats: 2, Ticks: 60},
		MuteStep:      4,
		PitchPattern:  [8]int{0, 1, 1, 0, 0, 0, 1, 0},
		PitchLength:   3,
		PitchDivision: sequencer.Division{Beats: 1},
		PitchStep:     1,
		Temperature:   0.25,
	}
	chIn := sequencer.Change{Reason: sequencer.ReasonBulkSet, Seq: 123}

	ch, out, err := ParseSnapshot(EncodeSnapshot(chIn, in))
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if ch.Reason != chIn.Reason || ch.Seq != chIn.Seq {
		t.Fatalf("change drifted: %+v", ch)
	}
	// Chance is not on the wire; everything else must survive.
	in.Chance = out.Chance
	if out != in {
		t.Fatalf("snapshot drifted:\n got %+v\nwant %+v", out, in)
	}
}

func TestParseSnapshotRejectsMalformed(t *testing.T) {
	good := EncodeSnapshot(sequencer.Change{Reason: sequencer.ReasonInit}, sequencer.Snapshot{MuteLength: 8, PitchLength: 8, Temperature: 0})
	bad := []string{
		"",
		"sub000 0 init",
		strings.Replace(good, "sub000", "other", 1),
		good + " 9",
		strings.Replace(good, " 8 ", " x ", 1),
	}
	for _, line := range bad {
		if _, _, err := ParseSnapshot(line); err == nil {
			t.Fatalf("expected %q to fail", line)
		}
	}
}

func TestDispatchRoutesToEngine(t *testing.T) {
	song := host.NewMemorySong()
	r := sequencer.NewRunner()
	e := sequencer.NewEngine(song, 0, r)
	rec := &captureBroadcaster{}
	e.AddBroadcaster(rec)

	dispatch := func(line string) {
		t.Helper()
		cmd, err := ParseCommand(line)
		if err != nil {
			t.Fatalf("parse %q: %v", line, err)
		}
		Dispatch(cmd, e)
		r.Pump()
	}

	dispatch("sub000 0 mstep 2 0 seq=10")
	ch, snap := rec.last()
	if ch.Reason != sequencer.ReasonMuteStep || ch.Origin != sequencer.OriginNetwork || ch.Seq != 10 {
		t.Fatalf("mstep ack %+v", ch)
	}
	if snap.MutePattern[2] != 0 {
		t.Fatalf("mute cell not applied: %v", snap.MutePattern)
	}

	dispatch("sub000 0 plen 5 seq=11")
	ch, snap = rec.last()
	if ch.Reason != sequencer.ReasonPitchLength || ch.Seq != 11 || snap.PitchLength != 5 {
		t.Fatalf("plen ack %+v %+v", ch, snap)
	}

	dispatch("sub000 0 mrate 0 1 0 seq=12")
	ch, snap = rec.last()
	if ch.Reason != sequencer.ReasonMuteRate || snap.MuteDivision != (sequencer.Division{Beats: 1}) {
		t.Fatalf("mrate ack %+v %+v", ch, snap)
	}

	dispatch("sub000 0 temp 0.8 seq=13")
	ch, snap = rec.last()
	if ch.Reason != sequencer.ReasonTemperature || snap.Temperature != 0.8 {
		t.Fatalf("temp ack %+v %+v", ch, snap)
	}

	dispatch("sub000 0 set 1 0 1 0 1 0 1 0 8 0 0 120 0 1 0 1 0 1 0 1 8 0 0 120 0.4 0.9 seq=14")
	ch, snap = rec.last()
	if ch.Reason != sequencer.ReasonBulkSet || ch.Seq != 14 {
		t.Fatalf("set ack %+v", ch)
	}
	if snap.Temperature != 0.4 || snap.Chance != 0.9 {
		t.Fatalf("set scalars %v/%v", snap.Temperature, snap.Chance)
	}
}

type captureBroadcaster struct {
	changes   []sequencer.Change
	snapshots []sequencer.Snapshot
}

func (b *captureBroadcaster) Broadcast(ch sequencer.Change, s sequencer.Snapshot) {
	b.changes = append(b.changes, ch)
	b.snapshots = append(b.snapshots, s)
}

func (b *captureBroadcaster) last() (sequencer.Change, sequencer.Snapshot) {
	if len(b.changes) == 0 {
		return sequencer.Change{}, sequencer.Snapshot{}
	}
	return b.changes[len(b.changes)-1], b.snapshots[len(b.snapshots)-1]
}
