package sequencer

import (
	"github.com/ben-juodvalkis/permute-sub000/debug"
	"github.com/ben-juodvalkis/permute-sub000/host"
)

// startCaptureAttempts bounds the retry loop for work that needs a freshly
// started transport to expose its playing clip; the clip is often not
// resolvable on the first try.
const startCaptureAttempts = 5

// Engine drives both step sequencers off the transport tick and realizes
// their values on the playing clip: mute flags or gain, octave shifts on a
// discovered instrument control or directly on note data, the probability
// gate, and the temperature reshuffle with its capture/restore layer.
//
// All state is owned by the engine goroutine. The exported methods post
// onto the Runner and return immediately; the lowercase handlers they wrap
// are where the work happens. Host mutations triggered by host
// notifications always go through the deferred task queue first.
type Engine struct {
	song     host.Song
	runner   *Runner
	tasks    *TaskQueue
	instance int

	mute   *StepSequencer
	pitch  *StepSequencer
	temp   *TemperatureState
	chance *ChanceState

	transpose *ParameterTranspose // nil means shifts land on note data
	deltas    *deltaTable
	pending   map[string]*pendingApply

	running bool
	sigNum  int

	clipCacheValid bool
	cachedClip     host.Clip

	broadcasters []Broadcaster
	positionFn   func(muteStep, pitchStep int)

	observersActive bool
	cancelClipObs   func()
	cancelInstObs   func()
	cancelSigObs    func()
	cancelLoopObs   func()

	startCapture     *Task
	chanceTask       *Task
	reshufflePending bool
}

// NewEngine binds an engine to its host view. The instance index
// distinguishes engines sharing one control channel.
func NewEngine(song host.Song, instance int, runner *Runner) *Engine {
	num, _ := song.TimeSignature()
	if num <= 0 {
		num = 4
	}
	e := &Engine{
		song:     song,
		runner:   runner,
		tasks:    runner.Tasks(),
		instance: instance,
		mute:     NewStepSequencer("mute", 1),
		pitch:    NewStepSequencer("pitch", 0),
		temp:     NewTemperatureState(),
		chance:   NewChanceState(),
		deltas:   newDeltaTable(),
		pending:  make(map[string]*pendingApply),
		sigNum:   num,
	}
	dev, err := song.InstrumentDevice()
	if err != nil {
		debug.Log("engine", "instrument lookup at init failed: %v", err)
		dev = nil
	}
	e.transpose = DetectTranspose(dev)
	return e
}

func (e *Engine) Instance() int {
	return e.instance
}

// AddBroadcaster registers a settled-change listener. Call before the
// runner starts.
func (e *Engine) AddBroadcaster(b Broadcaster) {
	e.broadcasters = append(e.broadcasters, b)
}

// SetPositionFunc installs the lightweight per-tick step feed for the UI.
// Call before the runner starts.
func (e *Engine) SetPositionFunc(fn func(muteStep, pitchStep int)) {
	e.positionFn = fn
}

// Posted API. Each method hops to the engine goroutine and returns.

func (e *Engine) ProcessTick(absoluteTicks int64) {
	e.runner.Post(func() { e.processTick(absoluteTicks) })
}

func (e *Engine) TransportStart() {
	e.runner.Post(func() { e.transportStart() })
}

func (e *Engine) TransportStop() {
	e.runner.Post(func() { e.transportStop() })
}

func (e *Engine) SetMutePattern(values []int, origin Origin, seq int64) {
	vals := append([]int(nil), values...)
	e.runner.Post(func() { e.setPattern(e.mute, vals, ReasonMuteStep, origin, seq) })
}

func (e *Engine) SetMuteStep(index, value int, origin Origin, seq int64) {
	e.runner.Post(func() { e.setStep(e.mute, index, value, ReasonMuteStep, origin, seq) })
}

func (e *Engine) SetMuteLength(length int, origin Origin, seq int64) {
	e.runner.Post(func() { e.setLength(e.mute, length, ReasonMuteLength, origin, seq) })
}

func (e *Engine) SetMuteDivision(div Division, origin Origin, seq int64) {
	e.runner.Post(func() { e.setDivision(e.mute, div, ReasonMuteRate, origin, seq) })
}

func (e *Engine) SetPitchPattern(values []int, origin Origin, seq int64) {
	vals := append([]int(nil), values...)
	e.runner.Post(func() { e.setPattern(e.pitch, vals, ReasonPitchStep, origin, seq) })
}

func (e *Engine) SetPitchStep(index, value int, origin Origin, seq int64) {
	e.runner.Post(func() { e.setStep(e.pitch, index, value, ReasonPitchStep, origin, seq) })
}

func (e *Engine) SetPitchLength(length int, origin Origin, seq int64) {
	e.runner.Post(func() { e.setLength(e.pitch, length, ReasonPitchLength, origin, seq) })
}

func (e *Engine) SetPitchDivision(div Division, origin Origin, seq int64) {
	e.runner.Post(func() { e.setDivision(e.pitch, div, ReasonPitchRate, origin, seq) })
}

func (e *Engine) SetTemperature(v float64, origin Origin, seq int64) {
	e.runner.Post(func() { e.setTemperature(v, origin, seq) })
}

func (e *Engine) SetChance(v float64, origin Origin, seq int64) {
	e.runner.Post(func() { e.setChance(v, origin, seq) })
}

func (e *Engine) ForceReshuffle() {
	e.runner.Post(func() { e.forceReshuffle() })
}

func (e *Engine) ResetToBaseline() {
	e.runner.Post(func() { e.resetToBaseline() })
}

func (e *Engine) BulkSet(b BulkState, origin Origin, seq int64) {
	e.runner.Post(func() { e.bulkSet(b, origin, seq) })
}

// RequestInit re-broadcasts the full state, used by collaborators that
// just (re)connected and by the UI after re-injecting persisted values.
func (e *Engine) RequestInit(origin Origin) {
	e.runner.Post(func() { e.broadcast(Change{Reason: ReasonInit, Origin: origin}, e.snapshotState()) })
}

// Close detaches every host observer. Post-free: call it from the runner
// goroutine or after the runner stopped.
func (e *Engine) Close() {
	e.clearLoopObserver()
	for _, cancel := range []func(){e.cancelClipObs, e.cancelInstObs, e.cancelSigObs} {
		if cancel != nil {
			cancel()
		}
	}
	e.cancelClipObs, e.cancelInstObs, e.cancelSigObs = nil, nil, nil
	e.observersActive = false
}

// Tick path

func (e *Engine) processTick(absoluteTicks int64) {
	if !e.running {
		return
	}
	// Look one sixteenth ahead so writes land before the host plays them.
	t := absoluteTicks + SixteenthTicks
	e.invalidateClipCache() // once per tick; both sequencers see one clip

	muteChanged := false
	if e.mute.IsActive() {
		step, changed := e.mute.Advance(t)
		if changed {
			muteChanged = true
			e.requestMute(e.mute.Value(step))
		}
	}
	pitchChanged := false
	if e.pitch.IsActive() {
		step, changed := e.pitch.Advance(t)
		if changed {
			pitchChanged = true
			e.requestPitch(e.pitch.Value(step))
		}
	}

	debug.LogEvery(64, "tick", "t=%d mute=%d pitch=%d", t, e.mute.CurrentStep(), e.pitch.CurrentStep())
	if e.positionFn != nil {
		e.positionFn(e.mute.CurrentStep(), e.pitch.CurrentStep())
	}
	if muteChanged || pitchChanged {
		e.broadcast(Change{Reason: ReasonPosition, Origin: OriginInternal}, e.snapshotState())
	}
}

func (e *Engine) requestMute(value int) {
	clip := e.currentClip()
	if clip == nil {
		return
	}
	p := e.pendingFor(clip.ID())
	v := value
	p.mute = &v
	e.scheduleFlush(p)
}

func (e *Engine) requestPitch(value int) {
	if e.transpose != nil {
		// A control-level shift has no clip dependency; no need to batch.
		e.transpose.ApplyTranspose(value == 1)
		return
	}
	clip := e.currentClip()
	if clip == nil {
		return
	}
	p := e.pendingFor(clip.ID())
	v := value
	p.pitch = &v
	e.scheduleFlush(p)
}

func (e *Engine) pendingFor(clipID string) *pendingApply {
	p, ok := e.pending[clipID]
	if !ok {
		p = &pendingApply{clipID: clipID}
		e.pending[clipID] = p
	}
	return p
}

func (e *Engine) scheduleFlush(p *pendingApply) {
	if p.task != nil {
		return // flush already scheduled; the latest values ride along
	}
	clipID := p.clipID
	p.task = e.tasks.Push("flush "+clipID, func() { e.executeBatchApply(clipID) })
}

// executeBatchApply realizes the coalesced requests for one clip. The clip
// is re-validated first: a mismatch means it changed between enqueue and
// flush, and the work is silently dropped.
func (e *Engine) executeBatchApply(clipID string) {
	p, ok := e.pending[clipID]
	if !ok {
		return
	}
	delete(e.pending, clipID) // consumed, success or not

	clip := e.resolveClip()
	if clip == nil || clip.ID() != clipID {
		debug.Log("batch", "clip %s no longer current, flush dropped", clipID)
		return
	}
	entry := e.deltas.entry(clipID)
	if clip.IsMIDI() {
		e.flushMIDI(clip, entry, p)
	} else {
		e.flushAudio(clip, entry, p)
	}
}

func (e *Engine) flushMIDI(clip host.Clip, entry *deltaEntry, p *pendingApply) {
	notes, err := clip.Notes()
	if err != nil {
		debug.Log("batch", "reading notes for %s failed: %v", p.clipID, err)
		return
	}
	dirty := false
	if p.mute != nil && *p.mute != entry.mute {
		muted := *p.mute == 0
		changed := false
		for i := range notes {
			if notes[i].Muted != muted {
				notes[i].Muted = muted
				changed = true
			}
		}
		// The table tracks what is realized on the data, so a write that
		// touched nothing (empty clip) leaves it alone.
		if changed {
			entry.mute = *p.mute
			dirty = true
		}
	}
	if p.pitch != nil && *p.pitch != entry.pitch {
		if *p.pitch == 1 {
			// Notes that would leave the MIDI range stay put; shifting
			// them would clamp and make the revert lossy.
			shifted := make(map[host.NoteID]struct{}, len(notes))
			for i := range notes {
				if notes[i].Pitch+OctaveSemitones > maxPitch {
					continue
				}
				notes[i].Pitch += OctaveSemitones
				shifted[notes[i].ID] = struct{}{}
			}
			if len(shifted) > 0 {
				entry.shifted = shifted
				entry.pitch = 1
				dirty = true
			}
		} else {
			if unshiftNotes(notes, entry) {
				dirty = true
			}
		}
	}
	if !dirty {
		return
	}
	if err := clip.ApplyNotes(notes); err != nil {
		debug.Log("batch", "writing notes for %s failed: %v", p.clipID, err)
	}
}

// flushAudio treats mute as a gain cut and pitch as an absolute coarse
// setting, both against baselines captured on first encounter of the clip.
func (e *Engine) flushAudio(clip host.Clip, entry *deltaEntry, p *pendingApply) {
	if p.mute != nil && *p.mute != entry.mute {
		if *p.mute == 0 {
			if !entry.gainCaptured {
				g, err := clip.Gain()
				if err != nil {
					debug.Log("batch", "reading gain for %s failed: %v", p.clipID, err)
				} else {
					entry.originalGain = g
					entry.gainCaptured = true
				}
			}
			if entry.gainCaptured {
				if err := clip.SetGain(0); err != nil {
					debug.Log("batch", "muting gain for %s failed: %v", p.clipID, err)
				} else {
					entry.mute = 0
				}
			}
		} else if entry.gainCaptured {
			if err := clip.SetGain(entry.originalGain); err != nil {
				debug.Log("batch", "restoring gain for %s failed: %v", p.clipID, err)
			} else {
				entry.mute = 1
			}
		} else {
			entry.mute = 1
		}
	}
	if p.pitch != nil && *p.pitch != entry.pitch {
		if !entry.coarseCaptured {
			c, err := clip.PitchCoarse()
			if err != nil {
				debug.Log("batch", "reading coarse pitch for %s failed: %v", p.clipID, err)
			} else {
				entry.originalCoarse = c
				entry.coarseCaptured = true
			}
		}
		if entry.coarseCaptured {
			target := entry.originalCoarse
			if *p.pitch == 1 {
				target += OctaveSemitones
			}
			if err := clip.SetPitchCoarse(target); err != nil {
				debug.Log("batch", "setting coarse pitch for %s failed: %v", p.clipID, err)
			} else {
				entry.pitch = *p.pitch
			}
		}
	}
}

// Transport transitions

func (e *Engine) transportStart() {
	if e.running {
		return
	}
	e.running = true
	e.invalidateClipCache()
	debug.Log("engine", "transport start")
	if e.temp.Value() > 0 {
		e.scheduleStartCapture()
	}
}

// scheduleStartCapture (re)establishes temperature capture and the loop
// observer once the started transport exposes its clip, retrying a few
// times because the clip reference lags the start.
func (e *Engine) scheduleStartCapture() {
	if e.startCapture != nil {
		e.startCapture.Cancel()
	}
	attempts := startCaptureAttempts
	var attempt func()
	attempt = func() {
		if !e.running || e.temp.Value() == 0 {
			e.startCapture = nil
			return
		}
		clip := e.resolveClip()
		if clip == nil {
			attempts--
			if attempts <= 0 {
				debug.Log("engine", "no playing clip after transport start, capture abandoned")
				e.startCapture = nil
				return
			}
			e.startCapture = e.tasks.Push("start-capture", attempt)
			return
		}
		e.ensureCaptured(clip)
		e.establishLoopObserver(clip)
		e.startCapture = nil
	}
	e.startCapture = e.tasks.Push("start-capture", attempt)
}

func (e *Engine) transportStop() {
	if !e.running {
		return
	}
	e.running = false
	e.invalidateClipCache()
	debug.Log("engine", "transport stop")

	// Kill deferred work first so nothing re-applies behind the revert.
	for _, p := range e.pending {
		if p.task != nil {
			p.task.Cancel()
		}
	}
	e.pending = make(map[string]*pendingApply)
	if e.startCapture != nil {
		e.startCapture.Cancel()
		e.startCapture = nil
	}
	if e.chanceTask != nil {
		e.chanceTask.Cancel()
		e.chanceTask = nil
	}

	// The control-level transpose reverts whether or not a clip resolves.
	if e.transpose != nil {
		e.transpose.RevertTranspose()
	}

	if clip := e.resolveClip(); clip != nil {
		e.revertClip(clip)
	}

	e.clearLoopObserver()
	e.temp.Discard()

	e.mute.Reset()
	e.pitch.Reset()
	if e.positionFn != nil {
		e.positionFn(StepIdle, StepIdle)
	}
	e.broadcast(Change{Reason: ReasonPosition, Origin: OriginInternal}, e.snapshotState())
}

// revertClip drives one clip back to baseline: captured temperature state
// wins over reversing a raw octave delta, mute and the probability gate
// lift independently, and the clip's delta entry goes away.
func (e *Engine) revertClip(clip host.Clip) {
	entry, tracked := e.deltas.peek(clip.ID())
	if clip.IsMIDI() {
		notes, err := clip.Notes()
		if err != nil {
			debug.Log("engine", "reading notes to revert %s failed: %v", clip.ID(), err)
			return
		}
		byID := make(map[host.NoteID]int, len(notes))
		for i := range notes {
			byID[notes[i].ID] = i
		}
		dirty := false
		if e.temp.CapturedFor(clip.ID()) {
			for _, r := range e.temp.Restore(notes) {
				notes[byID[r.ID]].Pitch = r.Pitch
				dirty = true
			}
			if tracked {
				entry.pitch = 0
				entry.shifted = nil
			}
		} else if tracked && entry.pitch == 1 {
			if unshiftNotes(notes, entry) {
				dirty = true
			}
		}
		if tracked && entry.mute == 0 {
			for i := range notes {
				if notes[i].Muted {
					notes[i].Muted = false
					dirty = true
				}
			}
			entry.mute = 1
		}
		if tracked && entry.chanceApplied {
			for i := range notes {
				if notes[i].Probability != 1.0 {
					notes[i].Probability = 1.0
					dirty = true
				}
			}
			entry.chanceApplied = false
		}
		if dirty {
			if err := clip.ApplyNotes(notes); err != nil {
				debug.Log("engine", "writing revert for %s failed: %v", clip.ID(), err)
			}
		}
	} else if tracked {
		if entry.pitch == 1 && entry.coarseCaptured {
			if err := clip.SetPitchCoarse(entry.originalCoarse); err != nil {
				debug.Log("engine", "restoring coarse pitch for %s failed: %v", clip.ID(), err)
			}
		}
		if entry.mute == 0 && entry.gainCaptured {
			if err := clip.SetGain(entry.originalGain); err != nil {
				debug.Log("engine", "restoring gain for %s failed: %v", clip.ID(), err)
			}
		}
	}
	e.deltas.delete(clip.ID())
}

// Dials

func (e *Engine) setTemperature(v float64, origin Origin, seq int64) {
	e.applyTemperatureValue(v)
	e.maybeActivateObservers()
	e.broadcast(Change{Reason: ReasonTemperature, Origin: origin, Seq: seq}, e.snapshotState())
}

func (e *Engine) applyTemperatureValue(v float64) {
	if v < 0 || v > 1 {
		debug.Log("engine", "temperature %v out of range, clamping", v)
	}
	prev := e.temp.SetValue(v)
	now := e.temp.Value()
	switch {
	case prev == 0 && now > 0:
		if clip := e.currentClip(); clip != nil {
			e.ensureCaptured(clip)
			e.establishLoopObserver(clip)
		}
	case prev > 0 && now == 0:
		e.restoreTemperature()
		e.clearLoopObserver()
		e.temp.Discard()
	}
	// A nonzero-to-nonzero change only updates the scalar. Re-capturing or
	// cycling the observer here breaks a dial sweep.
}

func (e *Engine) restoreTemperature() {
	clip := e.resolveClip()
	if clip == nil || !clip.IsMIDI() || !e.temp.CapturedFor(clip.ID()) {
		return
	}
	notes, err := clip.Notes()
	if err != nil {
		debug.Log("temp", "reading notes to restore %s failed: %v", clip.ID(), err)
		return
	}
	changed := e.temp.Restore(notes)
	if len(changed) == 0 {
		return
	}
	if err := clip.ApplyNotes(changed); err != nil {
		debug.Log("temp", "writing restore for %s failed: %v", clip.ID(), err)
		return
	}
	// Restoring to base pitches also undid any applied octave delta.
	if entry, ok := e.deltas.peek(clip.ID()); ok {
		entry.pitch = 0
		entry.shifted = nil
	}
}

func (e *Engine) setChance(v float64, origin Origin, seq int64) {
	e.applyChanceValue(v)
	e.broadcast(Change{Reason: ReasonChance, Origin: origin, Seq: seq}, e.snapshotState())
}

func (e *Engine) applyChanceValue(v float64) {
	if v < 0 || v > 1 {
		debug.Log("engine", "chance %v out of range, clamping", v)
	}
	e.chance.SetValue(v)
	e.scheduleChanceApply()
}

func (e *Engine) scheduleChanceApply() {
	if e.chanceTask != nil {
		return // a dial sweep coalesces into one write
	}
	e.chanceTask = e.tasks.Push("chance", func() {
		e.chanceTask = nil
		e.applyChanceNow()
	})
}

func (e *Engine) applyChanceNow() {
	clip := e.resolveClip()
	if clip == nil || !clip.IsMIDI() {
		return
	}
	v := e.chance.Value()
	if v == 1.0 {
		// Nothing to lift unless we gated this clip before.
		entry, ok := e.deltas.peek(clip.ID())
		if !ok || !entry.chanceApplied {
			return
		}
	}
	notes, err := clip.Notes()
	if err != nil {
		debug.Log("engine", "reading notes for chance on %s failed: %v", clip.ID(), err)
		return
	}
	var changed []host.Note
	if v == 1.0 {
		changed = e.chance.Restore(notes)
	} else {
		changed = e.chance.Apply(notes)
	}
	if len(changed) == 0 {
		return
	}
	if err := clip.ApplyNotes(changed); err != nil {
		debug.Log("engine", "writing chance for %s failed: %v", clip.ID(), err)
		return
	}
	e.deltas.entry(clip.ID()).chanceApplied = v != 1.0
}

// Triggers

func (e *Engine) forceReshuffle() {
	if e.reshufflePending {
		return
	}
	e.reshufflePending = true
	e.tasks.Push("reshuffle", func() {
		e.reshufflePending = false
		e.reshuffleNow()
	})
}

func (e *Engine) resetToBaseline() {
	debug.Log("engine", "reset to baseline")
	for _, p := range e.pending {
		if p.task != nil {
			p.task.Cancel()
		}
	}
	e.pending = make(map[string]*pendingApply)
	if e.transpose != nil {
		e.transpose.RevertTranspose()
	}
	if clip := e.resolveClip(); clip != nil {
		e.revertClip(clip)
	}
	// Capture state stays: the notes sit at base now, which is exactly
	// what the map says, and the next loop reshuffles from there.
}

// Host notification handlers. Each runs as a posted message; anything that
// mutates host state is pushed onto the task queue per the two-phase rule.

func (e *Engine) loopJump() {
	if e.temp.Value() == 0 {
		return
	}
	if e.reshufflePending {
		return
	}
	e.reshufflePending = true
	e.tasks.Push("reshuffle", func() {
		e.reshufflePending = false
		e.reshuffleNow()
	})
}

func (e *Engine) reshuffleNow() {
	if e.temp.Value() == 0 {
		return
	}
	clip := e.resolveClip()
	if clip == nil || !clip.IsMIDI() || !e.temp.CapturedFor(clip.ID()) {
		return
	}
	notes, err := clip.Notes()
	if err != nil {
		debug.Log("temp", "reading notes to reshuffle %s failed: %v", clip.ID(), err)
		return
	}
	changed := e.temp.Reshuffle(notes, e.appliedPitchDelta(clip.ID()))
	if len(changed) == 0 {
		return
	}
	if err := clip.ApplyNotes(changed); err != nil {
		debug.Log("temp", "writing reshuffle for %s failed: %v", clip.ID(), err)
	}
}

func (e *Engine) clipChanged() {
	e.invalidateClipCache()
	e.temp.Discard() // stale capture belongs to the old clip
	e.clearLoopObserver()
	if e.temp.Value() == 0 {
		return
	}
	e.tasks.Push("recapture", func() {
		if e.temp.Value() == 0 {
			return
		}
		clip := e.resolveClip()
		if clip == nil {
			return
		}
		e.ensureCaptured(clip)
		e.establishLoopObserver(clip)
	})
}

func (e *Engine) instrumentChanged() {
	e.tasks.Push("instrument-swap", func() { e.swapStrategy() })
}

// swapStrategy reverts the outgoing transpose realization to baseline and
// detects the new instrument's. The new strategy starts with no captured
// baseline; it reads one on first use.
func (e *Engine) swapStrategy() {
	if e.transpose != nil {
		e.transpose.RevertTranspose()
	} else {
		e.reverseDirectPitch()
	}
	dev, err := e.song.InstrumentDevice()
	if err != nil {
		debug.Log("transpose", "instrument lookup failed: %v", err)
		dev = nil
	}
	e.transpose = DetectTranspose(dev)
}

func (e *Engine) reverseDirectPitch() {
	clip := e.resolveClip()
	if clip == nil {
		return
	}
	entry, ok := e.deltas.peek(clip.ID())
	if !ok || entry.pitch != 1 {
		return
	}
	if clip.IsMIDI() {
		notes, err := clip.Notes()
		if err != nil {
			debug.Log("transpose", "reading notes to reverse shift on %s failed: %v", clip.ID(), err)
			return
		}
		if unshiftNotes(notes, entry) {
			if err := clip.ApplyNotes(notes); err != nil {
				debug.Log("transpose", "writing reversed shift on %s failed: %v", clip.ID(), err)
				return
			}
		}
	} else if entry.coarseCaptured {
		if err := clip.SetPitchCoarse(entry.originalCoarse); err != nil {
			debug.Log("transpose", "restoring coarse pitch on %s failed: %v", clip.ID(), err)
			return
		}
		entry.pitch = 0
	}
}

func (e *Engine) timeSignatureChanged() {
	num, _ := e.song.TimeSignature()
	if num <= 0 {
		debug.Log("engine", "time signature numerator %d invalid, keeping %d", num, e.sigNum)
		return
	}
	e.sigNum = num
	e.mute.SetDivision(e.mute.Division(), num)
	e.pitch.SetDivision(e.pitch.Division(), num)
	debug.Log("engine", "time signature now %d beats per bar", num)
}

// Pattern setters

func (e *Engine) setPattern(s *StepSequencer, values []int, reason Reason, origin Origin, seq int64) {
	s.SetPattern(values)
	e.maybeActivateObservers()
	e.broadcast(Change{Reason: reason, Origin: origin, Seq: seq}, e.snapshotState())
}

func (e *Engine) setStep(s *StepSequencer, index, value int, reason Reason, origin Origin, seq int64) {
	s.SetStep(index, value)
	e.maybeActivateObservers()
	e.broadcast(Change{Reason: reason, Origin: origin, Seq: seq}, e.snapshotState())
}

func (e *Engine) setLength(s *StepSequencer, length int, reason Reason, origin Origin, seq int64) {
	s.SetLength(length)
	e.maybeActivateObservers()
	e.broadcast(Change{Reason: reason, Origin: origin, Seq: seq}, e.snapshotState())
}

func (e *Engine) setDivision(s *StepSequencer, div Division, reason Reason, origin Origin, seq int64) {
	s.SetDivision(div, e.sigNum)
	e.broadcast(Change{Reason: reason, Origin: origin, Seq: seq}, e.snapshotState())
}

// bulkSet applies a full external state in one shot and acknowledges it
// with a single bulk-tagged broadcast carrying exactly what was set.
func (e *Engine) bulkSet(b BulkState, origin Origin, seq int64) {
	e.mute.SetPattern(b.MutePattern)
	e.mute.SetLength(b.MuteLength)
	e.mute.SetDivision(b.MuteDivision, e.sigNum)
	e.pitch.SetPattern(b.PitchPattern)
	e.pitch.SetLength(b.PitchLength)
	e.pitch.SetDivision(b.PitchDivision, e.sigNum)
	if b.Temperature != nil {
		e.applyTemperatureValue(*b.Temperature)
	}
	if b.Chance != nil {
		e.applyChanceValue(*b.Chance)
	}
	e.maybeActivateObservers()
	e.broadcast(Change{Reason: ReasonBulkSet, Origin: origin, Seq: seq}, e.snapshotState())
}

// BulkState is the payload of the set-everything command. Nil scalars mean
// "leave as is".
type BulkState struct {
	MutePattern   []int
	MuteLength    int
	MuteDivision  Division
	PitchPattern  []int
	PitchLength   int
	PitchDivision Division
	Temperature   *float64
	Chance        *float64
}

// Observer lifecycle

// maybeActivateObservers subscribes to host change notifications the first
// time anything makes the engine non-inert. Idle engines cost the host
// nothing. Runs on every pattern mutation; idempotent once active.
func (e *Engine) maybeActivateObservers() {
	if e.observersActive {
		return
	}
	if !e.mute.IsActive() && !e.pitch.IsActive() && e.temp.Value() == 0 {
		return
	}
	e.observersActive = true
	debug.Log("engine", "first activity, subscribing to host notifications")

	var err error
	e.cancelClipObs, err = e.song.ObservePlayingClip(func() {
		e.runner.Post(func() { e.clipChanged() })
	})
	if err != nil {
		debug.Log("engine", "clip observer failed: %v", err)
	}
	e.cancelInstObs, err = e.song.ObserveInstrument(func() {
		e.runner.Post(func() { e.instrumentChanged() })
	})
	if err != nil {
		debug.Log("engine", "instrument observer failed: %v", err)
	}
	e.cancelSigObs, err = e.song.ObserveTimeSignature(func() {
		e.runner.Post(func() { e.timeSignatureChanged() })
	})
	if err != nil {
		debug.Log("engine", "time signature observer failed: %v", err)
	}
}

func (e *Engine) establishLoopObserver(clip host.Clip) {
	e.clearLoopObserver()
	cancel, err := clip.ObserveLoopJump(func() {
		e.runner.Post(func() { e.loopJump() })
	})
	if err != nil {
		debug.Log("temp", "loop observer on %s failed: %v", clip.ID(), err)
		return
	}
	e.cancelLoopObs = cancel
}

func (e *Engine) clearLoopObserver() {
	if e.cancelLoopObs != nil {
		e.cancelLoopObs()
		e.cancelLoopObs = nil
	}
}

// Helpers

func (e *Engine) ensureCaptured(clip host.Clip) {
	if !clip.IsMIDI() || e.temp.CapturedFor(clip.ID()) {
		return
	}
	notes, err := clip.Notes()
	if err != nil {
		debug.Log("temp", "capture read on %s failed: %v", clip.ID(), err)
		return
	}
	e.temp.Capture(clip.ID(), notes, e.appliedPitchDelta(clip.ID()))
}

// appliedPitchDelta reports the octave delta currently realized on each of
// the clip's notes, per the delta table. The delta is per note: an applied
// shift skips notes at the top of the MIDI range, so two notes on the same
// clip can carry different deltas.
func (e *Engine) appliedPitchDelta(clipID string) func(host.NoteID) int {
	entry, ok := e.deltas.peek(clipID)
	if !ok || entry.pitch != 1 {
		return func(host.NoteID) int { return 0 }
	}
	shifted := entry.shifted
	return func(id host.NoteID) int {
		if _, ok := shifted[id]; ok {
			return OctaveSemitones
		}
		return 0
	}
}

// unshiftNotes subtracts the octave delta from exactly the notes it was
// applied to and marks the entry unshifted. Notes outside the shifted set
// (skipped at apply time, or overdubbed since) are left alone.
func unshiftNotes(notes []host.Note, entry *deltaEntry) (changed bool) {
	for i := range notes {
		if _, ok := entry.shifted[notes[i].ID]; !ok {
			continue
		}
		notes[i].Pitch -= OctaveSemitones
		changed = true
	}
	entry.pitch = 0
	entry.shifted = nil
	return changed
}

// currentClip is the per-tick cached clip lookup. The cache is invalidated
// once at tick start and on transport/clip transitions, so everything
// within one tick sees the same reference.
func (e *Engine) currentClip() host.Clip {
	if !e.clipCacheValid {
		e.cachedClip = e.resolveClip()
		e.clipCacheValid = true
	}
	return e.cachedClip
}

func (e *Engine) invalidateClipCache() {
	e.clipCacheValid = false
	e.cachedClip = nil
}

// resolveClip asks the host directly, bypassing the tick cache. Flush and
// revert paths use it because the world may have moved since enqueue.
func (e *Engine) resolveClip() host.Clip {
	clip, err := e.song.PlayingClip()
	if err != nil {
		debug.Log("engine", "playing clip lookup failed: %v", err)
		return nil
	}
	return clip
}

func (e *Engine) snapshotState() Snapshot {
	var s Snapshot
	s.Instance = e.instance
	copy(s.MutePattern[:], e.mute.PatternHead(DefaultPatternLen))
	s.MuteLength = e.mute.Length()
	s.MuteDivision = e.mute.Division()
	s.MuteStep = e.mute.CurrentStep()
	copy(s.PitchPattern[:], e.pitch.PatternHead(DefaultPatternLen))
	s.PitchLength = e.pitch.Length()
	s.PitchDivision = e.pitch.Division()
	s.PitchStep = e.pitch.CurrentStep()
	s.Temperature = e.temp.Value()
	s.Chance = e.chance.Value()
	return s
}

func (e *Engine) broadcast(ch Change, s Snapshot) {
	for _, b := range e.broadcasters {
		b.Broadcast(ch, s)
	}
}

// maxPitch is the top of the MIDI note range.
const maxPitch = 127
