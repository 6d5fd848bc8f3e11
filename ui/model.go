package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ben-juodvalkis/permute-sub000/debug"
	"github.com/ben-juodvalkis/permute-sub000/midiclock"
	"github.com/ben-juodvalkis/permute-sub000/player"
	"github.com/ben-juodvalkis/permute-sub000/sequencer"
	"github.com/ben-juodvalkis/permute-sub000/theme"
	"github.com/ben-juodvalkis/permute-sub000/widgets"
)

const laneCells = sequencer.DefaultPatternLen

const (
	laneMute = iota
	lanePitch
)

// Listener bridges engine broadcasts onto the bubbletea message loop. It
// runs on the engine goroutine so it never blocks: under a burst the UI
// drops intermediate states and paints the latest. Playhead positions ride
// a separate channel so per-tick traffic never displaces a state change.
type Listener struct {
	ch    chan StateMsg
	posCh chan PositionMsg
}

func NewListener() *Listener {
	return &Listener{
		ch:    make(chan StateMsg, 64),
		posCh: make(chan PositionMsg, 64),
	}
}

func (l *Listener) Broadcast(ch sequencer.Change, s sequencer.Snapshot) {
	select {
	case l.ch <- StateMsg{Change: ch, Snap: s}:
	default:
	}
}

// Position is the engine's per-tick step feed, installed via
// Engine.SetPositionFunc.
func (l *Listener) Position(muteStep, pitchStep int) {
	select {
	case l.posCh <- PositionMsg{MuteStep: muteStep, PitchStep: pitchStep}:
	default:
	}
}

type StateMsg struct {
	Change sequencer.Change
	Snap   sequencer.Snapshot
}

// PositionMsg carries only the playhead, every tick during playback.
type PositionMsg struct {
	MuteStep  int
	PitchStep int
}

type ClockMsg midiclock.ClockEvent

type uiMode int

const (
	modeGrid uiMode = iota
	modeNamePreset
	modePresets
)

type Model struct {
	Engine *sequencer.Engine
	Player *player.Player
	Clock  *midiclock.Follower // nil under the internal clock
	Theme  *theme.Theme

	listener *Listener

	snap sequencer.Snapshot
	lane int
	col  int

	mode        uiMode
	inputBuffer string
	presets     []string
	presetIdx   int

	confirmMode   bool
	confirmMsg    string
	confirmAction func()

	status    string
	clockInfo string
	quitting  bool
}

func NewModel(engine *sequencer.Engine, pl *player.Player, clock *midiclock.Follower, th *theme.Theme, l *Listener) Model {
	m := Model{
		Engine:   engine,
		Player:   pl,
		Clock:    clock,
		Theme:    th,
		listener: l,
	}
	// Sane paint before the init broadcast arrives.
	for i := range m.snap.MutePattern {
		m.snap.MutePattern[i] = 1
	}
	m.snap.MuteLength = laneCells
	m.snap.PitchLength = laneCells
	m.snap.MuteDivision = sequencer.Division{Ticks: int(sequencer.SixteenthTicks)}
	m.snap.PitchDivision = sequencer.Division{Ticks: int(sequencer.SixteenthTicks)}
	m.snap.MuteStep = sequencer.StepIdle
	m.snap.PitchStep = sequencer.StepIdle
	m.snap.Chance = 1.0
	return m
}

func ListenForState(l *Listener) tea.Cmd {
	return func() tea.Msg {
		return <-l.ch
	}
}

func ListenForPosition(l *Listener) tea.Cmd {
	return func() tea.Msg {
		return <-l.posCh
	}
}

func ListenForClock(f *midiclock.Follower) tea.Cmd {
	if f == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-f.Events()
		if !ok {
			return nil
		}
		return ClockMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForState(m.listener),
		ListenForPosition(m.listener),
		ListenForClock(m.Clock),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case StateMsg:
		m.applyState(msg)
		return m, ListenForState(m.listener)

	case PositionMsg:
		m.snap.MuteStep = msg.MuteStep
		m.snap.PitchStep = msg.PitchStep
		return m, ListenForPosition(m.listener)

	case ClockMsg:
		switch msg.Type {
		case midiclock.ClockConnected:
			m.clockInfo = "clock:" + msg.Port
		case midiclock.ClockDisconnected:
			m.clockInfo = "clock:searching"
		}
		return m, ListenForClock(m.Clock)
	}

	return m, nil
}

// applyState folds a broadcast into the model. The UI's own per-field edits
// are already painted optimistically, so their echoes carry only the
// playhead - applying the full payload could clobber a newer local edit
// still in flight.
func (m *Model) applyState(msg StateMsg) {
	if msg.Change.Origin == sequencer.OriginUI {
		switch msg.Change.Reason {
		case sequencer.ReasonMuteStep, sequencer.ReasonMuteLength, sequencer.ReasonMuteRate,
			sequencer.ReasonPitchStep, sequencer.ReasonPitchLength, sequencer.ReasonPitchRate,
			sequencer.ReasonTemperature, sequencer.ReasonChance:
			m.snap.MuteStep = msg.Snap.MuteStep
			m.snap.PitchStep = msg.Snap.PitchStep
			return
		}
	}
	m.snap = msg.Snap
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	// Confirmation mode
	if m.confirmMode {
		switch key {
		case "y", "Y":
			if m.confirmAction != nil {
				m.confirmAction()
			}
			m.confirmMode = false
			m.confirmAction = nil
			m.refreshPresets()
		case "n", "N", "esc", "q":
			m.confirmMode = false
			m.confirmAction = nil
		}
		return m, nil
	}

	switch m.mode {
	case modeNamePreset:
		return m.handleNameKey(key)
	case modePresets:
		return m.handlePresetKey(key)
	}
	return m.handleGridKey(key)
}

func (m Model) handleGridKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		if err := SaveState(FromSnapshot(m.snap, m.Player.Tempo())); err != nil {
			debug.Log("ui", "saving session state failed: %v", err)
		}
		m.Player.Stop()
		return m, tea.Quit

	case "p":
		if m.Clock != nil {
			m.status = "transport follows the external clock"
			return m, nil
		}
		if m.Player.Playing() {
			m.Player.Stop()
		} else {
			m.Player.Play()
		}

	case "+", "=":
		m.Player.SetTempo(m.Player.Tempo() + 5)
	case "-", "_":
		m.Player.SetTempo(m.Player.Tempo() - 5)

	case "tab", "j", "down", "k", "up":
		m.lane = 1 - m.lane
		if m.col >= m.laneCols(m.lane) {
			m.col = m.laneCols(m.lane) - 1
		}

	case "h", "left":
		if m.col > 0 {
			m.col--
		}
	case "l", "right":
		if m.col < m.laneCols(m.lane)-1 {
			m.col++
		}

	case " ", "enter", "x":
		m.toggleStep(m.lane, m.col)

	case "1", "2", "3", "4", "5", "6", "7", "8":
		idx := int(key[0] - '1')
		if idx < m.laneCols(m.lane) {
			m.toggleStep(m.lane, idx)
		}

	case "[":
		m.setLaneLength(m.lane, m.laneLength(m.lane)-1)
	case "]":
		m.setLaneLength(m.lane, m.laneLength(m.lane)+1)

	case "d":
		m.cycleDivision(m.lane)

	case "t":
		m.setTemperature(m.snap.Temperature - 0.05)
	case "T":
		m.setTemperature(m.snap.Temperature + 0.05)
	case "c":
		m.setChance(m.snap.Chance - 0.05)
	case "C":
		m.setChance(m.snap.Chance + 0.05)

	case "s":
		m.Engine.ForceReshuffle()
		m.status = "reshuffled"
	case "r":
		m.Engine.ResetToBaseline()
		m.status = "reset to baseline"

	case "w":
		m.mode = modeNamePreset
		m.inputBuffer = ""
	case "e":
		m.refreshPresets()
		m.mode = modePresets
	}
	return m, nil
}

func (m Model) handleNameKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "enter":
		name := strings.TrimSpace(m.inputBuffer)
		if name != "" {
			if err := SavePreset(name, FromSnapshot(m.snap, m.Player.Tempo())); err != nil {
				m.status = fmt.Sprintf("save failed: %v", err)
			} else {
				m.status = fmt.Sprintf("saved preset %q", sanitizeFilename(name))
			}
		}
		m.mode = modeGrid
		m.inputBuffer = ""
	case "esc":
		m.mode = modeGrid
		m.inputBuffer = ""
	case "backspace":
		if len(m.inputBuffer) > 0 {
			m.inputBuffer = m.inputBuffer[:len(m.inputBuffer)-1]
		}
	default:
		// Only accept printable characters
		if len(key) == 1 && key[0] >= 32 && key[0] < 127 {
			if key != "/" && key != "\\" {
				m.inputBuffer += key
			}
		}
	}
	return m, nil
}

func (m Model) handlePresetKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "esc", "q", "e":
		m.mode = modeGrid
	case "j", "down":
		if m.presetIdx < len(m.presets)-1 {
			m.presetIdx++
		}
	case "k", "up":
		if m.presetIdx > 0 {
			m.presetIdx--
		}
	case "enter", " ":
		if len(m.presets) == 0 {
			m.mode = modeGrid
			break
		}
		name := m.presets[m.presetIdx]
		s, err := LoadPreset(name)
		if err != nil {
			m.status = fmt.Sprintf("load failed: %v", err)
		} else {
			s.Apply(m.Engine)
			m.status = fmt.Sprintf("loaded preset %q", name)
		}
		m.mode = modeGrid
	case "d":
		if len(m.presets) == 0 {
			break
		}
		name := m.presets[m.presetIdx]
		m.confirmMsg = fmt.Sprintf("Delete preset '%s'?", name)
		m.confirmAction = func() {
			DeletePreset(name)
		}
		m.confirmMode = true
	}
	return m, nil
}

func (m *Model) refreshPresets() {
	names, _ := ListPresets()
	m.presets = names
	if m.presetIdx >= len(names) {
		m.presetIdx = max(0, len(names)-1)
	}
}

func (m *Model) laneLength(lane int) int {
	if lane == laneMute {
		return m.snap.MuteLength
	}
	return m.snap.PitchLength
}

// laneCols caps the cursor to the cells actually drawn.
func (m *Model) laneCols(lane int) int {
	n := m.laneLength(lane)
	if n > laneCells {
		n = laneCells
	}
	return n
}

func (m *Model) toggleStep(lane, idx int) {
	if lane == laneMute {
		v := 1 - m.snap.MutePattern[idx]
		m.snap.MutePattern[idx] = v
		m.Engine.SetMuteStep(idx, v, sequencer.OriginUI, 0)
	} else {
		v := 1 - m.snap.PitchPattern[idx]
		m.snap.PitchPattern[idx] = v
		m.Engine.SetPitchStep(idx, v, sequencer.OriginUI, 0)
	}
}

func (m *Model) setLaneLength(lane, n int) {
	if n < 1 {
		n = 1
	}
	if n > sequencer.MaxPatternLen {
		n = sequencer.MaxPatternLen
	}
	if lane == laneMute {
		m.snap.MuteLength = n
		m.Engine.SetMuteLength(n, sequencer.OriginUI, 0)
	} else {
		m.snap.PitchLength = n
		m.Engine.SetPitchLength(n, sequencer.OriginUI, 0)
	}
	if m.col >= m.laneCols(lane) {
		m.col = m.laneCols(lane) - 1
	}
}

var divisionPresets = []sequencer.Division{
	{Ticks: 120},
	{Ticks: 240},
	{Beats: 1},
	{Beats: 2},
	{Bars: 1},
}

var divisionNames = map[sequencer.Division]string{
	{Ticks: 120}: "1/16",
	{Ticks: 240}: "1/8",
	{Beats: 1}:   "1/4",
	{Beats: 2}:   "1/2",
	{Bars: 1}:    "1bar",
}

func divisionLabel(d sequencer.Division) string {
	if s, ok := divisionNames[d]; ok {
		return s
	}
	return fmt.Sprintf("%d.%d.%d", d.Bars, d.Beats, d.Ticks)
}

func (m *Model) cycleDivision(lane int) {
	cur := m.snap.MuteDivision
	if lane == lanePitch {
		cur = m.snap.PitchDivision
	}
	next := divisionPresets[0]
	for i, d := range divisionPresets {
		if d == cur {
			next = divisionPresets[(i+1)%len(divisionPresets)]
			break
		}
	}
	if lane == laneMute {
		m.snap.MuteDivision = next
		m.Engine.SetMuteDivision(next, sequencer.OriginUI, 0)
	} else {
		m.snap.PitchDivision = next
		m.Engine.SetPitchDivision(next, sequencer.OriginUI, 0)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (m *Model) setTemperature(v float64) {
	v = clamp01(v)
	m.snap.Temperature = v
	m.Engine.SetTemperature(v, sequencer.OriginUI, 0)
}

func (m *Model) setChance(v float64) {
	v = clamp01(v)
	m.snap.Chance = v
	m.Engine.SetChance(v, sequencer.OriginUI, 0)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	// Styles
	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	labelStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())
	statusStyle := lipgloss.NewStyle().Foreground(m.Theme.Success())

	// Header with transport and clock status
	playState := "STOP"
	if m.Player.Playing() {
		playState = "PLAY"
	}
	clockInfo := fmt.Sprintf("%3.0fbpm", m.Player.Tempo())
	if m.Clock != nil {
		clockInfo = m.clockInfo
		if clockInfo == "" {
			clockInfo = "clock:searching"
		}
	}
	header := headerStyle.Render(fmt.Sprintf("sub000  %s  %s  temp:%.2f  chance:%.2f", playState, clockInfo, m.snap.Temperature, m.snap.Chance))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")

	// Confirmation dialog takes over
	if m.confirmMode {
		out.WriteString(fmt.Sprintf("%s\n\n", m.confirmMsg))
		out.WriteString("  [y] Yes    [n] No\n")
		return out.String()
	}

	switch m.mode {
	case modeNamePreset:
		out.WriteString("────────────────────────────────\n")
		out.WriteString(fmt.Sprintf("\nName this preset: %s_\n", m.inputBuffer))
		out.WriteString("\n[enter] confirm  [esc] cancel\n")
		out.WriteString("\n────────────────────────────────\n")

	case modePresets:
		out.WriteString(labelStyle.Render("PRESETS"))
		out.WriteString("\n────────────────────────────────\n")
		if len(m.presets) == 0 {
			out.WriteString(dimStyle.Render("  (no presets yet)"))
			out.WriteString("\n")
		}
		for i, name := range m.presets {
			prefix := "  "
			style := labelStyle
			if i == m.presetIdx {
				prefix = "> "
				style = headerStyle
			}
			out.WriteString(style.Render(prefix + name))
			out.WriteString("\n")
		}
		out.WriteString("\n")
		out.WriteString(dimStyle.Render(widgets.RenderKeyHelp([]widgets.KeySection{
			{Keys: []widgets.KeyBinding{
				{Key: "j / k", Desc: "navigate"},
				{Key: "enter", Desc: "load selected"},
				{Key: "d", Desc: "delete"},
				{Key: "esc", Desc: "back"},
			}},
		})))

	default:
		out.WriteString(m.laneView(laneMute))
		out.WriteString("\n")
		out.WriteString(m.laneView(lanePitch))
		out.WriteString("\n\n")
		out.WriteString(dimStyle.Render("space:toggle  hjkl:move  [/]:len  d:div  t/T c/C:dials  s:shuffle  r:reset  p:play  +/-:tempo  w:save  e:presets  q:quit"))
	}

	if m.status != "" {
		out.WriteString("\n\n")
		out.WriteString(statusStyle.Render(m.status))
	}

	return out.String()
}

func (m Model) laneView(lane int) string {
	sym := m.Theme.Symbols

	var pattern [laneCells]int
	var length, cur int
	var name string
	var div sequencer.Division
	if lane == laneMute {
		pattern, length, cur = m.snap.MutePattern, m.snap.MuteLength, m.snap.MuteStep
		div = m.snap.MuteDivision
		name = "MUTE "
	} else {
		pattern, length, cur = m.snap.PitchPattern, m.snap.PitchLength, m.snap.PitchStep
		div = m.snap.PitchDivision
		name = "PITCH"
	}

	focused := lane == m.lane
	cells := make([]widgets.Cell, laneCells)
	for i := 0; i < laneCells; i++ {
		on := pattern[i] == 1
		beyond := i >= length
		cursor := focused && i == m.col

		var r rune
		switch {
		case beyond && cursor:
			r = sym.CursorBeyond
		case beyond:
			r = sym.StepBeyond
		case cursor && on:
			r = sym.CursorOn
		case cursor:
			r = sym.CursorOff
		case on:
			r = sym.StepOn
		default:
			r = sym.StepOff
		}

		fg := m.Theme.Muted()
		if on && !beyond {
			fg = m.Theme.Accent()
		}
		if cursor {
			fg = m.Theme.Cursor()
		}
		cell := widgets.Cell{Rune: r, FG: fg}
		if i == cur {
			cell.BG = m.Theme.Color(theme.RoleSurface)
			cell.FG = m.Theme.Active()
		}
		cells[i] = cell
	}

	nameStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())
	if focused {
		nameStyle = lipgloss.NewStyle().Foreground(m.Theme.Accent())
	}
	info := lipgloss.NewStyle().Foreground(m.Theme.Muted()).
		Render(fmt.Sprintf("len:%-2d div:%s", length, divisionLabel(div)))

	return fmt.Sprintf("%s  %s   %s", nameStyle.Render(name), widgets.RenderCellRow(cells, 4), info)
}
