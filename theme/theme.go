package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Lane cells (no cursor)
	StepOn     rune // ● step at its sounding value
	StepOff    rune // · step muted / unshifted
	StepBeyond rune // - past lane length

	// Lane cells (with cursor)
	CursorOn     rune // ◉ cursor on sounding step
	CursorOff    rune // ○ cursor on silent step
	CursorBeyond rune // □ cursor beyond length

	Playhead rune // ▶ transport marker
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			StepOn:     '●',
			StepOff:    '·',
			StepBeyond: '-',

			CursorOn:     '◉',
			CursorOff:    '○',
			CursorBeyond: '□',

			Playhead: '▶',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0  // deep navy
	RoleSurface = 0.1  // dark blue
	RoleMuted   = 0.2  // muted blue
	RoleFG      = 0.4  // steel / pale cyan
	RoleAccent  = 0.6  // bright teal
	RoleCursor  = 0.7  // amber
	RoleActive  = 0.75 // amber-orange
	RoleWarning = 0.85 // coral
	RoleSuccess = 1.0  // pale yellow
)

// Style helpers

func (t *Theme) BG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBG))
}

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleFG))
}

func (t *Theme) Accent() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleAccent))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) Active() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleActive))
}

func (t *Theme) Cursor() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleCursor))
}

func (t *Theme) Warning() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWarning))
}

func (t *Theme) Success() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSuccess))
}

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(norm))
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
