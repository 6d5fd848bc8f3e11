package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Cell is one step cell ready to draw. A zero BG means transparent.
type Cell struct {
	Rune rune
	FG   lipgloss.Color
	BG   lipgloss.Color
}

// RenderCell renders a single styled cell
func RenderCell(c Cell) string {
	style := lipgloss.NewStyle().Foreground(c.FG)
	if c.BG != "" {
		style = style.Background(c.BG)
	}
	return style.Render(string(c.Rune))
}

// RenderCellRow renders a row of cells with spacing, a gap every group cells
// (0 disables grouping)
func RenderCellRow(cells []Cell, group int) string {
	var out strings.Builder
	for i, c := range cells {
		if i > 0 {
			out.WriteString(" ")
			if group > 0 && i%group == 0 {
				out.WriteString(" ")
			}
		}
		out.WriteString(RenderCell(c))
	}
	return out.String()
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
