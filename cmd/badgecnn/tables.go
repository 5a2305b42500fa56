package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	redRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 0, 0, 1)
)

// table is a lipgloss table whose rows can be flagged to render in red.
type table struct {
	t     *lgtable.Table
	count int
	reds  map[int]bool
}

// newTable returns a bordered table. Alignments apply per column; the last
// one repeats for the remaining columns.
func newTable(headers []string, alignments ...lipgloss.Position) *table {
	t := &table{reds: make(map[int]bool)}
	t.t = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				return headerRowStyle
			case t.reds[row]:
				s = redRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			return s.Align(alignment)
		})
	if len(headers) > 0 {
		t.t.Headers(headers...)
	}
	return t
}

func (t *table) row(isRed bool, cells ...string) {
	if isRed {
		t.reds[t.count] = true
	}
	t.t.Row(cells...)
	t.count++
}

func printTable(w io.Writer, title string, t *table) {
	if title != "" {
		fmt.Fprintln(w, titleStyle.Render(title))
	}
	fmt.Fprintln(w, t.t.Render())
}
