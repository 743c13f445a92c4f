package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/mount-modeler/pkg/alignment"
)

// Star error thresholds in arcseconds.
const (
	goodError = 5.0
	fairError = 15.0
)

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	goodStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	fairStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	poorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	selectedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("51"))
)

// starStyle picks the row color for a star error.
func starStyle(errorRMS float64) lipgloss.Style {
	switch {
	case errorRMS < goodError:
		return goodStyle
	case errorRMS < fairError:
		return fairStyle
	default:
		return poorStyle
	}
}

// visibleRange returns the rows [from, to) of n that fit in rows lines
// while keeping selected in view.
func visibleRange(n, rows, selected int) (int, int) {
	if rows <= 0 || n <= 0 {
		return 0, 0
	}
	if n <= rows {
		return 0, n
	}
	from := 0
	if selected >= rows {
		from = selected - rows + 1
	}
	return from, from + rows
}

// renderStars lists the model stars in mount order. selected is the 0-based
// star to highlight, or -1.
func renderStars(stars []alignment.Point, selected, rows int) string {
	var b strings.Builder

	b.WriteString(tableHeaderStyle.Render(fmt.Sprintf("%4s  %7s  %6s  %7s  %6s  %6s", "#", "Az", "Alt", "HA", "Error", "Angle")))
	b.WriteString("\n")
	if len(stars) == 0 {
		b.WriteString("no alignment stars\n")
		return b.String()
	}

	worst, _ := alignment.Model{Points: stars}.Worst()
	from, to := visibleRange(len(stars), rows, selected)
	for i := from; i < to; i++ {
		p := stars[i]
		mark := " "
		if i == worst {
			mark = "!"
		}
		line := fmt.Sprintf("%3d%s  %6.1f°  %5.1f°  %6.2fh  %5.1f\"  %5.0f°",
			p.Index, mark, p.Azimuth, p.Altitude, p.HourAngle, p.ErrorRMS, p.ErrorAngle)
		if i == selected {
			b.WriteString(selectedStyle.Render(line))
		} else {
			b.WriteString(starStyle(p.ErrorRMS).Render(line))
		}
		b.WriteString("\n")
	}
	if to < len(stars) || from > 0 {
		b.WriteString(fmt.Sprintf("%d-%d of %d\n", from+1, to, len(stars)))
	}
	return b.String()
}
