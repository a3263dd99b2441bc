package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	cols, rows := m.mapSize()

	header := titleStyle.Render(" chartview ") + dimStyle.Render(" "+m.mapLabel())
	header = lipgloss.NewStyle().Width(m.width).MaxHeight(headerHeight).Render(header)

	lines := m.lines
	if len(lines) > rows {
		lines = lines[:rows]
	}
	mapView := lipgloss.NewStyle().Width(cols).Height(rows).Render(strings.Join(lines, "\n"))

	body := mapView
	if m.showList {
		side := lipgloss.NewStyle().Width(sidebarWidth).Height(rows).Render(m.list.View())
		body = lipgloss.JoinHorizontal(lipgloss.Top, side, " ", mapView)
	}
	if m.help.ShowAll {
		box := boxStyle.Render(m.help.View(m.keys))
		body = lipgloss.Place(m.width, rows, lipgloss.Center, lipgloss.Center, box)
	}

	footer := lipgloss.JoinHorizontal(lipgloss.Bottom,
		m.statusView(), "  ", m.help.ShortHelpView(m.keys.ShortHelp()))
	footer = lipgloss.NewStyle().Width(m.width).MaxHeight(footerHeight).Render(footer)

	ui := lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
	return appStyle.Width(m.width).Height(m.height).Render(ui)
}

func (m Model) mapLabel() string {
	vp := m.eng.Viewport()
	label := fmt.Sprintf("%s  %.5f %.5f  %.1f m/dot", m.current.title, vp.Center.Lat(), vp.Center.Lon(), vp.Scale)
	if m.conds.Following {
		label += "  follow"
	}
	if m.rotate {
		label += fmt.Sprintf("  hdg %03.0f", vp.Heading)
	}
	if m.sim != nil {
		label += fmt.Sprintf("  sim %03.0f° %.0f m/s", m.sim.bearing, m.sim.speed)
	}
	return label
}

func (m Model) statusView() string {
	if strings.HasPrefix(m.status, "cannot") || strings.HasPrefix(m.status, "out of memory") {
		return warnStyle.Render(" " + m.status)
	}
	return dimStyle.Render(" " + m.status)
}
