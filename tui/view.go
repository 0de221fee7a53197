package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/SoberingRealityCheck/hexapod-server/robotstate"
)

const batteryBarWidth = 20

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Hexapod Monitoring · " + m.src.RobotName()))
	b.WriteString("\n\n")

	if m.status.Terminal() {
		b.WriteString(m.renderBanner())
		b.WriteString("\n")
	} else if m.status.Loading {
		b.WriteString(m.spinner.View() + " " + m.styles.Muted.Render(robotstate.PlaceholderMessage))
		b.WriteString("\n\n")
	}

	b.WriteString(m.styles.Panel.Render(m.renderStatus()))
	b.WriteString("\n")
	b.WriteString(m.styles.Title.Render("Messages"))
	b.WriteString("\n")
	b.WriteString(m.messages.View())
	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderBanner() string {
	lines := []string{
		m.styles.Danger.Render("Connection Error"),
		m.styles.Text.Render(m.status.TerminalMessage),
		m.styles.Muted.Render("Showing last known state:"),
	}
	if m.restarting {
		lines = append(lines, m.spinner.View()+" restarting sync")
	}
	return m.styles.Banner.Render(strings.Join(lines, "\n"))
}

func (m Model) renderStatus() string {
	s := m.state
	rows := []string{
		m.row("Status", m.onlineLabel(s.Online)),
		m.row("Battery", m.batteryBar(s.BatteryLevel)+" "+formatBattery(s.BatteryLevel)+"%"),
		m.row("Location", fmt.Sprintf("%s, %s", formatCoord(s.GPSLocation.Latitude), formatCoord(s.GPSLocation.Longitude))),
		m.row("Sync", m.syncLabel()),
		m.row("Updated", m.updatedLabel()),
	}
	return strings.Join(rows, "\n")
}

func (m Model) row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, m.styles.Label.Render(label), value)
}

func (m Model) onlineLabel(online bool) string {
	if online {
		return m.styles.Online.Render("● Online")
	}
	return m.styles.Offline.Render("● Offline")
}

func (m Model) syncLabel() string {
	st := m.status
	switch st.Phase {
	case robotstate.PhaseBackoff:
		return m.styles.Danger.Render(fmt.Sprintf("retry %d/%d in %s", st.Attempt+1, st.MaxAttempts, formatDelay(st.NextDelayMS)))
	case robotstate.PhaseTerminal:
		return m.styles.Danger.Render("offline mode")
	default:
		return m.styles.Text.Render(st.Phase.String())
	}
}

func (m Model) updatedLabel() string {
	if m.status.LastSuccess.IsZero() {
		return m.styles.Muted.Render("never")
	}
	return m.styles.Muted.Render(humanize.Time(m.status.LastSuccess))
}

// batteryBar draws a fixed-width gauge coloured by charge level.
func (m Model) batteryBar(level float64) string {
	filled := int(min(max(level, 0), 100) / 100 * batteryBarWidth)
	style := m.styles.Battery[batteryBucket(level)]
	return style.Render(strings.Repeat("█", filled)) +
		m.styles.BarEmpty.Render(strings.Repeat("░", batteryBarWidth-filled))
}

func (m Model) renderMessages() string {
	if len(m.state.Messages) == 0 {
		return m.styles.Muted.Render("no messages")
	}
	lines := make([]string, 0, len(m.state.Messages))
	for _, msg := range m.state.Messages {
		line := m.styles.Text.Render(msg.Message)
		if msg.Timestamp != "" {
			line = m.styles.Timestamp.Render(msg.Timestamp) + " " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderHelp() string {
	parts := make([]string, 0, len(m.keys.shortHelp()))
	for _, k := range m.keys.shortHelp() {
		h := k.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return m.styles.Muted.Render(strings.Join(parts, " · "))
}

func batteryBucket(level float64) string {
	switch {
	case level >= 75:
		return "high"
	case level >= 50:
		return "ok"
	case level >= 25:
		return "low"
	default:
		return "critical"
	}
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

func formatBattery(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatDelay(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
